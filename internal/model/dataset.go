package model

// Dataset is a parsed tabular upload. Cells are kept as text; numeric
// interpretation happens where values are consumed.
type Dataset struct {
	Name    string     `json:"name"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Head returns at most n leading rows.
func (d *Dataset) Head(n int) [][]string {
	if d == nil || n <= 0 {
		return nil
	}
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	return d.Rows[:n]
}

// Column returns every cell of the named column, or false when it is unknown.
func (d *Dataset) Column(name string) ([]string, bool) {
	if d == nil {
		return nil, false
	}
	idx := -1
	for i, c := range d.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	values := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		if idx < len(row) {
			values[i] = row[idx]
		}
	}
	return values, true
}
