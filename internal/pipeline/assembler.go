package pipeline

import (
	"fmt"
	"strings"

	"gopherai-search/internal/ai"
	"gopherai-search/internal/model"
)

const (
	genericDirective  = "You are a helpful assistant. Answer the user's question clearly and concisely."
	groundedDirective = "You are a helpful research assistant."

	webSectionHeader = "SEARCH RESULTS:"
	documentBegin    = "=== UPLOADED DOCUMENT: %s ==="
	documentEnd      = "=== END OF UPLOADED DOCUMENT ==="
	datasetHeader    = "=== LOADED DATASET: %s (%d rows, %d columns) ==="

	CodeFenceLanguage = "javascript"
)

const chartInstruction = "If the user asks for a chart, plot or any visualization, do not describe it in prose. " +
	"Answer with exactly one ```" + CodeFenceLanguage + " code block. The block runs with these bindings only: " +
	"`df.columns` (array of column names), `df.rows` (array of rows, numeric cells are numbers), " +
	"`df.head(n)`, `df.column(name)`, and `plot.bar(labels, values, title)`, `plot.line(labels, values, title)`, " +
	"`plot.scatter(xs, ys, title)`, `plot.pie(labels, values, title)`, plus `print(...)` for text output."

type Assembler struct {
	documentBudget int
	previewRows    int
}

func NewAssembler(documentBudget, previewRows int) *Assembler {
	if documentBudget <= 0 {
		documentBudget = 20000
	}
	if previewRows <= 0 {
		previewRows = 5
	}
	return &Assembler{documentBudget: documentBudget, previewRows: previewRows}
}

// Assemble builds the system instruction block. Evidence keeps retrieval
// order since the answer cites it by number.
func (a *Assembler) Assemble(evidence []model.Evidence, aux *model.AuxContext) string {
	if len(evidence) == 0 && aux.Empty() {
		return genericDirective
	}

	var b strings.Builder
	b.WriteString(groundedDirective)

	if len(evidence) > 0 {
		b.WriteString(" Answer the user's question based on the search results below. Cite sources using [1], [2], etc.\n\n")
		b.WriteString(webSectionHeader)
		for i, ev := range evidence {
			fmt.Fprintf(&b, "\n[%d] %s (%s)\n    %s", i+1, oneLine(ev.Title), ev.URL, oneLine(ev.Snippet))
		}
	}

	if aux.HasDocument() {
		b.WriteString("\n\nThe user uploaded the document below. When the answer comes from it, say it comes from the uploaded document rather than citing a web source.\n\n")
		name := aux.DocumentName
		if name == "" {
			name = "document"
		}
		fmt.Fprintf(&b, documentBegin, name)
		b.WriteString("\n")
		b.WriteString(truncateRunes(aux.DocumentText, a.documentBudget))
		b.WriteString("\n")
		b.WriteString(documentEnd)
	}

	if aux.HasDataset() {
		ds := aux.Dataset
		b.WriteString("\n\n")
		fmt.Fprintf(&b, datasetHeader, datasetName(ds), len(ds.Rows), len(ds.Columns))
		b.WriteString("\n")
		b.WriteString(MarkdownTable(ds.Columns, ds.Head(a.previewRows)))
		b.WriteString("\n")
		b.WriteString(chartInstruction)
	}

	return b.String()
}

// Messages prepends the instruction and reduces every turn to role and
// content.
func Messages(instruction string, turns []model.Turn) []ai.ChatMessage {
	out := make([]ai.ChatMessage, 0, len(turns)+1)
	out = append(out, ai.ChatMessage{Role: model.RoleSystem, Content: instruction})
	for _, t := range turns {
		out = append(out, ai.ChatMessage{Role: t.Role, Content: t.Content})
	}
	return out
}

// MarkdownTable renders a header row plus rows; short rows are padded.
func MarkdownTable(columns []string, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}
	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for i := range columns {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(" ")
			b.WriteString(strings.ReplaceAll(oneLine(cell), "|", `\|`))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}
	writeRow(columns)
	b.WriteString("|")
	for range columns {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range rows {
		writeRow(row)
	}
	return strings.TrimRight(b.String(), "\n")
}

func datasetName(ds *model.Dataset) string {
	if ds.Name == "" {
		return "dataset"
	}
	return ds.Name
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "\n[...truncated]"
}
