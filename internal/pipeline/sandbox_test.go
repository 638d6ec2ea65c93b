package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherai-search/internal/model"
)

var salesDataset = &model.Dataset{
	Name:    "sales.csv",
	Columns: []string{"month", "total"},
	Rows:    [][]string{{"Jan", "10"}, {"Feb", "12.5"}, {"Mar", "9"}},
}

func TestExtractCode(t *testing.T) {
	text := "Here is the chart:\n```javascript\nplot.bar(['a'], [1])\n```\nDone."
	code, ok := ExtractCode(text)
	require.True(t, ok)
	assert.Equal(t, "plot.bar(['a'], [1])", code)

	_, ok = ExtractCode("```python\nprint(1)\n```")
	assert.False(t, ok)
	_, ok = ExtractCode("no code here")
	assert.False(t, ok)
}

func TestSandboxRecordsCharts(t *testing.T) {
	sb := NewChartSandbox(time.Second)
	code := `
const labels = df.rows.map(r => r[0]);
plot.bar(labels, df.column("total"), "Sales");
plot.pie(df.head(2).map(r => r[0]), [1, 2]);
print("rows:", df.length, df.columns.join(","));
`
	res := sb.Run(context.Background(), code, salesDataset)
	require.True(t, res.OK(), "%v", res.Err)
	require.Len(t, res.Charts, 2)
	assert.Equal(t, model.Chart{Kind: "bar", Title: "Sales", Labels: []string{"Jan", "Feb", "Mar"}, Values: []float64{10, 12.5, 9}}, res.Charts[0])
	assert.Equal(t, "pie", res.Charts[1].Kind)
	assert.Equal(t, []string{"Jan", "Feb"}, res.Charts[1].Labels)
	assert.Equal(t, "rows: 3 month,total", res.Output)
}

func TestSandboxErrors(t *testing.T) {
	sb := NewChartSandbox(100 * time.Millisecond)
	ctx := context.Background()

	res := sb.Run(ctx, "plot.bar(['a'], [1])", nil)
	assert.ErrorIs(t, res.Err, ErrNoDataset)

	res = sb.Run(ctx, "df.column('missing')", salesDataset)
	assert.ErrorIs(t, res.Err, ErrScript)
	assert.Contains(t, res.Err.Error(), "unknown column")

	res = sb.Run(ctx, "plot.line(['a','b'], [1])", salesDataset)
	assert.ErrorIs(t, res.Err, ErrScript)

	res = sb.Run(ctx, "throw new Error('bad chart')", salesDataset)
	assert.ErrorIs(t, res.Err, ErrScript)
	assert.Contains(t, res.Err.Error(), "bad chart")

	res = sb.Run(ctx, "while (true) {}", salesDataset)
	assert.ErrorIs(t, res.Err, ErrSandboxTimeout)
}

func TestSandboxHasNoHostAccess(t *testing.T) {
	sb := NewChartSandbox(time.Second)
	for _, code := range []string{"require('fs')", "process.exit(1)", "fetch('http://x')"} {
		res := sb.Run(context.Background(), code, salesDataset)
		assert.ErrorIs(t, res.Err, ErrScript, code)
	}
}
