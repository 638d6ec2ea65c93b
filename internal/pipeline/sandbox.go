package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"

	"gopherai-search/internal/model"
)

var (
	ErrNoDataset      = errors.New("no dataset loaded")
	ErrSandboxTimeout = errors.New("code execution timed out")
	ErrScript         = errors.New("code execution failed")
)

var codeFence = regexp.MustCompile("(?s)```(?:" + CodeFenceLanguage + "|js)[ \t]*\r?\n(.*?)```")

// ExtractCode returns the body of the first javascript fence.
func ExtractCode(text string) (string, bool) {
	m := codeFence.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	code := strings.TrimSpace(m[1])
	return code, code != ""
}

// ExecResult is the structured outcome of one sandbox run.
type ExecResult struct {
	Charts []model.Chart
	Output string
	Err    error
}

func (r ExecResult) OK() bool { return r.Err == nil }

// Sandbox runs generated code with a restricted binding set.
type Sandbox interface {
	Run(ctx context.Context, code string, dataset *model.Dataset) ExecResult
}

// ChartSandbox runs code in a fresh goja runtime per call. The only
// bindings are df, plot and print; there is no module loader, filesystem
// or network access.
type ChartSandbox struct {
	timeout time.Duration
}

func NewChartSandbox(timeout time.Duration) *ChartSandbox {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ChartSandbox{timeout: timeout}
}

func (s *ChartSandbox) Run(ctx context.Context, code string, dataset *model.Dataset) (result ExecResult) {
	if dataset == nil {
		return ExecResult{Err: ErrNoDataset}
	}

	vm := goja.New()
	rec := &recorder{vm: vm}
	if err := rec.bind(dataset); err != nil {
		return ExecResult{Err: fmt.Errorf("%w: %v", ErrScript, err)}
	}

	timer := time.AfterFunc(s.timeout, func() { vm.Interrupt(ErrSandboxTimeout) })
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	_, err := vm.RunString(code)
	result = ExecResult{Charts: rec.charts, Output: strings.TrimRight(rec.output.String(), "\n")}
	if err == nil {
		return result
	}

	var interrupted *goja.InterruptedError
	var exception *goja.Exception
	switch {
	case errors.As(err, &interrupted):
		if cause, ok := interrupted.Value().(error); ok {
			result.Err = cause
		} else {
			result.Err = ErrSandboxTimeout
		}
	case errors.As(err, &exception):
		result.Err = fmt.Errorf("%w: %s", ErrScript, exception.Value().String())
	default:
		result.Err = fmt.Errorf("%w: %v", ErrScript, err)
	}
	return result
}

type recorder struct {
	vm     *goja.Runtime
	charts []model.Chart
	output strings.Builder
}

func (r *recorder) bind(ds *model.Dataset) error {
	rows := make([]any, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		rows = append(rows, typedRow(ds.Columns, row))
	}
	columns := make([]any, 0, len(ds.Columns))
	for _, c := range ds.Columns {
		columns = append(columns, c)
	}

	df := r.vm.NewObject()
	if err := df.Set("columns", columns); err != nil {
		return err
	}
	if err := df.Set("rows", rows); err != nil {
		return err
	}
	if err := df.Set("length", len(rows)); err != nil {
		return err
	}
	if err := df.Set("head", func(call goja.FunctionCall) goja.Value {
		n := 5
		if arg := call.Argument(0); !goja.IsUndefined(arg) {
			n = int(arg.ToInteger())
		}
		if n < 0 {
			n = 0
		}
		if n > len(rows) {
			n = len(rows)
		}
		return r.vm.ToValue(rows[:n])
	}); err != nil {
		return err
	}
	if err := df.Set("column", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		values, ok := ds.Column(name)
		if !ok {
			panic(r.vm.NewTypeError("unknown column %q", name))
		}
		out := make([]any, 0, len(values))
		for _, v := range values {
			out = append(out, typedCell(v))
		}
		return r.vm.ToValue(out)
	}); err != nil {
		return err
	}

	plot := r.vm.NewObject()
	for _, kind := range []string{"bar", "line", "scatter", "pie"} {
		if err := plot.Set(kind, r.chartFunc(kind)); err != nil {
			return err
		}
	}

	if err := r.vm.Set("df", df); err != nil {
		return err
	}
	if err := r.vm.Set("plot", plot); err != nil {
		return err
	}
	return r.vm.Set("print", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		r.output.WriteString(strings.Join(parts, " "))
		r.output.WriteString("\n")
		return goja.Undefined()
	})
}

func (r *recorder) chartFunc(kind string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		labels := r.stringList(call.Argument(0))
		values := r.numberList(call.Argument(1))
		if len(labels) != len(values) {
			panic(r.vm.NewTypeError("plot.%s: %d labels but %d values", kind, len(labels), len(values)))
		}
		title := ""
		if arg := call.Argument(2); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			title = arg.String()
		}
		r.charts = append(r.charts, model.Chart{Kind: kind, Title: title, Labels: labels, Values: values})
		return goja.Undefined()
	}
}

func (r *recorder) list(v goja.Value) []any {
	items, ok := v.Export().([]any)
	if !ok {
		panic(r.vm.NewTypeError("expected an array"))
	}
	return items
}

func (r *recorder) stringList(v goja.Value) []string {
	items := r.list(v)
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprint(item))
	}
	return out
}

func (r *recorder) numberList(v goja.Value) []float64 {
	items := r.list(v)
	out := make([]float64, 0, len(items))
	for _, item := range items {
		switch n := item.(type) {
		case int64:
			out = append(out, float64(n))
		case float64:
			out = append(out, n)
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				panic(r.vm.NewTypeError("value %q is not a number", n))
			}
			out = append(out, f)
		default:
			panic(r.vm.NewTypeError("value %v is not a number", item))
		}
	}
	return out
}

func typedRow(columns, row []string) []any {
	out := make([]any, len(columns))
	for i := range columns {
		if i < len(row) {
			out[i] = typedCell(row[i])
		} else {
			out[i] = nil
		}
	}
	return out
}

func typedCell(s string) any {
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return f
	}
	return s
}
