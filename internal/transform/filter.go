package transform

import (
	"fmt"

	"featurekit/internal/engine"

	"github.com/google/cel-go/cel"
	"github.com/rs/zerolog/log"
)

// RowFilter keeps the rows for which a CEL expression evaluates to true.
// Each row is exposed as the map variable `row`, so columns are reached as
// row.spend or row["a_*_b"]. Nulls are CEL null; a row whose evaluation
// fails (a null compared with a number, say) is dropped.
type RowFilter struct {
	Expr string

	state   state
	prg     cel.Program
	columns []string
}

func (f *RowFilter) Name() string { return "filter" }

func newFilterEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
}

// Fit compiles the expression. The columns of t must be present again at
// Transform.
func (f *RowFilter) Fit(t *engine.Table) error {
	if f.Expr == "" {
		return &ValidationError{Transform: f.Name(), Reason: "empty filter expression"}
	}
	env, err := newFilterEnv()
	if err != nil {
		return fmt.Errorf("%s: %w", f.Name(), err)
	}
	ast, issues := env.Compile(f.Expr)
	if issues != nil && issues.Err() != nil {
		return &ValidationError{Transform: f.Name(), Reason: "compile error: " + issues.Err().Error()}
	}
	prg, err := env.Program(ast)
	if err != nil {
		return &ValidationError{Transform: f.Name(), Reason: "program error: " + err.Error()}
	}
	f.prg, f.columns, f.state = prg, t.Names(), fitted
	return nil
}

func (f *RowFilter) Transform(t *engine.Table) (*engine.Table, error) {
	if f.state != fitted {
		return nil, &NotFittedError{Transform: f.Name()}
	}
	if _, absent := partition(t, f.columns); len(absent) > 0 {
		return nil, &MissingColumnsError{Transform: f.Name(), Columns: absent}
	}

	cols := t.Columns()
	keep := make([]int, 0, t.NumRows())
	failed := 0
	row := make(map[string]any, len(cols))
	input := map[string]any{"row": row}
	for i := 0; i < t.NumRows(); i++ {
		for _, c := range cols {
			row[c.Name] = c.Value(i)
		}
		out, _, err := f.prg.Eval(input)
		if err != nil {
			failed++
			continue
		}
		ok, isBool := out.Value().(bool)
		if !isBool {
			return nil, &ValidationError{
				Transform: f.Name(),
				Reason:    fmt.Sprintf("expression must return a boolean, got %T", out.Value()),
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}
	if failed > 0 {
		log.Debug().Str("transform", f.Name()).Int("rows", failed).Msg("rows dropped on evaluation error")
	}

	// Kept rows carry their labels.
	labels := t.Labels()
	kept := make([]int, len(keep))
	for j, i := range keep {
		kept[j] = labels[i]
	}
	out := t.Take(keep)
	if err := out.SetLabels(kept); err != nil {
		return nil, err
	}
	return out, nil
}
