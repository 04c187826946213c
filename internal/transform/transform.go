// Package transform holds the fit/transform feature-engineering steps that
// operate on engine tables.
package transform

import (
	"featurekit/internal/engine"
)

// Transformer is a table-to-table step with an Unfitted -> Fitted lifecycle.
// Transform returns a *NotFittedError until Fit succeeds.
type Transformer interface {
	Name() string
	Fit(t *engine.Table) error
	Transform(t *engine.Table) (*engine.Table, error)
}

// FitTransform fits tr on t and transforms the same table.
func FitTransform(tr Transformer, t *engine.Table) (*engine.Table, error) {
	if err := tr.Fit(t); err != nil {
		return nil, err
	}
	return tr.Transform(t)
}

// partition splits names into those present in t and those absent, keeping
// order and dropping duplicates.
func partition(t *engine.Table, names []string) (present, absent []string) {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		if t.Has(n) {
			present = append(present, n)
		} else {
			absent = append(absent, n)
		}
	}
	return present, absent
}

func indicatorColumn(name string, hits []bool) *engine.Column {
	vals := make([]int64, len(hits))
	for i, h := range hits {
		if h {
			vals[i] = 1
		}
	}
	return engine.NewIntColumn(name, vals, nil)
}
