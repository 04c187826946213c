package transform

import (
	"fmt"
	"math"

	"featurekit/internal/engine"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
)

type InteractionMethod string

const (
	MethodMultiplicative InteractionMethod = "multiplicative"
	// MethodScale is an alias of MethodMultiplicative.
	MethodScale       InteractionMethod = "scale"
	MethodLogAdditive InteractionMethod = "log-additive"
)

// InteractionComputer derives base x interacting columns for every pair in
// Map, either as a product or as a sum of logarithms.
type InteractionComputer struct {
	Map    *engine.ColumnMap
	Method InteractionMethod
	// FillValue, when set, replaces nulls in the derived columns. Zero is a
	// valid fill value.
	FillValue *float64

	state    state
	bases    []string
	terms    map[string][]string
	involved []string
}

func (c *InteractionComputer) Name() string { return "interactions" }

func (c *InteractionComputer) method() InteractionMethod {
	if c.Method == "" || c.Method == MethodScale {
		return MethodMultiplicative
	}
	return c.Method
}

// Fit checks which columns are present and that all of them are numeric.
func (c *InteractionComputer) Fit(t *engine.Table) error {
	switch c.method() {
	case MethodMultiplicative, MethodLogAdditive:
	default:
		return &ValidationError{Transform: c.Name(), Reason: fmt.Sprintf("unknown method %q", c.Method)}
	}
	if c.Map == nil || c.Map.Len() == 0 {
		return &ValidationError{Transform: c.Name(), Reason: "empty interaction map"}
	}

	bases, absentBases := partition(t, c.Map.Keys())
	var all []string
	c.Map.Each(func(_ string, vals []string) { all = append(all, vals...) })
	interacting, absentTerms := partition(t, all)
	if len(absentBases) > 0 {
		log.Warn().Str("transform", c.Name()).Strs("columns", absentBases).Msg("base features not present in the data")
	}
	if len(absentTerms) > 0 {
		log.Warn().Str("transform", c.Name()).Strs("columns", absentTerms).Msg("interacting features not present in the data")
	}

	involved, _ := partition(t, append(append([]string(nil), bases...), interacting...))
	var nonNumeric []string
	for _, name := range involved {
		if col, _ := t.Column(name); col.Kind != engine.KindNumeric {
			nonNumeric = append(nonNumeric, name)
		}
	}
	if len(nonNumeric) > 0 {
		return &ValidationError{
			Transform: c.Name(),
			Columns:   nonNumeric,
			Reason:    "base features and interaction terms must be numeric",
		}
	}

	presentTerm := make(map[string]bool, len(interacting))
	for _, n := range interacting {
		presentTerm[n] = true
	}
	terms := make(map[string][]string, len(bases))
	for _, b := range bases {
		vals, _ := c.Map.Get(b)
		for _, v := range vals {
			if presentTerm[v] {
				terms[b] = append(terms[b], v)
			}
		}
	}

	c.bases, c.terms, c.involved, c.state = bases, terms, involved, fitted
	return nil
}

// Transform appends the interaction columns. Work is positional, so the input
// row labels carry over to the output whether or not they are contiguous.
func (c *InteractionComputer) Transform(t *engine.Table) (*engine.Table, error) {
	if c.state != fitted {
		return nil, &NotFittedError{Transform: c.Name()}
	}
	if _, absent := partition(t, c.involved); len(absent) > 0 {
		return nil, &MissingColumnsError{Transform: c.Name(), Columns: absent}
	}

	n := t.NumRows()
	values := make(map[string][]float64, len(c.involved))
	for _, name := range c.involved {
		col, _ := t.Column(name)
		vals := make([]float64, n)
		for i := range vals {
			v, ok := col.Float(i)
			if !ok {
				v = math.NaN()
			}
			vals[i] = v
		}
		if c.method() == MethodLogAdditive {
			if err := c.shiftPositive(name, vals); err != nil {
				return nil, err
			}
		}
		values[name] = vals
	}

	var added []*engine.Column
	for _, base := range c.bases {
		bv := values[base]
		for _, term := range c.terms[base] {
			tv := values[term]
			out := make([]float64, n)
			var name string
			if c.method() == MethodLogAdditive {
				name = "Log(" + base + ")_+_Log(" + term + ")"
				for i := range out {
					out[i] = math.Log(bv[i]) + math.Log(tv[i])
				}
			} else {
				name = base + "_*_" + term
				for i := range out {
					out[i] = bv[i] * tv[i]
				}
			}
			if c.FillValue != nil {
				for i, v := range out {
					if math.IsNaN(v) {
						out[i] = *c.FillValue
					}
				}
			}
			added = append(added, engine.NewFloatColumn(name, out, nil))
		}
	}

	res, err := t.AddColumns(added...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name(), err)
	}
	return res, nil
}

// shiftPositive moves a column into the strictly positive domain by adding
// |min|+1 while its minimum is <= 0. Nulls (NaN) are left alone.
func (c *InteractionComputer) shiftPositive(name string, vals []float64) error {
	present := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return nil
	}

	shift := 0.0
	for lo := floats.Min(present); lo <= 0; lo = floats.Min(present) {
		if math.IsInf(lo, -1) {
			return &ValidationError{Transform: c.Name(), Columns: []string{name}, Reason: "cannot shift an infinite minimum"}
		}
		step := math.Abs(lo) + 1
		floats.AddConst(step, present)
		shift += step
	}
	if shift > 0 {
		for i := range vals {
			vals[i] += shift
		}
		log.Debug().Str("transform", c.Name()).Str("column", name).Float64("shift", shift).Msg("column shifted positive")
	}
	return nil
}
