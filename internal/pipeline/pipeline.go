// Package pipeline chains transform steps declared in a YAML document and
// runs them over a table in order.
package pipeline

import (
	"fmt"
	"path/filepath"
	"time"

	"featurekit/internal/engine"
	"featurekit/internal/transform"

	"github.com/rs/zerolog/log"
)

type stage struct {
	name string
	tr   transform.Transformer
	// from names the associate stage whose mapping feeds a dummies stage.
	from string
}

// Pipeline is an ordered list of transformers sharing one lifecycle: it is
// fitted only when every step has been fitted.
type Pipeline struct {
	stages []stage
	fitted bool
}

// Load reads a pipeline document and builds its steps.
func Load(path string) (*Pipeline, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	return New(doc)
}

// New builds the transformers described by doc.
func New(doc *Document) (*Pipeline, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{}
	for i, s := range doc.Steps {
		st := stage{name: s.label(i)}
		switch s.Type {
		case StepLookup:
			c := s.Lookup
			format, err := engine.ParseFormat(c.Format)
			if err != nil {
				return nil, err
			}
			path := c.Path
			if doc.dir != "" && !filepath.IsAbs(path) {
				path = filepath.Join(doc.dir, path)
			}
			st.tr = &transform.LookupJoiner{
				Keys:        c.Keys,
				LookupKeys:  c.LookupKeys,
				KeepColumns: c.KeepColumns,
				Path:        path,
				Format:      format,
				AsString:    c.AsString,
				Prefix:      c.Prefix,
				Suffix:      c.Suffix,
			}
		case StepAssociate:
			c := s.Associate
			if c == nil {
				c = &AssociateConfig{}
			}
			target := c.Target
			if target == "" {
				target = doc.Target
			}
			m := transform.NewTargetAssociationMiner(target)
			m.Include, m.Exclude = c.Include, c.Exclude
			m.Prefix, m.Suffix = c.Prefix, c.Suffix
			if c.Method != "" {
				m.Method = transform.AggregationMethod(c.Method)
			}
			m.MinMeanTarget = c.MinMeanTarget
			m.MinSampleSize = c.MinSampleSize
			m.MinSampleFrequency = c.MinSampleFrequency
			m.MinWeightedTarget = c.MinWeightedTarget
			if c.IgnoreBinary != nil {
				m.IgnoreBinary = *c.IgnoreBinary
			}
			st.tr = m
		case StepDummies:
			c := s.Dummies
			d := transform.NewMapDummyExpander(c.Map)
			if c.DropSource != nil {
				d.DropSource = *c.DropSource
			}
			st.tr, st.from = d, c.From
		case StepInteractions:
			c := s.Interactions
			st.tr = &transform.InteractionComputer{
				Map:       c.Map,
				Method:    transform.InteractionMethod(c.Method),
				FillValue: c.FillValue,
			}
		case StepFilter:
			st.tr = &transform.RowFilter{Expr: s.Filter.Expr}
		}
		p.stages = append(p.stages, st)
	}
	return p, nil
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.stages))
	for i, st := range p.stages {
		names[i] = st.name
	}
	return names
}

// Step returns the transformer of the named step.
func (p *Pipeline) Step(name string) (transform.Transformer, bool) {
	for _, st := range p.stages {
		if st.name == name {
			return st.tr, true
		}
	}
	return nil, false
}

// FitTransform fits every step on the output of the step before it.
func (p *Pipeline) FitTransform(t *engine.Table) (*engine.Table, error) {
	p.fitted = false
	out := t
	for _, st := range p.stages {
		if st.from != "" {
			if err := p.resolveMap(st); err != nil {
				return nil, err
			}
		}
		start := time.Now()
		next, err := transform.FitTransform(st.tr, out)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", st.name, err)
		}
		logStep(st, out, next, start, "step fitted")
		out = next
	}
	p.fitted = true
	return out, nil
}

// Transform runs the fitted steps over t.
func (p *Pipeline) Transform(t *engine.Table) (*engine.Table, error) {
	if !p.fitted {
		return nil, &transform.NotFittedError{Transform: "pipeline"}
	}
	out := t
	for _, st := range p.stages {
		start := time.Now()
		next, err := st.tr.Transform(out)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", st.name, err)
		}
		logStep(st, out, next, start, "step applied")
		out = next
	}
	return out, nil
}

func (p *Pipeline) resolveMap(st stage) error {
	src, ok := p.Step(st.from)
	if !ok {
		return fmt.Errorf("step %s: unknown source step %q", st.name, st.from)
	}
	miner, ok := src.(*transform.TargetAssociationMiner)
	if !ok {
		return fmt.Errorf("step %s: source step %q is not an associate step", st.name, st.from)
	}
	mapping, err := miner.Mapping()
	if err != nil {
		return fmt.Errorf("step %s: %w", st.name, err)
	}
	st.tr.(*transform.MapDummyExpander).Map = mapping
	return nil
}

func logStep(st stage, in, out *engine.Table, start time.Time, msg string) {
	log.Debug().
		Str("step", st.name).
		Str("transform", st.tr.Name()).
		Int("columns_in", in.NumCols()).
		Int("columns_out", out.NumCols()).
		Dur("took", time.Since(start)).
		Msg(msg)
}
