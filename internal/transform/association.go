package transform

import (
	"fmt"

	"featurekit/internal/engine"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

type AggregationMethod string

const (
	// MethodAggregate adds one indicator per column, set when the row holds
	// any mined value.
	MethodAggregate AggregationMethod = "aggregate"
	// MethodOneHot adds one indicator per mined value.
	MethodOneHot AggregationMethod = "one_hot"
)

// ValueStat describes one value of one column against the target.
type ValueStat struct {
	Column         string  `json:"column"`
	Value          string  `json:"value"`
	Count          int     `json:"count"`
	Frequency      float64 `json:"frequency"`
	MeanTarget     float64 `json:"mean_target"`
	WeightedTarget float64 `json:"weighted_target"`
	Retained       bool    `json:"retained"`
}

// TargetAssociationMiner finds categorical values associated with a binary
// (0/1) target and turns them into indicator columns. A value survives only
// when every statistic meets its threshold; zero thresholds are inactive.
type TargetAssociationMiner struct {
	Target  string
	Include []string
	Exclude []string
	Prefix  string
	Suffix  string
	Method  AggregationMethod

	MinMeanTarget      float64
	MinSampleSize      int
	MinSampleFrequency float64
	MinWeightedTarget  float64
	// IgnoreBinary skips columns whose values are all 0/1.
	IgnoreBinary bool

	state    state
	mapping  *engine.ColumnMap
	stats    []ValueStat
	baseRate float64
}

func NewTargetAssociationMiner(target string) *TargetAssociationMiner {
	return &TargetAssociationMiner{Target: target, Method: MethodAggregate, IgnoreBinary: true}
}

func (m *TargetAssociationMiner) Name() string { return "associate" }

func (m *TargetAssociationMiner) Fit(t *engine.Table) error {
	switch m.Method {
	case "", MethodAggregate, MethodOneHot:
	default:
		return &ValidationError{Transform: m.Name(), Reason: fmt.Sprintf("unknown aggregation method %q", m.Method)}
	}

	targets, use, err := m.targetValues(t)
	if err != nil {
		return err
	}
	total := 0
	present := make([]float64, 0, len(targets))
	for i, ok := range use {
		if ok {
			total++
			present = append(present, targets[i])
		}
	}

	candidates := t.Names()
	if len(m.Include) > 0 {
		var absent []string
		candidates, absent = partition(t, m.Include)
		if len(absent) > 0 {
			log.Warn().Str("transform", m.Name()).Strs("columns", absent).Msg("included columns not present in the data")
		}
	}
	skip := map[string]bool{m.Target: true}
	for _, n := range m.Exclude {
		skip[n] = true
	}

	mapping := engine.NewColumnMap()
	var stats []ValueStat
	for _, name := range candidates {
		if skip[name] {
			continue
		}
		col, _ := t.Column(name)
		if !categorical(col) {
			log.Debug().Str("transform", m.Name()).Str("column", name).Msg("continuous column skipped")
			continue
		}
		if m.IgnoreBinary && binary(col) {
			log.Debug().Str("transform", m.Name()).Str("column", name).Msg("binary column skipped")
			continue
		}

		var survivors []string
		for _, g := range engine.Group(col, targets, use) {
			vs := ValueStat{
				Column:     name,
				Value:      engine.FormatValue(g.Value),
				Count:      g.Count,
				MeanTarget: g.Mean(),
			}
			if total > 0 {
				vs.Frequency = float64(g.Count) / float64(total)
			}
			vs.WeightedTarget = vs.MeanTarget * vs.Frequency
			vs.Retained = m.passes(vs)
			if vs.Retained {
				survivors = append(survivors, vs.Value)
			}
			stats = append(stats, vs)
		}
		if len(survivors) > 0 {
			mapping.Set(name, survivors...)
		}
	}

	m.baseRate = 0
	if len(present) > 0 {
		m.baseRate = stat.Mean(present, nil)
	}
	m.mapping, m.stats, m.state = mapping, stats, fitted
	log.Debug().Str("transform", m.Name()).Int("columns", mapping.Len()).
		Float64("base_rate", m.baseRate).Msg("target associations mined")
	return nil
}

func (m *TargetAssociationMiner) passes(vs ValueStat) bool {
	return vs.Count >= m.MinSampleSize &&
		vs.Frequency >= m.MinSampleFrequency &&
		vs.MeanTarget >= m.MinMeanTarget &&
		vs.WeightedTarget >= m.MinWeightedTarget
}

// targetValues validates the target column and returns its values and a mask
// of rows with a known target.
func (m *TargetAssociationMiner) targetValues(t *engine.Table) ([]float64, []bool, error) {
	col, ok := t.Column(m.Target)
	if !ok {
		return nil, nil, &MissingColumnsError{Transform: m.Name(), Columns: []string{m.Target}}
	}
	if col.Kind != engine.KindNumeric && col.Kind != engine.KindBoolean {
		return nil, nil, &ValidationError{Transform: m.Name(), Columns: []string{m.Target}, Reason: "target must be numeric or boolean"}
	}
	n := col.Len()
	targets := make([]float64, n)
	use := make([]bool, n)
	for i := 0; i < n; i++ {
		v, ok := col.Float(i)
		if !ok {
			continue
		}
		if v != 0 && v != 1 {
			return nil, nil, &ValidationError{Transform: m.Name(), Columns: []string{m.Target}, Reason: "target must be coded 0/1"}
		}
		targets[i], use[i] = v, true
	}
	return targets, use, nil
}

// Mapping returns the mined column -> values map.
func (m *TargetAssociationMiner) Mapping() (*engine.ColumnMap, error) {
	if m.state != fitted {
		return nil, &NotFittedError{Transform: m.Name()}
	}
	return m.mapping, nil
}

// Stats returns the statistics of every evaluated value.
func (m *TargetAssociationMiner) Stats() ([]ValueStat, error) {
	if m.state != fitted {
		return nil, &NotFittedError{Transform: m.Name()}
	}
	return append([]ValueStat(nil), m.stats...), nil
}

// BaseRate is the mean target over all rows with a known target.
func (m *TargetAssociationMiner) BaseRate() float64 { return m.baseRate }

func (m *TargetAssociationMiner) Transform(t *engine.Table) (*engine.Table, error) {
	if m.state != fitted {
		return nil, &NotFittedError{Transform: m.Name()}
	}

	var added []*engine.Column
	var absent []string
	m.mapping.Each(func(name string, values []string) {
		col, ok := t.Column(name)
		if !ok {
			absent = append(absent, name)
			return
		}
		n := col.Len()
		if m.Method == MethodOneHot {
			for _, v := range values {
				hits := make([]bool, n)
				for i := 0; i < n; i++ {
					s, ok := col.Display(i)
					hits[i] = ok && s == v
				}
				added = append(added, indicatorColumn(m.Prefix+name+"_"+v+m.Suffix, hits))
			}
			return
		}
		set := make(map[string]bool, len(values))
		for _, v := range values {
			set[v] = true
		}
		hits := make([]bool, n)
		for i := 0; i < n; i++ {
			s, ok := col.Display(i)
			hits[i] = ok && set[s]
		}
		added = append(added, indicatorColumn(m.Prefix+name+"_associated"+m.Suffix, hits))
	})
	if len(absent) > 0 {
		log.Warn().Str("transform", m.Name()).Strs("columns", absent).Msg("mined columns not present in the data")
	}

	out, err := t.AddColumns(added...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name(), err)
	}
	return out, nil
}

// categorical reports whether values of col are treated as categories.
func categorical(col *engine.Column) bool {
	switch col.Kind {
	case engine.KindObject, engine.KindBoolean:
		return true
	case engine.KindNumeric:
		return col.IsInteger()
	}
	return false
}

// binary reports whether every non-null value is 0 or 1.
func binary(col *engine.Column) bool {
	if col.Kind == engine.KindBoolean {
		return true
	}
	for i := 0; i < col.Len(); i++ {
		s, ok := col.Display(i)
		if ok && s != "0" && s != "1" {
			return false
		}
	}
	return true
}
