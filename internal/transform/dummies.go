package transform

import (
	"fmt"

	"featurekit/internal/engine"

	"github.com/rs/zerolog/log"
)

// MapDummyExpander creates a <column>_<value> indicator for every pair listed
// in Map and nothing else.
type MapDummyExpander struct {
	Map *engine.ColumnMap
	// DropSource removes the expanded base columns from the output.
	DropSource bool

	state   state
	present []string
	absent  []string
}

func NewMapDummyExpander(m *engine.ColumnMap) *MapDummyExpander {
	return &MapDummyExpander{Map: m, DropSource: true}
}

func (d *MapDummyExpander) Name() string { return "dummies" }

// Fit records which base columns exist; absent ones are warned about and
// skipped.
func (d *MapDummyExpander) Fit(t *engine.Table) error {
	if d.Map == nil || d.Map.Len() == 0 {
		return &ValidationError{Transform: d.Name(), Reason: "empty dummy map"}
	}
	present, absent := partition(t, d.Map.Keys())
	if len(absent) > 0 {
		log.Warn().Str("transform", d.Name()).Strs("columns", absent).Msg("base features not present in the data")
	}
	d.present, d.absent, d.state = present, absent, fitted
	return nil
}

// Absent lists the mapped base columns missing at fit time.
func (d *MapDummyExpander) Absent() []string { return append([]string(nil), d.absent...) }

func (d *MapDummyExpander) Transform(t *engine.Table) (*engine.Table, error) {
	if d.state != fitted {
		return nil, &NotFittedError{Transform: d.Name()}
	}

	var (
		added   []*engine.Column
		missing []string
	)
	for _, name := range d.present {
		col, ok := t.Column(name)
		if !ok {
			return nil, &MissingColumnsError{Transform: d.Name(), Columns: []string{name}}
		}

		// One indicator per observed value, keyed by display string.
		n := col.Len()
		observed := make(map[string][]bool)
		for i := 0; i < n; i++ {
			s, ok := col.Display(i)
			if !ok {
				continue
			}
			hits, seen := observed[s]
			if !seen {
				hits = make([]bool, n)
				observed[s] = hits
			}
			hits[i] = true
		}

		values, _ := d.Map.Get(name)
		for _, v := range values {
			hits, ok := observed[v]
			if !ok {
				missing = append(missing, name+"_"+v)
				continue
			}
			added = append(added, indicatorColumn(name+"_"+v, hits))
		}
	}
	if len(missing) > 0 {
		return nil, &MissingDummiesError{Missing: missing}
	}

	base := t
	if d.DropSource {
		base = t.Drop(d.present...)
	}
	out, err := base.AddColumns(added...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	return out, nil
}
