// Package profile builds a data dictionary for a table: one record per
// column with its type, null share, most frequent value and examples.
package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"time"

	"featurekit/internal/engine"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultExamples is the number of example values reported per column.
const DefaultExamples = 3

var ErrInvalidExamples = errors.New("number of examples must not be negative")

// Record describes one column. Pointer fields are nil when the statistic is
// undefined (no rows, or no non-null value).
type Record struct {
	Field                         string
	Dtype                         string
	MemoryType                    string
	Cardinality                   int
	PercentNull                   *float64
	NumberOfNulls                 int
	MostCommonValue               any
	MostCommonValuePercentOfField *float64
	Constant                      bool
	PotentialBoolean              bool
	Examples                      []any
}

// MarshalJSON writes the record with the data dictionary field names,
// examples flattened to Example_1..Example_N.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(key string, v any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.WriteString(strconv.Quote(key))
		buf.WriteByte(':')
		buf.Write(b)
		return nil
	}
	fields := []struct {
		key string
		val any
	}{
		{"Field", r.Field},
		{"Dtype", r.Dtype},
		{"Memory_Type", r.MemoryType},
		{"Cardinality", r.Cardinality},
		{"Percent_Null", r.PercentNull},
		{"Number_of_Nulls", r.NumberOfNulls},
		{"Most_Common_Value", r.MostCommonValue},
		{"Most_Common_Value_Percent_of_Field", r.MostCommonValuePercentOfField},
		{"Constant", r.Constant},
		{"Potential_Boolean", r.PotentialBoolean},
	}
	for _, f := range fields {
		if err := write(f.key, f.val); err != nil {
			return nil, err
		}
	}
	for i, ex := range r.Examples {
		if err := write(exampleName(i), ex); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func exampleName(i int) string { return "Example_" + strconv.Itoa(i+1) }

// Profile summarizes every column of t. Columns are profiled concurrently;
// the records keep the column order of t.
func Profile(t *engine.Table, examples int) ([]Record, error) {
	if examples < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidExamples, examples)
	}
	start := time.Now()
	cols := t.Columns()
	records := make([]Record, len(cols))

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, col := range cols {
		g.Go(func() error {
			records[i] = profileColumn(col, t.NumRows(), examples)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Debug().Int("columns", len(cols)).Int("rows", t.NumRows()).Dur("took", time.Since(start)).Msg("table profiled")
	return records, nil
}

func profileColumn(col *engine.Column, rows, examples int) Record {
	rec := Record{
		Field:         col.Name,
		Dtype:         col.Kind.String(),
		MemoryType:    col.Type.String(),
		NumberOfNulls: col.NullCount(),
		Examples:      make([]any, examples),
	}
	if rows > 0 {
		p := float64(rec.NumberOfNulls) / float64(rows)
		rec.PercentNull = &p
	}

	counts := engine.ValueCounts(col)
	rec.Cardinality = len(counts)
	if len(counts) > 0 && rows > 0 {
		top := counts[0]
		share := float64(top.Count) / float64(rows)
		rec.MostCommonValue = top.Value
		rec.MostCommonValuePercentOfField = &share
		rec.Constant = share == 1
	}
	for i := 0; i < examples && i < len(counts); i++ {
		rec.Examples[i] = counts[i].Value
	}

	if len(counts) == 2 && recognizedBoolean(counts[0].Value) && recognizedBoolean(counts[1].Value) {
		rec.PotentialBoolean = true
		rec.Dtype = engine.KindBoolean.String()
	}
	return rec
}

var booleanTokens = map[string]bool{
	"0": true, "1": true, "0.0": true, "1.0": true,
	"True": true, "False": true, "Y": true, "N": true, "Yes": true, "No": true,
}

func recognizedBoolean(v any) bool {
	switch x := v.(type) {
	case bool:
		return true
	case int64:
		return x == 0 || x == 1
	case float64:
		return x == 0 || x == 1
	case string:
		return booleanTokens[x]
	}
	return false
}

// Table renders records as a table with the fixed data dictionary schema.
// Value fields are stored as their display strings.
func Table(records []Record, examples int) (*engine.Table, error) {
	n := len(records)
	field, dtype, memType := make([]string, n), make([]string, n), make([]string, n)
	card, nulls := make([]int64, n), make([]int64, n)
	pctNull, pctTop := make([]float64, n), make([]float64, n)
	top, topValid := make([]string, n), make([]bool, n)
	constant, potentialBool := make([]bool, n), make([]bool, n)
	exVals, exValid := make([][]string, examples), make([][]bool, examples)
	for e := range exVals {
		exVals[e], exValid[e] = make([]string, n), make([]bool, n)
	}

	for i, r := range records {
		field[i], dtype[i], memType[i] = r.Field, r.Dtype, r.MemoryType
		card[i], nulls[i] = int64(r.Cardinality), int64(r.NumberOfNulls)
		pctNull[i], pctTop[i] = orNaN(r.PercentNull), orNaN(r.MostCommonValuePercentOfField)
		if r.MostCommonValue != nil {
			top[i], topValid[i] = engine.FormatValue(r.MostCommonValue), true
		}
		constant[i], potentialBool[i] = r.Constant, r.PotentialBoolean
		for e := 0; e < examples && e < len(r.Examples); e++ {
			if r.Examples[e] != nil {
				exVals[e][i], exValid[e][i] = engine.FormatValue(r.Examples[e]), true
			}
		}
	}

	cols := []*engine.Column{
		engine.NewStringColumn("Field", field, nil),
		engine.NewStringColumn("Dtype", dtype, nil),
		engine.NewStringColumn("Memory_Type", memType, nil),
		engine.NewIntColumn("Cardinality", card, nil),
		engine.NewFloatColumn("Percent_Null", pctNull, nil),
		engine.NewIntColumn("Number_of_Nulls", nulls, nil),
		engine.NewStringColumn("Most_Common_Value", top, topValid),
		engine.NewFloatColumn("Most_Common_Value_Percent_of_Field", pctTop, nil),
		engine.NewBoolColumn("Constant", constant, nil),
		engine.NewBoolColumn("Potential_Boolean", potentialBool, nil),
	}
	for e := range exVals {
		cols = append(cols, engine.NewStringColumn(exampleName(e), exVals[e], exValid[e]))
	}
	return engine.NewTable(cols...)
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
