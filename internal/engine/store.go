package engine

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v18/arrow"
)

// Kind is the coarse semantic type of a column, resolved once at ingestion.
type Kind uint8

const (
	KindObject Kind = iota
	KindNumeric
	KindBoolean
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "Numeric"
	case KindBoolean:
		return "Boolean"
	case KindTime:
		return "Time"
	default:
		return "Object"
	}
}

var (
	ErrDuplicateColumn = errors.New("duplicate column")
	ErrLengthMismatch  = errors.New("column length mismatch")
)

// Column holds one field in Struct-of-Arrays format. Only the slice matching
// Kind is populated; integer-typed numeric columns use Ints, other numeric
// columns Nums. Valid is nil when the column has no nulls.
type Column struct {
	Name string
	Kind Kind
	Type arrow.DataType

	Nums  []float64
	Ints  []int64
	Texts []string
	Bools []bool
	Times []time.Time
	Valid []bool
}

func NewFloatColumn(name string, vals []float64, valid []bool) *Column {
	c := &Column{Name: name, Kind: KindNumeric, Type: arrow.PrimitiveTypes.Float64, Nums: vals, Valid: valid}
	// NaN is a null
	for i, v := range vals {
		if math.IsNaN(v) {
			c.setNull(i)
		}
	}
	return c
}

func NewIntColumn(name string, vals []int64, valid []bool) *Column {
	return &Column{Name: name, Kind: KindNumeric, Type: arrow.PrimitiveTypes.Int64, Ints: vals, Valid: valid}
}

func NewStringColumn(name string, vals []string, valid []bool) *Column {
	return &Column{Name: name, Kind: KindObject, Type: arrow.BinaryTypes.String, Texts: vals, Valid: valid}
}

func NewBoolColumn(name string, vals []bool, valid []bool) *Column {
	return &Column{Name: name, Kind: KindBoolean, Type: arrow.FixedWidthTypes.Boolean, Bools: vals, Valid: valid}
}

func NewTimeColumn(name string, vals []time.Time, valid []bool) *Column {
	return &Column{Name: name, Kind: KindTime, Type: &arrow.TimestampType{Unit: arrow.Nanosecond}, Times: vals, Valid: valid}
}

func (c *Column) Len() int {
	switch c.Kind {
	case KindNumeric:
		if c.IsInteger() {
			return len(c.Ints)
		}
		return len(c.Nums)
	case KindBoolean:
		return len(c.Bools)
	case KindTime:
		return len(c.Times)
	default:
		return len(c.Texts)
	}
}

func (c *Column) IsNull(i int) bool {
	return c.Valid != nil && !c.Valid[i]
}

func (c *Column) NullCount() int {
	if c.Valid == nil {
		return 0
	}
	n := 0
	for _, ok := range c.Valid {
		if !ok {
			n++
		}
	}
	return n
}

func (c *Column) setNull(i int) {
	if c.Valid == nil {
		c.Valid = make([]bool, c.Len())
		for j := range c.Valid {
			c.Valid[j] = true
		}
	}
	c.Valid[i] = false
}

// IsInteger reports whether numeric values are stored as integers.
func (c *Column) IsInteger() bool {
	if c.Kind != KindNumeric || c.Type == nil {
		return false
	}
	return arrow.IsInteger(c.Type.ID())
}

// Value returns row i as a Go native: int64, float64, string, bool,
// time.Time, or nil for null.
func (c *Column) Value(i int) any {
	if c.IsNull(i) {
		return nil
	}
	switch c.Kind {
	case KindNumeric:
		if c.IsInteger() {
			return c.Ints[i]
		}
		return c.Nums[i]
	case KindBoolean:
		return c.Bools[i]
	case KindTime:
		return c.Times[i]
	default:
		return c.Texts[i]
	}
}

// Float returns row i as float64. Booleans map to 0/1.
func (c *Column) Float(i int) (float64, bool) {
	if c.IsNull(i) {
		return 0, false
	}
	switch c.Kind {
	case KindNumeric:
		if c.IsInteger() {
			return float64(c.Ints[i]), true
		}
		return c.Nums[i], true
	case KindBoolean:
		if c.Bools[i] {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Display returns the canonical string form of row i and false for null.
func (c *Column) Display(i int) (string, bool) {
	if c.IsNull(i) {
		return "", false
	}
	return FormatValue(c.Value(i)), true
}

// Key returns a kind-aware grouping key: numeric 1 and 1.0 share a key,
// numeric 1 and text "1" do not.
func (c *Column) Key(i int) (string, bool) {
	s, ok := c.Display(i)
	if !ok {
		return "", false
	}
	switch c.Kind {
	case KindNumeric:
		return "n:" + s, true
	case KindBoolean:
		return "b:" + s, true
	case KindTime:
		return "t:" + s, true
	default:
		return "s:" + s, true
	}
}

// FormatValue renders a native value the way the engine displays it.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == 0 {
			// -0 and 0 are one value
			x = 0
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// AsText converts the column to utf8 storage using display strings.
func (c *Column) AsText() *Column {
	if c.Kind == KindObject {
		return c.Clone()
	}
	n := c.Len()
	texts := make([]string, n)
	for i := 0; i < n; i++ {
		texts[i], _ = c.Display(i)
	}
	return NewStringColumn(c.Name, texts, cloneBools(c.Valid))
}

// Take gathers rows by position. A negative index yields a null.
func (c *Column) Take(idx []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind, Type: c.Type}
	var valid []bool
	if c.Valid != nil {
		valid = make([]bool, len(idx))
	}
	markNull := func(k int) {
		if valid == nil {
			valid = make([]bool, len(idx))
			for j := 0; j < k; j++ {
				valid[j] = true
			}
		}
		valid[k] = false
	}

	integer := c.IsInteger()
	switch {
	case integer:
		out.Ints = make([]int64, len(idx))
	case c.Kind == KindNumeric:
		out.Nums = make([]float64, len(idx))
	case c.Kind == KindBoolean:
		out.Bools = make([]bool, len(idx))
	case c.Kind == KindTime:
		out.Times = make([]time.Time, len(idx))
	default:
		out.Texts = make([]string, len(idx))
	}

	for k, i := range idx {
		if i < 0 || c.IsNull(i) {
			markNull(k)
			continue
		}
		if valid != nil {
			valid[k] = true
		}
		switch {
		case integer:
			out.Ints[k] = c.Ints[i]
		case c.Kind == KindNumeric:
			out.Nums[k] = c.Nums[i]
		case c.Kind == KindBoolean:
			out.Bools[k] = c.Bools[i]
		case c.Kind == KindTime:
			out.Times[k] = c.Times[i]
		default:
			out.Texts[k] = c.Texts[i]
		}
	}
	out.Valid = valid
	return out
}

func (c *Column) Clone() *Column {
	out := *c
	out.Nums = append([]float64(nil), c.Nums...)
	out.Ints = append([]int64(nil), c.Ints...)
	out.Texts = append([]string(nil), c.Texts...)
	out.Bools = append([]bool(nil), c.Bools...)
	out.Times = append([]time.Time(nil), c.Times...)
	out.Valid = cloneBools(c.Valid)
	return &out
}

func (c *Column) Renamed(name string) *Column {
	out := *c
	out.Name = name
	return &out
}

func cloneBools(b []bool) []bool {
	if b == nil {
		return nil
	}
	return append([]bool(nil), b...)
}

// Table is an ordered set of equal-length named columns.
type Table struct {
	cols   []*Column
	pos    map[string]int
	rows   int
	labels []int
}

func NewTable(cols ...*Column) (*Table, error) {
	t := &Table{pos: make(map[string]int, len(cols)), rows: -1}
	if err := t.add(cols...); err != nil {
		return nil, err
	}
	if t.rows < 0 {
		t.rows = 0
	}
	return t, nil
}

func (t *Table) add(cols ...*Column) error {
	for _, c := range cols {
		if _, dup := t.pos[c.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
		}
		if t.rows >= 0 && c.Len() != t.rows {
			return fmt.Errorf("%w: %q has %d rows, want %d", ErrLengthMismatch, c.Name, c.Len(), t.rows)
		}
		t.rows = c.Len()
		t.pos[c.Name] = len(t.cols)
		t.cols = append(t.cols, c)
	}
	return nil
}

func (t *Table) NumRows() int { return t.rows }
func (t *Table) NumCols() int { return len(t.cols) }

// Columns returns the columns in order. The slice is a copy.
func (t *Table) Columns() []*Column {
	return append([]*Column(nil), t.cols...)
}

func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.pos[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

func (t *Table) Has(name string) bool {
	_, ok := t.pos[name]
	return ok
}

// Labels returns the row labels, 0..n-1 unless set otherwise.
func (t *Table) Labels() []int {
	if t.labels != nil {
		return append([]int(nil), t.labels...)
	}
	out := make([]int, t.rows)
	for i := range out {
		out[i] = i
	}
	return out
}

// HasDefaultLabels reports whether labels form the contiguous sequence 0..n-1.
func (t *Table) HasDefaultLabels() bool {
	for i, l := range t.labels {
		if l != i {
			return false
		}
	}
	return true
}

func (t *Table) SetLabels(labels []int) error {
	if labels != nil && len(labels) != t.rows {
		return fmt.Errorf("%w: %d labels for %d rows", ErrLengthMismatch, len(labels), t.rows)
	}
	if labels == nil {
		t.labels = nil
		return nil
	}
	t.labels = append([]int(nil), labels...)
	return nil
}

// derive builds a new table with the same labels as t.
func (t *Table) derive(cols []*Column) (*Table, error) {
	out, err := NewTable(cols...)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		out.rows = t.rows
	}
	if t.labels != nil {
		out.labels = append([]int(nil), t.labels...)
	}
	return out, nil
}

// Select keeps the named columns in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([]*Column, 0, len(names))
	for _, n := range names {
		c, ok := t.Column(n)
		if !ok {
			return nil, fmt.Errorf("select: column %q not found", n)
		}
		cols = append(cols, c)
	}
	return t.derive(cols)
}

// Drop removes the named columns; unknown names are ignored.
func (t *Table) Drop(names ...string) *Table {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	cols := make([]*Column, 0, len(t.cols))
	for _, c := range t.cols {
		if !skip[c.Name] {
			cols = append(cols, c)
		}
	}
	out, _ := t.derive(cols)
	return out
}

// AddColumns returns a new table with cols appended.
func (t *Table) AddColumns(cols ...*Column) (*Table, error) {
	out, err := t.derive(t.Columns())
	if err != nil {
		return nil, err
	}
	if len(t.cols) == 0 && t.rows == 0 && len(cols) > 0 {
		out.rows = -1
	}
	if err := out.add(cols...); err != nil {
		return nil, err
	}
	return out, nil
}

// Replace swaps a column for another of the same length, keeping position.
func (t *Table) Replace(name string, c *Column) (*Table, error) {
	i, ok := t.pos[name]
	if !ok {
		return nil, fmt.Errorf("replace: column %q not found", name)
	}
	cols := t.Columns()
	cols[i] = c
	return t.derive(cols)
}

// Rename applies old->new renames.
func (t *Table) Rename(names map[string]string) (*Table, error) {
	cols := t.Columns()
	for i, c := range cols {
		if n, ok := names[c.Name]; ok {
			cols[i] = c.Renamed(n)
		}
	}
	return t.derive(cols)
}

// Take gathers rows by position; labels are reset.
func (t *Table) Take(idx []int) *Table {
	cols := make([]*Column, len(t.cols))
	for i, c := range t.cols {
		cols[i] = c.Take(idx)
	}
	out, _ := NewTable(cols...)
	if len(cols) == 0 {
		out.rows = len(idx)
	}
	return out
}

func (t *Table) Clone() *Table {
	cols := make([]*Column, len(t.cols))
	for i, c := range t.cols {
		cols[i] = c.Clone()
	}
	out, _ := t.derive(cols)
	return out
}
