package engine

import (
	"bytes"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/csv"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/rs/zerolog/log"
)

// Format selects the on-disk representation of a table.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatArrow Format = "arrow"
)

var (
	ErrUnknownFormat   = errors.New("unknown table format")
	ErrUnsupportedType = errors.New("unsupported column type")
)

// ParseFormat accepts "csv", "arrow" and the aliases "feather"/"ipc".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "arrow", "feather", "ipc":
		return FormatArrow, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// nullTokens are read as nulls in delimited text.
var nullTokens = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL", "None"}

const csvChunkRows = 4096

type CSVOptions struct {
	// Comma is the field delimiter; zero means ','.
	Comma rune
	// TextColumns skip type inference and stay utf8.
	TextColumns []string
}

// Load reads a table from path in the given format.
func Load(path string, format Format, opts CSVOptions) (*Table, error) {
	switch format {
	case FormatCSV, "":
		return LoadCSV(path, opts)
	case FormatArrow:
		return LoadIPC(path)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func LoadCSV(path string, opts CSVOptions) (*Table, error) {
	start := time.Now()
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	t, err := parseCSV(content, opts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	log.Debug().Str("path", path).Int("rows", t.NumRows()).Int("columns", t.NumCols()).
		Dur("took", time.Since(start)).Msg("csv loaded")
	return t, nil
}

// ReadCSV parses delimited text with a header row.
func ReadCSV(r io.Reader, opts CSVOptions) (*Table, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return parseCSV(content, opts)
}

func parseCSV(content []byte, opts CSVOptions) (*Table, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	comma := opts.Comma
	if comma == 0 {
		comma = ','
	}

	// 1. Header. Every field is read as nullable text; types are inferred after.
	hr := stdcsv.NewReader(bytes.NewReader(content))
	hr.Comma = comma
	header, err := hr.Read()
	if err == io.EOF {
		return nil, errors.New("empty input: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	fields := make([]arrow.Field, len(header))
	for i, h := range header {
		fields[i] = arrow.Field{Name: h, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	// 2. Body
	rdr := csv.NewReader(bytes.NewReader(content), schema,
		csv.WithHeader(true),
		csv.WithComma(comma),
		csv.WithChunk(csvChunkRows),
		csv.WithNullReader(true, nullTokens...),
		csv.WithAllocator(memory.NewGoAllocator()),
	)
	defer rdr.Release()

	raw := make([][]string, len(header))
	valid := make([][]bool, len(header))
	for rdr.Next() {
		rec := rdr.Record()
		for j := 0; j < int(rec.NumCols()); j++ {
			arr, ok := rec.Column(j).(*array.String)
			if !ok {
				return nil, fmt.Errorf("%w: column %q is %s", ErrUnsupportedType, header[j], rec.Column(j).DataType())
			}
			for i := 0; i < arr.Len(); i++ {
				if arr.IsNull(i) {
					raw[j] = append(raw[j], "")
					valid[j] = append(valid[j], false)
					continue
				}
				raw[j] = append(raw[j], arr.Value(i))
				valid[j] = append(valid[j], true)
			}
		}
	}
	if err := rdr.Err(); err != nil {
		return nil, err
	}

	// 3. Infer
	text := make(map[string]bool, len(opts.TextColumns))
	for _, n := range opts.TextColumns {
		text[n] = true
	}
	cols := make([]*Column, len(header))
	for j, name := range header {
		cols[j] = inferColumn(name, raw[j], valid[j], text[name])
	}
	return NewTable(cols...)
}

// LoadIPC reads an Arrow IPC file (Feather v2).
func LoadIPC(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	t, err := readIPC(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

func readIPC(r ipc.ReadAtSeeker) (*Table, error) {
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	schema := fr.Schema()
	cols := make([]*Column, schema.NumFields())
	for j, field := range schema.Fields() {
		c, err := emptyColumn(field)
		if err != nil {
			return nil, err
		}
		cols[j] = c
	}

	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			return nil, err
		}
		for j, arr := range rec.Columns() {
			if err := appendArray(cols[j], arr); err != nil {
				return nil, err
			}
		}
	}
	for _, c := range cols {
		c.Valid = compactValid(c.Valid)
	}
	return NewTable(cols...)
}

// FromRecord converts a single record batch.
func FromRecord(rec arrow.Record) (*Table, error) {
	cols := make([]*Column, rec.NumCols())
	for j, field := range rec.Schema().Fields() {
		c, err := emptyColumn(field)
		if err != nil {
			return nil, err
		}
		if err := appendArray(c, rec.Column(j)); err != nil {
			return nil, err
		}
		c.Valid = compactValid(c.Valid)
		cols[j] = c
	}
	return NewTable(cols...)
}

func emptyColumn(field arrow.Field) (*Column, error) {
	c := &Column{Name: field.Name, Type: field.Type, Valid: []bool{}}
	id := field.Type.ID()
	switch {
	case arrow.IsInteger(id), arrow.IsFloating(id):
		c.Kind = KindNumeric
	case id == arrow.BOOL:
		c.Kind = KindBoolean
	case id == arrow.STRING, id == arrow.LARGE_STRING:
		c.Kind = KindObject
	case id == arrow.TIMESTAMP, id == arrow.DATE32:
		c.Kind = KindTime
	default:
		return nil, fmt.Errorf("%w: column %q is %s", ErrUnsupportedType, field.Name, field.Type)
	}
	return c, nil
}

type valueArray[T int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64] interface {
	arrow.Array
	Value(int) T
}

func appendFloat[T float32 | float64](c *Column, a valueArray[T]) {
	for i := 0; i < a.Len(); i++ {
		v := float64(a.Value(i))
		c.Nums = append(c.Nums, v)
		c.Valid = append(c.Valid, !a.IsNull(i) && !math.IsNaN(v))
	}
}

func appendInt[T int8 | int16 | int32 | int64 | uint8 | uint16 | uint32](c *Column, a valueArray[T]) {
	for i := 0; i < a.Len(); i++ {
		c.Ints = append(c.Ints, int64(a.Value(i)))
		c.Valid = append(c.Valid, !a.IsNull(i))
	}
}

// appendUint64 rejects values that do not fit int64 storage.
func appendUint64(c *Column, a *array.Uint64) error {
	for i := 0; i < a.Len(); i++ {
		v := a.Value(i)
		if !a.IsNull(i) && v > math.MaxInt64 {
			return fmt.Errorf("%w: column %q value %d overflows int64", ErrUnsupportedType, c.Name, v)
		}
		c.Ints = append(c.Ints, int64(v))
		c.Valid = append(c.Valid, !a.IsNull(i))
	}
	return nil
}

func appendArray(c *Column, arr arrow.Array) error {
	switch a := arr.(type) {
	case *array.Int8:
		appendInt[int8](c, a)
	case *array.Int16:
		appendInt[int16](c, a)
	case *array.Int32:
		appendInt[int32](c, a)
	case *array.Int64:
		appendInt[int64](c, a)
	case *array.Uint8:
		appendInt[uint8](c, a)
	case *array.Uint16:
		appendInt[uint16](c, a)
	case *array.Uint32:
		appendInt[uint32](c, a)
	case *array.Uint64:
		return appendUint64(c, a)
	case *array.Float32:
		appendFloat[float32](c, a)
	case *array.Float64:
		appendFloat[float64](c, a)
	case *array.Boolean:
		for i := 0; i < a.Len(); i++ {
			c.Bools = append(c.Bools, !a.IsNull(i) && a.Value(i))
			c.Valid = append(c.Valid, !a.IsNull(i))
		}
	case *array.String:
		for i := 0; i < a.Len(); i++ {
			c.Texts = append(c.Texts, a.Value(i))
			c.Valid = append(c.Valid, !a.IsNull(i))
		}
	case *array.LargeString:
		for i := 0; i < a.Len(); i++ {
			c.Texts = append(c.Texts, a.Value(i))
			c.Valid = append(c.Valid, !a.IsNull(i))
		}
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		for i := 0; i < a.Len(); i++ {
			var ts time.Time
			if !a.IsNull(i) {
				ts = a.Value(i).ToTime(unit)
			}
			c.Times = append(c.Times, ts)
			c.Valid = append(c.Valid, !a.IsNull(i))
		}
	case *array.Date32:
		for i := 0; i < a.Len(); i++ {
			var ts time.Time
			if !a.IsNull(i) {
				ts = a.Value(i).ToTime()
			}
			c.Times = append(c.Times, ts)
			c.Valid = append(c.Valid, !a.IsNull(i))
		}
	default:
		return fmt.Errorf("%w: column %q is %s", ErrUnsupportedType, c.Name, arr.DataType())
	}
	return nil
}

// compactValid drops an all-true mask.
func compactValid(valid []bool) []bool {
	for _, ok := range valid {
		if !ok {
			return valid
		}
	}
	return nil
}
