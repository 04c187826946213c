package engine

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/csv"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
)

// exportType is the arrow type a column is written as. Integer storage is
// widened to int64 and time to timestamp[ns].
func exportType(c *Column) arrow.DataType {
	switch c.Kind {
	case KindNumeric:
		if c.IsInteger() {
			return arrow.PrimitiveTypes.Int64
		}
		return arrow.PrimitiveTypes.Float64
	case KindBoolean:
		return arrow.FixedWidthTypes.Boolean
	case KindTime:
		return &arrow.TimestampType{Unit: arrow.Nanosecond}
	default:
		return arrow.BinaryTypes.String
	}
}

func (t *Table) Schema() *arrow.Schema {
	fields := make([]arrow.Field, len(t.cols))
	for i, c := range t.cols {
		fields[i] = arrow.Field{Name: c.Name, Type: exportType(c), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// Record converts the table to a single arrow record. The caller releases it.
func (t *Table) Record(mem memory.Allocator) arrow.Record {
	b := array.NewRecordBuilder(mem, t.Schema())
	defer b.Release()

	for j, c := range t.cols {
		n := c.Len()
		switch fb := b.Field(j).(type) {
		case *array.Int64Builder:
			for i := 0; i < n; i++ {
				if c.IsNull(i) {
					fb.AppendNull()
				} else {
					fb.Append(c.Ints[i])
				}
			}
		case *array.Float64Builder:
			for i := 0; i < n; i++ {
				if c.IsNull(i) {
					fb.AppendNull()
				} else {
					fb.Append(c.Nums[i])
				}
			}
		case *array.BooleanBuilder:
			for i := 0; i < n; i++ {
				if c.IsNull(i) {
					fb.AppendNull()
				} else {
					fb.Append(c.Bools[i])
				}
			}
		case *array.TimestampBuilder:
			for i := 0; i < n; i++ {
				if c.IsNull(i) {
					fb.AppendNull()
				} else {
					fb.Append(arrow.Timestamp(c.Times[i].UnixNano()))
				}
			}
		case *array.StringBuilder:
			for i := 0; i < n; i++ {
				if c.IsNull(i) {
					fb.AppendNull()
				} else {
					fb.Append(c.Texts[i])
				}
			}
		}
	}
	return b.NewRecord()
}

// WriteIPC writes the table as an Arrow IPC file.
func WriteIPC(w io.Writer, t *Table) error {
	mem := memory.NewGoAllocator()
	rec := t.Record(mem)
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("ipc writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("ipc write: %w", err)
	}
	return fw.Close()
}

// WriteCSV writes the table with a header row; nulls are empty fields.
func WriteCSV(w io.Writer, t *Table) error {
	mem := memory.NewGoAllocator()
	rec := t.Record(mem)
	defer rec.Release()

	cw := csv.NewWriter(w, rec.Schema(), csv.WithHeader(true), csv.WithNullWriter(""))
	if err := cw.Write(rec); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	return cw.Flush()
}
