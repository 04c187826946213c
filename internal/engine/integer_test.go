package engine

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2^53 + 1 is the first integer float64 cannot hold.
const beyondFloat = int64(9007199254740993)

func TestLoadCSVLargeIntegers(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader("user_id\n9007199254740993\n9007199254740992\n"), CSVOptions{})
	require.NoError(t, err)

	id, _ := tbl.Column("user_id")
	assert.Equal(t, "int64", id.Type.String())
	assert.Equal(t, beyondFloat, id.Value(0))
	assert.Equal(t, beyondFloat-1, id.Value(1))

	k0, _ := id.Key(0)
	k1, _ := id.Key(1)
	assert.NotEqual(t, k0, k1)

	s, _ := id.Display(0)
	assert.Equal(t, "9007199254740993", s)
}

func TestLargeIntegersSurviveTakeAndWrite(t *testing.T) {
	src, err := NewTable(NewIntColumn("id", []int64{beyondFloat, math.MaxInt64}, nil))
	require.NoError(t, err)

	taken := src.Take([]int{1, -1, 0})
	id, _ := taken.Column("id")
	assert.Equal(t, int64(math.MaxInt64), id.Value(0))
	assert.Nil(t, id.Value(1))
	assert.Equal(t, beyondFloat, id.Value(2))

	var ipcBuf bytes.Buffer
	require.NoError(t, WriteIPC(&ipcBuf, src))
	back, err := LoadIPC(writeTemp(t, "ids.arrow", ipcBuf.Bytes()))
	require.NoError(t, err)
	id, _ = back.Column("id")
	assert.Equal(t, beyondFloat, id.Value(0))
	assert.Equal(t, int64(math.MaxInt64), id.Value(1))

	var csvBuf bytes.Buffer
	require.NoError(t, WriteCSV(&csvBuf, src))
	assert.Contains(t, csvBuf.String(), "9007199254740993")
}

func writeUint64IPC(t *testing.T, vals ...uint64) string {
	t.Helper()
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{{Name: "u", Type: arrow.PrimitiveTypes.Uint64, Nullable: true}}, nil)
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.Uint64Builder).AppendValues(vals, nil)
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	fw, err := ipc.NewFileWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	require.NoError(t, err)
	require.NoError(t, fw.Write(rec))
	require.NoError(t, fw.Close())
	return writeTemp(t, "unsigned.arrow", buf.Bytes())
}

func TestLoadIPCUnsigned(t *testing.T) {
	tbl, err := LoadIPC(writeUint64IPC(t, 9007199254740993, 7))
	require.NoError(t, err)
	u, _ := tbl.Column("u")
	assert.True(t, u.IsInteger())
	assert.Equal(t, beyondFloat, u.Value(0))

	_, err = LoadIPC(writeUint64IPC(t, math.MaxUint64))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestNegativeZeroIsZero(t *testing.T) {
	c := NewFloatColumn("x", []float64{math.Copysign(0, -1), 0}, nil)
	k0, _ := c.Key(0)
	k1, _ := c.Key(1)
	assert.Equal(t, k1, k0)
	assert.Equal(t, "0", FormatValue(math.Copysign(0, -1)))

	groups := ValueCounts(c)
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].Count)
}
