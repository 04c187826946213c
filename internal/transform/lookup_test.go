package transform

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"featurekit/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lookup.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func ordersTable(t *testing.T) *engine.Table {
	t.Helper()
	tbl, err := engine.NewTable(
		engine.NewIntColumn("store_id", []int64{2, 1, 9, 2}, nil),
		engine.NewFloatColumn("amount", []float64{10, 20, 30, 40}, nil),
	)
	require.NoError(t, err)
	return tbl
}

func TestLookupJoinerLeftJoin(t *testing.T) {
	path := lookupFile(t, "store_id,region,size\n1,north,small\n2,south,large\n2,east,huge\n")
	j := &LookupJoiner{Keys: []string{"store_id"}, Path: path, Format: engine.FormatCSV}

	in := ordersTable(t)
	out, err := FitTransform(j, in)
	require.NoError(t, err)

	assert.Equal(t, in.NumRows(), out.NumRows())
	assert.Equal(t, []string{"store_id", "amount", "region", "size"}, out.Names())

	region, _ := out.Column("region")
	assert.Equal(t, "south", region.Value(0), "first duplicate key wins")
	assert.Equal(t, "north", region.Value(1))
	assert.Nil(t, region.Value(2), "unmatched key yields null")
	assert.Equal(t, "south", region.Value(3))

	fitted, err := j.Fitted()
	require.NoError(t, err)
	assert.Equal(t, out.Names(), fitted.Names())
}

func TestLookupJoinerRenamingAndKeep(t *testing.T) {
	path := lookupFile(t, "id,region,size,amount\n1,north,small,5\n2,south,large,6\n")
	j := &LookupJoiner{
		Keys:        []string{"store_id"},
		LookupKeys:  []string{"id"},
		KeepColumns: []string{"region", "store_id", "amount"},
		Path:        path,
		Prefix:      "lk_",
		Suffix:      "_v1",
	}
	out, err := FitTransform(j, ordersTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"store_id", "amount", "lk_region_v1", "lk_amount_v1"}, out.Names())
}

func TestLookupJoinerKeepDropsRenamedKeys(t *testing.T) {
	path := lookupFile(t, "id,region\n1,north\n")
	j := &LookupJoiner{
		Keys:        []string{"store_id"},
		LookupKeys:  []string{"id"},
		KeepColumns: []string{"store_id", "id"},
		Path:        path,
	}
	out, err := FitTransform(j, ordersTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"store_id", "amount"}, out.Names())

	j.KeepColumns = []string{"store_id", "ghost"}
	var missing *MissingColumnsError
	require.ErrorAs(t, j.Fit(ordersTable(t)), &missing)
	assert.Equal(t, []string{"ghost"}, missing.Columns)
}

func TestLookupJoinerLargeIntegerKeys(t *testing.T) {
	path := lookupFile(t, "user_id,segment\n9007199254740992,gold\n")
	base, err := engine.ReadCSV(strings.NewReader("user_id\n9007199254740993\n9007199254740992\n"), engine.CSVOptions{})
	require.NoError(t, err)

	out, err := FitTransform(&LookupJoiner{Keys: []string{"user_id"}, Path: path}, base)
	require.NoError(t, err)

	id, _ := out.Column("user_id")
	assert.Equal(t, int64(9007199254740993), id.Value(0))
	segment, _ := out.Column("segment")
	assert.Nil(t, segment.Value(0), "neighbouring id must not match")
	assert.Equal(t, "gold", segment.Value(1))
}

func TestLookupJoinerNameClash(t *testing.T) {
	path := lookupFile(t, "store_id,amount\n1,100\n")
	j := &LookupJoiner{Keys: []string{"store_id"}, Path: path}
	out, err := FitTransform(j, ordersTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"store_id", "amount_x", "amount_y"}, out.Names())
}

func TestLookupJoinerAsString(t *testing.T) {
	path := lookupFile(t, "code,label\n007,bond\n7,seven\n")
	in, err := engine.NewTable(engine.NewStringColumn("code", []string{"007", "7"}, nil))
	require.NoError(t, err)

	// Without coercion the lookup codes infer as integers and never match text.
	plain := &LookupJoiner{Keys: []string{"code"}, Path: path}
	out, err := FitTransform(plain, in)
	require.NoError(t, err)
	label, _ := out.Column("label")
	assert.Equal(t, 2, label.NullCount())

	coerced := &LookupJoiner{Keys: []string{"code"}, Path: path, AsString: true}
	out, err = FitTransform(coerced, in)
	require.NoError(t, err)
	label, _ = out.Column("label")
	assert.Equal(t, "bond", label.Value(0))
	assert.Equal(t, "seven", label.Value(1))
}

func TestLookupJoinerArrowFormat(t *testing.T) {
	lookup, err := engine.NewTable(
		engine.NewIntColumn("store_id", []int64{1, 2}, nil),
		engine.NewFloatColumn("rent", []float64{1.5, 2.5}, nil),
	)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "stores.arrow")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, engine.WriteIPC(f, lookup))
	require.NoError(t, f.Close())

	j := &LookupJoiner{Keys: []string{"store_id"}, Path: path, Format: engine.FormatArrow}
	out, err := FitTransform(j, ordersTable(t))
	require.NoError(t, err)
	rent, _ := out.Column("rent")
	assert.Equal(t, 2.5, rent.Value(0))
	assert.Equal(t, 1.5, rent.Value(1))
}

func TestLookupJoinerRereadsOnFit(t *testing.T) {
	path := lookupFile(t, "store_id,region\n1,north\n")
	j := &LookupJoiner{Keys: []string{"store_id"}, Path: path}
	require.NoError(t, j.Fit(ordersTable(t)))

	require.NoError(t, os.WriteFile(path, []byte("store_id,zone\n1,z1\n"), 0o644))
	require.NoError(t, j.Fit(ordersTable(t)))

	out, err := j.Transform(ordersTable(t))
	require.NoError(t, err)
	assert.True(t, out.Has("zone"))
	assert.False(t, out.Has("region"))
}

func TestLookupJoinerKeepsLabels(t *testing.T) {
	path := lookupFile(t, "store_id,region\n1,north\n")
	in := ordersTable(t)
	require.NoError(t, in.SetLabels([]int{40, 30, 20, 10}))

	out, err := FitTransform(&LookupJoiner{Keys: []string{"store_id"}, Path: path}, in)
	require.NoError(t, err)
	assert.Equal(t, []int{40, 30, 20, 10}, out.Labels())
}

func TestLookupJoinerErrors(t *testing.T) {
	path := lookupFile(t, "store_id,region\n1,north\n")

	j := &LookupJoiner{Keys: []string{"store_id"}, Path: path}
	_, err := j.Transform(ordersTable(t))
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = j.Fitted()
	assert.ErrorIs(t, err, ErrNotFitted)

	var missing *MissingColumnsError
	err = (&LookupJoiner{Keys: []string{"nope"}, Path: path}).Fit(ordersTable(t))
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"nope"}, missing.Columns)

	err = (&LookupJoiner{Keys: []string{"store_id"}, LookupKeys: []string{"a", "b"}, Path: path}).Fit(ordersTable(t))
	var invalid *ValidationError
	assert.ErrorAs(t, err, &invalid)

	err = (&LookupJoiner{Keys: []string{"store_id"}, KeepColumns: []string{"ghost"}, Path: path}).Fit(ordersTable(t))
	assert.ErrorAs(t, err, &missing)

	err = (&LookupJoiner{Keys: []string{"store_id"}, Path: path, Format: "pickle"}).Fit(ordersTable(t))
	assert.ErrorIs(t, err, engine.ErrUnknownFormat)

	err = (&LookupJoiner{Keys: []string{"store_id"}, Path: filepath.Join(t.TempDir(), "missing.csv")}).Fit(ordersTable(t))
	assert.Error(t, err)
}
