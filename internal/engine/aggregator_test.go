package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup(t *testing.T) {
	// Row 0: Germany, converted
	// Row 1: Germany, not converted
	// Row 2: France,  converted
	// Row 3: null country
	// Row 4: Germany, target unknown
	country := NewStringColumn("country",
		[]string{"Germany", "Germany", "France", "", "Germany"},
		[]bool{true, true, true, false, true})
	target := []float64{1, 0, 1, 1, 0}
	use := []bool{true, true, true, true, false}

	groups := Group(country, target, use)
	require.Len(t, groups, 2)

	assert.Equal(t, "Germany", groups[0].Value)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, 1.0, groups[0].TargetSum)
	assert.Equal(t, 0.5, groups[0].Mean())
	assert.Equal(t, 0, groups[0].First)

	assert.Equal(t, "France", groups[1].Value)
	assert.Equal(t, 1.0, groups[1].Mean())
}

func TestGroupParallelKeepsFirstAppearance(t *testing.T) {
	n := minRowsPerWorker * 4
	vals := make([]int64, n)
	target := make([]float64, n)
	for i := range vals {
		vals[i] = int64((n - 1 - i) % 7)
		target[i] = float64(i % 2)
	}
	groups := Group(NewIntColumn("code", vals, nil), target, nil)
	require.Len(t, groups, 7)

	total := 0
	for i, g := range groups {
		total += g.Count
		if i > 0 {
			assert.Less(t, groups[i-1].First, g.First)
		}
	}
	assert.Equal(t, n, total)
	assert.Equal(t, int64((n-1)%7), groups[0].Value)
}

func TestValueCounts(t *testing.T) {
	col := NewIntColumn("x", []int64{3, 1, 1, 2, 3, 1}, nil)
	counts := ValueCounts(col)
	require.Len(t, counts, 3)

	got := make([]string, len(counts))
	for i, c := range counts {
		got[i] = fmt.Sprintf("%v:%d", c.Value, c.Count)
	}
	assert.Equal(t, []string{"1:3", "3:2", "2:1"}, got)
}

func TestGroupNumericKeysIgnoreStorage(t *testing.T) {
	a := NewFloatColumn("a", []float64{1.0}, nil)
	b := NewIntColumn("b", []int64{1}, nil)
	s := NewStringColumn("s", []string{"1"}, nil)

	ka, _ := a.Key(0)
	kb, _ := b.Key(0)
	ks, _ := s.Key(0)
	assert.Equal(t, ka, kb)
	assert.NotEqual(t, ka, ks)
}
