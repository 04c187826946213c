package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestColumnMapOrder(t *testing.T) {
	m := NewColumnMap()
	m.Set("zeta", "a", "b")
	m.Set("alpha", "c")
	m.Set("zeta", "d")

	assert.Equal(t, []string{"zeta", "alpha"}, m.Keys())
	vals, ok := m.Get("zeta")
	assert.True(t, ok)
	assert.Equal(t, []string{"d"}, vals)

	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"zeta":["d"],"alpha":["c"]}`, string(b))
	assert.Equal(t, `{"zeta":["d"],"alpha":["c"]}`, string(b))
}

func TestColumnMapYAML(t *testing.T) {
	doc := `
price: [quantity, discount]
age: income
weight:
  - height
`
	var m ColumnMap
	require.NoError(t, yaml.Unmarshal([]byte(doc), &m))
	assert.Equal(t, []string{"price", "age", "weight"}, m.Keys())
	vals, _ := m.Get("age")
	assert.Equal(t, []string{"income"}, vals)

	out, err := yaml.Marshal(&m)
	require.NoError(t, err)

	var back ColumnMap
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, m.Keys(), back.Keys())
}

func TestColumnMapRejectsBadShapes(t *testing.T) {
	var m ColumnMap
	assert.Error(t, yaml.Unmarshal([]byte(`[a, b]`), &m))
	assert.Error(t, yaml.Unmarshal([]byte("a: [x]\na: [y]\n"), &m))
	assert.Error(t, yaml.Unmarshal([]byte("a: {b: c}\n"), &m))
}

func TestColumnMapJSONRoundTrip(t *testing.T) {
	var m ColumnMap
	require.NoError(t, json.Unmarshal([]byte(`{"b":["1","2"],"a":[]}`), &m))
	assert.Equal(t, []string{"b", "a"}, m.Keys())

	b, err := json.Marshal(&m)
	require.NoError(t, err)
	assert.Equal(t, `{"b":["1","2"],"a":[]}`, string(b))
}
