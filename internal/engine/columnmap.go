package engine

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ColumnMap is an insertion-ordered mapping from a column name to a list of
// names or values. It backs the mined association map, the dummy map and the
// interaction map.
type ColumnMap struct {
	keys   []string
	values map[string][]string
}

func NewColumnMap() *ColumnMap {
	return &ColumnMap{values: make(map[string][]string)}
}

// Set stores vals under key. An existing key keeps its position.
func (m *ColumnMap) Set(key string, vals ...string) {
	if m.values == nil {
		m.values = make(map[string][]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = append([]string(nil), vals...)
}

func (m *ColumnMap) Get(key string) ([]string, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return append([]string(nil), v...), ok
}

func (m *ColumnMap) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

func (m *ColumnMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Each visits entries in insertion order.
func (m *ColumnMap) Each(fn func(key string, vals []string)) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		fn(k, m.values[k])
	}
}

func (m *ColumnMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(nonNil(m.values[k]))
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *ColumnMap) UnmarshalJSON(data []byte) error {
	// YAML is a superset of JSON and keeps key order.
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	if len(node.Content) == 0 {
		*m = ColumnMap{values: make(map[string][]string)}
		return nil
	}
	return m.UnmarshalYAML(node.Content[0])
}

func (m *ColumnMap) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range m.keys {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, v := range m.values[k] {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: v})
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, seq)
	}
	return node, nil
}

// UnmarshalYAML accepts a mapping whose values are a sequence of scalars or a
// single scalar.
func (m *ColumnMap) UnmarshalYAML(node *yaml.Node) error {
	*m = ColumnMap{values: make(map[string][]string)}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: column map must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if _, dup := m.values[k.Value]; dup {
			return fmt.Errorf("line %d: duplicate key %q", k.Line, k.Value)
		}
		switch v.Kind {
		case yaml.SequenceNode:
			vals := make([]string, 0, len(v.Content))
			for _, item := range v.Content {
				if item.Kind != yaml.ScalarNode {
					return fmt.Errorf("line %d: %q values must be scalars", item.Line, k.Value)
				}
				vals = append(vals, item.Value)
			}
			m.Set(k.Value, vals...)
		case yaml.ScalarNode:
			m.Set(k.Value, v.Value)
		default:
			return fmt.Errorf("line %d: %q must map to a list", v.Line, k.Value)
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
