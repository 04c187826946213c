package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"featurekit/internal/engine"
	"featurekit/internal/transform"

	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument wraps every problem found while validating a pipeline
// document.
var ErrInvalidDocument = errors.New("invalid pipeline document")

type StepType string

const (
	StepLookup       StepType = "lookup"
	StepAssociate    StepType = "associate"
	StepDummies      StepType = "dummies"
	StepInteractions StepType = "interactions"
	StepFilter       StepType = "filter"
)

// Document is the YAML form of a pipeline.
type Document struct {
	// Target is the default target column of associate steps.
	Target string `yaml:"target,omitempty"`
	Steps  []Step `yaml:"steps"`

	// dir resolves relative lookup paths.
	dir string
}

// Step holds exactly one config block, matching Type.
type Step struct {
	Name         string             `yaml:"name,omitempty"`
	Type         StepType           `yaml:"type"`
	Lookup       *LookupConfig      `yaml:"lookup,omitempty"`
	Associate    *AssociateConfig   `yaml:"associate,omitempty"`
	Dummies      *DummiesConfig     `yaml:"dummies,omitempty"`
	Interactions *InteractionConfig `yaml:"interactions,omitempty"`
	Filter       *FilterConfig      `yaml:"filter,omitempty"`
}

type LookupConfig struct {
	Path        string   `yaml:"path"`
	Format      string   `yaml:"format,omitempty"`
	Keys        []string `yaml:"keys"`
	LookupKeys  []string `yaml:"lookup_keys,omitempty"`
	KeepColumns []string `yaml:"keep_columns,omitempty"`
	AsString    bool     `yaml:"as_string,omitempty"`
	Prefix      string   `yaml:"prefix,omitempty"`
	Suffix      string   `yaml:"suffix,omitempty"`
}

type AssociateConfig struct {
	Target             string   `yaml:"target,omitempty"`
	Include            []string `yaml:"include,omitempty"`
	Exclude            []string `yaml:"exclude,omitempty"`
	Prefix             string   `yaml:"prefix,omitempty"`
	Suffix             string   `yaml:"suffix,omitempty"`
	Method             string   `yaml:"method,omitempty"`
	MinMeanTarget      float64  `yaml:"min_mean_target,omitempty"`
	MinSampleSize      int      `yaml:"min_sample_size,omitempty"`
	MinSampleFrequency float64  `yaml:"min_sample_frequency,omitempty"`
	MinWeightedTarget  float64  `yaml:"min_weighted_target,omitempty"`
	// IgnoreBinary defaults to true.
	IgnoreBinary *bool `yaml:"ignore_binary,omitempty"`
}

// DummiesConfig takes its map either inline or from the fitted mapping of an
// earlier associate step named by From.
type DummiesConfig struct {
	Map  *engine.ColumnMap `yaml:"map,omitempty"`
	From string            `yaml:"from,omitempty"`
	// DropSource defaults to true.
	DropSource *bool `yaml:"drop_source,omitempty"`
}

type InteractionConfig struct {
	Map       *engine.ColumnMap `yaml:"map"`
	Method    string            `yaml:"method,omitempty"`
	FillValue *float64          `yaml:"fill_value,omitempty"`
}

// FilterConfig keeps rows matching a CEL expression over `row`.
type FilterConfig struct {
	Expr string `yaml:"expr"`
}

// LoadDocument reads and validates a pipeline file. Relative lookup paths
// resolve against the file's directory.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline %s: %w", path, err)
	}
	doc, err := ParseDocument(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	doc.dir = filepath.Dir(path)
	return doc, nil
}

// ParseDocument decodes a pipeline document, rejecting unknown fields.
func ParseDocument(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidDocument)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks every step. All problems are reported together.
func (d *Document) Validate() error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidDocument)
	}
	var problems []string
	add := func(i int, format string, args ...any) {
		problems = append(problems, fmt.Sprintf("step %d: ", i+1)+fmt.Sprintf(format, args...))
	}

	names := make(map[string]StepType)
	for i, s := range d.Steps {
		if s.Name != "" {
			if _, dup := names[s.Name]; dup {
				add(i, "duplicate step name %q", s.Name)
			}
			names[s.Name] = s.Type
		}
		if n := s.blocks(); n > 1 {
			add(i, "%d config blocks, want one", n)
		} else if n == 1 && !s.hasOwnBlock() {
			add(i, "config block does not match type %q", s.Type)
		}

		switch s.Type {
		case StepLookup:
			switch c := s.Lookup; {
			case c == nil:
				add(i, "lookup block required")
			case c.Path == "":
				add(i, "lookup path required")
			case len(c.Keys) == 0:
				add(i, "lookup keys required")
			default:
				if _, err := engine.ParseFormat(c.Format); err != nil {
					add(i, "%v", err)
				}
			}
		case StepAssociate:
			c := s.Associate
			if c == nil {
				c = &AssociateConfig{}
			}
			if c.Target == "" && d.Target == "" {
				add(i, "associate needs a target")
			}
			switch transform.AggregationMethod(c.Method) {
			case "", transform.MethodAggregate, transform.MethodOneHot:
			default:
				add(i, "unknown aggregation method %q", c.Method)
			}
		case StepDummies:
			switch c := s.Dummies; {
			case c == nil:
				add(i, "dummies block required")
			case c.From != "" && c.Map != nil:
				add(i, "dummies takes map or from, not both")
			case c.From != "":
				if names[c.From] != StepAssociate {
					add(i, "from %q does not name an earlier associate step", c.From)
				}
			case c.Map == nil || c.Map.Len() == 0:
				add(i, "dummies map required")
			}
		case StepInteractions:
			switch c := s.Interactions; {
			case c == nil || c.Map == nil || c.Map.Len() == 0:
				add(i, "interactions map required")
			default:
				switch transform.InteractionMethod(c.Method) {
				case "", transform.MethodMultiplicative, transform.MethodScale, transform.MethodLogAdditive:
				default:
					add(i, "unknown interaction method %q", c.Method)
				}
			}
		case StepFilter:
			if s.Filter == nil || s.Filter.Expr == "" {
				add(i, "filter expr required")
			}
		case "":
			add(i, "type required")
		default:
			add(i, "unknown step type %q", s.Type)
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(problems, "; "))
	}
	return nil
}

func (s Step) blocks() int {
	n := 0
	for _, set := range []bool{s.Lookup != nil, s.Associate != nil, s.Dummies != nil, s.Interactions != nil, s.Filter != nil} {
		if set {
			n++
		}
	}
	return n
}

func (s Step) hasOwnBlock() bool {
	switch s.Type {
	case StepLookup:
		return s.Lookup != nil
	case StepAssociate:
		return s.Associate != nil
	case StepDummies:
		return s.Dummies != nil
	case StepInteractions:
		return s.Interactions != nil
	case StepFilter:
		return s.Filter != nil
	}
	return true
}

func (s Step) label(i int) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("%s#%d", s.Type, i+1)
}
