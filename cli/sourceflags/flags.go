// Package sourceflags loads source bindings for flow commands from a YAML
// file.  A bindings file looks like
//
//	sources:
//	  a: [1, 2, 3]
//	  k: 2.5
//	  velocity: [[1, 0, 0], [0, 2, 0]]
//	  b: {shape: [3], range: true}
//	output: f5
//	shape: [3]
//
// A scalar binds a scalar, a list binds a rank-1 array, a list of lists
// binds an [n,k] array, and a mapping gives a shape with either explicit
// values, a fill value, or range set to bind 0, 1, 2, ....
package sourceflags

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/brimdata/flow/vector"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

type Flags struct {
	Path  string
	Shape vector.Shape
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	fs.StringVar(&f.Path, "sources", "", "YAML file binding values to sources")
	fs.Var((*shapeValue)(&f.Shape), "shape", "shape of unbound sources, e.g., 16 or 16,3 (values are zero)")
}

type Bindings struct {
	Sources map[string]Value `yaml:"sources"`
	Output  string           `yaml:"output,omitempty"`
	Shape   vector.Shape     `yaml:"shape,omitempty"`
}

// Names returns the bound source names in sorted order.
func (b *Bindings) Names() []string {
	names := maps.Keys(b.Sources)
	slices.Sort(names)
	return names
}

// Load reads the bindings file, returning empty bindings if none was given.
func (f *Flags) Load() (*Bindings, error) {
	if f.Path == "" {
		return &Bindings{}, nil
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	bindings, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return bindings, nil
}

func Parse(b []byte) (*Bindings, error) {
	var bindings Bindings
	d := yaml.NewDecoder(bytes.NewReader(b))
	d.KnownFields(true)
	if err := d.Decode(&bindings); err != nil {
		return nil, err
	}
	if err := bindings.Shape.Validate(); err != nil {
		return nil, err
	}
	return &bindings, nil
}

// Builder is the part of a Workspace or Context the bindings are applied
// to.
type Builder interface {
	HasSource(name string) bool
	AddSource(name string, value *vector.Array) error
	BindSource(name string, value *vector.Array) error
}

// Add adds every bound source to b.  It runs before the program is lowered
// so the program's identifiers resolve to these sources.
func (b *Bindings) Add(builder Builder) error {
	for _, name := range b.Names() {
		if err := builder.AddSource(name, b.Sources[name].Array); err != nil {
			return err
		}
	}
	return nil
}

// BindPlaceholders binds zeros of f.Shape to the placeholders, or does
// nothing if no -shape was given.
func (f *Flags) BindPlaceholders(builder Builder, placeholders []string) error {
	if f.Shape == nil {
		return nil
	}
	for _, name := range placeholders {
		if err := builder.BindSource(name, vector.Fill(f.Shape, 0)); err != nil {
			return err
		}
	}
	return nil
}

// Value is a bound array.
type Value struct {
	*vector.Array
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var f float64
		if err := node.Decode(&f); err != nil {
			return err
		}
		v.Array = vector.NewScalar(f)
		return nil
	case yaml.SequenceNode:
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			return v.decodeRows(node)
		}
		var vals []float64
		if err := node.Decode(&vals); err != nil {
			return err
		}
		v.Array = vector.NewFloat(vals)
		return nil
	case yaml.MappingNode:
		return v.decodeMapping(node)
	}
	return fmt.Errorf("line %d: cannot bind a source to this value", node.Line)
}

func (v *Value) decodeRows(node *yaml.Node) error {
	var rows [][]float64
	if err := node.Decode(&rows); err != nil {
		return err
	}
	width := len(rows[0])
	vals := make([]float64, 0, len(rows)*width)
	for k, row := range rows {
		if len(row) != width {
			return fmt.Errorf("line %d: row %d has %d components, expected %d", node.Line, k, len(row), width)
		}
		vals = append(vals, row...)
	}
	a, err := vector.New(vector.Shape{len(rows), width}, vals)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	v.Array = a
	return nil
}

func (v *Value) decodeMapping(node *yaml.Node) error {
	var m struct {
		Shape  vector.Shape `yaml:"shape"`
		Values []float64    `yaml:"values"`
		Fill   *float64     `yaml:"fill"`
		Range  bool         `yaml:"range"`
	}
	if err := node.Decode(&m); err != nil {
		return err
	}
	if err := m.Shape.Validate(); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	switch {
	case m.Range:
		a := vector.Range(m.Shape.Len())
		a.Shape = m.Shape
		v.Array = a
	case m.Fill != nil:
		v.Array = vector.Fill(m.Shape, *m.Fill)
	default:
		a, err := vector.New(m.Shape, m.Values)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		v.Array = a
	}
	return nil
}

// ParseShape parses a comma-separated list of dimensions.  The empty
// string is the scalar shape.
func ParseShape(s string) (vector.Shape, error) {
	shape := vector.Shape{}
	if strings.TrimSpace(s) == "" {
		return shape, nil
	}
	for _, field := range strings.Split(s, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("invalid shape %q", s)
		}
		shape = append(shape, d)
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return shape, nil
}

type shapeValue vector.Shape

func (s *shapeValue) Set(v string) error {
	shape, err := ParseShape(v)
	if err != nil {
		return err
	}
	*s = shapeValue(shape)
	return nil
}

func (s *shapeValue) String() string {
	if s == nil || *s == nil {
		return ""
	}
	return vector.Shape(*s).String()
}
