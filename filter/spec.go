// Package filter defines the catalogue of operations a dataflow graph is
// built from.  A Spec declares a filter type's ports and typed parameters
// together with an implementation object.  Backends discover what an
// implementation can do through the capability interfaces Evaluable and
// Codegen rather than through a backend-specific registry, so a backend only
// ever sees filter types that implement the capability it needs.
package filter

import (
	"fmt"

	"github.com/brimdata/flow/errors"
	"github.com/brimdata/flow/vector"
)

// DefaultOutput is the output port of every built-in filter type.
const DefaultOutput = "out"

type Spec struct {
	Name    string
	Inputs  []string
	// Outputs holds at most one port, DefaultOutput when empty.
	Outputs []string
	Params  []Param
	// Impl implements Evaluable, Codegen, or both, and optionally Shaper.
	Impl interface{}
	// Doc is a one-line description shown by "flow filters".
	Doc string
}

// Evaluable is the interpreter capability: compute a filter's output from
// materialized input arrays.
type Evaluable interface {
	Eval(inputs []*vector.Array, params Params) (*vector.Array, error)
}

// Codegen is the fuser capability: produce an expression fragment in the
// generated kernel language computing one element of the filter's output
// from the operands bound to its inputs.  The fuser assigns the fragment to a
// fresh temporary.
type Codegen interface {
	Gen(inputs []Operand, params Params) (string, error)
}

// Shaper computes a filter's output shape from its input shapes.  Filter
// types that do not implement Shaper are elementwise.
type Shaper interface {
	Shape(inputs []vector.Shape, params Params) (vector.Shape, error)
}

// Operand is a value visible to generated kernel code.
type Operand struct {
	// Expr evaluates to the operand's element at the current work item.
	Expr string
	// Buffer names the kernel argument backing the operand when it is
	// a bound array source, or is empty.
	Buffer string
	// Width is the number of components per element of Buffer.
	Width int
}

type EvalFunc func([]*vector.Array, Params) (*vector.Array, error)

func (f EvalFunc) Eval(inputs []*vector.Array, params Params) (*vector.Array, error) {
	return f(inputs, params)
}

type GenFunc func([]Operand, Params) (string, error)

func (f GenFunc) Gen(inputs []Operand, params Params) (string, error) {
	return f(inputs, params)
}

type evalGen struct {
	EvalFunc
	GenFunc
}

// Funcs assembles an implementation from plain functions; either may be nil,
// in which case the implementation lacks that capability.
func Funcs(eval EvalFunc, gen GenFunc) interface{} {
	switch {
	case eval != nil && gen != nil:
		return evalGen{eval, gen}
	case eval != nil:
		return eval
	case gen != nil:
		return gen
	}
	return nil
}

func (s *Spec) Evaluable() (Evaluable, bool) {
	e, ok := s.Impl.(Evaluable)
	return e, ok
}

func (s *Spec) Codegen() (Codegen, bool) {
	g, ok := s.Impl.(Codegen)
	return g, ok
}

// OutputShape returns the shape this filter produces for the given input
// shapes.
func (s *Spec) OutputShape(inputs []vector.Shape, params Params) (vector.Shape, error) {
	if shaper, ok := s.Impl.(Shaper); ok {
		return shaper.Shape(inputs, params)
	}
	return vector.Broadcast(s.Name, inputs...)
}

func (s *Spec) HasInput(port string) bool {
	return indexOf(s.Inputs, port) >= 0
}

func (s *Spec) HasOutput(port string) bool {
	return indexOf(s.Outputs, port) >= 0
}

func (s *Spec) InputIndex(port string) int {
	return indexOf(s.Inputs, port)
}

func indexOf(list []string, s string) int {
	for k, v := range list {
		if v == s {
			return k
		}
	}
	return -1
}

func (s *Spec) validate() error {
	if s.Name == "" {
		return errors.E(errors.Invalid, "filter type has no name")
	}
	if s.Impl == nil {
		return errors.E(errors.Invalid, "filter type %q has no implementation", s.Name)
	}
	_, eval := s.Evaluable()
	_, gen := s.Codegen()
	if !eval && !gen {
		return errors.E(errors.Invalid, "filter type %q implements neither Evaluable nor Codegen", s.Name)
	}
	switch len(s.Outputs) {
	case 0:
		s.Outputs = []string{DefaultOutput}
	case 1:
	default:
		// Eval and Gen each produce one value per element.
		return errors.E(errors.Invalid, "filter type %q declares %d output ports, only one is supported", s.Name, len(s.Outputs))
	}
	seen := make(map[string]bool)
	for _, port := range append(append([]string{}, s.Inputs...), s.Outputs...) {
		if port == "" {
			return errors.E(errors.Invalid, "filter type %q has an unnamed port", s.Name)
		}
		if seen[port] {
			return errors.E(errors.Invalid, "filter type %q: duplicate port %q", s.Name, port)
		}
		seen[port] = true
	}
	params := make(map[string]bool)
	for _, p := range s.Params {
		if params[p.Name] {
			return errors.E(errors.Invalid, "filter type %q: duplicate parameter %q", s.Name, p.Name)
		}
		params[p.Name] = true
		if p.Default != nil {
			if _, err := p.Kind.coerce(p.Default); err != nil {
				return errors.E(errors.Invalid, "filter type %q: default of parameter %q: %w", s.Name, p.Name, err)
			}
		}
	}
	return nil
}

func (s *Spec) String() string {
	return fmt.Sprintf("%s(%v) -> %v", s.Name, s.Inputs, s.Outputs)
}
