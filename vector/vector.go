// Package vector is the numeric array runtime the filters evaluate against.
// An Array is a flat slice of float64 values with a row-major shape.  A
// rank-0 array is a scalar and broadcasts against any other array; no other
// broadcasting is performed.
package vector

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/brimdata/flow/errors"
)

type Shape []int

// Len returns the number of elements described by the shape.  The empty
// shape describes a scalar.
func (s Shape) Len() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

func (s Shape) IsScalar() bool {
	return len(s) == 0
}

func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if s[k] != other[k] {
			return false
		}
	}
	return true
}

func (s Shape) Validate() error {
	for _, d := range s {
		if d <= 0 {
			return fmt.Errorf("invalid shape %s: dimensions must be positive", s)
		}
	}
	return nil
}

// Elem returns the shape of one component of a multi-component array,
// i.e., s with its last dimension removed.
func (s Shape) Elem() Shape {
	if len(s) == 0 {
		return nil
	}
	return s[:len(s)-1]
}

// Width returns the size of the last dimension or 1 for a scalar.
func (s Shape) Width() int {
	if len(s) == 0 {
		return 1
	}
	return s[len(s)-1]
}

func (s Shape) String() string {
	if len(s) == 0 {
		return "scalar"
	}
	dims := make([]string, 0, len(s))
	for _, d := range s {
		dims = append(dims, strconv.Itoa(d))
	}
	return "[" + strings.Join(dims, ",") + "]"
}

type Array struct {
	Shape  Shape
	Values []float64
}

func New(shape Shape, values []float64) (*Array, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.Len() != len(values) {
		return nil, fmt.Errorf("shape %s holds %d values but %d were given", shape, shape.Len(), len(values))
	}
	return &Array{Shape: shape, Values: values}, nil
}

// NewFloat returns a rank-1 array holding values.
func NewFloat(values []float64) *Array {
	return &Array{Shape: Shape{len(values)}, Values: values}
}

func NewScalar(v float64) *Array {
	return &Array{Values: []float64{v}}
}

// Range returns the rank-1 array [0, 1, ..., n-1].
func Range(n int) *Array {
	vals := make([]float64, n)
	for k := range vals {
		vals[k] = float64(k)
	}
	return NewFloat(vals)
}

func Fill(shape Shape, v float64) *Array {
	vals := make([]float64, shape.Len())
	for k := range vals {
		vals[k] = v
	}
	return &Array{Shape: shape, Values: vals}
}

func (a *Array) Len() int {
	return len(a.Values)
}

func (a *Array) IsScalar() bool {
	return a.Shape.IsScalar()
}

func (a *Array) Clone() *Array {
	vals := make([]float64, len(a.Values))
	copy(vals, a.Values)
	return &Array{Shape: append(Shape(nil), a.Shape...), Values: vals}
}

// Component returns component index of an array whose last dimension
// enumerates the components of each element, e.g., the y values of an
// [n,3] vector field.
func (a *Array) Component(index int) (*Array, error) {
	if len(a.Shape) < 2 {
		return nil, &ShapeMismatchError{Op: "decompose", Want: Shape{a.Len(), index + 1}, Got: a.Shape}
	}
	width := a.Shape.Width()
	if index < 0 || index >= width {
		return nil, fmt.Errorf("component index %d out of range for shape %s", index, a.Shape)
	}
	n := a.Shape.Elem().Len()
	vals := make([]float64, n)
	for k := range vals {
		vals[k] = a.Values[k*width+index]
	}
	return &Array{Shape: append(Shape(nil), a.Shape.Elem()...), Values: vals}, nil
}

// MaxAbsDiff returns the largest absolute elementwise difference between a
// and b.  NaNs in the same slot compare equal.
func (a *Array) MaxAbsDiff(b *Array) (float64, error) {
	if !a.Shape.Equal(b.Shape) {
		return 0, &ShapeMismatchError{Op: "compare", Want: a.Shape, Got: b.Shape}
	}
	var max float64
	for k, v := range a.Values {
		w := b.Values[k]
		if math.IsNaN(v) && math.IsNaN(w) {
			continue
		}
		if v == w {
			// Handles matching infinities.
			continue
		}
		d := math.Abs(v - w)
		if math.IsNaN(d) {
			return math.Inf(1), nil
		}
		if d > max {
			max = d
		}
	}
	return max, nil
}

// ShapeMismatchError reports operands whose shapes cannot be combined.
type ShapeMismatchError struct {
	Op   string
	Want Shape
	Got  Shape
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: shape mismatch: expected %s, got %s", e.Op, e.Want, e.Got)
}

func (*ShapeMismatchError) Kind() errors.Kind { return errors.Execution }
