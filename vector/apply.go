package vector

import "github.com/brimdata/flow/anymath"

// Unary applies f to every element of a.
func Unary(f anymath.Unary, a *Array) *Array {
	out := make([]float64, len(a.Values))
	for k, v := range a.Values {
		out[k] = f(v)
	}
	return &Array{Shape: append(Shape(nil), a.Shape...), Values: out}
}

// Binary applies f elementwise to a and b.  The operands must have equal
// shapes unless one of them is a scalar.
func Binary(op string, f anymath.Float64, a, b *Array) (*Array, error) {
	shape, err := ResultShape(op, a, b)
	if err != nil {
		return nil, err
	}
	out := make([]float64, shape.Len())
	switch {
	case a.IsScalar() && !b.IsScalar():
		lhs := a.Values[0]
		for k, v := range b.Values {
			out[k] = f(lhs, v)
		}
	case b.IsScalar() && !a.IsScalar():
		rhs := b.Values[0]
		for k, v := range a.Values {
			out[k] = f(v, rhs)
		}
	default:
		for k, v := range a.Values {
			out[k] = f(v, b.Values[k])
		}
	}
	return &Array{Shape: shape, Values: out}, nil
}

// Nary applies f elementwise across args, which follow the same shape rules
// as Binary.
func Nary(op string, f func([]float64) float64, args ...*Array) (*Array, error) {
	shape, err := ResultShape(op, args...)
	if err != nil {
		return nil, err
	}
	n := shape.Len()
	out := make([]float64, n)
	vals := make([]float64, len(args))
	for k := 0; k < n; k++ {
		for i, a := range args {
			if a.IsScalar() {
				vals[i] = a.Values[0]
			} else {
				vals[i] = a.Values[k]
			}
		}
		out[k] = f(vals)
	}
	return &Array{Shape: shape, Values: out}, nil
}

// ResultShape returns the shape of an elementwise combination of args.
func ResultShape(op string, args ...*Array) (Shape, error) {
	shapes := make([]Shape, 0, len(args))
	for _, a := range args {
		shapes = append(shapes, a.Shape)
	}
	return Broadcast(op, shapes...)
}

// Broadcast returns the shape of an elementwise combination of operands
// with the given shapes: scalars combine with anything, all other shapes
// must be equal.
func Broadcast(op string, shapes ...Shape) (Shape, error) {
	var out Shape
	for _, s := range shapes {
		if s.IsScalar() {
			continue
		}
		if out == nil {
			out = s
			continue
		}
		if !out.Equal(s) {
			return nil, &ShapeMismatchError{Op: op, Want: out, Got: s}
		}
	}
	return append(Shape(nil), out...), nil
}
