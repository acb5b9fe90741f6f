package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/brimdata/flow/anymath"
	"github.com/brimdata/flow/vector"
)

// Port names of the built-in filter types.
const (
	In  = "in"
	InA = "in_a"
	InB = "in_b"
	InC = "in_c"
)

// Builtins returns a registry holding the built-in filter types.
func Builtins() *Registry {
	r := NewRegistry()
	for _, spec := range builtinSpecs() {
		if err := r.Register(spec); err != nil {
			panic(err)
		}
	}
	return r
}

func builtinSpecs() []*Spec {
	specs := []*Spec{
		binary("add", "+", "elementwise sum"),
		binary("sub", "-", "elementwise difference"),
		binary("mult", "*", "elementwise product"),
		binary("div", "/", "elementwise quotient"),
		binaryCall("pow", "pow", "elementwise power"),
		binaryCall("min", "fmin", "elementwise minimum"),
		binaryCall("max", "fmax", "elementwise maximum"),
		{
			Name:    "neg",
			Inputs:  []string{In},
			Outputs: []string{DefaultOutput},
			Impl:    &unaryOp{name: "neg", fn: anymath.Neg, gen: func(a string) string { return "(-" + a + ")" }},
			Doc:     "elementwise negation",
		},
		{
			Name:    "copy",
			Inputs:  []string{In},
			Outputs: []string{DefaultOutput},
			Impl:    &unaryOp{name: "copy", fn: func(a float64) float64 { return a }, gen: func(a string) string { return a }},
			Doc:     "copy of the input",
		},
	}
	for _, u := range []struct{ name, call string }{
		{"abs", "fabs"},
		{"sqrt", "sqrt"},
		{"exp", "exp"},
		{"log", "log"},
		{"sin", "sin"},
		{"cos", "cos"},
		{"tan", "tan"},
	} {
		call := u.call
		specs = append(specs, &Spec{
			Name:    u.name,
			Inputs:  []string{In},
			Outputs: []string{DefaultOutput},
			Impl:    &unaryOp{name: u.name, fn: anymath.Unaries[u.name], gen: func(a string) string { return call + "(" + a + ")" }},
			Doc:     "elementwise " + u.name,
		})
	}
	return append(specs,
		&Spec{
			Name:    "const",
			Outputs: []string{DefaultOutput},
			Params:  []Param{{Name: "value", Kind: Float, Required: true}},
			Impl:    constOp{},
			Doc:     "scalar constant",
		},
		&Spec{
			Name:    "decompose",
			Inputs:  []string{In},
			Outputs: []string{DefaultOutput},
			Params:  []Param{{Name: "index", Kind: Int, Required: true}},
			Impl:    decomposeOp{},
			Doc:     "select component index of a multi-component array, as in decompose(v, 1)",
		},
		&Spec{
			Name:    "magnitude",
			Inputs:  []string{InA, InB, InC},
			Outputs: []string{DefaultOutput},
			Impl:    magnitudeOp{},
			Doc:     "euclidean norm of three components",
		},
	)
}

type binaryOp struct {
	name string
	fn   anymath.Float64
	// gen renders the operation applied to two element expressions.
	gen func(a, b string) string
}

func binary(name, sym, doc string) *Spec {
	return &Spec{
		Name:    name,
		Inputs:  []string{InA, InB},
		Outputs: []string{DefaultOutput},
		Impl: &binaryOp{
			name: name,
			fn:   anymath.Binaries[name].Float64,
			gen:  func(a, b string) string { return "(" + a + " " + sym + " " + b + ")" },
		},
		Doc: doc,
	}
}

func binaryCall(name, call, doc string) *Spec {
	return &Spec{
		Name:    name,
		Inputs:  []string{InA, InB},
		Outputs: []string{DefaultOutput},
		Impl: &binaryOp{
			name: name,
			fn:   anymath.Binaries[name].Float64,
			gen:  func(a, b string) string { return call + "(" + a + ", " + b + ")" },
		},
		Doc: doc,
	}
}

func (b *binaryOp) Eval(in []*vector.Array, _ Params) (*vector.Array, error) {
	return vector.Binary(b.name, b.fn, in[0], in[1])
}

func (b *binaryOp) Gen(in []Operand, _ Params) (string, error) {
	exprs, err := elements(b.name, in)
	if err != nil {
		return "", err
	}
	return b.gen(exprs[0], exprs[1]), nil
}

type unaryOp struct {
	name string
	fn   anymath.Unary
	gen  func(string) string
}

func (u *unaryOp) Eval(in []*vector.Array, _ Params) (*vector.Array, error) {
	return vector.Unary(u.fn, in[0]), nil
}

func (u *unaryOp) Gen(in []Operand, _ Params) (string, error) {
	exprs, err := elements(u.name, in)
	if err != nil {
		return "", err
	}
	return u.gen(exprs[0]), nil
}

type constOp struct{}

func (constOp) Eval(_ []*vector.Array, p Params) (*vector.Array, error) {
	return vector.NewScalar(p.Float("value")), nil
}

func (constOp) Gen(_ []Operand, p Params) (string, error) {
	return FormatLiteral(p.Float("value")), nil
}

type decomposeOp struct{}

func (decomposeOp) Eval(in []*vector.Array, p Params) (*vector.Array, error) {
	return in[0].Component(p.Int("index"))
}

func (decomposeOp) Gen(in []Operand, p Params) (string, error) {
	src := in[0]
	if src.Buffer == "" {
		return "", &UnsupportedOperationError{Type: "decompose", Backend: "fuse", Reason: "input must be a bound array source"}
	}
	index := p.Int("index")
	if index < 0 || index >= src.Width {
		return "", fmt.Errorf("decompose: component index %d out of range for width %d", index, src.Width)
	}
	return fmt.Sprintf("%s[gid*%d+%d]", src.Buffer, src.Width, index), nil
}

func (decomposeOp) Shape(in []vector.Shape, p Params) (vector.Shape, error) {
	s := in[0]
	if len(s) < 2 {
		return nil, &vector.ShapeMismatchError{Op: "decompose", Want: vector.Shape{s.Len(), p.Int("index") + 1}, Got: s}
	}
	if index := p.Int("index"); index < 0 || index >= s.Width() {
		return nil, fmt.Errorf("component index %d out of range for shape %s", index, s)
	}
	return append(vector.Shape(nil), s.Elem()...), nil
}

type magnitudeOp struct{}

func (magnitudeOp) Eval(in []*vector.Array, _ Params) (*vector.Array, error) {
	return vector.Nary("magnitude", func(v []float64) float64 {
		return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	}, in...)
}

func (magnitudeOp) Gen(in []Operand, _ Params) (string, error) {
	exprs, err := elements("magnitude", in)
	if err != nil {
		return "", err
	}
	terms := make([]string, 0, 3)
	for _, e := range exprs {
		terms = append(terms, e+" * "+e)
	}
	return "sqrt(" + strings.Join(terms, " + ") + ")", nil
}

func elements(name string, in []Operand) ([]string, error) {
	exprs := make([]string, 0, len(in))
	for _, op := range in {
		if op.Expr == "" {
			return nil, &UnsupportedOperationError{Type: name, Backend: "fuse", Reason: "operand has no element expression"}
		}
		exprs = append(exprs, op.Expr)
	}
	return exprs, nil
}

// FormatLiteral renders v as a floating-point literal of the kernel
// language.
func FormatLiteral(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NAN"
	case math.IsInf(v, 1):
		return "INFINITY"
	case math.IsInf(v, -1):
		return "(-INFINITY)"
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	if v < 0 {
		s = "(" + s + ")"
	}
	return s
}
