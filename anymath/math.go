// Package anymath holds the scalar arithmetic shared by the interpreter's
// array kernels and the host device's compiled kernels.  Keeping a single
// definition of each operation is what lets the two backends agree.
package anymath

import "math"

type Float64 func(float64, float64) float64
type Unary func(float64) float64

type Function struct {
	Init float64
	Float64
}

var Min = &Function{
	Init: math.MaxFloat64,
	Float64: func(a, b float64) float64 {
		if a < b {
			return a
		}
		return b
	},
}

var Max = &Function{
	Init: -math.MaxFloat64,
	Float64: func(a, b float64) float64 {
		if a > b {
			return a
		}
		return b
	},
}

var Add = &Function{
	Float64: func(a, b float64) float64 { return a + b },
}

var Sub = &Function{
	Float64: func(a, b float64) float64 { return a - b },
}

var Mul = &Function{
	Init:    1,
	Float64: func(a, b float64) float64 { return a * b },
}

// Div follows IEEE 754: division by zero yields an infinity or NaN rather
// than an error.
var Div = &Function{
	Float64: func(a, b float64) float64 { return a / b },
}

var Pow = &Function{
	Float64: math.Pow,
}

// Neg is kept as a function so -0 behaves the same in both backends.
func Neg(a float64) float64 { return -a }

var Unaries = map[string]Unary{
	"neg":  Neg,
	"abs":  math.Abs,
	"sqrt": math.Sqrt,
	"exp":  math.Exp,
	"log":  math.Log,
	"sin":  math.Sin,
	"cos":  math.Cos,
	"tan":  math.Tan,
}

var Binaries = map[string]*Function{
	"add":  Add,
	"sub":  Sub,
	"mult": Mul,
	"div":  Div,
	"pow":  Pow,
	"min":  Min,
	"max":  Max,
}
