// Package device defines the boundary between the fuser and whatever
// compiles and runs its generated kernels.  A Compiler turns kernel source
// into a Kernel; a Kernel is launched over n work items with one argument
// per kernel parameter and writes one element per work item.
package device

import (
	"context"
	"fmt"

	"github.com/brimdata/flow/errors"
)

type Compiler interface {
	// Name identifies the compiler in logs and metrics.
	Name() string
	Compile(ctx context.Context, src string) (Kernel, error)
}

type Kernel interface {
	// Params lists the kernel's input parameters in declaration order,
	// excluding the output buffer.
	Params() []Param
	// Launch runs the kernel over work items 0 through n-1 and blocks
	// until all of them have completed.
	Launch(ctx context.Context, n int, args []Arg, out []float64) error
}

// Param is a kernel input parameter.
type Param struct {
	Name string
	// Buffer is true for a global array parameter and false for a scalar
	// passed by value.
	Buffer bool
}

// Arg is the value bound to a Param.  A nil Buffer denotes a scalar
// argument.
type Arg struct {
	Buffer []float64
	Scalar float64
}

func BufferArg(values []float64) Arg {
	return Arg{Buffer: values}
}

func ScalarArg(v float64) Arg {
	return Arg{Scalar: v}
}

// KernelCompileError carries the diagnostic of a failed kernel
// compilation.
type KernelCompileError struct {
	Compiler   string
	Diagnostic string
}

func (e *KernelCompileError) Error() string {
	return fmt.Sprintf("%s: kernel compilation failed: %s", e.Compiler, e.Diagnostic)
}

func (*KernelCompileError) Kind() errors.Kind { return errors.Execution }

// CheckArgs verifies that args match params one for one.
func CheckArgs(params []Param, args []Arg) error {
	if len(args) != len(params) {
		return errors.E(errors.Execution, "kernel takes %d argument(s), %d given", len(params), len(args))
	}
	for k, p := range params {
		if p.Buffer != (args[k].Buffer != nil) {
			what := "a scalar"
			if p.Buffer {
				what = "a buffer"
			}
			return errors.E(errors.Execution, "kernel parameter %s must be bound to %s", p.Name, what)
		}
	}
	return nil
}
