package fuse

import (
	"context"

	"github.com/brimdata/flow/graph"
	"github.com/brimdata/flow/runtime/device"
	"github.com/brimdata/flow/vector"
)

// Compiled is a generated kernel and its compiled form.
type Compiled struct {
	*Kernel
	Device device.Kernel
}

// Compile generates the kernel for output and compiles it through cache.
func Compile(ctx context.Context, cache *Cache, g *graph.Graph, output string, shape vector.Shape) (*Compiled, error) {
	k, err := Generate(g, output, shape)
	if err != nil {
		return nil, err
	}
	dk, err := cache.Compile(ctx, k.Source)
	if err != nil {
		return nil, err
	}
	return &Compiled{Kernel: k, Device: dk}, nil
}

// Run binds the current values of the kernel's sources in g and launches
// one work item per element of the output.  A source whose shape differs
// from the one the kernel was generated for is a ShapeMismatchError.
func (c *Compiled) Run(ctx context.Context, g *graph.Graph) (*vector.Array, error) {
	args := make([]device.Arg, 0, len(c.Bindings))
	for _, b := range c.Bindings {
		src, ok := g.Source(b.Source)
		if !ok {
			return nil, &graph.UnknownEndpointError{Endpoint: graph.SourceRef(b.Source)}
		}
		if !src.Bound() {
			return nil, &graph.UnboundSourceError{Name: src.Name}
		}
		if !src.Value.Shape.Equal(b.Shape) {
			return nil, &vector.ShapeMismatchError{Op: "bind " + src.Name, Want: b.Shape, Got: src.Value.Shape}
		}
		if b.Buffer {
			args = append(args, device.BufferArg(src.Value.Values))
		} else {
			args = append(args, device.ScalarArg(src.Value.Values[0]))
		}
	}
	n := c.Shape.Len()
	out := make([]float64, n)
	if err := c.Device.Launch(ctx, n, args, out); err != nil {
		return nil, err
	}
	return &vector.Array{Shape: append(vector.Shape(nil), c.Shape...), Values: out}, nil
}
