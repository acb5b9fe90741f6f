package fuse

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/brimdata/flow/filter"
	"github.com/brimdata/flow/graph"
	"github.com/brimdata/flow/runtime/device"
	"github.com/brimdata/flow/vector"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, reg *filter.Registry, g *graph.Graph, typ, name string, params map[string]interface{}, inputs ...graph.Endpoint) {
	spec, err := reg.Lookup(typ)
	require.NoError(t, err)
	_, err = g.AddFilter(spec, name, params)
	require.NoError(t, err)
	for k, in := range inputs {
		require.NoError(t, g.Connect(in, graph.PortRef(name, spec.Inputs[k])))
	}
}

func squaredSums(t *testing.T) *graph.Graph {
	reg := filter.Builtins()
	g := graph.New()
	require.NoError(t, g.AddSource("a", vector.Range(10)))
	require.NoError(t, g.AddSource("b", vector.Range(10)))
	a, b := graph.SourceRef("a"), graph.SourceRef("b")
	build(t, reg, g, "add", "f1", nil, a, b)
	build(t, reg, g, "sub", "f2", nil, b, a)
	build(t, reg, g, "mult", "f3", nil, graph.Output("f1"), graph.Output("f1"))
	build(t, reg, g, "mult", "f4", nil, graph.Output("f2"), graph.Output("f2"))
	build(t, reg, g, "add", "f5", nil, graph.Output("f3"), graph.Output("f4"))
	return g
}

const squaredSumsKernel = `__kernel void kmain(__global const double *in_a, __global const double *in_b, __global double *out)
{
	int gid = get_global_id(0);
	double t0 = (in_a[gid] + in_b[gid]);
	double t1 = (in_b[gid] - in_a[gid]);
	double t2 = (t0 * t0);
	double t3 = (t1 * t1);
	double t4 = (t2 + t3);
	out[gid] = t4;
}
`

func TestGenerateSquaredSums(t *testing.T) {
	g := squaredSums(t)
	k, err := Generate(g, "f5", vector.Shape{10})
	require.NoError(t, err)
	assert.Equal(t, squaredSumsKernel, k.Source)
	assert.Equal(t, vector.Shape{10}, k.Shape)
	assert.Equal(t, graph.Plan{"f1", "f2", "f3", "f4", "f5"}, k.Plan)
	assert.Equal(t, []Binding{
		{Param: "in_a", Source: "a", Shape: vector.Shape{10}, Buffer: true},
		{Param: "in_b", Source: "b", Shape: vector.Shape{10}, Buffer: true},
	}, k.Bindings)
}

func TestGeneratePrunesUnreachable(t *testing.T) {
	g := squaredSums(t)
	k, err := Generate(g, "f3", nil)
	require.NoError(t, err)
	assert.Equal(t, graph.Plan{"f1", "f3"}, k.Plan)
	expected := `__kernel void kmain(__global const double *in_a, __global const double *in_b, __global double *out)
{
	int gid = get_global_id(0);
	double t0 = (in_a[gid] + in_b[gid]);
	double t1 = (t0 * t0);
	out[gid] = t1;
}
`
	assert.Equal(t, expected, k.Source)
}

func TestGenerateScalarsAndPlaceholders(t *testing.T) {
	reg := filter.Builtins()
	g := graph.New()
	require.NoError(t, g.DeclareSource(":vx", vector.Shape{4}))
	require.NoError(t, g.AddSource("vx", vector.NewScalar(0.5)))
	build(t, reg, g, "const", "c", map[string]interface{}{"value": -2})
	build(t, reg, g, "mult", "m", nil, graph.SourceRef(":vx"), graph.Output("c"))
	build(t, reg, g, "max", "y", nil, graph.Output("m"), graph.SourceRef("vx"))
	k, err := Generate(g, "y", nil)
	require.NoError(t, err)
	expected := `__kernel void kmain(__global const double *in_vx, const double in_vx_1, __global double *out)
{
	int gid = get_global_id(0);
	double t0 = (-2.0);
	double t1 = (in_vx[gid] * t0);
	double t2 = fmax(t1, in_vx_1);
	out[gid] = t2;
}
`
	assert.Equal(t, expected, k.Source)
	assert.Equal(t, vector.Shape{4}, k.Shape)
	assert.Equal(t, []Binding{
		{Param: "in_vx", Source: ":vx", Shape: vector.Shape{4}, Buffer: true},
		{Param: "in_vx_1", Source: "vx", Shape: nil, Buffer: false},
	}, k.Bindings)
}

func TestGenerateDecompose(t *testing.T) {
	reg := filter.Builtins()
	g := graph.New()
	require.NoError(t, g.DeclareSource("velocity", vector.Shape{5, 3}))
	for k, name := range []string{"vx", "vy", "vz"} {
		build(t, reg, g, "decompose", name, map[string]interface{}{"index": k}, graph.SourceRef("velocity"))
	}
	build(t, reg, g, "magnitude", "m", nil, graph.Output("vx"), graph.Output("vy"), graph.Output("vz"))
	k, err := Generate(g, "m", vector.Shape{5})
	require.NoError(t, err)
	expected := `__kernel void kmain(__global const double *in_velocity, __global double *out)
{
	int gid = get_global_id(0);
	double t0 = in_velocity[gid*3+0];
	double t1 = in_velocity[gid*3+1];
	double t2 = in_velocity[gid*3+2];
	double t3 = sqrt(t0 * t0 + t1 * t1 + t2 * t2);
	out[gid] = t3;
}
`
	assert.Equal(t, expected, k.Source)
}

func TestGenerateErrors(t *testing.T) {
	reg := filter.Builtins()
	require.NoError(t, reg.Register(&filter.Spec{
		Name:   "slow_inv",
		Inputs: []string{filter.In},
		Impl: filter.Funcs(func(in []*vector.Array, _ filter.Params) (*vector.Array, error) {
			return in[0], nil
		}, nil),
	}))

	g := graph.New()
	require.NoError(t, g.AddPlaceholder(":x"))
	build(t, reg, g, "neg", "y", nil, graph.SourceRef(":x"))
	_, err := Generate(g, "y", nil)
	var uerr *graph.UnboundSourceError
	require.True(t, errors.As(err, &uerr))

	g = graph.New()
	require.NoError(t, g.AddSource("x", vector.Range(3)))
	build(t, reg, g, "neg", "n", nil, graph.SourceRef("x"))
	build(t, reg, g, "slow_inv", "y", nil, graph.Output("n"))
	_, err = Generate(g, "y", nil)
	var oerr *filter.UnsupportedOperationError
	require.True(t, errors.As(err, &oerr))
	assert.Equal(t, Backend, oerr.Backend)

	_, err = Generate(g, "n", vector.Shape{4})
	var serr *vector.ShapeMismatchError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, vector.Shape{4}, serr.Want)
	assert.Equal(t, vector.Shape{3}, serr.Got)

	require.NoError(t, g.AddSource("w", vector.Range(4)))
	build(t, reg, g, "add", "bad", nil, graph.Output("n"), graph.SourceRef("w"))
	_, err = Generate(g, "bad", nil)
	require.True(t, errors.As(err, &serr))

	build(t, reg, g, "decompose", "d", map[string]interface{}{"index": 0}, graph.Output("n"))
	_, err = Generate(g, "d", nil)
	assert.Error(t, err)
}

type countingCompiler struct {
	device.Compiler
	calls int32
}

func (c *countingCompiler) Compile(ctx context.Context, src string) (device.Kernel, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.Compiler.Compile(ctx, src)
}

func TestCompileAndRun(t *testing.T) {
	g := squaredSums(t)
	cc := &countingCompiler{Compiler: device.NewHost()}
	reg := prometheus.NewRegistry()
	cache, err := NewCache(cc, 4, reg, nil)
	require.NoError(t, err)
	c, err := Compile(context.Background(), cache, g, "f5", vector.Shape{10})
	require.NoError(t, err)
	out, err := c.Run(context.Background(), g)
	require.NoError(t, err)
	for k, v := range out.Values {
		x := float64(k)
		assert.Equal(t, 4*x*x, v)
	}
	_, err = Compile(context.Background(), cache, g, "f5", vector.Shape{10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&cc.calls))
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(cache.hits.WithLabelValues(device.HostName)))
	assert.Equal(t, 1.0, testutil.ToFloat64(cache.misses.WithLabelValues(device.HostName)))

	require.NoError(t, g.BindSource("a", vector.Range(11)))
	_, err = c.Run(context.Background(), g)
	var serr *vector.ShapeMismatchError
	require.True(t, errors.As(err, &serr))
}

type failingCompiler struct{}

func (failingCompiler) Name() string { return "broken" }

func (failingCompiler) Compile(context.Context, string) (device.Kernel, error) {
	return nil, &device.KernelCompileError{Compiler: "broken", Diagnostic: "1:1: out of registers"}
}

func TestCompileError(t *testing.T) {
	g := squaredSums(t)
	cache, err := NewCache(failingCompiler{}, 0, nil, nil)
	require.NoError(t, err)
	_, err = Compile(context.Background(), cache, g, "f5", nil)
	var kerr *device.KernelCompileError
	require.True(t, errors.As(err, &kerr))
	assert.Equal(t, "1:1: out of registers", kerr.Diagnostic)
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(cache.failures.WithLabelValues("broken")))
}
