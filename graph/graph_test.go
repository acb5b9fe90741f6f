package graph

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	flowerrors "github.com/brimdata/flow/errors"
	"github.com/brimdata/flow/filter"
	"github.com/brimdata/flow/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var registry = filter.Builtins()

func spec(t *testing.T, name string) *filter.Spec {
	t.Helper()
	s, err := registry.Lookup(name)
	require.NoError(t, err)
	return s
}

func addFilter(t *testing.T, g *Graph, typ, name string) {
	t.Helper()
	_, err := g.AddFilter(spec(t, typ), name, nil)
	require.NoError(t, err)
}

func connect(t *testing.T, g *Graph, from Endpoint, to, port string) {
	t.Helper()
	require.NoError(t, g.Connect(from, PortRef(to, port)))
}

// scenario builds f5 = (a+b)*(a+b) + (b-a)*(b-a).
func scenario(t *testing.T) *Graph {
	g := New()
	require.NoError(t, g.AddSource("a", vector.Range(10)))
	require.NoError(t, g.AddSource("b", vector.Range(10)))
	addFilter(t, g, "add", "f1")
	addFilter(t, g, "sub", "f2")
	addFilter(t, g, "mult", "f3")
	addFilter(t, g, "mult", "f4")
	addFilter(t, g, "add", "f5")
	connect(t, g, SourceRef("a"), "f1", filter.InA)
	connect(t, g, SourceRef("b"), "f1", filter.InB)
	connect(t, g, SourceRef("b"), "f2", filter.InA)
	connect(t, g, SourceRef("a"), "f2", filter.InB)
	connect(t, g, Output("f1"), "f3", filter.InA)
	connect(t, g, Output("f1"), "f3", filter.InB)
	connect(t, g, Output("f2"), "f4", filter.InA)
	connect(t, g, Output("f2"), "f4", filter.InB)
	connect(t, g, Output("f3"), "f5", filter.InA)
	connect(t, g, Output("f4"), "f5", filter.InB)
	return g
}

func TestPlanScenario(t *testing.T) {
	plan, err := scenario(t).Plan()
	require.NoError(t, err)
	assert.Equal(t, Plan{"f1", "f2", "f3", "f4", "f5"}, plan)
}

func TestPlanTieBreakIsCreationOrder(t *testing.T) {
	g := New()
	require.NoError(t, g.AddSource("x", vector.Range(3)))
	// Created in an order unrelated to the data dependencies.
	addFilter(t, g, "sqrt", "late")
	addFilter(t, g, "abs", "z")
	addFilter(t, g, "neg", "a")
	connect(t, g, Output("a"), "late", filter.In)
	connect(t, g, SourceRef("x"), "z", filter.In)
	connect(t, g, SourceRef("x"), "a", filter.In)
	plan, err := g.Plan()
	require.NoError(t, err)
	assert.Equal(t, Plan{"z", "a", "late"}, plan)
}

func TestConnectErrors(t *testing.T) {
	g := scenario(t)
	var unknown *UnknownEndpointError
	err := g.Connect(SourceRef("c"), PortRef("f1", filter.InA))
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, flowerrors.NotFound, flowerrors.KindOf(err))
	err = g.Connect(Output("f9"), PortRef("f1", filter.InA))
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "f1", unknown.Suggestion)

	var arity *PortArityError
	addFilter(t, g, "sqrt", "s")
	err = g.Connect(Output("f5"), PortRef("s", filter.InA))
	require.True(t, errors.As(err, &arity))
	assert.Equal(t, "in_a", arity.Port)
	err = g.Connect(PortRef("f5", "bogus"), PortRef("s", filter.In))
	require.True(t, errors.As(err, &arity))
	assert.True(t, arity.Output)

	var bound *PortAlreadyBoundError
	err = g.Connect(SourceRef("b"), PortRef("f1", filter.InA))
	require.True(t, errors.As(err, &bound))
	assert.Equal(t, SourceRef("a"), bound.Existing)
}

func TestDuplicates(t *testing.T) {
	g := scenario(t)
	var dupSource *DuplicateSourceError
	assert.True(t, errors.As(g.AddSource("a", vector.Range(1)), &dupSource))
	var dupInst *DuplicateInstanceError
	_, err := g.AddFilter(spec(t, "add"), "f1", nil)
	assert.True(t, errors.As(err, &dupInst))
	var invalid *filter.InvalidParameterError
	_, err = g.AddFilter(spec(t, "const"), "c", map[string]interface{}{"valu": 1.0})
	assert.True(t, errors.As(err, &invalid))
	_, ok := g.Instance("c")
	assert.False(t, ok)
}

func TestCycleRejected(t *testing.T) {
	g := New()
	require.NoError(t, g.AddSource("x", vector.Range(3)))
	addFilter(t, g, "add", "p")
	addFilter(t, g, "neg", "q")
	addFilter(t, g, "sqrt", "downstream")
	connect(t, g, SourceRef("x"), "p", filter.InA)
	connect(t, g, Output("q"), "p", filter.InB)
	connect(t, g, Output("p"), "q", filter.In)
	connect(t, g, Output("q"), "downstream", filter.In)
	_, err := g.Plan()
	var cycle *GraphCycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []string{"p", "q"}, cycle.Participants)
	_, err = g.PlanFor("downstream")
	assert.True(t, errors.As(err, &cycle))
}

func TestSelfLoopRejected(t *testing.T) {
	g := New()
	addFilter(t, g, "neg", "n")
	connect(t, g, Output("n"), "n", filter.In)
	_, err := g.Plan()
	var cycle *GraphCycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []string{"n"}, cycle.Participants)
}

func TestMissingConnection(t *testing.T) {
	g := New()
	require.NoError(t, g.AddSource("x", vector.Range(3)))
	addFilter(t, g, "add", "p")
	connect(t, g, SourceRef("x"), "p", filter.InA)
	_, err := g.Plan()
	var missing *MissingConnectionError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "p", missing.Instance)
	assert.Equal(t, filter.InB, missing.Port)
}

func TestPlanForPrunesUnreachable(t *testing.T) {
	g := scenario(t)
	// An incomplete instance that f3 does not depend on.
	addFilter(t, g, "add", "dangling")
	_, err := g.Plan()
	assert.Error(t, err)
	plan, err := g.PlanFor("f3")
	require.NoError(t, err)
	assert.Equal(t, Plan{"f1", "f3"}, plan)
}

func TestHash(t *testing.T) {
	a, b := scenario(t), scenario(t)
	assert.Equal(t, a.Hash(), b.Hash())
	v := b.Version()
	addFilter(t, b, "neg", "k")
	assert.NotEqual(t, a.Hash(), b.Hash())
	assert.Greater(t, b.Version(), v)

	c := New()
	_, err := c.AddFilter(spec(t, "const"), "k", map[string]interface{}{"value": 1})
	require.NoError(t, err)
	h := c.Hash()
	require.NoError(t, c.SetParam("k", "value", 2))
	assert.NotEqual(t, h, c.Hash())
}

func TestBindSource(t *testing.T) {
	g := New()
	require.NoError(t, g.DeclareSource("v", vector.Shape{4}))
	var mismatch *vector.ShapeMismatchError
	assert.True(t, errors.As(g.BindSource("v", vector.Range(5)), &mismatch))
	require.NoError(t, g.BindSource("v", vector.Range(4)))
	src, ok := g.Source("v")
	require.True(t, ok)
	assert.True(t, src.Bound())

	require.NoError(t, g.AddPlaceholder(":w"))
	src, _ = g.Source(":w")
	assert.True(t, src.IsPlaceholder())
	assert.False(t, src.HasShape())
	require.NoError(t, g.BindSource(":w", vector.Range(2)))
	assert.Equal(t, vector.Shape{2}, src.Shape)
}

// Random DAGs built forward in creation order must always plan, with every
// connection's producer ahead of its consumer.
func TestPlanTopologicalValidity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 50; trial++ {
		g := New()
		require.NoError(t, g.AddSource("x", vector.Range(2)))
		n := 2 + rng.Intn(20)
		// Create in shuffled order so creation order != dependency order.
		perm := rng.Perm(n)
		for _, k := range perm {
			addFilter(t, g, "add", fmt.Sprintf("n%d", k))
		}
		for k := 0; k < n; k++ {
			for _, port := range []string{filter.InA, filter.InB} {
				from := SourceRef("x")
				if k > 0 && rng.Intn(3) > 0 {
					from = Output(fmt.Sprintf("n%d", rng.Intn(k)))
				}
				connect(t, g, from, fmt.Sprintf("n%d", k), port)
			}
		}
		plan, err := g.Plan()
		require.NoError(t, err)
		require.Len(t, plan, n)
		for _, c := range g.Connections() {
			if c.From.IsSource() {
				continue
			}
			assert.Less(t, plan.Index(c.From.Instance), plan.Index(c.To.Instance), "%s", c)
		}
	}
}
