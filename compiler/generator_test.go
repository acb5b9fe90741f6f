package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/brimdata/flow/compiler/parser"
	flowerrors "github.com/brimdata/flow/errors"
	"github.com/brimdata/flow/filter"
	"github.com/brimdata/flow/graph"
	"github.com/brimdata/flow/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBuilder struct {
	*graph.Graph
	reg *filter.Registry
}

func newTestBuilder(sources ...string) *testBuilder {
	b := &testBuilder{Graph: graph.New(), reg: filter.Builtins()}
	for _, name := range sources {
		if err := b.Graph.AddSource(name, vector.Range(4)); err != nil {
			panic(err)
		}
	}
	return b
}

func (b *testBuilder) FilterSpec(typ string) (*filter.Spec, error) {
	return b.reg.Lookup(typ)
}

func (b *testBuilder) HasSource(name string) bool {
	_, ok := b.Source(name)
	return ok
}

func (b *testBuilder) AddFilter(typ, name string, params map[string]interface{}) error {
	spec, err := b.reg.Lookup(typ)
	if err != nil {
		return err
	}
	_, err = b.Graph.AddFilter(spec, name, params)
	return err
}

func opStrings(res *Result) []string {
	var ops []string
	for _, op := range res.Ops {
		ops = append(ops, op.String())
	}
	return ops
}

func TestLowerSquaredSums(t *testing.T) {
	b := newTestBuilder("a", "b")
	res, err := Compile(`
f1 = a + b
f2 = b - a
f3 = f1 * f1
f4 = f2 * f2
f5 = f3 + f4`, b)
	require.NoError(t, err)
	assert.Equal(t, "f5", res.Output)
	assert.Equal(t, []string{"f1", "f2", "f3", "f4", "f5"}, res.Targets)
	assert.Equal(t, []string{"f1", "f2", "f3", "f4", "f5"}, b.InstanceNames())
	plan, err := b.Plan()
	require.NoError(t, err)
	assert.Equal(t, graph.Plan{"f1", "f2", "f3", "f4", "f5"}, plan)
	expected := []string{
		"add_filter add f1",
		"connect source a -> f1.in_a",
		"connect source b -> f1.in_b",
		"add_filter sub f2",
		"connect source b -> f2.in_a",
		"connect source a -> f2.in_b",
		"add_filter mult f3",
		"connect f1.out -> f3.in_a",
		"connect f1.out -> f3.in_b",
		"add_filter mult f4",
		"connect f2.out -> f4.in_a",
		"connect f2.out -> f4.in_b",
		"add_filter add f5",
		"connect f3.out -> f5.in_a",
		"connect f4.out -> f5.in_b",
	}
	assert.Equal(t, expected, opStrings(res))
}

func TestLowerInnerInstances(t *testing.T) {
	b := newTestBuilder("vx", "vy", "vz")
	res, err := Compile("vel_mag = sqrt(vx^2 + vy^2 + vz^2)", b)
	require.NoError(t, err)
	assert.Equal(t, "vel_mag", res.Output)
	expected := []string{
		"_vel_mag_const_1",
		"_vel_mag_pow_2",
		"_vel_mag_const_3",
		"_vel_mag_pow_4",
		"_vel_mag_add_5",
		"_vel_mag_const_6",
		"_vel_mag_pow_7",
		"_vel_mag_add_8",
		"vel_mag",
	}
	assert.Equal(t, expected, b.InstanceNames())
	inst, ok := b.Instance("_vel_mag_const_1")
	require.True(t, ok)
	assert.Equal(t, 2.0, inst.Params.Float("value"))
	assert.Empty(t, inst.Spec.Inputs)
	pow, _ := b.Instance("_vel_mag_pow_2")
	from, ok := b.Input(pow, 1)
	require.True(t, ok)
	assert.Equal(t, graph.Output("_vel_mag_const_1"), from)
}

func TestLowerNoDedupByDefault(t *testing.T) {
	b := newTestBuilder("a", "b")
	_, err := Compile("x = (a+b)*(a+b)", b)
	require.NoError(t, err)
	assert.Equal(t, []string{"_x_add_1", "_x_add_2", "x"}, b.InstanceNames())
}

func TestLowerDedup(t *testing.T) {
	b := newTestBuilder("a", "b")
	res, err := Compile("y = a + b\nx = (a+b)*(a+b) + 2*2", b, WithDedup())
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "_x_mult_1", "_x_const_2", "_x_mult_3", "x"}, b.InstanceNames())
	mult, _ := b.Instance("_x_mult_1")
	lhs, _ := b.Input(mult, 0)
	rhs, _ := b.Input(mult, 1)
	assert.Equal(t, graph.Output("y"), lhs)
	assert.Equal(t, graph.Output("y"), rhs)
	assert.Equal(t, "x", res.Output)
}

func TestLowerIdentAndLiteralStatements(t *testing.T) {
	b := newTestBuilder("a")
	res, err := Compile("k = 3\ny = a\nz = y", b)
	require.NoError(t, err)
	assert.Equal(t, []string{"k", "y", "z"}, b.InstanceNames())
	k, _ := b.Instance("k")
	assert.Equal(t, "const", k.Spec.Name)
	y, _ := b.Instance("y")
	assert.Equal(t, "copy", y.Spec.Name)
	from, _ := b.Input(y, 0)
	assert.Equal(t, graph.SourceRef("a"), from)
	assert.Equal(t, "z", res.Output)
}

func TestLowerUnaryMinus(t *testing.T) {
	b := newTestBuilder("x")
	_, err := Compile("y = -x^2 + -1", b)
	require.NoError(t, err)
	assert.Equal(t, []string{"_y_const_1", "_y_pow_2", "_y_neg_3", "_y_const_4", "y"}, b.InstanceNames())
	c, _ := b.Instance("_y_const_4")
	assert.Equal(t, -1.0, c.Params.Float("value"))
}

func TestLowerUnresolvedReference(t *testing.T) {
	b := newTestBuilder("a")
	_, err := Compile("x = a + later\nlater = a", b)
	var uerr *UnresolvedReferenceError
	require.True(t, errors.As(err, &uerr), "got %v", err)
	assert.Equal(t, "later", uerr.Name)
	assert.Equal(t, 8, uerr.Pos())
	assert.Equal(t, flowerrors.Invalid, flowerrors.KindOf(err))
}

func TestLowerPlaceholders(t *testing.T) {
	b := newTestBuilder()
	res, err := Compile("m = sqrt(vx*vx + vy*vy)", b, WithPlaceholders())
	require.NoError(t, err)
	assert.Equal(t, []string{":vx", ":vy"}, res.Placeholders)
	assert.Equal(t, []string{":vx", ":vy"}, b.SourceNames())
	src, ok := b.Source(":vx")
	require.True(t, ok)
	assert.True(t, src.IsPlaceholder())
	assert.False(t, src.Bound())
}

func TestLowerPlaceholderForwardReference(t *testing.T) {
	b := newTestBuilder()
	_, err := Compile("a = b + 1\nb = 2", b, WithPlaceholders())
	var uerr *UnresolvedReferenceError
	require.True(t, errors.As(err, &uerr), "got %v", err)
	assert.Equal(t, "b", uerr.Name)
	assert.Equal(t, 4, uerr.Pos())
	assert.Equal(t, flowerrors.Invalid, flowerrors.KindOf(err))
	assert.NotContains(t, b.InstanceNames(), "b")

	g := NewGenerator(newTestBuilder(), WithPlaceholders())
	stmts, err := parser.Parse("a = b * 2")
	require.NoError(t, err)
	_, err = g.Lower(stmts)
	require.NoError(t, err)
	stmts, err = parser.Parse("b = 3")
	require.NoError(t, err)
	_, err = g.Lower(stmts)
	require.True(t, errors.As(err, &uerr), "got %v", err)
	assert.Equal(t, 4, uerr.Pos())
}

func TestLowerUnknownFilter(t *testing.T) {
	b := newTestBuilder("x")
	_, err := Compile("y = sqr(x)", b)
	var terr *filter.UnknownTypeError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "sqrt", terr.Suggestion)
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 4, cerr.Pos())
	assert.Equal(t, flowerrors.NotFound, flowerrors.KindOf(err))
}

func TestLowerArgumentCount(t *testing.T) {
	b := newTestBuilder("x")
	_, err := Compile("y = sqrt(x, x)", b)
	var aerr *ArgumentCountError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, 1, aerr.Want)
	assert.Equal(t, 2, aerr.Got)
}

func TestLowerCallParams(t *testing.T) {
	b := newTestBuilder("x")
	require.NoError(t, b.Graph.AddSource("v", &vector.Array{Shape: vector.Shape{2, 3}, Values: []float64{1, 2, 3, 4, 5, 6}}))
	res, err := Compile("y = decompose(v, 1)", b)
	require.NoError(t, err)
	assert.Equal(t, []string{"add_filter decompose y index=1;", "connect source v -> y.in"}, opStrings(res))
	y, ok := b.Instance("y")
	require.True(t, ok)
	assert.Equal(t, 1, y.Params.Int("index"))

	_, err = Compile("z = decompose(v, x)", b)
	var perr *filter.InvalidParameterError
	require.True(t, errors.As(err, &perr), "got %v", err)
	assert.Equal(t, "index", perr.Param)
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 17, cerr.Pos())

	_, err = Compile("z = decompose(v)", b)
	require.True(t, errors.As(err, &perr), "got %v", err)
	assert.Equal(t, "index", perr.Param)

	_, err = Compile("z = decompose(v, 1, 2)", b)
	var aerr *ArgumentCountError
	require.True(t, errors.As(err, &aerr), "got %v", err)
	assert.Equal(t, 3, aerr.Got)
}

func TestLowerRedefinition(t *testing.T) {
	b := newTestBuilder("x")
	_, err := Compile("y = x\ny = y + 1", b)
	var derr *graph.DuplicateInstanceError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "y", derr.Name)
}

func TestLowerOutputOption(t *testing.T) {
	b := newTestBuilder("x")
	res, err := Compile("y = x + 1\nz = y * 2", b, WithOutput("y"))
	require.NoError(t, err)
	assert.Equal(t, "y", res.Output)

	_, err = Compile("w = x", newTestBuilder("x"), WithOutput("nope"))
	var uerr *UnresolvedReferenceError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, -1, uerr.Pos())
}

func TestGeneratorIncremental(t *testing.T) {
	b := newTestBuilder("x")
	g := NewGenerator(b)
	for _, line := range []string{"y = x + 1", "z = y * y"} {
		stmts, err := parser.Parse(line)
		require.NoError(t, err)
		_, err = g.Lower(stmts)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"_y_const_1", "y", "z"}, b.InstanceNames())
}

func TestCompileSetLocalizes(t *testing.T) {
	set := parser.NewSourceSet("", "y = x\nz = y + w")
	_, _, err := CompileSet(set, newTestBuilder("x"))
	require.Error(t, err)
	var lerr *parser.LocalizedError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, 2, lerr.Open.Line)
	assert.Equal(t, 9, lerr.Open.Column)
	assert.True(t, strings.HasPrefix(err.Error(), `unresolved reference "w" (line 2, column 9)`), err.Error())
	assert.Equal(t, flowerrors.Invalid, flowerrors.KindOf(err))
	var uerr *UnresolvedReferenceError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "w", uerr.Name)
}

func TestCompileSetKeepsStructuredErrors(t *testing.T) {
	_, _, err := CompileSet(parser.NewSourceSet("", "y = q + 1"), newTestBuilder("x"))
	var uerr *UnresolvedReferenceError
	require.True(t, errors.As(err, &uerr), "got %v", err)
	assert.Equal(t, "q", uerr.Name)

	_, _, err = CompileSet(parser.NewSourceSet("", "y = sqr(x)"), newTestBuilder("x"))
	var terr *filter.UnknownTypeError
	require.True(t, errors.As(err, &terr), "got %v", err)
	assert.Equal(t, "sqrt", terr.Suggestion)

	_, _, err = CompileSet(parser.NewSourceSet("", "y = x\ny = 2"), newTestBuilder("x"))
	var derr *graph.DuplicateInstanceError
	require.True(t, errors.As(err, &derr), "got %v", err)
	assert.Equal(t, "y", derr.Name)
	var lerr *parser.LocalizedError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, 2, lerr.Open.Line)
}
