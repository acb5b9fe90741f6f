package exprflags_test

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/brimdata/flow/cli/exprflags"
	"github.com/brimdata/flow/compiler"
	"github.com/brimdata/flow/compiler/parser"
	"github.com/brimdata/flow/vector"
	"github.com/brimdata/flow/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkspace(t *testing.T) *workspace.Workspace {
	ws, err := workspace.New(nil)
	require.NoError(t, err)
	require.NoError(t, ws.AddSource("a", vector.NewFloat([]float64{1, 2})))
	return ws
}

func TestCompileText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.flow")
	require.NoError(t, os.WriteFile(path, []byte("x = a * 10\n"), 0644))
	var f exprflags.Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f.SetFlags(fs)
	require.NoError(t, fs.Parse([]string{"-I", path, "-output", "x"}))
	assert.False(t, f.Empty(nil))

	ws := newWorkspace(t)
	stmts, res, err := f.Compile([]string{"y = x + a"}, ws, compiler.WithOutput("y"))
	require.NoError(t, err)
	assert.Len(t, stmts, 2)
	assert.Equal(t, "x", res.Output)
	_, err = ws.Execute(context.Background())
	require.NoError(t, err)
	y, err := ws.Result("y")
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22}, y.Values)
}

func TestCompileAST(t *testing.T) {
	stmts, err := parser.Parse("y = -a + 1\n")
	require.NoError(t, err)
	b, err := json.Marshal(stmts)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "prog.json")
	require.NoError(t, os.WriteFile(path, b, 0644))

	f := exprflags.Flags{ASTPath: path}
	assert.False(t, f.Empty(nil))
	ws := newWorkspace(t)
	_, res, err := f.Compile(nil, ws)
	require.NoError(t, err)
	assert.Equal(t, "y", res.Output)
	_, err = ws.Execute(context.Background())
	require.NoError(t, err)
	y, err := ws.Result("y")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, -1}, y.Values)

	_, _, err = f.Compile([]string{"z = a"}, newWorkspace(t))
	assert.EqualError(t, err, "-ast.in cannot be combined with program text")
}
