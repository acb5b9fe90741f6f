package charm

import (
	"bytes"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rootCommand struct {
	verbose bool
}

func (*rootCommand) Run(args []string) error {
	if len(args) == 0 {
		return NeedHelp
	}
	return ErrNoRun
}

type leafCommand struct {
	parent *rootCommand
	n      int
	ran    []string
}

func (c *leafCommand) Run(args []string) error {
	c.ran = args
	return nil
}

func newTree(leaf **leafCommand) *Spec {
	root := &Spec{
		Name:  "tool",
		Usage: "tool <command>",
		Short: "test tool",
		Long:  "A tool for testing.",
		New: func(_ Command, f *flag.FlagSet) (Command, error) {
			c := &rootCommand{}
			f.BoolVar(&c.verbose, "verbose", false, "talk more")
			return c, nil
		},
	}
	root.Add(&Spec{
		Name:        "leaf",
		Usage:       "leaf [-n count] args",
		Short:       "a leaf command",
		HiddenFlags: []string{"secret"},
		New: func(parent Command, f *flag.FlagSet) (Command, error) {
			c := &leafCommand{parent: parent.(*rootCommand)}
			f.IntVar(&c.n, "n", 1, "a count")
			f.Bool("secret", false, "hidden flag")
			*leaf = c
			return c, nil
		},
	})
	return root
}

func TestExecPath(t *testing.T) {
	var leaf *leafCommand
	root := newTree(&leaf)
	require.NoError(t, root.ExecRoot([]string{"-verbose", "leaf", "-n", "3", "x", "y"}))
	require.NotNil(t, leaf)
	assert.True(t, leaf.parent.verbose)
	assert.Equal(t, 3, leaf.n)
	assert.Equal(t, []string{"x", "y"}, leaf.ran)
	assert.Same(t, root, root.children[0].Root())
}

func TestErrors(t *testing.T) {
	var leaf *leafCommand
	root := newTree(&leaf)
	err := root.ExecRoot([]string{"nope"})
	assert.EqualError(t, err, `"tool": no such sub-command "nope": options are: leaf`)
	err = root.ExecRoot([]string{"leaf", "-n", "x"})
	assert.ErrorContains(t, err, "tool leaf: invalid value")
}

func TestHelp(t *testing.T) {
	var leaf *leafCommand
	root := newTree(&leaf)
	p, vflag, err := parseHelp(root, []string{"help", "leaf"})
	require.NoError(t, err)
	assert.False(t, vflag)
	var buf bytes.Buffer
	displayHelp(&buf, p, vflag)
	out := buf.String()
	assert.Contains(t, out, "leaf - a leaf command")
	assert.Contains(t, out, `-n a count (default "1")`)
	assert.Contains(t, out, "[tool flags]")
	assert.NotContains(t, out, "-secret")

	p, vflag, err = parseHelp(root, []string{"-v", "leaf"})
	require.NoError(t, err)
	buf.Reset()
	displayHelp(&buf, p, vflag)
	assert.Contains(t, buf.String(), "[-secret]")

	_, _, err = parse(root, []string{"-h"})
	assert.Equal(t, NeedHelp, err)
}
