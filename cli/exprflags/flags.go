// Package exprflags reads flow program text from the command line and from
// -I files, or a syntax tree saved by "flow compile -ast" from an -ast.in
// file.
package exprflags

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/brimdata/flow/compiler"
	"github.com/brimdata/flow/compiler/ast"
	"github.com/brimdata/flow/compiler/parser"
)

type Includes []string

func (i Includes) String() string {
	return strings.Join(i, ",")
}

func (i *Includes) Set(value string) error {
	*i = append(*i, value)
	return nil
}

type Flags struct {
	Includes Includes
	ASTPath  string
	Dedup    bool
	Output   string
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	fs.Var(&f.Includes, "I", "source file containing flow statements (may be used multiple times)")
	fs.StringVar(&f.ASTPath, "ast.in", "", "JSON syntax tree written by \"flow compile -ast\" to use as the program")
	fs.BoolVar(&f.Dedup, "dedup", false, "share instances between identical subexpressions")
	fs.StringVar(&f.Output, "output", "", "statement target to use as the output (default is the last statement)")
}

// Empty reports whether there is no program text to read.
func (f *Flags) Empty(args []string) bool {
	return len(args) == 0 && len(f.Includes) == 0 && f.ASTPath == ""
}

// SourceSet concatenates the -I files and the statements in args, which
// are joined by newlines.
func (f *Flags) SourceSet(args []string) (*parser.SourceSet, error) {
	return parser.ConcatSource(f.Includes, strings.Join(args, "\n"))
}

// Options returns the generator options selected by the flags.
func (f *Flags) Options() []compiler.Option {
	opts := []compiler.Option{compiler.WithPlaceholders()}
	if f.Dedup {
		opts = append(opts, compiler.WithDedup())
	}
	if f.Output != "" {
		opts = append(opts, compiler.WithOutput(f.Output))
	}
	return opts
}

// Compile parses the program, or reads it from the -ast.in file, and
// lowers it into b with opts followed by the options selected by the flags,
// which take precedence.
func (f *Flags) Compile(args []string, b compiler.Builder, opts ...compiler.Option) ([]*ast.Statement, *compiler.Result, error) {
	opts = append(opts, f.Options()...)
	if f.ASTPath != "" {
		if len(args) != 0 || len(f.Includes) != 0 {
			return nil, nil, errors.New("-ast.in cannot be combined with program text")
		}
		buf, err := os.ReadFile(f.ASTPath)
		if err != nil {
			return nil, nil, err
		}
		stmts, err := ast.UnpackJSON(buf)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", f.ASTPath, err)
		}
		res, err := compiler.Lower(stmts, b, opts...)
		return stmts, res, err
	}
	set, err := f.SourceSet(args)
	if err != nil {
		return nil, nil, err
	}
	return compiler.CompileSet(set, b, opts...)
}
