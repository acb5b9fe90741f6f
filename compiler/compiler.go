// Package compiler lowers flow statements into dataflow graphs.  Parsing
// lives in compiler/parser; this package resolves names and turns each
// operator, call and literal into a filter instance added to a Builder.
package compiler

import (
	"github.com/brimdata/flow/compiler/ast"
	"github.com/brimdata/flow/compiler/parser"
)

// Compile parses text and lowers the resulting statements into b.
func Compile(text string, b Builder, opts ...Option) (*Result, error) {
	stmts, err := parser.Parse(text)
	if err != nil {
		return nil, err
	}
	return Lower(stmts, b, opts...)
}

// CompileSet is like Compile but errors that carry a position are reported
// with the file, line and column of the offending text in set.
func CompileSet(set *parser.SourceSet, b Builder, opts ...Option) ([]*ast.Statement, *Result, error) {
	stmts, err := parser.ParseSet(set)
	if err != nil {
		return nil, nil, err
	}
	res, err := Lower(stmts, b, opts...)
	if err != nil {
		if perr, ok := err.(parser.PositionalError); ok && perr.Pos() >= 0 {
			err = set.LocalizeError(err)
		}
		return stmts, res, err
	}
	return stmts, res, nil
}
