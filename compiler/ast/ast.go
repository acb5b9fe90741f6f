// Package ast declares the types used to represent syntax trees for flow
// expressions.  A program is a sequence of statements, each assigning an
// expression to a target name.  Nodes are immutable once the parser returns
// them.
package ast

import (
	"strconv"
	"strings"
)

type Node interface {
	Pos() int // Position of first character belonging to the node.
	End() int // Position of first character immediately after the node.
}

// Expr is the interface implemented by all expression nodes.
type Expr interface {
	Node
	ExprAST()
}

type (
	Literal struct {
		Kind    string  `json:"kind" unpack:""`
		Value   float64 `json:"value"`
		Text    string  `json:"text"`
		TextPos int     `json:"text_pos"`
	}
	Ident struct {
		Kind    string `json:"kind" unpack:""`
		Name    string `json:"name"`
		NamePos int    `json:"name_pos"`
	}
	BinOp struct {
		Kind string `json:"kind" unpack:""`
		Op   string `json:"op"`
		LHS  Expr   `json:"lhs"`
		RHS  Expr   `json:"rhs"`
	}
	// Call is a function application.  The parser also produces a Call to
	// "neg" for unary minus applied to anything but a number.
	Call struct {
		Kind    string `json:"kind" unpack:""`
		Name    string `json:"name"`
		Args    []Expr `json:"args"`
		NamePos int    `json:"name_pos"`
		Rparen  int    `json:"rparen"`
	}
)

func (*Literal) ExprAST() {}
func (*Ident) ExprAST()   {}
func (*BinOp) ExprAST()   {}
func (*Call) ExprAST()    {}

func (l *Literal) Pos() int { return l.TextPos }
func (l *Literal) End() int { return l.TextPos + len(l.Text) }
func (i *Ident) Pos() int   { return i.NamePos }
func (i *Ident) End() int   { return i.NamePos + len(i.Name) }
func (b *BinOp) Pos() int   { return b.LHS.Pos() }
func (b *BinOp) End() int   { return b.RHS.End() }
func (c *Call) Pos() int    { return c.NamePos }
func (c *Call) End() int    { return c.Rparen + 1 }

func NewLiteral(v float64, text string, pos int) *Literal {
	return &Literal{Kind: "Literal", Value: v, Text: text, TextPos: pos}
}

func NewIdent(name string, pos int) *Ident {
	return &Ident{Kind: "Ident", Name: name, NamePos: pos}
}

func NewBinOp(op string, lhs, rhs Expr) *BinOp {
	return &BinOp{Kind: "BinOp", Op: op, LHS: lhs, RHS: rhs}
}

func NewCall(name string, args []Expr, pos, rparen int) *Call {
	return &Call{Kind: "Call", Name: name, Args: args, NamePos: pos, Rparen: rparen}
}

// Statement assigns the value of Expr to Target.
type Statement struct {
	Kind      string `json:"kind" unpack:""`
	Target    string `json:"target"`
	TargetPos int    `json:"target_pos"`
	Expr      Expr   `json:"expr"`
}

func NewStatement(target string, pos int, e Expr) *Statement {
	return &Statement{Kind: "Statement", Target: target, TargetPos: pos, Expr: e}
}

func (s *Statement) Pos() int { return s.TargetPos }
func (s *Statement) End() int { return s.Expr.End() }

// String formats e as a fully parenthesized prefix expression, e.g.,
// "(sqrt (+ x 1))".  It is meant for tests and debugging output.
func String(e Expr) string {
	var b strings.Builder
	format(&b, e)
	return b.String()
}

func format(b *strings.Builder, e Expr) {
	switch e := e.(type) {
	case *Literal:
		b.WriteString(strconv.FormatFloat(e.Value, 'g', -1, 64))
	case *Ident:
		b.WriteString(e.Name)
	case *BinOp:
		b.WriteString("(" + e.Op + " ")
		format(b, e.LHS)
		b.WriteByte(' ')
		format(b, e.RHS)
		b.WriteByte(')')
	case *Call:
		b.WriteString("(" + e.Name)
		for _, arg := range e.Args {
			b.WriteByte(' ')
			format(b, arg)
		}
		b.WriteByte(')')
	default:
		b.WriteString("?")
	}
}

// Equal reports whether a and b are structurally equal, ignoring
// positions.
func Equal(a, b Expr) bool {
	switch a := a.(type) {
	case *Literal:
		b, ok := b.(*Literal)
		return ok && (a.Value == b.Value || a.Value != a.Value && b.Value != b.Value)
	case *Ident:
		b, ok := b.(*Ident)
		return ok && a.Name == b.Name
	case *BinOp:
		b, ok := b.(*BinOp)
		return ok && a.Op == b.Op && Equal(a.LHS, b.LHS) && Equal(a.RHS, b.RHS)
	case *Call:
		b, ok := b.(*Call)
		if !ok || a.Name != b.Name || len(a.Args) != len(b.Args) {
			return false
		}
		for k := range a.Args {
			if !Equal(a.Args[k], b.Args[k]) {
				return false
			}
		}
		return true
	}
	return false
}
