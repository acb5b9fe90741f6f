// Package parser turns flow source text into statements.  The grammar is
//
//	program   := (statement? (NEWLINE | ';'))* statement?
//	statement := IDENT '=' expr
//	expr      := expr ('+' | '-') expr
//	           | expr ('*' | '/') expr
//	           | '-' expr
//	           | expr '^' expr
//	           | IDENT '(' expr (',' expr)* ')'
//	           | '(' expr ')' | IDENT | NUMBER
//
// with the operators listed from lowest to highest precedence.  All binary
// operators are left-associative except '^'.  The parser does not resolve
// names; that is left to the generator.
package parser

import (
	"github.com/brimdata/flow/compiler/ast"
)

// Binary operator precedences.  Unary minus sits between the
// multiplicative operators and '^', so -x^2 is -(x^2).
var precedence = map[string]int{
	"+": 1,
	"-": 1,
	"*": 2,
	"/": 2,
	"^": 4,
}

const unaryPrec = 3

// Parse parses text into a sequence of statements in source order.
func Parse(text string) ([]*ast.Statement, error) {
	toks, err := Lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseProgram()
}

// ParseSet is like Parse but reports syntax errors with the file, line and
// column of the offending text.
func ParseSet(set *SourceSet) ([]*ast.Statement, error) {
	stmts, err := Parse(set.Text())
	if err != nil {
		return nil, set.LocalizeError(err)
	}
	return stmts, nil
}

// ParseExpr parses a single expression.
func ParseExpr(text string) (ast.Expr, error) {
	toks, err := Lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Kind != EOF {
		return nil, p.unexpected(tok, "end of expression")
	}
	return e, nil
}

type parser struct {
	toks []Token
	pos  int
}

func (p *parser) peek() Token {
	return p.toks[p.pos]
}

func (p *parser) advance() Token {
	tok := p.toks[p.pos]
	if tok.Kind != EOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind TokenKind, context string) (Token, error) {
	tok := p.peek()
	if tok.Kind != kind {
		return tok, p.unexpected(tok, context)
	}
	return p.advance(), nil
}

func (p *parser) unexpected(tok Token, context string) error {
	err := newError(tok.Offset, "unexpected %s, expected %s", tok, context)
	if tok.Kind != EOF && tok.Kind != Newline {
		err.EndOffset = tok.Offset + len(tok.Lexeme)
	}
	return err
}

func (p *parser) parseProgram() ([]*ast.Statement, error) {
	var stmts []*ast.Statement
	for {
		for p.peek().Kind == Newline {
			p.advance()
		}
		if p.peek().Kind == EOF {
			return stmts, nil
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		if tok := p.peek(); tok.Kind != Newline && tok.Kind != EOF {
			return nil, p.unexpected(tok, "end of statement")
		}
	}
}

func (p *parser) parseStatement() (*ast.Statement, error) {
	target, err := p.expect(Ident, "statement target")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(Assign, "'=' after "+target.Lexeme); err != nil {
		return nil, err
	}
	e, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	return ast.NewStatement(target.Lexeme, target.Offset, e), nil
}

// parseExpr parses an expression whose binary operators all have
// precedence at least minPrec.
func (p *parser) parseExpr(minPrec int) (ast.Expr, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.Kind != Operator {
			return lhs, nil
		}
		prec := precedence[tok.Lexeme]
		if prec < minPrec {
			return lhs, nil
		}
		p.advance()
		next := prec + 1
		if tok.Lexeme == "^" {
			next = prec
		}
		rhs, err := p.parseExpr(next)
		if err != nil {
			return nil, err
		}
		lhs = ast.NewBinOp(tok.Lexeme, lhs, rhs)
	}
}

func (p *parser) parseUnary() (ast.Expr, error) {
	tok := p.peek()
	if tok.Kind == Operator && tok.Lexeme == "-" {
		p.advance()
		operand, err := p.parseExpr(unaryPrec)
		if err != nil {
			return nil, err
		}
		if lit, ok := operand.(*ast.Literal); ok {
			return ast.NewLiteral(-lit.Value, "-"+lit.Text, tok.Offset), nil
		}
		return ast.NewCall("neg", []ast.Expr{operand}, tok.Offset, operand.End()-1), nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (ast.Expr, error) {
	tok := p.advance()
	switch tok.Kind {
	case Number:
		return ast.NewLiteral(tok.Value, tok.Lexeme, tok.Offset), nil
	case Ident:
		if p.peek().Kind == LParen {
			return p.parseCall(tok)
		}
		return ast.NewIdent(tok.Lexeme, tok.Offset), nil
	case LParen:
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RParen, "')'"); err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, p.unexpected(tok, "an expression")
}

func (p *parser) parseCall(name Token) (ast.Expr, error) {
	p.advance()
	if tok := p.peek(); tok.Kind == RParen {
		return nil, newError(tok.Offset, "%s() requires at least one argument", name.Lexeme)
	}
	var args []ast.Expr
	for {
		arg, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		tok := p.advance()
		switch tok.Kind {
		case Comma:
			continue
		case RParen:
			return ast.NewCall(name.Lexeme, args, name.Offset, tok.Offset), nil
		}
		return nil, p.unexpected(tok, "',' or ')' in call to "+name.Lexeme)
	}
}
