package parser

import (
	"fmt"
	"strconv"
)

type TokenKind int

const (
	EOF TokenKind = iota
	Ident
	Number
	Operator
	LParen
	RParen
	Comma
	Assign
	// Newline ends a statement.  A semicolon lexes as a Newline.
	Newline
)

func (k TokenKind) String() string {
	switch k {
	case EOF:
		return "end of input"
	case Ident:
		return "identifier"
	case Number:
		return "number"
	case Operator:
		return "operator"
	case LParen:
		return "'('"
	case RParen:
		return "')'"
	case Comma:
		return "','"
	case Assign:
		return "'='"
	case Newline:
		return "end of statement"
	}
	return fmt.Sprintf("token(%d)", int(k))
}

type Token struct {
	Kind   TokenKind
	Lexeme string
	Offset int
	// Value holds the decoded value of a Number.
	Value float64
}

func (t Token) String() string {
	switch t.Kind {
	case EOF, Newline:
		return t.Kind.String()
	}
	return strconv.Quote(t.Lexeme)
}

// Lex converts text into tokens, always ending with an EOF token.  A '#'
// starts a comment that runs to the end of the line.
func Lex(text string) ([]Token, error) {
	l := &lexer{text: text}
	var toks []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == EOF {
			return toks, nil
		}
	}
}

type lexer struct {
	text   string
	cursor int
}

func (l *lexer) peek(n int) byte {
	if l.cursor+n < len(l.text) {
		return l.text[l.cursor+n]
	}
	return 0
}

func (l *lexer) emit(kind TokenKind, start int) Token {
	return Token{Kind: kind, Lexeme: l.text[start:l.cursor], Offset: start}
}

func (l *lexer) next() (Token, error) {
	l.skipSpace()
	start := l.cursor
	if l.cursor >= len(l.text) {
		return Token{Kind: EOF, Offset: start}, nil
	}
	c := l.text[l.cursor]
	switch {
	case c == '\n' || c == ';':
		l.cursor++
		return l.emit(Newline, start), nil
	case isIdentStart(c):
		for l.cursor < len(l.text) && isIdentChar(l.text[l.cursor]) {
			l.cursor++
		}
		return l.emit(Ident, start), nil
	case isDigit(c) || (c == '.' && isDigit(l.peek(1))):
		return l.scanNumber()
	}
	l.cursor++
	switch c {
	case '+', '-', '*', '/', '^':
		return l.emit(Operator, start), nil
	case '(':
		return l.emit(LParen, start), nil
	case ')':
		return l.emit(RParen, start), nil
	case ',':
		return l.emit(Comma, start), nil
	case '=':
		return l.emit(Assign, start), nil
	}
	return Token{}, newError(start, "unexpected character %q", c)
}

func (l *lexer) skipSpace() {
	for l.cursor < len(l.text) {
		switch c := l.text[l.cursor]; {
		case c == ' ' || c == '\t' || c == '\r':
			l.cursor++
		case c == '#':
			for l.cursor < len(l.text) && l.text[l.cursor] != '\n' {
				l.cursor++
			}
		default:
			return
		}
	}
}

func (l *lexer) scanNumber() (Token, error) {
	start := l.cursor
	l.digits()
	if l.peek(0) == '.' {
		l.cursor++
		l.digits()
	}
	if c := l.peek(0); c == 'e' || c == 'E' {
		save := l.cursor
		l.cursor++
		if c := l.peek(0); c == '+' || c == '-' {
			l.cursor++
		}
		if !isDigit(l.peek(0)) {
			// Not an exponent, e.g., "2e" is a number followed by an
			// identifier, which the parser will reject.
			l.cursor = save
		} else {
			l.digits()
		}
	}
	tok := l.emit(Number, start)
	v, err := strconv.ParseFloat(tok.Lexeme, 64)
	if err != nil {
		return Token{}, newError(start, "malformed number %q", tok.Lexeme)
	}
	tok.Value = v
	return tok, nil
}

func (l *lexer) digits() {
	for isDigit(l.peek(0)) {
		l.cursor++
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
