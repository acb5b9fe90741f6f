package parser

import (
	"fmt"
	"strings"

	"github.com/brimdata/flow/errors"
	"go.uber.org/multierr"
)

type PositionalError interface {
	error
	Pos() int
	End() int
	Message() string
}

// ParseError is a syntax error at a byte offset of the parsed text.
type ParseError struct {
	Offset int
	// EndOffset is -1 when the error has no extent.
	EndOffset int
	Msg       string
}

var _ PositionalError = (*ParseError)(nil)

func newError(pos int, format string, args ...interface{}) *ParseError {
	return &ParseError{Offset: pos, EndOffset: -1, Msg: fmt.Sprintf(format, args...)}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at position %d", e.Msg, e.Offset)
}

func (e *ParseError) Pos() int        { return e.Offset }
func (e *ParseError) End() int        { return e.EndOffset }
func (e *ParseError) Message() string { return e.Msg }
func (*ParseError) Kind() errors.Kind { return errors.Syntax }

// LocalizeError returns a list of localized errors if every error in errs
// can be localized, else returns errs unchanged.
func (s *SourceSet) LocalizeError(errs error) error {
	var list LocalizedErrors
	for _, err := range multierr.Errors(errs) {
		if perr, ok := err.(PositionalError); ok {
			list = append(list, newLocalizedError(s, perr))
		} else {
			return errs
		}
	}
	if len(list) > 0 {
		return list
	}
	return nil
}

// LocalizedError is a positional error with nice formatting.  It includes
// the source line containing the error.
type LocalizedError struct {
	Filename string   `json:"filename"`
	Line     string   `json:"line"` // contains no newlines
	Open     Position `json:"open"`
	Close    Position `json:"close"`
	Msg      string   `json:"error"`
	kind     errors.Kind
	err      PositionalError
}

var _ PositionalError = (*LocalizedError)(nil)

func newLocalizedError(s *SourceSet, perr PositionalError) *LocalizedError {
	filename, openPos := s.Locate(perr.Pos())
	_, closePos := s.Locate(perr.End())
	return &LocalizedError{
		Filename: filename,
		Open:     openPos,
		Close:    closePos,
		Line:     s.Line(perr.Pos()),
		Msg:      perr.Message(),
		kind:     errors.KindOf(perr),
		err:      perr,
	}
}

func (e *LocalizedError) Message() string   { return e.Msg }
func (e *LocalizedError) Pos() int          { return e.Open.Pos }
func (e *LocalizedError) End() int          { return e.Close.Pos }
func (e *LocalizedError) Kind() errors.Kind { return e.kind }

// Unwrap returns the error that was localized.
func (e *LocalizedError) Unwrap() error { return e.err }

func (e *LocalizedError) Error() string {
	var b strings.Builder
	b.WriteString(e.Msg)
	b.WriteString(" (")
	if e.Filename != "" {
		fmt.Fprintf(&b, "%s: ", e.Filename)
	}
	if e.Open.Line >= 1 {
		fmt.Fprintf(&b, "line %d, ", e.Open.Line)
	}
	fmt.Fprintf(&b, "column %d):\n", e.Open.Column)
	b.WriteString(e.errorContext())
	return b.String()
}

func (e *LocalizedError) errorContext() string {
	var b strings.Builder
	b.WriteString(e.Line + "\n")
	if e.Close.IsValid() && e.Close.Pos > e.Open.Pos {
		e.spanError(&b)
	} else {
		col := e.Open.Column - 1
		for k := 0; k < col; k++ {
			if k >= col-4 && k != col-1 {
				b.WriteByte('=')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString("^ ===")
	}
	return b.String()
}

func (e *LocalizedError) spanError(b *strings.Builder) {
	col := e.Open.Column - 1
	b.WriteString(strings.Repeat(" ", col))
	end := len(e.Line) - col
	if e.Open.Line == e.Close.Line {
		end = e.Close.Column - e.Open.Column
	}
	if end < 1 {
		end = 1
	}
	b.WriteString(strings.Repeat("~", end))
}

type LocalizedErrors []*LocalizedError

func (e LocalizedErrors) Error() string {
	var b strings.Builder
	for i, err := range e {
		if i != 0 {
			b.WriteByte('\n')
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap exposes the individual errors to errors.As.
func (e LocalizedErrors) Unwrap() []error {
	errs := make([]error, 0, len(e))
	for _, err := range e {
		errs = append(errs, err)
	}
	return errs
}
