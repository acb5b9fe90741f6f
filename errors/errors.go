// Package errors classifies the failures reported by the flow compiler and
// its backends.  Every error surfaced by a public call carries a Kind so that
// callers (the CLI, a host application) can tell syntax problems from
// malformed graphs and from failures at execution time without matching on
// message text.
package errors

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
)

// A Kind represents a class of error.
type Kind int

const (
	Other Kind = iota
	// Syntax errors come from the parser and carry a source position.
	Syntax
	// Invalid is a structural error: a bad port, a bad parameter, a cycle,
	// an unconnected input.
	Invalid
	NotFound
	Exists
	Conflict
	// Execution errors are raised by a backend while running a graph.
	Execution
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case Syntax:
		return "syntax error"
	case Invalid:
		return "invalid graph"
	case NotFound:
		return "item does not exist"
	case Exists:
		return "item already exists"
	case Conflict:
		return "conflict with existing item"
	case Execution:
		return "execution error"
	}
	return "unknown error kind"
}

// Kinded is implemented by the structured errors of the graph, filter and
// runtime packages.
type Kinded interface {
	error
	Kind() Kind
}

// KindOf returns the Kind of the first error in err's chain that carries one,
// or Other.
func KindOf(err error) Kind {
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

type Error struct {
	Kind Kind
	Err  error
}

func pad(b *bytes.Buffer, s string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(s)
}

func (e *Error) Error() string {
	b := &bytes.Buffer{}
	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		pad(b, ": ")
		b.WriteString(e.Err.Error())
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns just the Err.Error() string, if present, or the Kind
// string description.
func (e *Error) Message() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Kind != Other {
		return e.Kind.String()
	}
	return "no error"
}

// E generates an error from any mix of:
// - a Kind
// - an existing error
// - a string and optional formatting verbs, like fmt.Errorf (including support
//	for the `%w` verb).
//
// The string & format verbs must be last in the arguments, if present.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("no args to errors.E")
	}
	e := &Error{}
	for i, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			e.Kind = arg
		case error:
			e.Err = arg
		case string:
			e.Err = fmt.Errorf(arg, args[i+1:]...)
			return e
		default:
			_, file, line, _ := runtime.Caller(1)
			return fmt.Errorf("unknown type %T value %v in errors.E call at %v:%v", arg, arg, file, line)
		}
	}
	return e
}
