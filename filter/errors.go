package filter

import (
	"fmt"

	"github.com/brimdata/flow/errors"
)

type DuplicateTypeError struct {
	Name string
}

func (e *DuplicateTypeError) Error() string {
	return fmt.Sprintf("filter type %q already registered", e.Name)
}

func (*DuplicateTypeError) Kind() errors.Kind { return errors.Exists }

type UnknownTypeError struct {
	Name       string
	Suggestion string
}

func (e *UnknownTypeError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown filter type %q (did you mean %q?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown filter type %q", e.Name)
}

func (*UnknownTypeError) Kind() errors.Kind { return errors.NotFound }

type InvalidParameterError struct {
	Type   string
	Param  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("filter type %q: parameter %q: %s", e.Type, e.Param, e.Reason)
}

func (*InvalidParameterError) Kind() errors.Kind { return errors.Invalid }

// UnsupportedOperationError is returned when a backend needs a capability
// the filter type does not provide.
type UnsupportedOperationError struct {
	Type    string
	Backend string
	Reason  string
}

func (e *UnsupportedOperationError) Error() string {
	msg := fmt.Sprintf("filter type %q is not supported by the %s backend", e.Type, e.Backend)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (*UnsupportedOperationError) Kind() errors.Kind { return errors.Execution }
