package graph

import (
	"fmt"
	"strings"

	"github.com/brimdata/flow/errors"
)

type DuplicateSourceError struct {
	Name string
}

func (e *DuplicateSourceError) Error() string {
	return fmt.Sprintf("source %q already exists", e.Name)
}

func (*DuplicateSourceError) Kind() errors.Kind { return errors.Exists }

type DuplicateInstanceError struct {
	Name string
}

func (e *DuplicateInstanceError) Error() string {
	return fmt.Sprintf("filter instance %q already exists", e.Name)
}

func (*DuplicateInstanceError) Kind() errors.Kind { return errors.Exists }

type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid name %q", e.Name)
}

func (*InvalidNameError) Kind() errors.Kind { return errors.Invalid }

type UnknownEndpointError struct {
	Endpoint   Endpoint
	Suggestion string
}

func (e *UnknownEndpointError) Error() string {
	var what string
	switch {
	case e.Endpoint.Instance != "":
		what = fmt.Sprintf("filter instance %q", e.Endpoint.Instance)
	case e.Endpoint.Source != "":
		what = fmt.Sprintf("source %q", e.Endpoint.Source)
	default:
		what = "empty endpoint"
	}
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown %s (did you mean %q?)", what, e.Suggestion)
	}
	return "unknown " + what
}

func (*UnknownEndpointError) Kind() errors.Kind { return errors.NotFound }

// PortArityError is returned for a port name the filter type does not
// declare.
type PortArityError struct {
	Instance string
	Type     string
	Port     string
	Output   bool
}

func (e *PortArityError) Error() string {
	dir := "input"
	if e.Output {
		dir = "output"
	}
	return fmt.Sprintf("filter instance %q (type %s) has no %s port %q", e.Instance, e.Type, dir, e.Port)
}

func (*PortArityError) Kind() errors.Kind { return errors.Invalid }

type PortAlreadyBoundError struct {
	Instance string
	Port     string
	Existing Endpoint
}

func (e *PortAlreadyBoundError) Error() string {
	return fmt.Sprintf("input %s.%s is already connected to %s", e.Instance, e.Port, e.Existing)
}

func (*PortAlreadyBoundError) Kind() errors.Kind { return errors.Conflict }

type GraphCycleError struct {
	Participants []string
}

func (e *GraphCycleError) Error() string {
	return "graph contains a cycle through " + strings.Join(e.Participants, ", ")
}

func (*GraphCycleError) Kind() errors.Kind { return errors.Invalid }

type MissingConnectionError struct {
	Instance string
	Port     string
}

func (e *MissingConnectionError) Error() string {
	return fmt.Sprintf("input %s.%s is not connected", e.Instance, e.Port)
}

func (*MissingConnectionError) Kind() errors.Kind { return errors.Invalid }

// UnboundSourceError is returned when a graph is executed before a value
// (or, for kernel generation, a shape) has been bound to a source it reads.
type UnboundSourceError struct {
	Name string
}

func (e *UnboundSourceError) Error() string {
	return fmt.Sprintf("source %q is not bound", e.Name)
}

func (*UnboundSourceError) Kind() errors.Kind { return errors.Execution }
