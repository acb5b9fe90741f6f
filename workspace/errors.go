package workspace

import (
	"fmt"

	"github.com/brimdata/flow/errors"
)

// ErrNotStarted is returned by a Context used before Start.
var ErrNotStarted = errors.E(errors.Conflict, "context has not been started")

type DuplicateContextError struct {
	Name string
}

func (e *DuplicateContextError) Error() string {
	return fmt.Sprintf("context %q already exists", e.Name)
}

func (*DuplicateContextError) Kind() errors.Kind { return errors.Exists }

// NoOutputError is returned when a Context is compiled with no instance to
// produce its output.
type NoOutputError struct {
	Context string
}

func (e *NoOutputError) Error() string {
	return fmt.Sprintf("context %q has no output instance", e.Context)
}

func (*NoOutputError) Kind() errors.Kind { return errors.Invalid }
