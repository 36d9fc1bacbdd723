package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActivePass is returned when a resource is declared before BeginPass.
	ErrNoActivePass = errors.New("no active pass")

	// ErrDuplicatePass is returned when two passes share a name.
	ErrDuplicatePass = errors.New("duplicate pass")
)

// DuplicateResourceError is returned when a resource name is declared as a new target twice.
type DuplicateResourceError struct {
	// Pass is the name of the pass that declared the duplicate.
	Pass string
	// Resource is the duplicated resource name.
	Resource string
	// FirstWriter is the name of the pass that declared the resource first.
	FirstWriter string
}

func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("graph: pass %q: resource %q already declared by pass %q", e.Pass, e.Resource, e.FirstWriter)
}

// UnknownResourceError is returned when a pass reads or writes a resource that no earlier pass
// wrote and no external supplier provides.
type UnknownResourceError struct {
	// Pass is the name of the pass with the dangling dependency.
	Pass string
	// Resource is the unknown resource name.
	Resource string
}

func (e *UnknownResourceError) Error() string {
	return fmt.Sprintf("graph: pass %q: unknown resource %q (no writer and no external supplier)", e.Pass, e.Resource)
}
