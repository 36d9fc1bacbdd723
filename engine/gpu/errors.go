package gpu

import (
	"errors"
	"fmt"
)

// Transient device errors. These are recovered locally by recreating swap-dependent resources.
var (
	// ErrSurfaceOutOfDate is returned by acquire/present when the surface no longer matches the
	// swapchain (window resized, minimized, or the surface was lost) and must be reconfigured.
	ErrSurfaceOutOfDate = errors.New("surface out of date")
)

// Fatal device errors. These are never retried.
var (
	// ErrDeviceLost is returned when the logical device is no longer usable.
	ErrDeviceLost = errors.New("device lost")

	// ErrOutOfMemory is returned when an allocation cannot be satisfied.
	ErrOutOfMemory = errors.New("out of device memory")

	// ErrTimeout is returned when a fence is not signaled within the allowed time.
	ErrTimeout = errors.New("timed out waiting for fence")

	// ErrSubmissionFailed is returned when the driver rejects a command submission.
	ErrSubmissionFailed = errors.New("submission failed")
)

// Configuration and usage errors. These are detected at setup or recording time.
var (
	// ErrStaleHandle is returned when a handle refers to a slot that was already freed or reused.
	ErrStaleHandle = errors.New("stale resource handle")

	// ErrReleased is returned when a released resource is used.
	ErrReleased = errors.New("resource released")

	// ErrMissingBinding is returned when a descriptor set is committed with an unwritten slot.
	ErrMissingBinding = errors.New("missing descriptor binding")

	// ErrPoolExhausted is returned when a descriptor pool has no sets left.
	ErrPoolExhausted = errors.New("descriptor pool exhausted")

	// ErrInvalidState is returned when a command buffer or resource is used in the wrong state.
	ErrInvalidState = errors.New("invalid state")

	// ErrOutOfBounds is returned for reads or writes past the end of a resource.
	ErrOutOfBounds = errors.New("access out of bounds")
)

// OpError records the GPU operation and resource that failed.
type OpError struct {
	// Op is the failing GPU operation, e.g. "submit" or "wait fence".
	Op string
	// Resource is the label of the resource involved, if any.
	Resource string
	// Err is the underlying error.
	Err error
}

func (e *OpError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("gpu: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gpu: %s %q: %v", e.Op, e.Resource, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// opError wraps err in an OpError unless it is nil or already an OpError for the same operation.
func opError(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) && oe.Op == op {
		return err
	}
	return &OpError{Op: op, Resource: resource, Err: err}
}

// IsTransient reports whether err can be recovered by reconfiguring the surface.
//
// Parameters:
//   - err: the error to classify
//
// Returns:
//   - bool: true for surface out-of-date conditions
func IsTransient(err error) bool {
	return errors.Is(err, ErrSurfaceOutOfDate)
}

// IsFatal reports whether err must terminate the render loop.
// Every non-nil error that is not transient is fatal.
//
// Parameters:
//   - err: the error to classify
//
// Returns:
//   - bool: true when the error cannot be recovered locally
func IsFatal(err error) bool {
	return err != nil && !IsTransient(err)
}

// FailedOp returns the name of the failing GPU operation carried by err, or "" if none.
//
// Parameters:
//   - err: the error to inspect
//
// Returns:
//   - string: the operation name
func FailedOp(err error) string {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Op
	}
	return ""
}
