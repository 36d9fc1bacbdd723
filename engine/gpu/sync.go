package gpu

import (
	"context"
	"time"
)

// Fence is a host-visible completion signal for one queue submission.
type Fence struct {
	resource
}

// Wait blocks until the fence is signaled or timeout elapses.
//
// Parameters:
//   - timeout: the maximum time to wait
//
// Returns:
//   - error: ErrTimeout or ErrDeviceLost wrapped in an OpError, nil once signaled
func (f *Fence) Wait(timeout time.Duration) error {
	if err := f.checkLive("wait fence"); err != nil {
		return err
	}
	return opError("wait fence", f.label, f.dev.backend.WaitFence(f.native, timeout))
}

// WaitContext is Wait that also returns when ctx is done. The backend wait keeps running until the
// fence signals or timeout elapses, but the caller is released with the context's error.
//
// Parameters:
//   - ctx: cancels the wait early
//   - timeout: the maximum time to wait for the fence
//
// Returns:
//   - error: the context's error, or the result of Wait
func (f *Fence) WaitContext(ctx context.Context, timeout time.Duration) error {
	if err := f.checkLive("wait fence"); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if ctx.Done() == nil {
		return f.Wait(timeout)
	}
	result := make(chan error, 1)
	go func() {
		result <- f.dev.backend.WaitFence(f.native, timeout)
	}()
	select {
	case err := <-result:
		return opError("wait fence", f.label, err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset returns the fence to the unsignaled state.
func (f *Fence) Reset() error {
	if err := f.checkLive("reset fence"); err != nil {
		return err
	}
	return opError("reset fence", f.label, f.dev.backend.ResetFence(f.native))
}

// Signaled reports whether the fence is signaled without blocking.
func (f *Fence) Signaled() bool {
	if f.Released() {
		return false
	}
	return f.dev.backend.FenceSignaled(f.native)
}

// Semaphore orders work between queue operations (acquire, submit and present).
// It is never observed by the host.
type Semaphore struct {
	resource
}
