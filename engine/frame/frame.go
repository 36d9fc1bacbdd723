// Package frame holds one slot of the frames-in-flight ring: the command recording objects, the
// synchronization primitives and the transient descriptor pool reused every Nth frame.
package frame

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/logging"
)

const (
	// DefaultMaxDescriptorSets bounds the descriptor sets a frame allocates per recording.
	DefaultMaxDescriptorSets = 64

	// DefaultWaitTimeout bounds how long Wait blocks on the frame's fence.
	DefaultWaitTimeout = 2 * time.Second
)

// ErrCleanedUp is returned when a cleaned up frame is used.
var ErrCleanedUp = errors.New("frame cleaned up")

// Frame is one slot of the frame ring. A slot's objects are only touched by the CPU after Wait
// has observed its fence.
type Frame struct {
	dev   gpu.Device
	index int
	label string

	pool           *gpu.CommandPool
	cmd            *gpu.CommandBuffer
	fence          *gpu.Fence
	imageAcquired  *gpu.Semaphore
	renderFinished *gpu.Semaphore
	descriptors    *gpu.DescriptorPool

	timeout time.Duration
	maxSets int
	logger  *slog.Logger
	cleaned bool
}

// New creates the objects of a frame slot. The fence starts signaled so the first Wait returns
// immediately.
//
// Parameters:
//   - dev: the device that owns the frame's objects
//   - index: the slot index in the ring
//   - options: functional options to configure the frame
//
// Returns:
//   - *Frame: the new frame
//   - error: an error if any object could not be created; objects created so far are released
func New(dev gpu.Device, index int, options ...FrameBuilderOption) (*Frame, error) {
	f := &Frame{
		dev:     dev,
		index:   index,
		label:   fmt.Sprintf("frame[%d]", index),
		timeout: DefaultWaitTimeout,
		maxSets: DefaultMaxDescriptorSets,
	}
	for _, opt := range options {
		opt(f)
	}
	f.logger = logging.Or(f.logger).With("component", "frame", "slot", index)

	if err := f.init(); err != nil {
		_ = f.Cleanup()
		return nil, err
	}
	return f, nil
}

func (f *Frame) init() error {
	var err error
	if f.pool, err = f.dev.CreateCommandPool(f.label + ".commands"); err != nil {
		return err
	}
	f.cmd = f.pool.Allocate(f.label + ".cmd")
	if f.fence, err = f.dev.CreateFence(f.label+".fence", true); err != nil {
		return err
	}
	if f.imageAcquired, err = f.dev.CreateSemaphore(f.label + ".image-acquired"); err != nil {
		return err
	}
	if f.renderFinished, err = f.dev.CreateSemaphore(f.label + ".render-finished"); err != nil {
		return err
	}
	if f.descriptors, err = f.dev.CreateDescriptorPool(f.label+".descriptors", f.maxSets); err != nil {
		return err
	}
	return nil
}

// Index returns the slot index.
func (f *Frame) Index() int {
	return f.index
}

// Label returns the debug label of the slot, e.g. "frame[1]".
func (f *Frame) Label() string {
	return f.label
}

// CommandBuffer returns the command buffer recorded for this slot.
func (f *Frame) CommandBuffer() *gpu.CommandBuffer {
	return f.cmd
}

// DescriptorPool returns the pool of per-frame descriptor sets. Transient sets are released by
// Start.
func (f *Frame) DescriptorPool() *gpu.DescriptorPool {
	return f.descriptors
}

// ImageAcquired returns the semaphore signaled when the swapchain image is ready.
func (f *Frame) ImageAcquired() *gpu.Semaphore {
	return f.imageAcquired
}

// RenderFinished returns the semaphore signaled when the frame's commands have executed.
func (f *Frame) RenderFinished() *gpu.Semaphore {
	return f.renderFinished
}

// Fence returns the fence signaled when the frame's submission completes.
func (f *Frame) Fence() *gpu.Fence {
	return f.fence
}

// Wait blocks until the GPU has finished the slot's previous submission.
//
// Parameters:
//   - ctx: releases the wait early when done; the frame's timeout bounds the fence itself
//
// Returns:
//   - error: a *gpu.OpError for "wait fence" wrapping gpu.ErrTimeout or gpu.ErrDeviceLost,
//     or the context's error if it ended first
func (f *Frame) Wait(ctx context.Context) error {
	if f.cleaned {
		return fmt.Errorf("%s: wait: %w", f.label, ErrCleanedUp)
	}
	return f.fence.WaitContext(ctx, f.timeout)
}

// Start resets the slot and begins recording. It must follow a successful Wait.
//
// Returns:
//   - error: an error if the fence could not be reset or recording could not begin
func (f *Frame) Start() error {
	if f.cleaned {
		return fmt.Errorf("%s: start: %w", f.label, ErrCleanedUp)
	}
	if err := f.fence.Reset(); err != nil {
		return err
	}
	f.pool.Reset()
	if err := f.descriptors.ResetTransient(); err != nil {
		return fmt.Errorf("%s: reset descriptors: %w", f.label, err)
	}
	return f.cmd.Begin()
}

// End finishes recording.
//
// Returns:
//   - error: the first recording error of the frame
func (f *Frame) End() error {
	return f.cmd.End()
}

// Submit queues the recorded commands. The submission waits on ImageAcquired, signals
// RenderFinished and signals the fence on completion.
//
// Returns:
//   - error: the submission error
func (f *Frame) Submit() error {
	if f.cleaned {
		return fmt.Errorf("%s: submit: %w", f.label, ErrCleanedUp)
	}
	return f.dev.Submit(f.cmd, []*gpu.Semaphore{f.imageAcquired}, []*gpu.Semaphore{f.renderFinished}, f.fence)
}

// Cleanup releases the slot's objects. It must run after a final Wait. Calling it more than
// once does nothing.
//
// Returns:
//   - error: the first release error
func (f *Frame) Cleanup() error {
	if f.cleaned {
		return nil
	}
	f.cleaned = true

	var errs []error
	if f.descriptors != nil {
		errs = append(errs, f.descriptors.Release())
	}
	for _, s := range []*gpu.Semaphore{f.renderFinished, f.imageAcquired} {
		if s != nil {
			errs = append(errs, s.Release())
		}
	}
	if f.fence != nil {
		errs = append(errs, f.fence.Release())
	}
	if f.pool != nil {
		errs = append(errs, f.pool.Release())
	}
	err := errors.Join(errs...)
	if err != nil {
		f.logger.Warn("frame cleanup failed", "err", err)
	}
	return err
}
