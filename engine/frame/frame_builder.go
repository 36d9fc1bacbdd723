package frame

import (
	"log/slog"
	"time"
)

// FrameBuilderOption is a functional option used to configure a Frame during construction.
type FrameBuilderOption func(*Frame)

// WithWaitTimeout sets how long Wait blocks on the frame's fence.
//
// Parameters:
//   - d: the timeout, values of zero or less are ignored
//
// Returns:
//   - FrameBuilderOption: a function that sets the wait timeout
func WithWaitTimeout(d time.Duration) FrameBuilderOption {
	return func(f *Frame) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxDescriptorSets sets the capacity of the frame's descriptor pool.
//
// Parameters:
//   - n: the number of sets, values below 1 are ignored
//
// Returns:
//   - FrameBuilderOption: a function that sets the pool capacity
func WithMaxDescriptorSets(n int) FrameBuilderOption {
	return func(f *Frame) {
		if n > 0 {
			f.maxSets = n
		}
	}
}

// WithLogger sets the logger the frame reports cleanup failures to.
func WithLogger(l *slog.Logger) FrameBuilderOption {
	return func(f *Frame) {
		f.logger = l
	}
}
