package headless_backend

import (
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
)

// HeadlessBackendBuilderOption is a functional option used to configure a HeadlessBackend during construction.
type HeadlessBackendBuilderOption func(*headlessBackendImpl)

// WithSwapchainImages sets the number of simulated swapchain images.
//
// Parameters:
//   - n: the image count, values below 1 are ignored
//
// Returns:
//   - HeadlessBackendBuilderOption: a function that sets the swapchain image count
func WithSwapchainImages(n int) HeadlessBackendBuilderOption {
	return func(b *headlessBackendImpl) {
		if n > 0 {
			b.swapchainImages = n
		}
	}
}

// WithSurfaceFormat sets the format reported for the swapchain images.
//
// Parameters:
//   - f: the surface format
//
// Returns:
//   - HeadlessBackendBuilderOption: a function that sets the surface format
func WithSurfaceFormat(f gpu.Format) HeadlessBackendBuilderOption {
	return func(b *headlessBackendImpl) {
		b.surfaceFormat = f
	}
}

// WithExecutionDelay makes the queue take d to execute each submission.
//
// Parameters:
//   - d: the simulated execution time per submission
//
// Returns:
//   - HeadlessBackendBuilderOption: a function that sets the execution delay
func WithExecutionDelay(d time.Duration) HeadlessBackendBuilderOption {
	return func(b *headlessBackendImpl) {
		b.delay = d
	}
}

// WithAcquireOutOfDate makes the given Acquire calls (0-based, counting failed calls) report
// gpu.ErrSurfaceOutOfDate. After a failure every Acquire fails until the surface is reconfigured.
//
// Parameters:
//   - calls: the indices of the failing Acquire calls
//
// Returns:
//   - HeadlessBackendBuilderOption: a function that schedules the acquire faults
func WithAcquireOutOfDate(calls ...int) HeadlessBackendBuilderOption {
	return func(b *headlessBackendImpl) {
		for _, c := range calls {
			b.acquireFaults[c] = true
		}
	}
}

// WithPresentOutOfDate makes the given Present calls (0-based) report gpu.ErrSurfaceOutOfDate.
//
// Parameters:
//   - calls: the indices of the failing Present calls
//
// Returns:
//   - HeadlessBackendBuilderOption: a function that schedules the present faults
func WithPresentOutOfDate(calls ...int) HeadlessBackendBuilderOption {
	return func(b *headlessBackendImpl) {
		for _, c := range calls {
			b.presentFaults[c] = true
		}
	}
}

// WithDeviceLostAfter loses the device once n submissions have been accepted.
//
// Parameters:
//   - n: the number of submissions that succeed
//
// Returns:
//   - HeadlessBackendBuilderOption: a function that schedules the device loss
func WithDeviceLostAfter(n int) HeadlessBackendBuilderOption {
	return func(b *headlessBackendImpl) {
		b.loseAfter = n
	}
}
