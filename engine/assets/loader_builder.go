package assets

import "log/slog"

// LoaderBuilderOption is a functional option used to configure a Loader during construction.
type LoaderBuilderOption func(*loaderImpl)

// WithWorkers sets the maximum number of decode workers.
//
// Parameters:
//   - n: the worker count, at least 1
//
// Returns:
//   - LoaderBuilderOption: a function that sets the worker count
func WithWorkers(n int) LoaderBuilderOption {
	return func(l *loaderImpl) {
		l.workers = max(n, 1)
	}
}

// WithQueueSize sets the task queue capacity of the worker pool.
func WithQueueSize(n int) LoaderBuilderOption {
	return func(l *loaderImpl) {
		l.queueSize = max(n, 1)
	}
}

// WithMaxTextureSize sets the largest texture side kept after decode.
//
// Parameters:
//   - size: the maximum width or height in pixels
//
// Returns:
//   - LoaderBuilderOption: a function that sets the size limit
func WithMaxTextureSize(size uint32) LoaderBuilderOption {
	return func(l *loaderImpl) {
		if size > 0 {
			l.maxTextureSize = size
		}
	}
}

// WithLogger sets the logger used for load failures.
func WithLogger(logger *slog.Logger) LoaderBuilderOption {
	return func(l *loaderImpl) {
		l.logger = logger
	}
}
