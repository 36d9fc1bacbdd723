package renderer

import (
	"log/slog"
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/assets"
	"github.com/Carmen-Shannon/oxy-render/engine/pass"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithFramesInFlight sets the depth of the frame ring. NewRenderer rejects values outside
// 1..MaxFramesInFlight.
//
// Parameters:
//   - n: the number of frames the CPU may record ahead of the GPU
//
// Returns:
//   - RendererBuilderOption: a function that applies the frames in flight option to a renderer
func WithFramesInFlight(n int) RendererBuilderOption {
	return func(r *renderer) {
		r.framesInFlight = n
	}
}

// WithFrameTimeout bounds how long a frame slot waits for its fence before failing with
// gpu.ErrTimeout.
func WithFrameTimeout(d time.Duration) RendererBuilderOption {
	return func(r *renderer) {
		if d > 0 {
			r.frameTimeout = d
		}
	}
}

// WithLogger sets the logger of the renderer and its passes.
func WithLogger(l *slog.Logger) RendererBuilderOption {
	return func(r *renderer) {
		r.logger = l
	}
}

// WithFallbacks supplies caller-owned placeholder resources. They are not released by Close.
// Without this option the renderer creates and owns its own.
//
// Parameters:
//   - f: the placeholders, allocated on the renderer's device
//
// Returns:
//   - RendererBuilderOption: a function that applies the fallbacks option to a renderer
func WithFallbacks(f *assets.Fallbacks) RendererBuilderOption {
	return func(r *renderer) {
		r.fallbacks = f
	}
}

// WithPassFactories replaces the standard pipeline with a custom ordered list of passes.
// The feature toggles and pass options are ignored when factories are given.
//
// Parameters:
//   - factories: one factory per pass, in execution order
//
// Returns:
//   - RendererBuilderOption: a function that applies the pass factories option to a renderer
func WithPassFactories(factories ...pass.Factory) RendererBuilderOption {
	return func(r *renderer) {
		r.factories = append(r.factories, factories...)
	}
}

// WithPassOptions adds settings applied to every pass of the standard pipeline.
func WithPassOptions(options ...pass.PassBuilderOption) RendererBuilderOption {
	return func(r *renderer) {
		r.passOptions = append(r.passOptions, options...)
	}
}

// WithShadows toggles the shadow pass. Voxelization needs it.
func WithShadows(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.features.Shadows = enabled
	}
}

// WithVoxelization toggles the voxelization pass.
func WithVoxelization(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.features.Voxelization = enabled
	}
}

// WithEnvironment toggles the panorama conversion, irradiance and sky passes.
func WithEnvironment(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.features.Environment = enabled
	}
}

// WithGUIProvider sets the source of the overlay drawn on top of the scene.
func WithGUIProvider(p pass.GUIProvider) RendererBuilderOption {
	return func(r *renderer) {
		r.passOptions = append(r.passOptions, pass.WithGUIProvider(p))
	}
}
