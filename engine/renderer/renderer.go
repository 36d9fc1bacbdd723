package renderer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/assets"
	"github.com/Carmen-Shannon/oxy-render/engine/frame"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/graph"
	"github.com/Carmen-Shannon/oxy-render/engine/logging"
	"github.com/Carmen-Shannon/oxy-render/engine/pass"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
)

const (
	// DefaultFramesInFlight is the default depth of the frame ring.
	DefaultFramesInFlight = 2
	// MaxFramesInFlight is the deepest frame ring NewRenderer accepts.
	MaxFramesInFlight = 4
)

// ErrClosed is returned by RenderFrame after Close.
var ErrClosed = errors.New("renderer: closed")

// Stats is a snapshot of the renderer's frame counters.
type Stats struct {
	// Frames is the number of submitted frames, including frames whose present was out of date.
	Frames uint64
	// SkippedFrames counts frames dropped for a resize or a minimized surface.
	SkippedFrames uint64
	// Resizes counts applied surface reconfigurations.
	Resizes uint64
	// FenceWaits counts frame slot waits.
	FenceWaits uint64
	// LastFenceWait is how long the last slot wait blocked.
	LastFenceWait time.Duration
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	dev           gpu.Device
	logger        *slog.Logger
	fallbacks     *assets.Fallbacks
	ownsFallbacks bool
	ctx           *pass.Context

	framesInFlight int
	frameTimeout   time.Duration
	factories      []pass.Factory
	features       pass.Features
	passOptions    []pass.PassBuilderOption

	passes []pass.Pass
	plan   *graph.Plan
	frames []*frame.Frame
	extent common.Extent2D

	counter atomic.Uint64
	failed  error
	closed  bool

	mu            sync.Mutex
	pendingResize *common.Extent2D
	stats         Stats
}

// Renderer drives the frame loop: it waits on a frame slot, records every pass of the compiled
// render graph into it, submits and presents. All methods except Resize, Stats and FrameIndex
// must be called from the render goroutine.
type Renderer interface {
	// RenderFrame renders one frame of s.
	//
	// Parameters:
	//   - ctx: bounds the wait on the frame slot
	//   - s: the scene snapshot to draw
	//
	// Returns:
	//   - error: nil for rendered and skipped frames, the context error, or a fatal error
	//     wrapped in *gpu.OpError
	RenderFrame(ctx context.Context, s *scene.Snapshot) error

	// Resize records a new surface size. It is applied at the start of the next frame, which is
	// skipped. A zero size skips frames until a non-zero size arrives.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	Resize(width, height int)

	// Extent returns the size the surface is configured with.
	Extent() common.Extent2D

	// Stats returns a snapshot of the frame counters.
	Stats() Stats

	// FrameIndex returns the number of frames submitted so far.
	FrameIndex() uint64

	// Passes returns the passes in execution order.
	Passes() []pass.Pass

	// Plan returns the compiled render graph.
	Plan() *graph.Plan

	// Close waits for the GPU, cleans up the passes in reverse order, the frames and the owned
	// fallbacks. It is idempotent.
	//
	// Returns:
	//   - error: the joined cleanup errors
	Close() error
}

var _ Renderer = &renderer{}

// NewRenderer configures the surface, sets up every pass, compiles the render graph and creates
// the frame ring. On error everything created so far is released.
//
// Parameters:
//   - dev: the device to render with
//   - extent: the initial surface size, which must not be zero
//   - options: renderer builder options
//
// Returns:
//   - Renderer: the renderer
//   - error: a configuration or device error
func NewRenderer(dev gpu.Device, extent common.Extent2D, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		dev:            dev,
		framesInFlight: DefaultFramesInFlight,
		frameTimeout:   frame.DefaultWaitTimeout,
		features:       pass.DefaultFeatures(),
	}
	for _, opt := range options {
		opt(r)
	}
	r.logger = logging.Or(r.logger)

	if r.framesInFlight < 1 || r.framesInFlight > MaxFramesInFlight {
		return nil, fmt.Errorf("renderer: frames in flight %d out of range 1..%d", r.framesInFlight, MaxFramesInFlight)
	}
	if extent.IsZero() {
		return nil, fmt.Errorf("renderer: initial surface extent %s is empty", extent)
	}
	if err := r.setup(extent); err != nil {
		return nil, errors.Join(err, r.cleanup())
	}
	r.logger.Info("renderer ready",
		"passes", len(r.passes),
		"frames_in_flight", r.framesInFlight,
		"extent", extent.String(),
		"format", dev.SurfaceFormat().String(),
	)
	return r, nil
}

func (r *renderer) setup(extent common.Extent2D) error {
	if err := r.dev.ConfigureSurface(extent); err != nil {
		return err
	}
	r.extent = extent

	if r.fallbacks == nil {
		fb, err := assets.NewFallbacks(r.dev)
		if err != nil {
			return fmt.Errorf("renderer: create fallbacks: %w", err)
		}
		r.fallbacks, r.ownsFallbacks = fb, true
	}
	r.ctx = pass.NewContext(r.dev, r.fallbacks, r.logger)

	factories := r.factories
	if len(factories) == 0 {
		factories = pass.StandardPasses(r.features, r.passOptions...)
	}

	b := graph.NewBuilder()
	err := b.ImportExternal(pass.SwapchainTarget, graph.ResourceInfo{
		Format:      r.dev.SurfaceFormat(),
		Usage:       graph.UsageColorAttachment,
		Resizable:   true,
		Presentable: true,
	}, gpu.LayoutUndefined)
	if err != nil {
		return err
	}
	for _, factory := range factories {
		p := factory(r.ctx)
		r.passes = append(r.passes, p)
		if err := p.SetupAttachments(b); err != nil {
			return fmt.Errorf("renderer: setup attachments of %q: %w", p.Name(), err)
		}
	}
	if r.plan, err = b.Compile(); err != nil {
		return fmt.Errorf("renderer: compile graph: %w", err)
	}
	if err := r.plan.CheckUsage(r.ctx.Target); err != nil {
		return fmt.Errorf("renderer: %w", err)
	}
	for _, p := range r.passes {
		if err := p.SetupUniforms(r.framesInFlight); err != nil {
			return fmt.Errorf("renderer: setup uniforms of %q: %w", p.Name(), err)
		}
		if err := p.SetupShaderPasses(); err != nil {
			return fmt.Errorf("renderer: setup shader passes of %q: %w", p.Name(), err)
		}
	}

	for i := range r.framesInFlight {
		f, err := frame.New(r.dev, i, frame.WithWaitTimeout(r.frameTimeout), frame.WithLogger(r.logger))
		if err != nil {
			return fmt.Errorf("renderer: %w", err)
		}
		r.frames = append(r.frames, f)
	}
	return nil
}

func (r *renderer) RenderFrame(ctx context.Context, s *scene.Snapshot) error {
	if r.closed {
		return ErrClosed
	}
	if r.failed != nil {
		return r.failed
	}
	if s == nil {
		s = &scene.Snapshot{}
	}

	f := r.frames[r.counter.Load()%uint64(len(r.frames))]
	start := time.Now()
	if err := f.Wait(ctx); err != nil {
		// A caller's deadline or cancellation says nothing about the device.
		if ctx.Err() != nil {
			return err
		}
		return r.fatal(err)
	}
	r.recordWait(time.Since(start))

	if extent, ok := r.takeResize(); ok {
		if err := r.applyResize(extent); err != nil {
			return r.fatal(err)
		}
		return r.skip("resize")
	}
	if r.extent.IsZero() {
		return r.skip("minimized")
	}

	image, err := r.dev.AcquireNextImage(f.ImageAcquired())
	if err != nil {
		if !gpu.IsTransient(err) {
			return r.fatal(err)
		}
		if err := r.applyResize(r.extent); err != nil {
			return r.fatal(err)
		}
		return r.skip("acquire out of date")
	}

	if err := r.record(f, s, image); err != nil {
		return r.fatal(err)
	}
	if err := f.Submit(); err != nil {
		return r.fatal(err)
	}

	err = r.dev.Present(image, f.RenderFinished())
	r.counter.Add(1)
	r.mu.Lock()
	r.stats.Frames++
	r.mu.Unlock()
	if err != nil {
		if !gpu.IsTransient(err) {
			return r.fatal(err)
		}
		if err := r.applyResize(r.extent); err != nil {
			return r.fatal(err)
		}
	}
	return nil
}

// record starts the slot and records the barriers and commands of every pass.
func (r *renderer) record(f *frame.Frame, s *scene.Snapshot, image uint32) error {
	if err := f.Start(); err != nil {
		return err
	}
	r.ctx.SetTarget(pass.SwapchainTarget, r.dev.SwapchainImage(image))

	cmd := f.CommandBuffer()
	for i, p := range r.passes {
		op := "record pass " + p.Name()
		barriers, err := graph.Resolve(r.plan.Steps[i].Barriers, r.ctx.Target)
		if err != nil {
			return &gpu.OpError{Op: op, Resource: f.Label(), Err: err}
		}
		cmd.PipelineBarrier(barriers...)
		if err := p.Execute(f, s, image); err != nil {
			return &gpu.OpError{Op: op, Resource: f.Label(), Err: err}
		}
	}
	final, err := graph.Resolve(r.plan.Final, r.ctx.Target)
	if err != nil {
		return &gpu.OpError{Op: "record final barriers", Resource: f.Label(), Err: err}
	}
	cmd.PipelineBarrier(final...)
	return f.End()
}

// applyResize reconfigures the surface and lets every pass recreate its size-dependent
// attachments. A zero extent is only recorded; frames are skipped until it changes.
func (r *renderer) applyResize(extent common.Extent2D) error {
	if extent.IsZero() {
		r.extent = extent
		r.logger.Debug("surface minimized, skipping frames")
		return nil
	}
	if err := r.dev.WaitIdle(); err != nil {
		return err
	}
	if err := r.dev.ConfigureSurface(extent); err != nil {
		return err
	}
	for _, p := range r.passes {
		if err := p.Resize(extent); err != nil {
			return &gpu.OpError{Op: "resize pass " + p.Name(), Err: err}
		}
	}
	r.extent = extent
	r.mu.Lock()
	r.stats.Resizes++
	r.mu.Unlock()
	r.logger.Debug("surface resized", "extent", extent.String())
	return nil
}

func (r *renderer) skip(reason string) error {
	r.mu.Lock()
	r.stats.SkippedFrames++
	r.mu.Unlock()
	r.logger.Debug("frame skipped", "reason", reason, "frame", r.counter.Load())
	return nil
}

// fatal records err as the renderer's terminal error and logs it once.
func (r *renderer) fatal(err error) error {
	r.failed = err
	r.logger.Error("render frame failed", "op", gpu.FailedOp(err), "err", err)
	return err
}

func (r *renderer) recordWait(d time.Duration) {
	r.mu.Lock()
	r.stats.FenceWaits++
	r.stats.LastFenceWait = d
	r.mu.Unlock()
}

func (r *renderer) takeResize() (common.Extent2D, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pendingResize == nil {
		return common.Extent2D{}, false
	}
	e := *r.pendingResize
	r.pendingResize = nil
	return e, true
}

func (r *renderer) Resize(width, height int) {
	e := common.Extent2D{Width: uint32(max(width, 0)), Height: uint32(max(height, 0))}
	r.mu.Lock()
	r.pendingResize = &e
	r.mu.Unlock()
}

func (r *renderer) Extent() common.Extent2D {
	return r.extent
}

func (r *renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *renderer) FrameIndex() uint64 {
	return r.counter.Load()
}

func (r *renderer) Passes() []pass.Pass {
	return r.passes
}

func (r *renderer) Plan() *graph.Plan {
	return r.plan
}

func (r *renderer) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if r.failed == nil {
		for _, f := range r.frames {
			if err := f.Wait(context.Background()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := r.dev.WaitIdle(); err != nil && r.failed == nil {
		errs = append(errs, err)
	}
	errs = append(errs, r.cleanup())
	r.logger.Info("renderer closed", "frames", r.counter.Load())
	return errors.Join(errs...)
}

// cleanup releases the passes in reverse order, the frames and the owned fallbacks.
func (r *renderer) cleanup() error {
	var errs []error
	for i := len(r.passes) - 1; i >= 0; i-- {
		if err := r.passes[i].Cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("renderer: cleanup %q: %w", r.passes[i].Name(), err))
		}
	}
	for _, f := range r.frames {
		errs = append(errs, f.Cleanup())
	}
	if r.ownsFallbacks && r.fallbacks != nil {
		errs = append(errs, r.fallbacks.Release())
	}
	return errors.Join(errs...)
}
