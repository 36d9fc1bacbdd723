package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/logging"
	"github.com/Carmen-Shannon/oxy-render/engine/profiler"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/Carmen-Shannon/oxy-render/engine/window"
)

// SceneProvider produces the snapshot drawn each render frame. Snapshot runs on the render
// goroutine while the tick callback runs on the engine goroutine, so implementations must
// synchronize the state both touch.
type SceneProvider interface {
	// Snapshot returns the scene to draw.
	//
	// Parameters:
	//   - deltaTime: seconds since the previous render frame
	//
	// Returns:
	//   - *scene.Snapshot: the scene; nil draws an empty frame
	Snapshot(deltaTime float32) *scene.Snapshot
}

// SceneProviderFunc adapts a function to SceneProvider.
type SceneProviderFunc func(deltaTime float32) *scene.Snapshot

func (f SceneProviderFunc) Snapshot(deltaTime float32) *scene.Snapshot {
	return f(deltaTime)
}

// engine implements the Engine interface.
// Coordinates the engine tick, render and window threads.
type engine struct {
	renderer renderer.Renderer
	provider SceneProvider
	window   window.Window
	logger   *slog.Logger

	tickRateChannel chan time.Duration
	running         atomic.Bool
	wg              sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate   time.Duration
	tickCallback     func(deltaTime float32)
	resizeCallback   func(width, height int)
	renderFrameLimit time.Duration
	maxFrames        uint64

	frames atomic.Uint64
	errMu  sync.Mutex
	err    error
}

// Engine runs the frame loop: a fixed-rate tick goroutine for application logic, a render
// goroutine that draws the provider's snapshots, and the window message loop on the caller.
type Engine interface {
	// Run starts the engine and blocks until the window closes, Quit is called, the frame limit
	// is reached, ctx is done, or rendering fails.
	//
	// Parameters:
	//   - ctx: stops the engine when done
	//
	// Returns:
	//   - error: the render error or recovered panic, nil on a clean shutdown
	Run(ctx context.Context) error

	// Quit signals all engine goroutines to stop. Safe to call multiple times and from any
	// goroutine.
	Quit()

	// SetTickRate sets the engine tick rate in ticks per second.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick. It must be set before Run.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap. Pass 0 to uncap the render loop.
	SetRenderFrameLimit(fps float64)

	// Renderer returns the renderer driven by the engine.
	Renderer() renderer.Renderer

	// Window returns the window, or nil for a headless engine.
	Window() window.Window

	// Frames returns the number of RenderFrame calls made so far, skipped frames included.
	Frames() uint64
}

var _ Engine = &engine{}

// NewEngine creates an engine driving r with snapshots from provider.
//
// Parameters:
//   - r: the renderer
//   - provider: the source of the scene drawn each frame
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: an error if the renderer or provider is nil
func NewEngine(r renderer.Renderer, provider SceneProvider, options ...EngineBuilderOption) (Engine, error) {
	if r == nil || provider == nil {
		return nil, errors.New("engine: renderer and scene provider are required")
	}
	e := &engine{
		renderer:        r,
		provider:        provider,
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		engineTickRate:  time.Second / 60,
	}
	for _, opt := range options {
		opt(e)
	}
	e.logger = logging.Or(e.logger)
	e.profiler = profiler.NewProfiler(r, e.logger)

	if e.window != nil {
		e.window.SetResizeCallback(func(width, height int) {
			e.renderer.Resize(width, height)
			if e.resizeCallback != nil {
				e.resizeCallback(width, height)
			}
		})
	}
	return e, nil
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Frames() uint64 {
	return e.frames.Load()
}

func (e *engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine: already running")
	}
	e.wg.Add(3)
	go e.handleEngine()
	go e.handleRender(ctx)
	go e.handleQuit(ctx)

	if e.window != nil {
		e.window.ProcessMessages()
		e.signalQuit()
	}
	e.wg.Wait()
	e.running.Store(false)

	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel once and asks the window loop to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
		if e.window != nil {
			e.window.RequestClose()
		}
	})
}

func (e *engine) fail(err error) {
	e.errMu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.errMu.Unlock()
	e.signalQuit()
}

// handleEngine fires the tick callback at the configured rate and listens for rate changes
// until quit.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()
	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now
			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
		}
	}
}

// handleRender draws frames until quit. A panic inside the loop is recovered and returned
// from Run as an error.
func (e *engine) handleRender(ctx context.Context) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("render goroutine recovered from panic", "panic", r)
			e.fail(fmt.Errorf("engine: render panic: %v", r))
		}
	}()

	lastRender := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		err := e.renderer.RenderFrame(ctx, e.provider.Snapshot(dt))
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				e.signalQuit()
				return
			}
			e.fail(fmt.Errorf("engine: %w", err))
			return
		}
		n := e.frames.Add(1)

		if e.profilingEnabled {
			e.profiler.Tick()
		}
		if e.maxFrames > 0 && n >= e.maxFrames {
			e.signalQuit()
			return
		}

		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(now); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// handleQuit turns a done context into a quit.
func (e *engine) handleQuit(ctx context.Context) {
	defer e.wg.Done()
	select {
	case <-ctx.Done():
		e.signalQuit()
	case <-e.quitChannel:
	}
}

func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)
	if !e.running.Load() {
		e.engineTickRate = newRate
		return
	}
	// Replace a pending update that the tick goroutine has not picked up yet.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
