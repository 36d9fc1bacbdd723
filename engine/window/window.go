package window

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrNotInitialized is returned when the platform window was never created or is already closed.
var ErrNotInitialized = errors.New("window: not initialized")

// Window is the surface the renderer presents to. It reports framebuffer resizes and input,
// and provides the surface descriptor the WebGPU backend is created from.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized. A minimized
	// window reports 0x0.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetScrollCallback sets the callback for mouse scroll wheel events.
	SetScrollCallback(callback func(delta float32))

	// SetKeyCallback sets the callback for key events.
	//
	// Parameters:
	//   - callback: function receiving the key code and whether the key went down
	SetKeyCallback(callback func(keyCode uint32, down bool))

	// SetMouseMoveCallback sets the callback for mouse movement.
	SetMouseMoveCallback(callback func(x, y int32))

	// SurfaceDescriptor returns a descriptor for creating a WebGPU surface on this window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform surface descriptor, or nil if the window is closed
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning reports whether the window is still open.
	IsRunning() bool

	// RequestClose asks the message loop to exit. It may be called from any goroutine.
	RequestClose()

	// Close destroys the window. Calling it more than once does nothing.
	//
	// Returns:
	//   - error: ErrNotInitialized if the window was never created
	Close() error

	// ProcessMessages runs the message loop on the calling goroutine, which must be the one that
	// created the window. Blocks until the window is closed.
	ProcessMessages()

	// Extent returns the framebuffer size in pixels.
	Extent() common.Extent2D
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	title     string
	minWidth  int
	minHeight int
	maxWidth  int
	maxHeight int
	resizable bool

	mu     sync.Mutex
	width  int
	height int

	closeOnce sync.Once
	quit      chan struct{}

	// internalWindow holds the platform window data.
	internalWindow *glfwWindow

	onUpdate    func()
	onResize    func(width, height int)
	onScroll    func(delta float32)
	onKey       func(keyCode uint32, down bool)
	onMouseMove func(x, y int32)
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a window. The calling goroutine is locked to its OS thread and
// must run ProcessMessages.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the window
//   - error: an error if the platform window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		title:     "oxy-render",
		minWidth:  320,
		minHeight: 200,
		width:     1280,
		height:    720,
		resizable: true,
		quit:      make(chan struct{}),
	}
	for _, opt := range options {
		opt(w)
	}
	if w.width <= 0 || w.height <= 0 {
		return nil, fmt.Errorf("window: size %dx%d must be positive", w.width, w.height)
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, fmt.Errorf("window: %w", err)
	}
	return w, nil
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *engineWindow) SetKeyCallback(callback func(keyCode uint32, down bool)) {
	w.onKey = callback
}

func (w *engineWindow) SetMouseMoveCallback(callback func(x, y int32)) {
	w.onMouseMove = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	select {
	case <-w.quit:
		return false
	default:
	}
	return platformIsRunningCheck(w)
}

func (w *engineWindow) RequestClose() {
	w.closeOnce.Do(func() { close(w.quit) })
}

func (w *engineWindow) Close() error {
	w.RequestClose()
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if !platformProcessMessages(w) {
			break
		}
		if w.onUpdate != nil {
			w.onUpdate()
		}
		runtime.Gosched()
	}
}

func (w *engineWindow) Extent() common.Extent2D {
	w.mu.Lock()
	defer w.mu.Unlock()
	return common.Extent2D{Width: uint32(max(w.width, 0)), Height: uint32(max(w.height, 0))}
}

// setSize stores the framebuffer size and notifies the resize callback when it changed.
func (w *engineWindow) setSize(width, height int) {
	w.mu.Lock()
	changed := width != w.width || height != w.height
	w.width, w.height = width, height
	w.mu.Unlock()
	if changed && w.onResize != nil {
		w.onResize(width, height)
	}
}
