package gpu

import (
	"time"

	"github.com/Carmen-Shannon/oxy-render/common"
)

// SurfaceConfig is the result of configuring the presentation surface.
type SurfaceConfig struct {
	// Format is the swapchain image format chosen by the driver.
	Format Format
	// Extent is the configured size.
	Extent common.Extent2D
	// Images holds the native swapchain images in presentation index order.
	Images []any
}

// Submission is one queue submission handed to a Backend.
type Submission struct {
	Label    string
	Commands []Command
	// Wait holds native semaphores the submission waits on before executing.
	Wait []any
	// Signal holds native semaphores signaled when the submission completes.
	Signal []any
	// Fence is the native fence signaled when the submission completes, or nil.
	Fence any
}

// Backend is the driver-level interface a Device allocates and submits through.
// Native handles are opaque to everything except the Backend that created them.
//
// Implementations must make WaitFence safe to call from a goroutine other than the one that
// submitted; every other method is called from the goroutine driving the Device.
type Backend interface {
	// Name returns a short identifier for logs, e.g. "wgpu" or "headless".
	Name() string

	// CreateBuffer allocates a buffer.
	//
	// Parameters:
	//   - desc: the buffer description
	//
	// Returns:
	//   - any: the native buffer
	//   - error: ErrOutOfMemory or a driver error
	CreateBuffer(desc BufferDesc) (any, error)

	// CreateImage allocates an image and any views it needs.
	//
	// Parameters:
	//   - desc: the image description
	//
	// Returns:
	//   - any: the native image
	//   - error: ErrOutOfMemory or a driver error
	CreateImage(desc ImageDesc) (any, error)

	// CreateSampler creates a sampler.
	CreateSampler(desc SamplerDesc) (any, error)

	// CreateDescriptorSetLayout creates the layout shared by descriptor sets and pipelines.
	CreateDescriptorSetLayout(label string, bindings []LayoutBinding) (any, error)

	// CreateDescriptorSet creates an immutable native binding of entries against layout.
	// Entries are sorted by binding and already validated against the layout.
	CreateDescriptorSet(layout *DescriptorSetLayout, entries []DescriptorEntry) (any, error)

	// CreatePipeline compiles a graphics or compute pipeline.
	CreatePipeline(desc PipelineDesc) (any, error)

	// CreateFence creates a fence, optionally already signaled.
	CreateFence(signaled bool) (any, error)

	// CreateSemaphore creates a queue-ordering semaphore.
	CreateSemaphore() (any, error)

	// Destroy releases a native handle. It is called exactly once per handle.
	//
	// Parameters:
	//   - kind: the resource type of the handle
	//   - native: the native handle to destroy
	Destroy(kind Kind, native any)

	// WriteBuffer copies data into buf at offset.
	WriteBuffer(buf *Buffer, offset uint64, data []byte) error

	// ReadBuffer copies size bytes at offset out of buf. It blocks until the copy is complete.
	ReadBuffer(buf *Buffer, offset, size uint64) ([]byte, error)

	// WriteImage replaces the contents of one layer of img with tightly packed texels.
	WriteImage(img *Image, layer uint32, data []byte) error

	// ReadImage returns one layer of img as tightly packed texels. It blocks until complete.
	ReadImage(img *Image, layer uint32) ([]byte, error)

	// Submit queues recorded commands for execution.
	//
	// Parameters:
	//   - sub: the commands and synchronization primitives of the submission
	//
	// Returns:
	//   - error: ErrSubmissionFailed, ErrDeviceLost, or a driver error
	Submit(sub Submission) error

	// WaitFence blocks until fence is signaled or timeout elapses.
	//
	// Parameters:
	//   - fence: the native fence
	//   - timeout: the maximum time to wait
	//
	// Returns:
	//   - error: ErrTimeout, ErrDeviceLost, or nil once signaled
	WaitFence(fence any, timeout time.Duration) error

	// ResetFence returns fence to the unsignaled state.
	ResetFence(fence any) error

	// FenceSignaled reports whether fence is currently signaled without blocking.
	FenceSignaled(fence any) bool

	// ConfigureSurface (re)creates the swapchain at extent.
	//
	// Parameters:
	//   - extent: the new surface size in pixels
	//
	// Returns:
	//   - SurfaceConfig: the chosen format and the swapchain images
	//   - error: a driver error
	ConfigureSurface(extent common.Extent2D) (SurfaceConfig, error)

	// Acquire obtains the next presentable image and arranges for signal to be signaled once
	// the image is ready.
	//
	// Parameters:
	//   - signal: the native semaphore to signal, or nil
	//
	// Returns:
	//   - uint32: the swapchain image index
	//   - error: ErrSurfaceOutOfDate when the swapchain must be recreated
	Acquire(signal any) (uint32, error)

	// Present queues the image at index for display after wait is signaled.
	//
	// Parameters:
	//   - index: the swapchain image index returned by Acquire
	//   - wait: the native semaphore to wait on, or nil
	//
	// Returns:
	//   - error: ErrSurfaceOutOfDate when the swapchain must be recreated
	Present(index uint32, wait any) error

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error

	// Close releases the device, surface and instance.
	Close() error
}
