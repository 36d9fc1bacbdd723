package gpu

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-render/common"
)

// DefaultMaxDescriptorSets is the descriptor pool capacity used when none is configured.
const DefaultMaxDescriptorSets = 64

// Device owns every GPU resource and the presentation surface. Every resource it creates is
// tracked in a generation-checked arena and destroyed exactly once, either by its own Release
// or by Device.Release.
type Device interface {
	// Backend returns the driver backend the device submits through.
	Backend() Backend

	// CreateBuffer allocates a buffer.
	//
	// Parameters:
	//   - desc: the buffer description, Size must be non-zero
	//
	// Returns:
	//   - *Buffer: the new buffer
	//   - error: an error if the allocation failed
	CreateBuffer(desc BufferDesc) (*Buffer, error)

	// CreateBufferWithData allocates a buffer sized to data (when desc.Size is zero) and uploads data.
	//
	// Parameters:
	//   - desc: the buffer description, CopyDst is added to its usage
	//   - data: the initial contents
	//
	// Returns:
	//   - *Buffer: the new buffer
	//   - error: an error if the allocation or upload failed
	CreateBufferWithData(desc BufferDesc, data []byte) (*Buffer, error)

	// CreateImage allocates an image.
	//
	// Parameters:
	//   - desc: the image description, the extent must be non-zero
	//
	// Returns:
	//   - *Image: the new image in LayoutUndefined
	//   - error: an error if the allocation failed
	CreateImage(desc ImageDesc) (*Image, error)

	// CreateSampler creates a sampler.
	CreateSampler(desc SamplerDesc) (*Sampler, error)

	// CreateFramebuffer groups attachments of equal extent.
	//
	// Parameters:
	//   - label: the debug label of the framebuffer
	//   - colors: the color attachments
	//   - depth: the depth attachment, or nil
	//
	// Returns:
	//   - *Framebuffer: the new framebuffer
	//   - error: an error if an attachment is released or the extents differ
	CreateFramebuffer(label string, colors []*Image, depth *Image) (*Framebuffer, error)

	// CreateFence creates a fence, optionally already signaled.
	CreateFence(label string, signaled bool) (*Fence, error)

	// CreateSemaphore creates a semaphore.
	CreateSemaphore(label string) (*Semaphore, error)

	// CreateCommandPool creates a command pool.
	CreateCommandPool(label string) (*CommandPool, error)

	// CreateDescriptorSetLayout creates a descriptor set layout.
	//
	// Parameters:
	//   - label: the debug label of the layout
	//   - bindings: the slots of the layout; binding numbers must be unique
	//
	// Returns:
	//   - *DescriptorSetLayout: the new layout
	//   - error: an error if the bindings are invalid
	CreateDescriptorSetLayout(label string, bindings ...LayoutBinding) (*DescriptorSetLayout, error)

	// CreateDescriptorPool creates a pool holding at most maxSets descriptor sets.
	// A maxSets of zero uses DefaultMaxDescriptorSets.
	CreateDescriptorPool(label string, maxSets int) (*DescriptorPool, error)

	// CreatePipeline compiles a pipeline.
	//
	// Parameters:
	//   - desc: the pipeline description
	//
	// Returns:
	//   - *Pipeline: the new pipeline
	//   - error: an error if the description is invalid or compilation failed
	CreatePipeline(desc PipelineDesc) (*Pipeline, error)

	// Submit queues an executable command buffer.
	//
	// Parameters:
	//   - cmd: the command buffer, which must be executable
	//   - wait: semaphores to wait on before execution
	//   - signal: semaphores signaled on completion
	//   - fence: the fence signaled on completion, or nil
	//
	// Returns:
	//   - error: an error if the buffer is not executable or the backend rejected the submission
	Submit(cmd *CommandBuffer, wait []*Semaphore, signal []*Semaphore, fence *Fence) error

	// ConfigureSurface (re)creates the swapchain at extent and replaces the swapchain images.
	//
	// Parameters:
	//   - extent: the new surface size, which must be non-zero
	//
	// Returns:
	//   - error: an error if the backend could not configure the surface
	ConfigureSurface(extent common.Extent2D) error

	// SurfaceFormat returns the format of the swapchain images.
	SurfaceFormat() Format

	// SurfaceExtent returns the configured surface size.
	SurfaceExtent() common.Extent2D

	// SwapchainImage returns the swapchain image at index, or nil if out of range.
	SwapchainImage(index uint32) *Image

	// AcquireNextImage obtains the next presentable image.
	//
	// Parameters:
	//   - signal: the semaphore signaled when the image is ready
	//
	// Returns:
	//   - uint32: the swapchain image index
	//   - error: an error wrapping ErrSurfaceOutOfDate when the swapchain must be recreated
	AcquireNextImage(signal *Semaphore) (uint32, error)

	// Present queues a swapchain image for display.
	//
	// Parameters:
	//   - index: the image index from AcquireNextImage
	//   - wait: the semaphore signaled when rendering into the image finished
	//
	// Returns:
	//   - error: an error wrapping ErrSurfaceOutOfDate when the swapchain must be recreated
	Present(index uint32, wait *Semaphore) error

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error

	// Live returns the number of resources that have not been released.
	Live() int

	// Release destroys every live resource in reverse creation order and closes the backend.
	// Subsequent calls do nothing.
	Release() error
}

type device struct {
	backend   Backend
	logger    *slog.Logger
	resources *Arena[*resource]
	seq       atomic.Uint64
	closed    atomic.Bool

	mu            sync.Mutex
	surfaceFormat Format
	surfaceExtent common.Extent2D
	swapchain     []*Image
}

var _ Device = &device{}

func (d *device) Backend() Backend {
	return d.backend
}

func (d *device) register(r *resource, kind Kind, label string, native any) {
	r.dev = d
	r.kind = kind
	r.label = label
	r.native = native
	r.seq = d.seq.Add(1)
	r.handle = d.resources.Insert(r)
}

func (d *device) destroy(r *resource) error {
	if _, err := d.resources.Remove(r.handle); err != nil {
		return opError("release "+r.kind.String(), r.label, err)
	}
	if r.native != nil && !r.external {
		d.backend.Destroy(r.kind, r.native)
	}
	d.logger.Debug("gpu resource released", "kind", r.kind, "label", r.label, "handle", r.handle)
	return nil
}

func (d *device) checkOpen(op string) error {
	if d.closed.Load() {
		return opError(op, "", fmt.Errorf("device: %w", ErrReleased))
	}
	return nil
}

func (d *device) CreateBuffer(desc BufferDesc) (*Buffer, error) {
	if err := d.checkOpen("create buffer"); err != nil {
		return nil, err
	}
	if desc.Size == 0 {
		return nil, opError("create buffer", desc.Label, errors.New("size must be non-zero"))
	}
	native, err := d.backend.CreateBuffer(desc)
	if err != nil {
		return nil, opError("create buffer", desc.Label, err)
	}
	b := &Buffer{desc: desc}
	d.register(&b.resource, KindBuffer, desc.Label, native)
	return b, nil
}

func (d *device) CreateBufferWithData(desc BufferDesc, data []byte) (*Buffer, error) {
	if desc.Size == 0 {
		desc.Size = uint64(common.AlignUp(uint32(len(data)), 4))
	}
	desc.Usage |= BufferUsageCopyDst
	b, err := d.CreateBuffer(desc)
	if err != nil {
		return nil, err
	}
	if err := b.Upload(0, data); err != nil {
		_ = b.Release()
		return nil, err
	}
	return b, nil
}

func (d *device) CreateImage(desc ImageDesc) (*Image, error) {
	if err := d.checkOpen("create image"); err != nil {
		return nil, err
	}
	if desc.Extent.Width == 0 || desc.Extent.Height == 0 {
		return nil, opError("create image", desc.Label, fmt.Errorf("extent %dx%d: %w", desc.Extent.Width, desc.Extent.Height, ErrOutOfBounds))
	}
	if desc.Format == FormatUndefined {
		return nil, opError("create image", desc.Label, errors.New("format is undefined"))
	}
	desc.Extent.Depth = max(desc.Extent.Depth, 1)
	native, err := d.backend.CreateImage(desc)
	if err != nil {
		return nil, opError("create image", desc.Label, err)
	}
	img := &Image{desc: desc}
	d.register(&img.resource, KindImage, desc.Label, native)
	return img, nil
}

func (d *device) CreateSampler(desc SamplerDesc) (*Sampler, error) {
	if err := d.checkOpen("create sampler"); err != nil {
		return nil, err
	}
	native, err := d.backend.CreateSampler(desc)
	if err != nil {
		return nil, opError("create sampler", desc.Label, err)
	}
	s := &Sampler{desc: desc}
	d.register(&s.resource, KindSampler, desc.Label, native)
	return s, nil
}

func (d *device) CreateFramebuffer(label string, colors []*Image, depth *Image) (*Framebuffer, error) {
	if err := d.checkOpen("create framebuffer"); err != nil {
		return nil, err
	}
	all := slices.Clone(colors)
	if depth != nil {
		all = append(all, depth)
	}
	if len(all) == 0 {
		return nil, opError("create framebuffer", label, errors.New("no attachments"))
	}
	extent := all[0].Extent().Extent2D()
	for _, img := range all {
		if err := img.checkLive("create framebuffer"); err != nil {
			return nil, opError("create framebuffer", label, err)
		}
		if img.Extent().Extent2D() != extent {
			return nil, opError("create framebuffer", label, fmt.Errorf("attachment %q is %s, expected %s", img.label, img.Extent().Extent2D(), extent))
		}
	}
	if depth != nil && !depth.Format().IsDepth() {
		return nil, opError("create framebuffer", label, fmt.Errorf("depth attachment %q has color format %s", depth.label, depth.Format()))
	}
	fb := &Framebuffer{colors: slices.Clone(colors), depth: depth, extent: extent}
	d.register(&fb.resource, KindFramebuffer, label, nil)
	return fb, nil
}

func (d *device) CreateFence(label string, signaled bool) (*Fence, error) {
	if err := d.checkOpen("create fence"); err != nil {
		return nil, err
	}
	native, err := d.backend.CreateFence(signaled)
	if err != nil {
		return nil, opError("create fence", label, err)
	}
	f := &Fence{}
	d.register(&f.resource, KindFence, label, native)
	return f, nil
}

func (d *device) CreateSemaphore(label string) (*Semaphore, error) {
	if err := d.checkOpen("create semaphore"); err != nil {
		return nil, err
	}
	native, err := d.backend.CreateSemaphore()
	if err != nil {
		return nil, opError("create semaphore", label, err)
	}
	s := &Semaphore{}
	d.register(&s.resource, KindSemaphore, label, native)
	return s, nil
}

func (d *device) CreateCommandPool(label string) (*CommandPool, error) {
	if err := d.checkOpen("create command pool"); err != nil {
		return nil, err
	}
	p := &CommandPool{}
	d.register(&p.resource, KindCommandPool, label, nil)
	return p, nil
}

func (d *device) CreateDescriptorSetLayout(label string, bindings ...LayoutBinding) (*DescriptorSetLayout, error) {
	if err := d.checkOpen("create descriptor set layout"); err != nil {
		return nil, err
	}
	sorted := slices.SortedFunc(slices.Values(bindings), func(a, b LayoutBinding) int {
		return cmp.Compare(a.Binding, b.Binding)
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Binding == sorted[i-1].Binding {
			return nil, opError("create descriptor set layout", label, fmt.Errorf("binding %d declared twice", sorted[i].Binding))
		}
	}
	native, err := d.backend.CreateDescriptorSetLayout(label, sorted)
	if err != nil {
		return nil, opError("create descriptor set layout", label, err)
	}
	l := &DescriptorSetLayout{bindings: sorted}
	d.register(&l.resource, KindDescriptorSetLayout, label, native)
	return l, nil
}

func (d *device) CreateDescriptorPool(label string, maxSets int) (*DescriptorPool, error) {
	if err := d.checkOpen("create descriptor pool"); err != nil {
		return nil, err
	}
	p := &DescriptorPool{maxSets: common.Coalesce(maxSets, DefaultMaxDescriptorSets)}
	p.onRelease = p.releaseSets
	d.register(&p.resource, KindDescriptorPool, label, nil)
	return p, nil
}

func (d *device) CreatePipeline(desc PipelineDesc) (*Pipeline, error) {
	if err := d.checkOpen("create pipeline"); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, opError("create pipeline", desc.Label, err)
	}
	for _, l := range desc.Layouts {
		if err := l.checkLive("create pipeline"); err != nil {
			return nil, err
		}
	}
	native, err := d.backend.CreatePipeline(desc)
	if err != nil {
		return nil, opError("create pipeline", desc.Label, err)
	}
	p := &Pipeline{desc: desc}
	d.register(&p.resource, KindPipeline, desc.Label, native)
	return p, nil
}

func (d *device) Submit(cmd *CommandBuffer, wait []*Semaphore, signal []*Semaphore, fence *Fence) error {
	if err := d.checkOpen("submit"); err != nil {
		return err
	}
	if cmd.state != CommandBufferExecutable {
		return opError("submit", cmd.label, fmt.Errorf("buffer is %s: %w", cmd.state, ErrInvalidState))
	}
	sub := Submission{Label: cmd.label, Commands: cmd.commands}
	for _, s := range wait {
		if err := s.checkLive("submit"); err != nil {
			return err
		}
		sub.Wait = append(sub.Wait, s.native)
	}
	for _, s := range signal {
		if err := s.checkLive("submit"); err != nil {
			return err
		}
		sub.Signal = append(sub.Signal, s.native)
	}
	if fence != nil {
		if err := fence.checkLive("submit"); err != nil {
			return err
		}
		sub.Fence = fence.native
		fence.markInUse()
	}
	if err := d.backend.Submit(sub); err != nil {
		return opError("submit", cmd.label, err)
	}
	cmd.state = CommandBufferPending
	return nil
}

func (d *device) ConfigureSurface(extent common.Extent2D) error {
	if err := d.checkOpen("configure surface"); err != nil {
		return err
	}
	if extent.IsZero() {
		return opError("configure surface", "", fmt.Errorf("extent %s: %w", extent, ErrOutOfBounds))
	}
	cfg, err := d.backend.ConfigureSurface(extent)
	if err != nil {
		return opError("configure surface", "", err)
	}

	d.mu.Lock()
	old := d.swapchain
	d.swapchain = make([]*Image, 0, len(cfg.Images))
	for i, native := range cfg.Images {
		img := &Image{desc: ImageDesc{
			Label:     fmt.Sprintf("swapchain[%d]", i),
			Format:    cfg.Format,
			Dimension: Image2D,
			Extent:    Extent3D{Width: cfg.Extent.Width, Height: cfg.Extent.Height, Depth: 1},
			Usage:     ImageUsageColorAttachment | ImageUsageCopySrc,
			Resizable: true,
		}}
		img.external = true
		d.register(&img.resource, KindImage, img.desc.Label, native)
		d.swapchain = append(d.swapchain, img)
	}
	d.surfaceFormat = cfg.Format
	d.surfaceExtent = cfg.Extent
	d.mu.Unlock()

	for _, img := range old {
		_ = img.Release()
	}
	d.logger.Info("surface configured", "backend", d.backend.Name(), "extent", cfg.Extent, "format", cfg.Format, "images", len(cfg.Images))
	return nil
}

func (d *device) SurfaceFormat() Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.surfaceFormat
}

func (d *device) SurfaceExtent() common.Extent2D {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.surfaceExtent
}

func (d *device) SwapchainImage(index uint32) *Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(index) >= len(d.swapchain) {
		return nil
	}
	return d.swapchain[index]
}

func (d *device) AcquireNextImage(signal *Semaphore) (uint32, error) {
	if err := d.checkOpen("acquire"); err != nil {
		return 0, err
	}
	var native any
	if signal != nil {
		if err := signal.checkLive("acquire"); err != nil {
			return 0, err
		}
		native = signal.native
	}
	idx, err := d.backend.Acquire(native)
	if err != nil {
		return 0, opError("acquire", "", err)
	}
	return idx, nil
}

func (d *device) Present(index uint32, wait *Semaphore) error {
	if err := d.checkOpen("present"); err != nil {
		return err
	}
	var native any
	if wait != nil {
		if err := wait.checkLive("present"); err != nil {
			return err
		}
		native = wait.native
	}
	return opError("present", "", d.backend.Present(index, native))
}

func (d *device) WaitIdle() error {
	if d.closed.Load() {
		return nil
	}
	return opError("wait idle", "", d.backend.WaitIdle())
}

func (d *device) Live() int {
	return d.resources.Len()
}

func (d *device) Release() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	waitErr := d.backend.WaitIdle()

	live := d.resources.Values()
	slices.SortFunc(live, func(a, b *resource) int {
		return cmp.Compare(b.seq, a.seq)
	})
	for _, r := range live {
		if err := r.Release(); err != nil {
			d.logger.Warn("failed to release gpu resource", "kind", r.kind, "label", r.label, "error", err)
		}
	}
	if len(live) > 0 {
		d.logger.Debug("released remaining gpu resources", "count", len(live))
	}
	return errors.Join(opError("wait idle", "", waitErr), opError("close device", "", d.backend.Close()))
}
