package wgpu_backend

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// WgpuBackend is the gpu.Backend implemented on WebGPU. WebGPU orders queue work and tracks
// texture usage itself, so semaphores are logical tokens, barriers are not replayed, and fences
// are signaled by polling the device for completed work.
type WgpuBackend interface {
	gpu.Backend

	// Device returns the WebGPU device.
	Device() *wgpu.Device

	// Queue returns the device queue.
	Queue() *wgpu.Queue

	// Instance returns the WebGPU instance.
	Instance() *wgpu.Instance

	// Adapter returns the adapter the device was requested from.
	Adapter() *wgpu.Adapter

	// Surface returns the presentation surface.
	Surface() *wgpu.Surface

	// SetPresentMode changes the present mode used by the next ConfigureSurface.
	//
	// Parameters:
	//   - mode: the present mode to use
	SetPresentMode(mode PresentMode)
}

type fence struct {
	mu       sync.Mutex
	signaled bool
	pending  bool
}

type semaphore struct{}

type pipelineNative struct {
	module  *wgpu.ShaderModule
	layout  *wgpu.PipelineLayout
	render  *wgpu.RenderPipeline
	compute *wgpu.ComputePipeline
}

type wgpuBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat        wgpu.TextureFormat
	presentMode          wgpu.PresentMode
	forceFallbackAdapter bool
	label                string

	// The surface hands out one texture per frame; it is wrapped by a single logical
	// swapchain image whose texture is replaced on every acquire.
	swap *texture

	fenceMu *sync.Mutex
	pending []*fence
}

var _ WgpuBackend = &wgpuBackendImpl{}

// NewWgpuBackend creates a WebGPU instance, surface, adapter and device. It locks the calling
// goroutine to its OS thread, so it must be called from the goroutine that will drive rendering.
//
// Parameters:
//   - surfaceDescriptor: the platform surface descriptor, usually from the window
//   - options: functional options to configure the backend
//
// Returns:
//   - WgpuBackend: the new backend
//   - error: an error if no adapter or device could be obtained
func NewWgpuBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, options ...WgpuBackendBuilderOption) (WgpuBackend, error) {
	runtime.LockOSThread()
	w := &wgpuBackendImpl{
		mu:          &sync.Mutex{},
		fenceMu:     &sync.Mutex{},
		presentMode: wgpu.PresentModeFifo,
		label:       "Main Device",
	}
	for _, opt := range options {
		opt(w)
	}

	w.instance = wgpu.CreateInstance(nil)
	w.surface = w.instance.CreateSurface(surfaceDescriptor)

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: w.forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		w.surface.Release()
		w.instance.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	w.adapter = a

	// Forward rendering binds four groups: frame, object, lighting and material.
	limits := wgpu.DefaultLimits()
	limits.MaxBindGroups = 4

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: w.label,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		w.adapter.Release()
		w.surface.Release()
		w.instance.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()
	w.swap = &texture{}

	return w, nil
}

func (b *wgpuBackendImpl) Name() string {
	return "wgpu"
}

func (b *wgpuBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeVSync:
		b.presentMode = wgpu.PresentModeFifo
	case PresentModeUncapped:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeImmediate
	}
}

func (b *wgpuBackendImpl) ConfigureSurface(extent common.Extent2D) (gpu.SurfaceConfig, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 {
		return gpu.SurfaceConfig{}, errors.New("surface reports no formats")
	}
	b.surfaceFormat = capabilities.Formats[0]
	format := fromTextureFormat(b.surfaceFormat)
	if format == gpu.FormatUndefined {
		return gpu.SurfaceConfig{}, fmt.Errorf("unsupported surface format %v", b.surfaceFormat)
	}

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       extent.Width,
		Height:      extent.Height,
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	b.swap.releaseCurrent()
	b.swap = &texture{
		desc: gpu.ImageDesc{
			Label:  "swapchain",
			Format: format,
			Extent: gpu.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
			Usage:  gpu.ImageUsageColorAttachment,
		},
		swap: true,
	}
	return gpu.SurfaceConfig{Format: format, Extent: extent, Images: []any{b.swap}}, nil
}

func (b *wgpuBackendImpl) Acquire(signal any) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.swap.tex != nil {
		return 0, errors.New("previous surface texture not yet presented")
	}
	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		if isOutOfDate(err) {
			return 0, fmt.Errorf("%w: %v", gpu.ErrSurfaceOutOfDate, err)
		}
		return 0, err
	}
	b.swap.tex = surfaceTexture
	return 0, nil
}

// isOutOfDate classifies surface texture errors that a reconfigure recovers from.
func isOutOfDate(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"outdated", "out of date", "lost", "timeout", "suboptimal"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (b *wgpuBackendImpl) Present(index uint32, _ any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index != 0 || b.swap.tex == nil {
		return fmt.Errorf("present image %d: %w", index, gpu.ErrOutOfBounds)
	}

	// Present the acquired surface image and release local references.
	b.surface.Present()
	b.swap.releaseCurrent()
	return nil
}

func (b *wgpuBackendImpl) Submit(sub gpu.Submission) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	encoder, err := b.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: sub.Label})
	if err != nil {
		return fmt.Errorf("%w: %v", gpu.ErrSubmissionFailed, err)
	}
	if err := b.replay(encoder, sub.Commands); err != nil {
		encoder.Release()
		return fmt.Errorf("%w: %v", gpu.ErrSubmissionFailed, err)
	}
	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		return fmt.Errorf("%w: %v", gpu.ErrSubmissionFailed, err)
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	encoder.Release()

	if sub.Fence != nil {
		f := sub.Fence.(*fence)
		f.mu.Lock()
		f.pending = true
		f.mu.Unlock()
		b.fenceMu.Lock()
		b.pending = append(b.pending, f)
		b.fenceMu.Unlock()
	}
	return nil
}

func (b *wgpuBackendImpl) replay(encoder *wgpu.CommandEncoder, commands []gpu.Command) error {
	var rp *wgpu.RenderPassEncoder
	var cp *wgpu.ComputePassEncoder

	for _, cmd := range commands {
		switch c := cmd.(type) {
		case gpu.BeginRenderPassCmd:
			desc, err := renderPassDescriptor(c.Desc)
			if err != nil {
				return err
			}
			rp = encoder.BeginRenderPass(desc)
		case gpu.EndRenderPassCmd:
			rp.End()
			rp.Release() // must happen before Finish
			rp = nil
		case gpu.BeginComputePassCmd:
			cp = encoder.BeginComputePass(&wgpu.ComputePassDescriptor{Label: c.Label})
		case gpu.EndComputePassCmd:
			cp.End()
			cp.Release()
			cp = nil
		case gpu.BindPipelineCmd:
			p := c.Pipeline.Native().(*pipelineNative)
			if rp != nil {
				rp.SetPipeline(p.render)
			} else {
				cp.SetPipeline(p.compute)
			}
		case gpu.BindDescriptorSetCmd:
			bg := c.Set.Native().(*wgpu.BindGroup)
			if rp != nil {
				rp.SetBindGroup(c.Index, bg, c.DynamicOffsets)
			} else {
				cp.SetBindGroup(c.Index, bg, c.DynamicOffsets)
			}
		case gpu.BindVertexBufferCmd:
			rp.SetVertexBuffer(0, c.Buffer.Native().(*wgpu.Buffer), 0, wgpu.WholeSize)
		case gpu.BindIndexBufferCmd:
			rp.SetIndexBuffer(c.Buffer.Native().(*wgpu.Buffer), wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
		case gpu.DrawCmd:
			rp.Draw(c.VertexCount, c.InstanceCount, 0, 0)
		case gpu.DrawIndexedCmd:
			rp.DrawIndexed(c.IndexCount, c.InstanceCount, 0, 0, 0)
		case gpu.DispatchCmd:
			cp.DispatchWorkgroups(c.X, c.Y, c.Z)
		case gpu.BarrierCmd:
			// WebGPU derives usage transitions from the bindings of each pass.
		case gpu.CopyBufferCmd:
			encoder.CopyBufferToBuffer(c.Src.Native().(*wgpu.Buffer), 0, c.Dst.Native().(*wgpu.Buffer), 0, common.AlignUp64(c.Size, 4))
		default:
			return fmt.Errorf("unsupported command %q", cmd.Name())
		}
	}
	return nil
}

func renderPassDescriptor(d gpu.RenderPassDesc) (*wgpu.RenderPassDescriptor, error) {
	desc := &wgpu.RenderPassDescriptor{Label: d.Label}
	for _, c := range d.Color {
		view, err := c.Image.Native().(*texture).layerView(c.Layer)
		if err != nil {
			return nil, err
		}
		desc.ColorAttachments = append(desc.ColorAttachments, wgpu.RenderPassColorAttachment{
			View:    view,
			LoadOp:  toLoadOp(c.Load),
			StoreOp: wgpu.StoreOpStore,
			ClearValue: wgpu.Color{
				R: c.Clear[0], G: c.Clear[1], B: c.Clear[2], A: c.Clear[3],
			},
		})
	}
	if d.Depth != nil {
		view, err := d.Depth.Image.Native().(*texture).layerView(d.Depth.Layer)
		if err != nil {
			return nil, err
		}
		if d.Depth.ReadOnly {
			desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
				View:          view,
				DepthReadOnly: true,
			}
		} else {
			desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
				View:            view,
				DepthLoadOp:     toLoadOp(d.Depth.Load),
				DepthStoreOp:    wgpu.StoreOpStore,
				DepthClearValue: d.Depth.ClearDepth,
			}
		}
	}
	return desc, nil
}

func (b *wgpuBackendImpl) CreateFence(signaled bool) (any, error) {
	return &fence{signaled: signaled}, nil
}

func (b *wgpuBackendImpl) CreateSemaphore() (any, error) {
	return &semaphore{}, nil
}

// poll drives the device and, once the queue is empty, signals every pending fence.
func (b *wgpuBackendImpl) poll(wait bool) bool {
	if !b.device.Poll(wait, nil) && !wait {
		return false
	}
	b.fenceMu.Lock()
	pending := b.pending
	b.pending = nil
	b.fenceMu.Unlock()
	for _, f := range pending {
		f.mu.Lock()
		if f.pending {
			f.pending = false
			f.signaled = true
		}
		f.mu.Unlock()
	}
	return true
}

func (b *wgpuBackendImpl) WaitFence(native any, timeout time.Duration) error {
	f := native.(*fence)
	if b.FenceSignaled(f) {
		return nil
	}

	done := make(chan struct{})
	go func() {
		b.poll(true)
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		return gpu.ErrTimeout
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.signaled && !f.pending {
		// Waiting on a fence nothing will signal would block forever.
		return gpu.ErrTimeout
	}
	return nil
}

func (b *wgpuBackendImpl) ResetFence(native any) error {
	f := native.(*fence)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signaled = false
	return nil
}

func (b *wgpuBackendImpl) FenceSignaled(native any) bool {
	f := native.(*fence)
	f.mu.Lock()
	signaled, pending := f.signaled, f.pending
	f.mu.Unlock()
	if signaled || !pending {
		return signaled
	}
	b.poll(false)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled
}

func (b *wgpuBackendImpl) WaitIdle() error {
	b.poll(true)
	return nil
}

func (b *wgpuBackendImpl) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.swap.releaseCurrent()
	b.queue = nil
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
	return nil
}

func (b *wgpuBackendImpl) Device() *wgpu.Device {
	return b.device
}

func (b *wgpuBackendImpl) Queue() *wgpu.Queue {
	return b.queue
}

func (b *wgpuBackendImpl) Instance() *wgpu.Instance {
	return b.instance
}

func (b *wgpuBackendImpl) Adapter() *wgpu.Adapter {
	return b.adapter
}

func (b *wgpuBackendImpl) Surface() *wgpu.Surface {
	return b.surface
}
