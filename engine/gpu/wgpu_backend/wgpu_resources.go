package wgpu_backend

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// Texture copies to buffers must use a row pitch that is a multiple of this.
const copyRowAlignment = 256

type viewKey struct {
	dim   wgpu.TextureViewDimension
	layer int
}

// texture pairs a WebGPU texture with the views created for it on demand.
type texture struct {
	tex   *wgpu.Texture
	desc  gpu.ImageDesc
	views map[viewKey]*wgpu.TextureView
	swap  bool
}

func (t *texture) viewFor(dim wgpu.TextureViewDimension, layer int) (*wgpu.TextureView, error) {
	if t.tex == nil {
		return nil, fmt.Errorf("image %q has no texture (swapchain image not acquired?)", t.desc.Label)
	}
	key := viewKey{dim: dim, layer: layer}
	if v, ok := t.views[key]; ok {
		return v, nil
	}
	desc := &wgpu.TextureViewDescriptor{
		Label:           t.desc.Label,
		Format:          toTextureFormat(t.desc.Format),
		Dimension:       dim,
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: t.desc.Layers(),
		Aspect:          wgpu.TextureAspectAll,
	}
	if layer >= 0 {
		desc.BaseArrayLayer = uint32(layer)
		desc.ArrayLayerCount = 1
	}
	if t.desc.Dimension == gpu.Image3D {
		desc.ArrayLayerCount = 1
	}
	v, err := t.tex.CreateView(desc)
	if err != nil {
		return nil, err
	}
	if t.views == nil {
		t.views = make(map[viewKey]*wgpu.TextureView)
	}
	t.views[key] = v
	return v, nil
}

// layerView returns a single-layer view used as a render attachment.
func (t *texture) layerView(layer uint32) (*wgpu.TextureView, error) {
	return t.viewFor(wgpu.TextureViewDimension2D, int(layer))
}

// bindingView returns the whole-resource view a shader binding expects.
func (t *texture) bindingView(dim gpu.ViewDimension) (*wgpu.TextureView, error) {
	return t.viewFor(toViewDimension(dim), -1)
}

func (t *texture) releaseViews() {
	for k, v := range t.views {
		v.Release()
		delete(t.views, k)
	}
}

func (t *texture) releaseCurrent() {
	if t == nil {
		return
	}
	t.releaseViews()
	if t.tex != nil {
		t.tex.Release()
		t.tex = nil
	}
}

func (b *wgpuBackendImpl) CreateBuffer(desc gpu.BufferDesc) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            desc.Label,
		Size:             common.AlignUp64(desc.Size, 4),
		Usage:            toBufferUsage(desc.Usage),
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gpu.ErrOutOfMemory, err)
	}
	return buf, nil
}

func (b *wgpuBackendImpl) CreateImage(desc gpu.ImageDesc) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	format := toTextureFormat(desc.Format)
	if format == wgpu.TextureFormatUndefined {
		return nil, fmt.Errorf("unsupported format %s", desc.Format)
	}
	dimension := wgpu.TextureDimension2D
	layers := desc.Layers()
	if desc.Dimension == gpu.Image3D {
		dimension = wgpu.TextureDimension3D
		layers = desc.Extent.Depth
	}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Extent.Width,
			Height:             desc.Extent.Height,
			DepthOrArrayLayers: layers,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     dimension,
		Format:        format,
		Usage:         toTextureUsage(desc.Usage, desc.Format),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gpu.ErrOutOfMemory, err)
	}
	return &texture{tex: tex, desc: desc}, nil
}

func (b *wgpuBackendImpl) CreateSampler(desc gpu.SamplerDesc) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	filter := wgpu.FilterModeLinear
	mipmap := wgpu.MipmapFilterModeLinear
	if desc.Filter == gpu.FilterNearest {
		filter = wgpu.FilterModeNearest
		mipmap = wgpu.MipmapFilterModeNearest
	}
	address := toAddressMode(desc.Address)
	sd := &wgpu.SamplerDescriptor{
		Label:         desc.Label,
		AddressModeU:  address,
		AddressModeV:  address,
		AddressModeW:  address,
		MagFilter:     filter,
		MinFilter:     filter,
		MipmapFilter:  mipmap,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	}
	if desc.Compare {
		sd.Compare = wgpu.CompareFunctionLess
	}
	return b.device.CreateSampler(sd)
}

func (b *wgpuBackendImpl) CreateDescriptorSetLayout(label string, bindings []gpu.LayoutBinding) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(bindings))
	for _, lb := range bindings {
		entries = append(entries, toLayoutEntry(lb))
	}
	return b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   label,
		Entries: entries,
	})
}

func (b *wgpuBackendImpl) CreateDescriptorSet(layout *gpu.DescriptorSetLayout, entries []gpu.DescriptorEntry) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bindGroupEntries := make([]wgpu.BindGroupEntry, 0, len(entries))
	for _, e := range entries {
		lb, _ := layout.Binding(e.Binding)
		switch {
		case e.Buffer != nil:
			size := wgpu.WholeSize
			if lb.Dynamic && lb.Size > 0 {
				size = lb.Size
			}
			bindGroupEntries = append(bindGroupEntries, wgpu.BindGroupEntry{
				Binding: e.Binding,
				Buffer:  e.Buffer.Native().(*wgpu.Buffer),
				Offset:  0,
				Size:    size,
			})
		case e.Image != nil:
			view, err := e.Image.Native().(*texture).bindingView(lb.View)
			if err != nil {
				return nil, err
			}
			bindGroupEntries = append(bindGroupEntries, wgpu.BindGroupEntry{
				Binding:     e.Binding,
				TextureView: view,
			})
		case e.Sampler != nil:
			bindGroupEntries = append(bindGroupEntries, wgpu.BindGroupEntry{
				Binding: e.Binding,
				Sampler: e.Sampler.Native().(*wgpu.Sampler),
			})
		}
	}

	return b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   layout.Label(),
		Layout:  layout.Native().(*wgpu.BindGroupLayout),
		Entries: bindGroupEntries,
	})
}

func (b *wgpuBackendImpl) CreatePipeline(desc gpu.PipelineDesc) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Shader.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Shader.Code,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("shader module %q: %w", desc.Shader.Label, err)
	}

	bindGroupLayouts := make([]*wgpu.BindGroupLayout, 0, len(desc.Layouts))
	for _, l := range desc.Layouts {
		bindGroupLayouts = append(bindGroupLayouts, l.Native().(*wgpu.BindGroupLayout))
	}
	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		module.Release()
		return nil, err
	}

	native := &pipelineNative{module: module, layout: layout}
	if desc.Kind == gpu.PipelineCompute {
		native.compute, err = b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label:  desc.Label + " Compute Pipeline",
			Layout: layout,
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     module,
				EntryPoint: desc.Shader.ComputeEntry,
			},
		})
	} else {
		native.render, err = b.device.CreateRenderPipeline(renderPipelineDescriptor(desc, module, layout))
	}
	if err != nil {
		native.release()
		return nil, err
	}
	return native, nil
}

func renderPipelineDescriptor(desc gpu.PipelineDesc, module *wgpu.ShaderModule, layout *wgpu.PipelineLayout) *wgpu.RenderPipelineDescriptor {
	var buffers []wgpu.VertexBufferLayout
	if desc.Vertex != nil {
		attrs := make([]wgpu.VertexAttribute, 0, len(desc.Vertex.Attributes))
		for _, a := range desc.Vertex.Attributes {
			attrs = append(attrs, wgpu.VertexAttribute{
				Format:         toVertexFormat(a.Format),
				Offset:         uint64(a.Offset),
				ShaderLocation: a.Location,
			})
		}
		buffers = []wgpu.VertexBufferLayout{{
			ArrayStride: uint64(desc.Vertex.Stride),
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes:  attrs,
		}}
	}

	rpd := &wgpu.RenderPipelineDescriptor{
		Label:  desc.Label + " Render Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: desc.Shader.VertexEntry,
			Buffers:    buffers,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  toTopology(desc.Topology),
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  toCullMode(desc.CullMode),
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}

	if len(desc.ColorFormats) > 0 {
		targets := make([]wgpu.ColorTargetState, 0, len(desc.ColorFormats))
		for _, f := range desc.ColorFormats {
			state := wgpu.ColorTargetState{
				Format:    toTextureFormat(f),
				WriteMask: wgpu.ColorWriteMaskAll,
			}
			if desc.Blend {
				blend := alphaBlend
				state.Blend = &blend
			}
			targets = append(targets, state)
		}
		rpd.Fragment = &wgpu.FragmentState{
			Module:     module,
			EntryPoint: desc.Shader.FragmentEntry,
			Targets:    targets,
		}
	}

	if desc.DepthFormat != gpu.FormatUndefined {
		depthCompare := toCompare(desc.DepthCompare)
		if !desc.DepthTest {
			depthCompare = wgpu.CompareFunctionAlways
		}
		rpd.DepthStencil = &wgpu.DepthStencilState{
			Format:              toTextureFormat(desc.DepthFormat),
			DepthWriteEnabled:   desc.DepthWrite,
			DepthCompare:        depthCompare,
			DepthBias:           desc.DepthBias,
			DepthBiasSlopeScale: desc.DepthBiasSlopeScale,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}
	return rpd
}

func (p *pipelineNative) release() {
	if p.render != nil {
		p.render.Release()
	}
	if p.compute != nil {
		p.compute.Release()
	}
	if p.layout != nil {
		p.layout.Release()
	}
	if p.module != nil {
		p.module.Release()
	}
}

func (b *wgpuBackendImpl) Destroy(kind gpu.Kind, native any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch n := native.(type) {
	case *wgpu.Buffer:
		n.Release()
	case *texture:
		n.releaseCurrent()
	case *wgpu.Sampler:
		n.Release()
	case *wgpu.BindGroupLayout:
		n.Release()
	case *wgpu.BindGroup:
		n.Release()
	case *pipelineNative:
		n.release()
	case *fence, *semaphore:
	default:
		panic(fmt.Sprintf("wgpu backend: cannot destroy %s of type %T", kind, native))
	}
}

func (b *wgpuBackendImpl) WriteBuffer(buf *gpu.Buffer, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// WriteBuffer needs 4-byte aligned sizes; pad the tail with zeros.
	if rem := len(data) % 4; rem != 0 {
		padded := make([]byte, len(data)+4-rem)
		copy(padded, data)
		data = padded
	}
	return b.queue.WriteBuffer(buf.Native().(*wgpu.Buffer), offset, data)
}

func (b *wgpuBackendImpl) ReadBuffer(buf *gpu.Buffer, offset, size uint64) ([]byte, error) {
	start := offset &^ 3
	span := common.AlignUp64(offset+size, 4) - start

	b.mu.Lock()
	staging, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: buf.Label() + " Readback",
		Size:  span,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", gpu.ErrOutOfMemory, err)
	}
	defer staging.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	encoder.CopyBufferToBuffer(buf.Native().(*wgpu.Buffer), start, staging, 0, span)
	err = b.finishAndSubmit(encoder)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	data, err := b.mapRead(staging, span)
	if err != nil {
		return nil, err
	}
	return data[offset-start : offset-start+size], nil
}

func (b *wgpuBackendImpl) WriteImage(img *gpu.Image, layer uint32, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := img.Native().(*texture)
	desc := t.desc
	origin, extent := copyRegion(desc, layer)
	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Origin:   origin,
			Aspect:   wgpu.TextureAspectAll,
		},
		data,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  desc.Extent.Width * desc.Format.BytesPerPixel(),
			RowsPerImage: desc.Extent.Height,
		},
		&extent,
	)
	return nil
}

func (b *wgpuBackendImpl) ReadImage(img *gpu.Image, layer uint32) ([]byte, error) {
	t := img.Native().(*texture)
	desc := t.desc
	if desc.Format == gpu.FormatDepth24Plus {
		return nil, errors.New("depth24plus images cannot be read back")
	}
	row := desc.Extent.Width * desc.Format.BytesPerPixel()
	pitch := common.AlignUp(row, copyRowAlignment)
	origin, extent := copyRegion(desc, layer)
	size := uint64(pitch) * uint64(desc.Extent.Height) * uint64(extent.DepthOrArrayLayers)

	b.mu.Lock()
	staging, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label + " Readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", gpu.ErrOutOfMemory, err)
	}
	defer staging.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{Texture: t.tex, MipLevel: 0, Origin: origin, Aspect: wgpu.TextureAspectAll},
		&wgpu.ImageCopyBuffer{
			Buffer: staging,
			Layout: wgpu.TextureDataLayout{Offset: 0, BytesPerRow: pitch, RowsPerImage: desc.Extent.Height},
		},
		&extent,
	)
	err = b.finishAndSubmit(encoder)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	padded, err := b.mapRead(staging, size)
	if err != nil {
		return nil, err
	}
	rows := desc.Extent.Height * extent.DepthOrArrayLayers
	out := make([]byte, 0, uint64(row)*uint64(rows))
	for r := range rows {
		start := r * pitch
		out = append(out, padded[start:start+row]...)
	}
	return out, nil
}

func copyRegion(desc gpu.ImageDesc, layer uint32) (wgpu.Origin3D, wgpu.Extent3D) {
	extent := wgpu.Extent3D{Width: desc.Extent.Width, Height: desc.Extent.Height, DepthOrArrayLayers: 1}
	if desc.Dimension == gpu.Image3D {
		extent.DepthOrArrayLayers = desc.Extent.Depth
		return wgpu.Origin3D{}, extent
	}
	return wgpu.Origin3D{Z: layer}, extent
}

func (b *wgpuBackendImpl) finishAndSubmit(encoder *wgpu.CommandEncoder) error {
	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		return fmt.Errorf("%w: %v", gpu.ErrSubmissionFailed, err)
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	encoder.Release()
	return nil
}

// mapRead maps staging for reading, waits on the device until the map completes and copies
// the mapped range out.
func (b *wgpuBackendImpl) mapRead(staging *wgpu.Buffer, size uint64) ([]byte, error) {
	var status wgpu.BufferMapAsyncStatus
	err := staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	})
	if err != nil {
		return nil, err
	}
	b.poll(true)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("buffer map failed with status %v", status)
	}
	out := make([]byte, size)
	copy(out, staging.GetMappedRange(0, uint(size)))
	staging.Unmap()
	return out, nil
}
