package wgpu_backend

import (
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

var textureFormats = map[gpu.Format]wgpu.TextureFormat{
	gpu.FormatRGBA8Unorm:     wgpu.TextureFormatRGBA8Unorm,
	gpu.FormatRGBA8UnormSrgb: wgpu.TextureFormatRGBA8UnormSrgb,
	gpu.FormatBGRA8Unorm:     wgpu.TextureFormatBGRA8Unorm,
	gpu.FormatBGRA8UnormSrgb: wgpu.TextureFormatBGRA8UnormSrgb,
	gpu.FormatRGBA16Float:    wgpu.TextureFormatRGBA16Float,
	gpu.FormatRGBA32Float:    wgpu.TextureFormatRGBA32Float,
	gpu.FormatR32Float:       wgpu.TextureFormatR32Float,
	gpu.FormatDepth24Plus:    wgpu.TextureFormatDepth24Plus,
	gpu.FormatDepth32Float:   wgpu.TextureFormatDepth32Float,
}

func toTextureFormat(f gpu.Format) wgpu.TextureFormat {
	if tf, ok := textureFormats[f]; ok {
		return tf
	}
	return wgpu.TextureFormatUndefined
}

func fromTextureFormat(tf wgpu.TextureFormat) gpu.Format {
	for f, v := range textureFormats {
		if v == tf {
			return f
		}
	}
	return gpu.FormatUndefined
}

func toBufferUsage(u gpu.BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u&gpu.BufferUsageVertex != 0 {
		out |= wgpu.BufferUsageVertex
	}
	if u&gpu.BufferUsageIndex != 0 {
		out |= wgpu.BufferUsageIndex
	}
	if u&gpu.BufferUsageUniform != 0 {
		out |= wgpu.BufferUsageUniform
	}
	if u&gpu.BufferUsageStorage != 0 {
		out |= wgpu.BufferUsageStorage
	}
	if u&gpu.BufferUsageIndirect != 0 {
		out |= wgpu.BufferUsageIndirect
	}
	// Every buffer can be uploaded to and read back.
	return out | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
}

func toTextureUsage(u gpu.ImageUsage, f gpu.Format) wgpu.TextureUsage {
	var out wgpu.TextureUsage
	if u&(gpu.ImageUsageColorAttachment|gpu.ImageUsageDepthAttachment|gpu.ImageUsageInputAttachment) != 0 {
		out |= wgpu.TextureUsageRenderAttachment
	}
	if u&(gpu.ImageUsageSampled|gpu.ImageUsageInputAttachment) != 0 {
		out |= wgpu.TextureUsageTextureBinding
	}
	if u&gpu.ImageUsageStorage != 0 {
		out |= wgpu.TextureUsageStorageBinding
	}
	if u&gpu.ImageUsageCopyDst != 0 {
		out |= wgpu.TextureUsageCopyDst
	}
	if u&gpu.ImageUsageCopySrc != 0 {
		out |= wgpu.TextureUsageCopySrc
	}
	// Depth24Plus has no defined texel layout and cannot be copied.
	if f != gpu.FormatDepth24Plus {
		out |= wgpu.TextureUsageCopyDst | wgpu.TextureUsageCopySrc
	}
	return out
}

func toViewDimension(v gpu.ViewDimension) wgpu.TextureViewDimension {
	switch v {
	case gpu.View2DArray:
		return wgpu.TextureViewDimension2DArray
	case gpu.ViewCube:
		return wgpu.TextureViewDimensionCube
	case gpu.View3D:
		return wgpu.TextureViewDimension3D
	}
	return wgpu.TextureViewDimension2D
}

func toShaderStage(v gpu.ShaderVisibility) wgpu.ShaderStage {
	var out wgpu.ShaderStage
	if v&gpu.VisibleVertex != 0 {
		out |= wgpu.ShaderStageVertex
	}
	if v&gpu.VisibleFragment != 0 {
		out |= wgpu.ShaderStageFragment
	}
	if v&gpu.VisibleCompute != 0 {
		out |= wgpu.ShaderStageCompute
	}
	return out
}

func toLayoutEntry(b gpu.LayoutBinding) wgpu.BindGroupLayoutEntry {
	e := wgpu.BindGroupLayoutEntry{
		Binding:    b.Binding,
		Visibility: toShaderStage(b.Visibility),
	}
	switch b.Type {
	case gpu.BindingUniformBuffer:
		e.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform, HasDynamicOffset: b.Dynamic, MinBindingSize: b.Size}
	case gpu.BindingStorageBuffer:
		e.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage, HasDynamicOffset: b.Dynamic, MinBindingSize: b.Size}
	case gpu.BindingReadOnlyStorageBuffer:
		e.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage, HasDynamicOffset: b.Dynamic, MinBindingSize: b.Size}
	case gpu.BindingSampledImage:
		e.Texture = wgpu.TextureBindingLayout{SampleType: wgpu.TextureSampleTypeFloat, ViewDimension: toViewDimension(b.View)}
	case gpu.BindingDepthImage:
		e.Texture = wgpu.TextureBindingLayout{SampleType: wgpu.TextureSampleTypeDepth, ViewDimension: toViewDimension(b.View)}
	case gpu.BindingStorageImage:
		e.StorageTexture = wgpu.StorageTextureBindingLayout{
			Access:        wgpu.StorageTextureAccessWriteOnly,
			Format:        toTextureFormat(b.Format),
			ViewDimension: toViewDimension(b.View),
		}
	case gpu.BindingSampler:
		e.Sampler = wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}
	case gpu.BindingComparisonSampler:
		e.Sampler = wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeComparison}
	}
	return e
}

func toCullMode(c gpu.CullMode) wgpu.CullMode {
	switch c {
	case gpu.CullFront:
		return wgpu.CullModeFront
	case gpu.CullNone:
		return wgpu.CullModeNone
	}
	return wgpu.CullModeBack
}

func toTopology(t gpu.Topology) wgpu.PrimitiveTopology {
	switch t {
	case gpu.TopologyTriangleStrip:
		return wgpu.PrimitiveTopologyTriangleStrip
	case gpu.TopologyLineList:
		return wgpu.PrimitiveTopologyLineList
	}
	return wgpu.PrimitiveTopologyTriangleList
}

func toCompare(c gpu.CompareFunc) wgpu.CompareFunction {
	switch c {
	case gpu.CompareLessEqual:
		return wgpu.CompareFunctionLessEqual
	case gpu.CompareGreater:
		return wgpu.CompareFunctionGreater
	case gpu.CompareAlways:
		return wgpu.CompareFunctionAlways
	}
	return wgpu.CompareFunctionLess
}

func toVertexFormat(f gpu.VertexFormat) wgpu.VertexFormat {
	switch f {
	case gpu.VertexFloat32x2:
		return wgpu.VertexFormatFloat32x2
	case gpu.VertexFloat32x4:
		return wgpu.VertexFormatFloat32x4
	}
	return wgpu.VertexFormatFloat32x3
}

func toAddressMode(a gpu.AddressMode) wgpu.AddressMode {
	switch a {
	case gpu.AddressClampToEdge:
		return wgpu.AddressModeClampToEdge
	case gpu.AddressMirrorRepeat:
		return wgpu.AddressModeMirrorRepeat
	}
	return wgpu.AddressModeRepeat
}

func toLoadOp(l gpu.LoadOp) wgpu.LoadOp {
	if l == gpu.LoadLoad {
		return wgpu.LoadOpLoad
	}
	return wgpu.LoadOpClear
}

var alphaBlend = wgpu.BlendState{
	Color: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorSrcAlpha,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
	Alpha: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
}
