package gpu

// PipelineBuilderOption is a functional option used to configure a PipelineDesc during construction.
type PipelineBuilderOption func(*PipelineDesc)

// NewGraphicsPipeline returns a graphics PipelineDesc with depth testing and writing enabled,
// back-face culling and triangle list topology, then applies options.
//
// Parameters:
//   - label: the debug label of the pipeline
//   - shader: the shader source with vertex and fragment entry points
//   - options: functional options overriding the defaults
//
// Returns:
//   - PipelineDesc: the configured description
func NewGraphicsPipeline(label string, shader ShaderSource, options ...PipelineBuilderOption) PipelineDesc {
	d := PipelineDesc{
		Label:        label,
		Kind:         PipelineGraphics,
		Shader:       shader,
		DepthTest:    true,
		DepthWrite:   true,
		DepthCompare: CompareLess,
		CullMode:     CullBack,
		Topology:     TopologyTriangleList,
	}
	for _, opt := range options {
		opt(&d)
	}
	return d
}

// NewComputePipeline returns a compute PipelineDesc.
//
// Parameters:
//   - label: the debug label of the pipeline
//   - shader: the shader source with a compute entry point
//   - options: functional options, usually WithLayouts
//
// Returns:
//   - PipelineDesc: the configured description
func NewComputePipeline(label string, shader ShaderSource, options ...PipelineBuilderOption) PipelineDesc {
	d := PipelineDesc{Label: label, Kind: PipelineCompute, Shader: shader}
	for _, opt := range options {
		opt(&d)
	}
	return d
}

// WithLayouts sets the descriptor set layouts, in set index order.
//
// Parameters:
//   - layouts: the layouts for sets 0..n-1
//
// Returns:
//   - PipelineBuilderOption: a function that sets the layouts for this pipeline
func WithLayouts(layouts ...*DescriptorSetLayout) PipelineBuilderOption {
	return func(d *PipelineDesc) {
		d.Layouts = layouts
	}
}

// WithVertexLayout sets the vertex buffer layout.
//
// Parameters:
//   - layout: the interleaved vertex layout
//
// Returns:
//   - PipelineBuilderOption: a function that sets the vertex layout for this pipeline
func WithVertexLayout(layout VertexLayout) PipelineBuilderOption {
	return func(d *PipelineDesc) {
		d.Vertex = &layout
	}
}

// WithColorTargets sets the formats of the color attachments.
//
// Parameters:
//   - formats: one format per color attachment
//
// Returns:
//   - PipelineBuilderOption: a function that sets the color targets for this pipeline
func WithColorTargets(formats ...Format) PipelineBuilderOption {
	return func(d *PipelineDesc) {
		d.ColorFormats = formats
	}
}

// WithBlendEnabled sets whether alpha blending is enabled on the color targets.
//
// Parameters:
//   - enabled: a boolean indicating whether blending should be enabled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the blend enabled state for this pipeline
func WithBlendEnabled(enabled bool) PipelineBuilderOption {
	return func(d *PipelineDesc) {
		d.Blend = enabled
	}
}

// WithDepth sets the depth attachment format and whether depth is tested and written.
//
// Parameters:
//   - format: the depth format, or FormatUndefined for no depth attachment
//   - test: whether depth testing is enabled
//   - write: whether depth writing is enabled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth state for this pipeline
func WithDepth(format Format, test, write bool) PipelineBuilderOption {
	return func(d *PipelineDesc) {
		d.DepthFormat = format
		d.DepthTest = test
		d.DepthWrite = write
	}
}

// WithDepthCompare sets the depth comparison function.
func WithDepthCompare(compare CompareFunc) PipelineBuilderOption {
	return func(d *PipelineDesc) {
		d.DepthCompare = compare
	}
}

// WithDepthBias sets the depth bias parameters for this pipeline.
//
// Parameters:
//   - bias: the constant depth bias to apply
//   - slopeScale: the slope scale depth bias to apply
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth bias parameters for this pipeline
func WithDepthBias(bias int32, slopeScale float32) PipelineBuilderOption {
	return func(d *PipelineDesc) {
		d.DepthBias = bias
		d.DepthBiasSlopeScale = slopeScale
	}
}

// WithCullMode sets the cull mode for this pipeline.
func WithCullMode(mode CullMode) PipelineBuilderOption {
	return func(d *PipelineDesc) {
		d.CullMode = mode
	}
}

// WithTopology sets the primitive topology for this pipeline.
func WithTopology(topology Topology) PipelineBuilderOption {
	return func(d *PipelineDesc) {
		d.Topology = topology
	}
}
