package gpu

import (
	"errors"
	"fmt"
)

// PipelineKind selects the pipeline bind point.
type PipelineKind int

const (
	PipelineGraphics PipelineKind = iota
	PipelineCompute
)

func (k PipelineKind) String() string {
	if k == PipelineCompute {
		return "compute"
	}
	return "graphics"
}

// CullMode selects which triangle faces are discarded.
type CullMode int

const (
	CullBack CullMode = iota
	CullFront
	CullNone
)

// Topology is the primitive assembly mode.
type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyLineList
)

// CompareFunc is the depth comparison function.
type CompareFunc int

const (
	CompareLess CompareFunc = iota
	CompareLessEqual
	CompareGreater
	CompareAlways
)

// VertexFormat is the type of one vertex attribute.
type VertexFormat int

const (
	VertexFloat32x2 VertexFormat = iota
	VertexFloat32x3
	VertexFloat32x4
)

// VertexAttribute is one attribute inside an interleaved vertex.
type VertexAttribute struct {
	Location uint32
	Offset   uint32
	Format   VertexFormat
}

// VertexLayout is the interleaved layout of the single vertex buffer a pipeline reads.
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

// ShaderSource holds WGSL code and the entry points a pipeline uses from it.
type ShaderSource struct {
	Label         string
	Code          string
	VertexEntry   string
	FragmentEntry string
	ComputeEntry  string
}

// PipelineDesc describes a graphics or compute pipeline.
type PipelineDesc struct {
	Label  string
	Kind   PipelineKind
	Shader ShaderSource
	// Layouts holds the descriptor set layouts in set index order.
	Layouts []*DescriptorSetLayout
	// Vertex is the vertex buffer layout, or nil for pipelines that generate vertices.
	Vertex *VertexLayout

	ColorFormats        []Format
	Blend               bool
	DepthFormat         Format
	DepthTest           bool
	DepthWrite          bool
	DepthCompare        CompareFunc
	DepthBias           int32
	DepthBiasSlopeScale float32
	CullMode            CullMode
	Topology            Topology
}

// Validate checks that the description names the entry points and targets its kind needs.
//
// Returns:
//   - error: a description of the first problem found
func (d PipelineDesc) Validate() error {
	if d.Shader.Code == "" {
		return errors.New("shader code is empty")
	}
	if d.Kind == PipelineCompute {
		if d.Shader.ComputeEntry == "" {
			return errors.New("compute pipeline needs a compute entry point")
		}
		return nil
	}
	if d.Shader.VertexEntry == "" {
		return errors.New("graphics pipeline needs a vertex entry point")
	}
	if len(d.ColorFormats) == 0 && d.DepthFormat == FormatUndefined {
		return errors.New("graphics pipeline has no color or depth target")
	}
	if len(d.ColorFormats) > 0 && d.Shader.FragmentEntry == "" {
		return errors.New("graphics pipeline with color targets needs a fragment entry point")
	}
	for i, l := range d.Layouts {
		if l == nil {
			return fmt.Errorf("descriptor set layout %d is nil", i)
		}
	}
	return nil
}

// Pipeline is a compiled graphics or compute pipeline.
type Pipeline struct {
	resource
	desc PipelineDesc
}

// Desc returns the description the pipeline was created with.
func (p *Pipeline) Desc() PipelineDesc {
	return p.desc
}

// PipelineKind returns the bind point of the pipeline.
func (p *Pipeline) PipelineKind() PipelineKind {
	return p.desc.Kind
}
