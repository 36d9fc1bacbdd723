package gpu

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/common"
)

// Format is the pixel format of an Image.
type Format int

const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatRGBA8UnormSrgb
	FormatBGRA8Unorm
	FormatBGRA8UnormSrgb
	FormatRGBA16Float
	FormatRGBA32Float
	FormatR32Float
	FormatDepth24Plus
	FormatDepth32Float
)

var formatNames = map[Format]string{
	FormatUndefined:      "Undefined",
	FormatRGBA8Unorm:     "RGBA8Unorm",
	FormatRGBA8UnormSrgb: "RGBA8UnormSrgb",
	FormatBGRA8Unorm:     "BGRA8Unorm",
	FormatBGRA8UnormSrgb: "BGRA8UnormSrgb",
	FormatRGBA16Float:    "RGBA16Float",
	FormatRGBA32Float:    "RGBA32Float",
	FormatR32Float:       "R32Float",
	FormatDepth24Plus:    "Depth24Plus",
	FormatDepth32Float:   "Depth32Float",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// BytesPerPixel returns the texel size of an uncompressed format, or 0 if undefined.
func (f Format) BytesPerPixel() uint32 {
	switch f {
	case FormatRGBA8Unorm, FormatRGBA8UnormSrgb, FormatBGRA8Unorm, FormatBGRA8UnormSrgb,
		FormatR32Float, FormatDepth24Plus, FormatDepth32Float:
		return 4
	case FormatRGBA16Float:
		return 8
	case FormatRGBA32Float:
		return 16
	}
	return 0
}

// IsDepth reports whether f is a depth format.
func (f Format) IsDepth() bool {
	return f == FormatDepth24Plus || f == FormatDepth32Float
}

// BufferUsage is a bit set describing how a Buffer may be used.
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndirect
	BufferUsageCopySrc
	BufferUsageCopyDst
)

// ImageUsage is a bit set describing how an Image may be used.
type ImageUsage uint32

const (
	ImageUsageColorAttachment ImageUsage = 1 << iota
	ImageUsageDepthAttachment
	ImageUsageInputAttachment
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageCopySrc
	ImageUsageCopyDst
)

// ImageDimension is the shape of an Image.
type ImageDimension int

const (
	// Image2D is a plain 2D image with a single layer.
	Image2D ImageDimension = iota
	// ImageCube is a 2D image with six layers viewed as a cube.
	ImageCube
	// Image3D is a volume; Extent.Depth holds its depth.
	Image3D
)

// Extent3D is the size of an Image. Depth is 1 for 2D and cube images.
type Extent3D struct {
	Width  uint32
	Height uint32
	Depth  uint32
}

// Extent2D returns the width and height.
func (e Extent3D) Extent2D() common.Extent2D {
	return common.Extent2D{Width: e.Width, Height: e.Height}
}

// ImageLayout is the access-optimized arrangement an Image is in.
type ImageLayout int

const (
	LayoutUndefined ImageLayout = iota
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutDepthReadOnly
	LayoutShaderRead
	LayoutGeneral
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresent
)

var layoutNames = [...]string{"Undefined", "ColorAttachment", "DepthAttachment", "DepthReadOnly",
	"ShaderRead", "General", "TransferSrc", "TransferDst", "Present"}

func (l ImageLayout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return fmt.Sprintf("ImageLayout(%d)", int(l))
}

// Access is a bit set of memory access types used in barriers.
type Access uint32

const (
	AccessNone          Access = 0
	AccessColorRead     Access = 1 << 0
	AccessColorWrite    Access = 1 << 1
	AccessDepthRead     Access = 1 << 2
	AccessDepthWrite    Access = 1 << 3
	AccessShaderRead    Access = 1 << 4
	AccessShaderWrite   Access = 1 << 5
	AccessTransferRead  Access = 1 << 6
	AccessTransferWrite Access = 1 << 7
)

// HasWrite reports whether any write bit is set.
func (a Access) HasWrite() bool {
	return a&(AccessColorWrite|AccessDepthWrite|AccessShaderWrite|AccessTransferWrite) != 0
}

// Stage is a bit set of pipeline stages used in barriers.
type Stage uint32

const (
	StageTop Stage = 1 << iota
	StageVertexShader
	StageFragmentShader
	StageComputeShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorOutput
	StageTransfer
	StageBottom
)

// ImageBarrier is a layout transition plus memory dependency on one image.
type ImageBarrier struct {
	// Name is the render graph resource name, kept for diagnostics.
	Name string
	// Image is the image being transitioned. It is nil in compiled plans until resolved.
	Image *Image

	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcAccess Access
	DstAccess Access
	SrcStage  Stage
	DstStage  Stage
}

func (b ImageBarrier) String() string {
	return fmt.Sprintf("%s: %s -> %s", b.Name, b.OldLayout, b.NewLayout)
}

// BufferDesc describes a Buffer allocation.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// ImageDesc describes an Image allocation.
type ImageDesc struct {
	Label     string
	Format    Format
	Dimension ImageDimension
	Extent    Extent3D
	Usage     ImageUsage
	// Resizable marks size-dependent attachments that follow the surface extent.
	Resizable bool
}

// Layers returns the number of array layers (6 for cubes, 1 otherwise).
func (d ImageDesc) Layers() uint32 {
	if d.Dimension == ImageCube {
		return 6
	}
	return 1
}

// LayerSize returns the byte size of one layer (the whole volume for 3D images).
func (d ImageDesc) LayerSize() uint64 {
	depth := uint64(1)
	if d.Dimension == Image3D {
		depth = uint64(max(d.Extent.Depth, 1))
	}
	return uint64(d.Extent.Width) * uint64(d.Extent.Height) * depth * uint64(d.Format.BytesPerPixel())
}

// FilterMode selects texel filtering.
type FilterMode int

const (
	FilterLinear FilterMode = iota
	FilterNearest
)

// AddressMode selects texture coordinate wrapping.
type AddressMode int

const (
	AddressRepeat AddressMode = iota
	AddressClampToEdge
	AddressMirrorRepeat
)

// SamplerDesc describes a Sampler.
type SamplerDesc struct {
	Label   string
	Filter  FilterMode
	Address AddressMode
	// Compare makes a depth comparison sampler (less-than), used for shadow lookups.
	Compare bool
}
