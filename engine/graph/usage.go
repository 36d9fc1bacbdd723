package graph

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
)

// PassKind is the queue work a pass records.
type PassKind int

const (
	// KindGraphical passes record render passes.
	KindGraphical PassKind = iota
	// KindCompute passes record compute dispatches.
	KindCompute
)

func (k PassKind) String() string {
	switch k {
	case KindGraphical:
		return "graphical"
	case KindCompute:
		return "compute"
	}
	return fmt.Sprintf("PassKind(%d)", int(k))
}

// Usage is how a pass accesses an image resource.
type Usage int

const (
	// UsageColorAttachment writes the image as a color attachment.
	UsageColorAttachment Usage = iota
	// UsageDepthAttachment reads and writes the image as a depth attachment.
	UsageDepthAttachment
	// UsageDepthReadOnly attaches the image for depth testing without writes.
	UsageDepthReadOnly
	// UsageSampled samples the image in a shader.
	UsageSampled
	// UsageStorageRead reads the image as a storage image.
	UsageStorageRead
	// UsageStorageWrite writes the image as a storage image.
	UsageStorageWrite
)

var usageNames = [...]string{"color attachment", "depth attachment", "depth read-only", "sampled", "storage read", "storage write"}

func (u Usage) String() string {
	if int(u) < len(usageNames) {
		return usageNames[u]
	}
	return fmt.Sprintf("Usage(%d)", int(u))
}

// IsWrite reports whether the usage writes the image.
func (u Usage) IsWrite() bool {
	return u == UsageColorAttachment || u == UsageDepthAttachment || u == UsageStorageWrite
}

// ImageUsage returns the image usage bit the allocation needs for u.
func (u Usage) ImageUsage() gpu.ImageUsage {
	switch u {
	case UsageColorAttachment:
		return gpu.ImageUsageColorAttachment
	case UsageDepthAttachment, UsageDepthReadOnly:
		return gpu.ImageUsageDepthAttachment
	case UsageSampled:
		return gpu.ImageUsageSampled
	}
	return gpu.ImageUsageStorage
}

// imageState is the layout, access and stage an image is in after a pass uses it.
type imageState struct {
	layout gpu.ImageLayout
	access gpu.Access
	stage  gpu.Stage
}

func (u Usage) state(kind PassKind) imageState {
	shaderStage := gpu.StageFragmentShader
	if kind == KindCompute {
		shaderStage = gpu.StageComputeShader
	}
	switch u {
	case UsageColorAttachment:
		return imageState{gpu.LayoutColorAttachment, gpu.AccessColorRead | gpu.AccessColorWrite, gpu.StageColorOutput}
	case UsageDepthAttachment:
		return imageState{gpu.LayoutDepthAttachment, gpu.AccessDepthRead | gpu.AccessDepthWrite, gpu.StageEarlyFragmentTests | gpu.StageLateFragmentTests}
	case UsageDepthReadOnly:
		return imageState{gpu.LayoutDepthReadOnly, gpu.AccessDepthRead, gpu.StageEarlyFragmentTests}
	case UsageSampled:
		return imageState{gpu.LayoutShaderRead, gpu.AccessShaderRead, shaderStage}
	case UsageStorageRead:
		return imageState{gpu.LayoutGeneral, gpu.AccessShaderRead, shaderStage}
	case UsageStorageWrite:
		return imageState{gpu.LayoutGeneral, gpu.AccessShaderWrite, shaderStage}
	}
	return imageState{gpu.LayoutUndefined, gpu.AccessNone, gpu.StageTop}
}

// needsBarrier reports whether moving from prev to next requires a dependency: a layout change,
// a read or write after a write, or a write after a read.
func needsBarrier(prev, next imageState) bool {
	if prev.layout != next.layout {
		return true
	}
	if prev.access.HasWrite() {
		return true
	}
	return next.access.HasWrite() && prev.access != gpu.AccessNone
}
