package pass

import (
	_ "embed"

	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
)

var (
	//go:embed assets/shadow.wgsl
	shadowSource string

	//go:embed assets/panorama.wgsl
	panoramaSource string

	//go:embed assets/irradiance.wgsl
	irradianceSource string

	//go:embed assets/voxel.wgsl
	voxelSource string

	//go:embed assets/forward.wgsl
	forwardSource string

	//go:embed assets/sky.wgsl
	skySource string

	//go:embed assets/composite.wgsl
	compositeSource string

	//go:embed assets/gui.wgsl
	guiSource string
)

// Shaders that read the shared uniform blocks pull them in with include lines.
var (
	shadowShader  = mustPreprocess("shadow", shadowSource)
	forwardShader = mustPreprocess("forward", forwardSource)
)

func graphicsShader(label, code string) gpu.ShaderSource {
	return gpu.ShaderSource{Label: label, Code: code, VertexEntry: "vs_main", FragmentEntry: "fs_main"}
}

func depthOnlyShader(label, code string) gpu.ShaderSource {
	return gpu.ShaderSource{Label: label, Code: code, VertexEntry: "vs_main"}
}

func computeShader(label, code string) gpu.ShaderSource {
	return gpu.ShaderSource{Label: label, Code: code, ComputeEntry: "cs_main"}
}
