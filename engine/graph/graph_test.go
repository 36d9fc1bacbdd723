package graph_test

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu/headless_backend"
	"github.com/Carmen-Shannon/oxy-render/engine/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	shadowMap = graph.ResourceInfo{
		Format: gpu.FormatDepth32Float,
		Extent: gpu.Extent3D{Width: 1024, Height: 1024, Depth: 1},
		Usage:  graph.UsageDepthAttachment,
	}
	sceneColor = graph.ResourceInfo{Format: gpu.FormatRGBA16Float, Usage: graph.UsageColorAttachment, Resizable: true}
	sceneDepth = graph.ResourceInfo{Format: gpu.FormatDepth32Float, Usage: graph.UsageDepthAttachment, Resizable: true}
	swapchain  = graph.ResourceInfo{Format: gpu.FormatBGRA8UnormSrgb, Usage: graph.UsageColorAttachment, Presentable: true}
	sampled    = graph.ResourceInfo{Usage: graph.UsageSampled}
)

func buildFrame(t *testing.T) *graph.Plan {
	t.Helper()
	b := graph.NewBuilder()
	require.NoError(t, b.ImportExternal("swapchain", swapchain, gpu.LayoutUndefined))

	require.NoError(t, b.BeginPass("shadow", graph.KindGraphical))
	require.NoError(t, b.CreateTarget("shadow.map", shadowMap))

	require.NoError(t, b.BeginPass("forward", graph.KindGraphical))
	require.NoError(t, b.Read("shadow.map", sampled))
	require.NoError(t, b.CreateTarget("scene.color", sceneColor))
	require.NoError(t, b.CreateTarget("scene.depth", sceneDepth))

	require.NoError(t, b.BeginPass("sky", graph.KindGraphical))
	require.NoError(t, b.Read("scene.depth", graph.ResourceInfo{Usage: graph.UsageDepthReadOnly}))
	require.NoError(t, b.Write("scene.color"))

	require.NoError(t, b.BeginPass("gui", graph.KindGraphical))
	require.NoError(t, b.Read("scene.color", sampled))
	require.NoError(t, b.Write("swapchain"))

	plan, err := b.Compile()
	require.NoError(t, err)
	return plan
}

func TestCompileKeepsDeclarationOrder(t *testing.T) {
	plan := buildFrame(t)

	names := make([]string, 0, len(plan.Steps))
	for i, s := range plan.Steps {
		assert.Equal(t, i, s.Pass.Index)
		names = append(names, s.Pass.Name)
	}
	assert.Equal(t, []string{"shadow", "forward", "sky", "gui"}, names)
}

func TestCompileInsertsShadowTransition(t *testing.T) {
	plan := buildFrame(t)

	shadow, ok := plan.Step("shadow")
	require.True(t, ok)
	require.Len(t, shadow.Barriers, 1)
	assert.Equal(t, gpu.LayoutUndefined, shadow.Barriers[0].OldLayout)
	assert.Equal(t, gpu.LayoutDepthAttachment, shadow.Barriers[0].NewLayout)

	forward, _ := plan.Step("forward")
	var found bool
	for _, b := range forward.Barriers {
		if b.Name == "shadow.map" {
			found = true
			assert.Equal(t, gpu.LayoutDepthAttachment, b.OldLayout)
			assert.Equal(t, gpu.LayoutShaderRead, b.NewLayout)
			assert.Equal(t, gpu.AccessDepthRead|gpu.AccessDepthWrite, b.SrcAccess)
			assert.Equal(t, gpu.AccessShaderRead, b.DstAccess)
			assert.Equal(t, gpu.StageFragmentShader, b.DstStage)
		}
	}
	assert.True(t, found)
}

func TestCompileAccumulatingWriterKeepsProducer(t *testing.T) {
	plan := buildFrame(t)

	color, ok := plan.Resource("scene.color")
	require.True(t, ok)
	assert.Equal(t, 1, color.FirstWriter)
	assert.Equal(t, []int{1, 2}, color.Writers)
	assert.Equal(t, []int{3}, color.Readers)
	assert.Equal(t, gpu.ImageUsageColorAttachment|gpu.ImageUsageSampled, color.AllUsage)

	sky, _ := plan.Step("sky")
	byName := map[string]gpu.ImageBarrier{}
	for _, b := range sky.Barriers {
		byName[b.Name] = b
	}
	assert.Equal(t, gpu.LayoutDepthReadOnly, byName["scene.depth"].NewLayout)
	// Write after write on the same layout still orders the two passes.
	assert.Equal(t, gpu.LayoutColorAttachment, byName["scene.color"].OldLayout)
	assert.Equal(t, gpu.LayoutColorAttachment, byName["scene.color"].NewLayout)
}

func TestCompileEmitsFinalPresent(t *testing.T) {
	plan := buildFrame(t)

	require.Len(t, plan.Final, 1)
	assert.Equal(t, "swapchain", plan.Final[0].Name)
	assert.Equal(t, gpu.LayoutColorAttachment, plan.Final[0].OldLayout)
	assert.Equal(t, gpu.LayoutPresent, plan.Final[0].NewLayout)

	r, _ := plan.Resource("swapchain")
	assert.True(t, r.External)
	assert.Equal(t, -1, r.FirstWriter)
}

func TestReadUnknownResource(t *testing.T) {
	b := graph.NewBuilder()
	require.NoError(t, b.BeginPass("forward", graph.KindGraphical))

	err := b.Read("shadow.map", sampled)
	var unknown *graph.UnknownResourceError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "forward", unknown.Pass)
	assert.Equal(t, "shadow.map", unknown.Resource)

	// Sticky: later errors do not replace the first one.
	assert.Error(t, b.Write("nothing"))
	_, err = b.Compile()
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "shadow.map", unknown.Resource)
}

func TestReadBeforeWriterFails(t *testing.T) {
	b := graph.NewBuilder()
	require.NoError(t, b.BeginPass("forward", graph.KindGraphical))
	err := b.Read("env.irradiance", sampled)
	require.Error(t, err)

	b = graph.NewBuilder()
	require.NoError(t, b.BeginPass("irradiance", graph.KindCompute))
	require.NoError(t, b.ImportExternal("env.cubemap", graph.ResourceInfo{Usage: graph.UsageSampled}, gpu.LayoutShaderRead))
	require.NoError(t, b.Read("env.cubemap", sampled))
	_, err = b.Compile()
	require.NoError(t, err)
}

func TestDuplicateTarget(t *testing.T) {
	b := graph.NewBuilder()
	require.NoError(t, b.BeginPass("forward", graph.KindGraphical))
	require.NoError(t, b.CreateTarget("scene.color", sceneColor))
	require.NoError(t, b.BeginPass("sky", graph.KindGraphical))

	err := b.CreateTarget("scene.color", sceneColor)
	var dup *graph.DuplicateResourceError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "sky", dup.Pass)
	assert.Equal(t, "forward", dup.FirstWriter)
	assert.Contains(t, err.Error(), `"scene.color"`)
}

func TestWriteUnknownResource(t *testing.T) {
	b := graph.NewBuilder()
	require.NoError(t, b.BeginPass("gui", graph.KindGraphical))
	var unknown *graph.UnknownResourceError
	assert.ErrorAs(t, b.Write("swapchain"), &unknown)
}

func TestDeclarationErrors(t *testing.T) {
	b := graph.NewBuilder()
	assert.ErrorIs(t, b.CreateTarget("x", sceneColor), graph.ErrNoActivePass)

	b = graph.NewBuilder()
	require.NoError(t, b.BeginPass("a", graph.KindCompute))
	assert.ErrorIs(t, b.BeginPass("a", graph.KindCompute), graph.ErrDuplicatePass)
	_, err := b.Compile()
	assert.True(t, errors.Is(err, graph.ErrDuplicatePass))
}

func TestComputeStorageTransitions(t *testing.T) {
	b := graph.NewBuilder()
	require.NoError(t, b.BeginPass("panorama", graph.KindCompute))
	require.NoError(t, b.CreateTarget("env.cubemap", graph.ResourceInfo{
		Format: gpu.FormatRGBA16Float, Dimension: gpu.ImageCube,
		Extent: gpu.Extent3D{Width: 64, Height: 64, Depth: 1}, Usage: graph.UsageStorageWrite,
	}))
	require.NoError(t, b.BeginPass("irradiance", graph.KindCompute))
	require.NoError(t, b.Read("env.cubemap", sampled))
	require.NoError(t, b.BeginPass("sky", graph.KindGraphical))
	require.NoError(t, b.Read("env.cubemap", sampled))

	plan, err := b.Compile()
	require.NoError(t, err)

	irr, _ := plan.Step("irradiance")
	require.Len(t, irr.Barriers, 1)
	assert.Equal(t, gpu.LayoutGeneral, irr.Barriers[0].OldLayout)
	assert.Equal(t, gpu.StageComputeShader, irr.Barriers[0].SrcStage)
	assert.Equal(t, gpu.StageComputeShader, irr.Barriers[0].DstStage)

	// Two reads in a row need no barrier.
	sky, _ := plan.Step("sky")
	assert.Empty(t, sky.Barriers)
}

func TestResolveUsesTrackedLayout(t *testing.T) {
	dev := gpu.NewDevice(headless_backend.NewHeadlessBackend())
	defer dev.Release()

	img, err := dev.CreateImage(gpu.ImageDesc{
		Label: "env.cubemap", Format: gpu.FormatRGBA16Float, Dimension: gpu.ImageCube,
		Extent: gpu.Extent3D{Width: 4, Height: 4}, Usage: gpu.ImageUsageStorage | gpu.ImageUsageSampled,
	})
	require.NoError(t, err)
	lookup := func(name string) *gpu.Image {
		if name == "env.cubemap" {
			return img
		}
		return nil
	}

	planned := []gpu.ImageBarrier{{
		Name: "env.cubemap", OldLayout: gpu.LayoutUndefined, NewLayout: gpu.LayoutGeneral,
		DstAccess: gpu.AccessShaderWrite,
	}}
	got, err := graph.Resolve(planned, lookup)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Same(t, img, got[0].Image)
	assert.Equal(t, gpu.LayoutUndefined, got[0].OldLayout)

	// Once the image has left Undefined the recorded transition keeps its contents.
	pool, err := dev.CreateCommandPool("test")
	require.NoError(t, err)
	cb := pool.Allocate("test")
	require.NoError(t, cb.Begin())
	cb.PipelineBarrier(gpu.ImageBarrier{Name: "env.cubemap", Image: img, NewLayout: gpu.LayoutShaderRead})
	require.NoError(t, cb.End())

	got, err = graph.Resolve(planned, lookup)
	require.NoError(t, err)
	assert.Equal(t, gpu.LayoutShaderRead, got[0].OldLayout)

	readAgain := []gpu.ImageBarrier{{Name: "env.cubemap", NewLayout: gpu.LayoutShaderRead, SrcAccess: gpu.AccessShaderRead, DstAccess: gpu.AccessShaderRead}}
	got, err = graph.Resolve(readAgain, lookup)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = graph.Resolve([]gpu.ImageBarrier{{Name: "missing"}}, lookup)
	assert.Error(t, err)
}

func TestCheckUsage(t *testing.T) {
	dev := gpu.NewDevice(headless_backend.NewHeadlessBackend())
	defer dev.Release()

	b := graph.NewBuilder()
	require.NoError(t, b.BeginPass("shadow", graph.KindGraphical))
	require.NoError(t, b.CreateTarget("shadow.map", shadowMap))
	require.NoError(t, b.BeginPass("forward", graph.KindGraphical))
	assert.True(t, b.Declared("shadow.map"))
	assert.False(t, b.Declared("voxel.volume"))
	require.NoError(t, b.Read("shadow.map", sampled))
	plan, err := b.Compile()
	require.NoError(t, err)

	depthOnly, err := dev.CreateImage(gpu.ImageDesc{Label: "shadow.map", Format: gpu.FormatDepth32Float,
		Extent: gpu.Extent3D{Width: 8, Height: 8}, Usage: gpu.ImageUsageDepthAttachment})
	require.NoError(t, err)
	err = plan.CheckUsage(func(string) *gpu.Image { return depthOnly })
	assert.ErrorContains(t, err, "shadow.map")

	sampledDepth, err := dev.CreateImage(gpu.ImageDesc{Label: "shadow.map", Format: gpu.FormatDepth32Float,
		Extent: gpu.Extent3D{Width: 8, Height: 8}, Usage: gpu.ImageUsageDepthAttachment | gpu.ImageUsageSampled})
	require.NoError(t, err)
	assert.NoError(t, plan.CheckUsage(func(string) *gpu.Image { return sampledDepth }))
	assert.Error(t, plan.CheckUsage(func(string) *gpu.Image { return nil }))
}
