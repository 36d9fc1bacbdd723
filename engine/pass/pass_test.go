package pass_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/assets"
	"github.com/Carmen-Shannon/oxy-render/engine/frame"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu/headless_backend"
	"github.com/Carmen-Shannon/oxy-render/engine/graph"
	"github.com/Carmen-Shannon/oxy-render/engine/pass"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFrames = 2

// harness sets passes up on a headless device and records frames the way the renderer does.
type harness struct {
	t       *testing.T
	dev     gpu.Device
	backend headless_backend.HeadlessBackend
	ctx     *pass.Context
	passes  []pass.Pass
	plan    *graph.Plan
	frames  []*frame.Frame
	count   uint32
}

func newContext(t *testing.T) (*pass.Context, gpu.Device, headless_backend.HeadlessBackend) {
	t.Helper()
	backend := headless_backend.NewHeadlessBackend()
	dev := gpu.NewDevice(backend)
	t.Cleanup(func() { _ = dev.Release() })
	require.NoError(t, dev.ConfigureSurface(common.Extent2D{Width: 64, Height: 64}))
	fallbacks, err := assets.NewFallbacks(dev)
	require.NoError(t, err)
	return pass.NewContext(dev, fallbacks, nil), dev, backend
}

func newHarness(t *testing.T, factories []pass.Factory) *harness {
	t.Helper()
	ctx, dev, backend := newContext(t)
	h := &harness{t: t, dev: dev, backend: backend, ctx: ctx}

	b := graph.NewBuilder()
	require.NoError(t, b.ImportExternal(pass.SwapchainTarget, graph.ResourceInfo{
		Format:      dev.SurfaceFormat(),
		Usage:       graph.UsageColorAttachment,
		Presentable: true,
	}, gpu.LayoutUndefined))
	for _, factory := range factories {
		p := factory(ctx)
		require.NoError(t, p.SetupAttachments(b), p.Name())
		h.passes = append(h.passes, p)
	}
	plan, err := b.Compile()
	require.NoError(t, err)
	require.NoError(t, plan.CheckUsage(ctx.Target))
	h.plan = plan
	for _, p := range h.passes {
		require.NoError(t, p.SetupUniforms(testFrames), p.Name())
		require.NoError(t, p.SetupShaderPasses(), p.Name())
	}
	for i := range testFrames {
		f, err := frame.New(dev, i)
		require.NoError(t, err)
		h.frames = append(h.frames, f)
	}
	return h
}

func (h *harness) pass(name string) pass.Pass {
	for _, p := range h.passes {
		if p.Name() == name {
			return p
		}
	}
	h.t.Fatalf("no pass %q", name)
	return nil
}

// render records, submits and presents one frame.
func (h *harness) render(s *scene.Snapshot) {
	t := h.t
	t.Helper()
	f := h.frames[int(h.count)%len(h.frames)]
	require.NoError(t, f.Wait(context.Background()))
	require.NoError(t, f.Start())
	idx, err := h.dev.AcquireNextImage(f.ImageAcquired())
	require.NoError(t, err)
	h.ctx.SetTarget(pass.SwapchainTarget, h.dev.SwapchainImage(idx))

	cmd := f.CommandBuffer()
	for i, p := range h.passes {
		barriers, err := graph.Resolve(h.plan.Steps[i].Barriers, h.ctx.Target)
		require.NoError(t, err)
		cmd.PipelineBarrier(barriers...)
		require.NoError(t, p.Execute(f, s, h.count), p.Name())
	}
	final, err := graph.Resolve(h.plan.Final, h.ctx.Target)
	require.NoError(t, err)
	cmd.PipelineBarrier(final...)
	require.NoError(t, f.End())
	require.NoError(t, f.Submit())
	require.NoError(t, h.dev.Present(idx, f.RenderFinished()))
	h.count++
}

func (h *harness) dispatches(submission int) int {
	n := 0
	for _, c := range h.backend.Submissions()[submission].Commands {
		if _, ok := c.(gpu.DispatchCmd); ok {
			n++
		}
	}
	return n
}

func cubeMesh() *assets.Mesh {
	return assets.NewMeshFromVertices("cube", common.VertexData{
		Positions: [][3]float32{{-1, -1, -1}, {1, -1, -1}, {1, 1, 1}, {-1, 1, 1}},
		Normals:   [][3]float32{{0, 1, 0}, {0, 1, 0}, {0, 1, 0}, {0, 1, 0}},
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
	})
}

func testSnapshot() *scene.Snapshot {
	mesh := cubeMesh()
	return &scene.Snapshot{
		Objects: []scene.Drawable{
			{Mesh: mesh, Transform: mgl32.Ident4(), Material: scene.DefaultMaterial(), Flags: scene.DefaultObjectFlags},
			{Mesh: mesh, Transform: mgl32.Translate3D(3, 0, 0), Material: scene.DefaultMaterial(), Flags: scene.DefaultObjectFlags},
		},
		Lights:      []scene.Light{scene.NewDirectionalLight(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}, 2)},
		Camera:      scene.NewPerspectiveCamera(mgl32.Vec3{0, 3, 8}, mgl32.Vec3{}, mgl32.DegToRad(60), 1, 0.1, 100),
		Environment: scene.DefaultEnvironment(),
	}
}

func smallPasses(features pass.Features, options ...pass.PassBuilderOption) []pass.Factory {
	options = append([]pass.PassBuilderOption{
		pass.WithShadowMapSize(64),
		pass.WithCubemapSize(16),
		pass.WithIrradianceSize(8),
		pass.WithVoxelResolution(8),
	}, options...)
	return pass.StandardPasses(features, options...)
}

func TestExecuteBeforeSetupFails(t *testing.T) {
	ctx, dev, _ := newContext(t)
	f, err := frame.New(dev, 0)
	require.NoError(t, err)

	p := pass.NewShadowPass(ctx)
	err = p.Execute(f, testSnapshot(), 0)
	require.ErrorIs(t, err, pass.ErrNotReady)
	var se *pass.StateError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "shadow", se.Pass)
	assert.Equal(t, pass.StateUninitialized, se.State)
}

func TestSetupOrderIsEnforced(t *testing.T) {
	ctx, _, _ := newContext(t)
	p := pass.NewForwardPass(ctx)
	assert.ErrorIs(t, p.SetupUniforms(testFrames), pass.ErrInvalidTransition)
	assert.ErrorIs(t, p.SetupShaderPasses(), pass.ErrInvalidTransition)
	assert.ErrorIs(t, p.Resize(common.Extent2D{Width: 8, Height: 8}), pass.ErrNotReady)
}

func TestStandardPassesOrder(t *testing.T) {
	names := func(features pass.Features) []string {
		ctx, _, _ := newContext(t)
		var out []string
		for _, factory := range pass.StandardPasses(features) {
			out = append(out, factory(ctx).Name())
		}
		return out
	}
	assert.Equal(t, []string{"shadow", "panorama", "irradiance", "voxelization", "forward", "sky", "gui"}, names(pass.DefaultFeatures()))
	assert.Equal(t, []string{"forward", "gui"}, names(pass.Features{Voxelization: true}))
	assert.Equal(t, []string{"shadow", "forward", "gui"}, names(pass.Features{Shadows: true}))
}

func TestFullPipelineRenders(t *testing.T) {
	h := newHarness(t, smallPasses(pass.DefaultFeatures()))
	for _, p := range h.passes {
		assert.Equal(t, pass.StateReady, p.State(), p.Name())
	}

	s := testSnapshot()
	h.render(s)
	h.render(s)
	h.render(s)

	assert.Equal(t, []uint32{0, 1, 2}, h.backend.Presents())
	for _, p := range h.passes {
		assert.Equal(t, pass.StateReady, p.State(), p.Name())
	}
	fwd := h.pass("forward").(*pass.ForwardPass)
	assert.Equal(t, 2, fwd.MaterialSets(), "one white material set per slot")
}

func TestForwardWithoutOptionalInputs(t *testing.T) {
	h := newHarness(t, smallPasses(pass.Features{}))
	step, ok := h.plan.Step("forward")
	require.True(t, ok)
	assert.Empty(t, step.Reads)

	h.render(testSnapshot())
	assert.Equal(t, 0, h.dispatches(0))
}

func TestIrradianceRunsOnceThenSkips(t *testing.T) {
	h := newHarness(t, smallPasses(pass.Features{Environment: true}))
	irr := h.pass("irradiance").(*pass.IrradianceComputePass)
	require.True(t, irr.Dirty())

	s := testSnapshot()
	h.render(s)
	assert.Equal(t, 2, h.dispatches(0), "panorama and irradiance")
	assert.False(t, irr.Dirty())

	h.render(s)
	assert.Equal(t, 0, h.dispatches(1))

	irr.MarkDirty()
	h.render(s)
	assert.Equal(t, 1, h.dispatches(2))
}

func TestPanoramaRerunsWhenTextureLoads(t *testing.T) {
	h := newHarness(t, smallPasses(pass.Features{Environment: true}))
	pano := h.pass("panorama").(*pass.PanoramaConversionPass)
	irr := h.pass("irradiance").(*pass.IrradianceComputePass)

	tex := assets.NewTexture("sky", false)
	s := testSnapshot()
	s.Environment.Panorama = tex

	h.render(s)
	source, ok := pano.Converted()
	require.True(t, ok)
	assert.Equal(t, uuid.Nil, source)

	h.render(s)
	assert.Equal(t, 0, h.dispatches(1), "pending panorama is not converted twice")

	tex.Publish(common.PixelData{Pixels: []byte{255, 0, 0, 255, 0, 0, 255, 255}, Width: 2, Height: 1, Channels: 4}, nil)
	h.render(s)
	source, _ = pano.Converted()
	assert.Equal(t, tex.ID(), source)
	assert.Equal(t, 2, h.dispatches(2), "conversion invalidates irradiance")
	assert.False(t, irr.Dirty())
	assert.Equal(t, uint64(2), h.ctx.Version(pass.EnvCubemap))
}

func TestForwardResizeRecreatesTargets(t *testing.T) {
	h := newHarness(t, smallPasses(pass.Features{}))
	fwd := h.pass("forward").(*pass.ForwardPass)
	oldColor, oldDepth := fwd.ColorTarget(), fwd.DepthTarget()
	h.render(testSnapshot())

	require.NoError(t, h.dev.WaitIdle())
	extent := common.Extent2D{Width: 32, Height: 16}
	require.NoError(t, h.dev.ConfigureSurface(extent))
	for _, p := range h.passes {
		require.NoError(t, p.Resize(extent), p.Name())
	}

	assert.True(t, oldColor.Released())
	assert.True(t, oldDepth.Released())
	assert.Equal(t, extent, fwd.ColorTarget().Extent().Extent2D())
	assert.Equal(t, extent, fwd.DepthTarget().Extent().Extent2D())
	assert.Same(t, fwd.ColorTarget(), h.ctx.Target(pass.SceneColor))

	h.render(testSnapshot())
	assert.Len(t, h.backend.Presents(), 2)
}

func TestGUIOverlayDrawsProvider(t *testing.T) {
	quad := pass.GUIDrawData{
		Vertices: []pass.GUIVertex{
			{Position: [2]float32{-1, -1}, Color: [4]float32{1, 1, 1, 1}},
			{Position: [2]float32{1, -1}, Color: [4]float32{1, 1, 1, 1}},
			{Position: [2]float32{1, 1}, Color: [4]float32{1, 1, 1, 1}},
			{Position: [2]float32{-1, 1}, Color: [4]float32{1, 1, 1, 1}},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
	show := true
	provider := pass.GUIProviderFunc(func() (pass.GUIDrawData, bool) { return quad, show })
	h := newHarness(t, smallPasses(pass.Features{}, pass.WithGUIProvider(provider)))
	gui := h.pass("gui").(*pass.GUIOverlayPass)

	h.render(testSnapshot())
	assert.Equal(t, 6, gui.DrawnIndices())

	show = false
	h.render(testSnapshot())
	assert.Equal(t, 0, gui.DrawnIndices())
}

func TestCleanupTwiceFails(t *testing.T) {
	h := newHarness(t, smallPasses(pass.DefaultFeatures()))
	h.render(testSnapshot())
	require.NoError(t, h.dev.WaitIdle())

	for i := len(h.passes) - 1; i >= 0; i-- {
		require.NoError(t, h.passes[i].Cleanup(), h.passes[i].Name())
	}
	for _, p := range h.passes {
		assert.ErrorIs(t, p.Cleanup(), pass.ErrAlreadyCleanedUp)
		assert.ErrorIs(t, p.Execute(h.frames[0], testSnapshot(), 0), pass.ErrNotReady)
	}
	assert.Nil(t, h.ctx.Target(pass.SceneColor))
}
