package renderer_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/assets"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu/headless_backend"
	"github.com/Carmen-Shannon/oxy-render/engine/graph"
	"github.com/Carmen-Shannon/oxy-render/engine/pass"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var initialExtent = common.Extent2D{Width: 64, Height: 64}

func newDevice(t *testing.T, options ...headless_backend.HeadlessBackendBuilderOption) (gpu.Device, headless_backend.HeadlessBackend) {
	t.Helper()
	backend := headless_backend.NewHeadlessBackend(options...)
	dev := gpu.NewDevice(backend)
	t.Cleanup(func() { _ = dev.Release() })
	return dev, backend
}

func smallPasses() renderer.RendererBuilderOption {
	return renderer.WithPassOptions(
		pass.WithShadowMapSize(64),
		pass.WithCubemapSize(16),
		pass.WithIrradianceSize(8),
		pass.WithVoxelResolution(8),
	)
}

func newRenderer(t *testing.T, dev gpu.Device, options ...renderer.RendererBuilderOption) renderer.Renderer {
	t.Helper()
	r, err := renderer.NewRenderer(dev, initialExtent, append([]renderer.RendererBuilderOption{smallPasses()}, options...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func testSnapshot() *scene.Snapshot {
	mesh := assets.NewMeshFromVertices("quad", common.VertexData{
		Positions: [][3]float32{{-1, 0, -1}, {1, 0, -1}, {1, 0, 1}, {-1, 0, 1}},
		Normals:   [][3]float32{{0, 1, 0}, {0, 1, 0}, {0, 1, 0}, {0, 1, 0}},
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
	})
	return &scene.Snapshot{
		Objects: []scene.Drawable{
			{Mesh: mesh, Transform: mgl32.Ident4(), Material: scene.DefaultMaterial(), Flags: scene.DefaultObjectFlags},
		},
		Lights:      []scene.Light{scene.NewDirectionalLight(mgl32.Vec3{0.3, -1, 0.2}, mgl32.Vec3{1, 1, 1}, 1)},
		Camera:      scene.NewPerspectiveCamera(mgl32.Vec3{0, 4, 6}, mgl32.Vec3{}, mgl32.DegToRad(60), 1, 0.1, 50),
		Environment: scene.DefaultEnvironment(),
	}
}

func render(t *testing.T, r renderer.Renderer, frames int) {
	t.Helper()
	s := testSnapshot()
	for range frames {
		require.NoError(t, r.RenderFrame(context.Background(), s))
	}
}

func forwardPass(t *testing.T, r renderer.Renderer) *pass.ForwardPass {
	t.Helper()
	for _, p := range r.Passes() {
		if fwd, ok := p.(*pass.ForwardPass); ok {
			return fwd
		}
	}
	t.Fatal("no forward pass")
	return nil
}

func TestTwoFramesInFlightAlternateSlots(t *testing.T) {
	dev, backend := newDevice(t)
	r := newRenderer(t, dev, renderer.WithFramesInFlight(2))

	render(t, r, 10)

	assert.Equal(t, 10, backend.FenceWaits())
	assert.Equal(t, uint64(10), r.FrameIndex())
	stats := r.Stats()
	assert.Equal(t, uint64(10), stats.Frames)
	assert.Equal(t, uint64(10), stats.FenceWaits)
	assert.Zero(t, stats.SkippedFrames)

	subs := backend.Submissions()
	require.Len(t, subs, 10)
	for i, sub := range subs {
		assert.Equal(t, fmt.Sprintf("frame[%d].cmd", i%2), sub.Label)
	}
	assert.Len(t, backend.Presents(), 10)
}

func TestPassOrder(t *testing.T) {
	dev, _ := newDevice(t)
	r := newRenderer(t, dev)

	var names []string
	for _, s := range r.Plan().Steps {
		names = append(names, s.Pass.Name)
	}
	assert.Equal(t, []string{"shadow", "panorama", "irradiance", "voxelization", "forward", "sky", "gui"}, names)
	require.Len(t, r.Plan().Final, 1)
	assert.Equal(t, gpu.LayoutPresent, r.Plan().Final[0].NewLayout)
}

func TestResizeSkipsFrameAndRecreatesAttachments(t *testing.T) {
	dev, backend := newDevice(t)
	r := newRenderer(t, dev, renderer.WithEnvironment(false))
	render(t, r, 3)
	fwd := forwardPass(t, r)
	oldColor := fwd.ColorTarget()

	r.Resize(32, 16)
	require.NoError(t, r.RenderFrame(context.Background(), testSnapshot()))

	want := common.Extent2D{Width: 32, Height: 16}
	assert.Len(t, backend.Presents(), 3, "the resize frame is not presented")
	assert.Equal(t, uint64(3), r.FrameIndex())
	assert.Equal(t, uint64(1), r.Stats().SkippedFrames)
	assert.Equal(t, uint64(1), r.Stats().Resizes)
	assert.Equal(t, want, r.Extent())
	assert.Equal(t, want, backend.Configures()[len(backend.Configures())-1])
	assert.True(t, oldColor.Released())
	assert.Equal(t, want, fwd.ColorTarget().Extent().Extent2D())
	assert.Equal(t, want, fwd.DepthTarget().Extent().Extent2D())

	render(t, r, 1)
	assert.Len(t, backend.Presents(), 4)
}

func TestMinimizedSurfaceSkipsUntilRestored(t *testing.T) {
	dev, backend := newDevice(t)
	r := newRenderer(t, dev)
	render(t, r, 1)

	r.Resize(0, 0)
	render(t, r, 3)
	assert.Len(t, backend.Presents(), 1)
	assert.Equal(t, uint64(3), r.Stats().SkippedFrames)
	assert.Zero(t, r.Stats().Resizes)

	r.Resize(48, 48)
	render(t, r, 2)
	assert.Len(t, backend.Presents(), 2)
	assert.Equal(t, uint64(4), r.Stats().SkippedFrames)
	assert.Equal(t, uint64(2), r.FrameIndex())
}

func TestAcquireOutOfDateTakesResizePath(t *testing.T) {
	dev, backend := newDevice(t, headless_backend.WithAcquireOutOfDate(1))
	r := newRenderer(t, dev)

	render(t, r, 3)

	assert.Equal(t, uint64(2), r.FrameIndex())
	assert.Equal(t, uint64(1), r.Stats().SkippedFrames)
	assert.Equal(t, uint64(1), r.Stats().Resizes)
	assert.Len(t, backend.Presents(), 2)
	assert.Len(t, backend.Configures(), 2)
}

func TestPresentOutOfDateCountsFrame(t *testing.T) {
	dev, backend := newDevice(t, headless_backend.WithPresentOutOfDate(1))
	r := newRenderer(t, dev)

	render(t, r, 3)

	assert.Equal(t, uint64(3), r.FrameIndex())
	assert.Zero(t, r.Stats().SkippedFrames)
	assert.Equal(t, uint64(1), r.Stats().Resizes)
	assert.Len(t, backend.Presents(), 2)
	assert.Len(t, backend.Submissions(), 3)
}

func TestDeviceLostIsFatal(t *testing.T) {
	dev, _ := newDevice(t, headless_backend.WithDeviceLostAfter(3))
	r := newRenderer(t, dev)
	render(t, r, 3)

	err := r.RenderFrame(context.Background(), testSnapshot())
	require.Error(t, err)
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
	assert.True(t, gpu.IsFatal(err))
	assert.Equal(t, "submit", gpu.FailedOp(err))

	again := r.RenderFrame(context.Background(), testSnapshot())
	assert.Same(t, err, again)
	assert.Equal(t, uint64(3), r.FrameIndex())
}

func TestCanceledContextIsNotFatal(t *testing.T) {
	dev, _ := newDevice(t)
	r := newRenderer(t, dev)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.RenderFrame(ctx, testSnapshot()), context.Canceled)

	render(t, r, 1)
	assert.Equal(t, uint64(1), r.FrameIndex())
}

func TestContextDeadlineIsNotFatal(t *testing.T) {
	dev, _ := newDevice(t, headless_backend.WithExecutionDelay(200*time.Millisecond))
	r := newRenderer(t, dev, renderer.WithFramesInFlight(1))

	render(t, r, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := r.RenderFrame(ctx, testSnapshot())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, uint64(1), r.FrameIndex())

	render(t, r, 1)
	assert.Equal(t, uint64(2), r.FrameIndex())
}

func TestSetupFailureCleansUp(t *testing.T) {
	dev, backend := newDevice(t)
	_, err := renderer.NewRenderer(dev, initialExtent, renderer.WithPassFactories(
		func(ctx *pass.Context) pass.Pass { return pass.NewGUIOverlayPass(ctx) },
	))
	var unknown *graph.UnknownResourceError
	require.True(t, errors.As(err, &unknown), "got %v", err)
	assert.Equal(t, "gui", unknown.Pass)
	assert.Equal(t, pass.SceneColor, unknown.Resource)

	for _, kind := range []gpu.Kind{gpu.KindSampler, gpu.KindBuffer, gpu.KindFence, gpu.KindSemaphore} {
		assert.Equal(t, backend.Created(kind), backend.Destroyed(kind), kind.String())
	}
}

func TestInvalidFramesInFlight(t *testing.T) {
	dev, _ := newDevice(t)
	for _, n := range []int{0, renderer.MaxFramesInFlight + 1} {
		_, err := renderer.NewRenderer(dev, initialExtent, renderer.WithFramesInFlight(n))
		assert.Error(t, err, n)
	}
	_, err := renderer.NewRenderer(dev, common.Extent2D{}, smallPasses())
	assert.Error(t, err)
}

func TestCustomPasses(t *testing.T) {
	dev, backend := newDevice(t)
	r := newRenderer(t, dev,
		renderer.WithPassFactories(
			func(ctx *pass.Context) pass.Pass { return pass.NewForwardPass(ctx) },
			func(ctx *pass.Context) pass.Pass { return pass.NewGUIOverlayPass(ctx) },
		),
		renderer.WithFramesInFlight(3),
	)
	render(t, r, 4)
	assert.Len(t, r.Passes(), 2)
	assert.Len(t, backend.Presents(), 4)
}

func TestCloseIsIdempotent(t *testing.T) {
	dev, backend := newDevice(t)
	r, err := renderer.NewRenderer(dev, initialExtent, smallPasses())
	require.NoError(t, err)
	render(t, r, 2)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.RenderFrame(context.Background(), testSnapshot()), renderer.ErrClosed)

	assert.Equal(t, backend.Created(gpu.KindFence), backend.Destroyed(gpu.KindFence))
	assert.Equal(t, backend.Created(gpu.KindPipeline), backend.Destroyed(gpu.KindPipeline))
	assert.Equal(t, backend.Created(gpu.KindSampler), backend.Destroyed(gpu.KindSampler))
}
