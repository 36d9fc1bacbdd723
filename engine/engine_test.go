package engine_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu/headless_backend"
	"github.com/Carmen-Shannon/oxy-render/engine/pass"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRenderer(t *testing.T, options ...headless_backend.HeadlessBackendBuilderOption) renderer.Renderer {
	t.Helper()
	dev := gpu.NewDevice(headless_backend.NewHeadlessBackend(options...))
	t.Cleanup(func() { _ = dev.Release() })
	r, err := renderer.NewRenderer(dev, common.Extent2D{Width: 32, Height: 32},
		renderer.WithPassOptions(
			pass.WithShadowMapSize(32),
			pass.WithCubemapSize(8),
			pass.WithIrradianceSize(4),
			pass.WithVoxelResolution(4),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func emptyScene(float32) *scene.Snapshot {
	return &scene.Snapshot{Environment: scene.DefaultEnvironment()}
}

func TestRunStopsAtMaxFrames(t *testing.T) {
	r := newRenderer(t)
	var ticks atomic.Int32
	e, err := engine.NewEngine(r, engine.SceneProviderFunc(emptyScene),
		engine.WithMaxFrames(5),
		engine.WithTickRate(1000),
		engine.WithTickCallback(func(float32) { ticks.Add(1) }),
		engine.WithProfiling(true),
	)
	require.NoError(t, err)

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, uint64(5), e.Frames())
	assert.Equal(t, uint64(5), r.FrameIndex())
	assert.Nil(t, e.Window())
}

func TestRunStopsOnContext(t *testing.T) {
	r := newRenderer(t)
	e, err := engine.NewEngine(r, engine.SceneProviderFunc(emptyScene), engine.WithRenderFrameLimit(200))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	assert.Positive(t, e.Frames())
}

func TestQuitStopsRun(t *testing.T) {
	r := newRenderer(t)
	var e engine.Engine
	provider := engine.SceneProviderFunc(func(dt float32) *scene.Snapshot {
		if r.FrameIndex() == 3 {
			e.Quit()
		}
		return emptyScene(dt)
	})
	e, err := engine.NewEngine(r, provider)
	require.NoError(t, err)

	require.NoError(t, e.Run(context.Background()))
	e.Quit()
	assert.Equal(t, uint64(4), e.Frames())
}

func TestRenderErrorIsReturned(t *testing.T) {
	r := newRenderer(t, headless_backend.WithDeviceLostAfter(2))
	e, err := engine.NewEngine(r, engine.SceneProviderFunc(emptyScene))
	require.NoError(t, err)

	err = e.Run(context.Background())
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
	assert.Equal(t, uint64(2), e.Frames())
}

func TestPanicIsRecovered(t *testing.T) {
	r := newRenderer(t)
	e, err := engine.NewEngine(r, engine.SceneProviderFunc(func(float32) *scene.Snapshot {
		panic("scene exploded")
	}))
	require.NoError(t, err)

	err = e.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scene exploded")
}

func TestNewEngineRequiresRenderer(t *testing.T) {
	_, err := engine.NewEngine(nil, engine.SceneProviderFunc(emptyScene))
	assert.Error(t, err)
}
