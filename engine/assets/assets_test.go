package assets_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/assets"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu/headless_backend"
	"github.com/Carmen-Shannon/oxy-render/engine/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T) (gpu.Device, headless_backend.HeadlessBackend) {
	t.Helper()
	backend := headless_backend.NewHeadlessBackend()
	dev := gpu.NewDevice(backend)
	t.Cleanup(func() { _ = dev.Release() })
	return dev, backend
}

func checker() common.PixelData {
	return common.PixelData{
		Pixels:   []byte{255, 0, 0, 0, 255, 0, 0, 0, 255, 255, 255, 255},
		Width:    2,
		Height:   2,
		Channels: 3,
	}
}

func TestTextureUploadsOnce(t *testing.T) {
	dev, backend := newTestDevice(t)
	fb, err := assets.NewFallbacks(dev)
	require.NoError(t, err)
	images := backend.Created(gpu.KindImage)

	tex := assets.NewTextureFromPixels("albedo", true, checker())
	assert.Equal(t, assets.StateReady, tex.State())

	img, ok := tex.Resolve(dev, fb.White)
	require.True(t, ok)
	assert.Equal(t, assets.StateUploaded, tex.State())
	assert.Equal(t, gpu.FormatRGBA8UnormSrgb, img.Format())

	again, ok := tex.Resolve(dev, fb.White)
	require.True(t, ok)
	assert.Same(t, img, again)
	require.NoError(t, tex.Upload(dev))
	assert.Equal(t, images+1, backend.Created(gpu.KindImage))

	pix, err := img.Read(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 0, 0, 255, 0, 255, 0, 255, 0, 0, 255, 255, 255, 255, 255, 255}, pix)

	require.NoError(t, tex.Release())
	require.NoError(t, tex.Release())
	assert.Equal(t, assets.StateReleased, tex.State())
}

func TestPendingTextureUsesFallback(t *testing.T) {
	dev, _ := newTestDevice(t)
	fb, err := assets.NewFallbacks(dev)
	require.NoError(t, err)

	tex := assets.NewTexture("late", false)
	img, ok := tex.Resolve(dev, fb.White)
	assert.False(t, ok)
	assert.Same(t, fb.White, img)
	assert.ErrorIs(t, tex.Upload(dev), assets.ErrNotReady)
	assert.Nil(t, tex.Image())

	var nilTex *assets.Texture
	img, ok = nilTex.Resolve(dev, fb.White)
	assert.False(t, ok)
	assert.Same(t, fb.White, img)
}

func TestLoaderPublishesAfterDecode(t *testing.T) {
	dev, _ := newTestDevice(t)
	fb, err := assets.NewFallbacks(dev)
	require.NoError(t, err)

	loader := assets.NewLoader(assets.WithWorkers(2))
	defer loader.Close()

	release := make(chan struct{})
	tex := loader.LoadTexture("panorama", false, func() (common.PixelData, error) {
		<-release
		return checker(), nil
	})

	img, ok := tex.Resolve(dev, fb.Panorama)
	assert.False(t, ok)
	assert.Same(t, fb.Panorama, img)
	assert.Equal(t, 1, loader.Pending())

	close(release)
	loader.Wait()
	assert.Equal(t, 0, loader.Pending())
	require.True(t, tex.Ready())

	img, ok = tex.Resolve(dev, fb.Panorama)
	require.True(t, ok)
	assert.Equal(t, common.Extent2D{Width: 2, Height: 2}, tex.Extent())
	assert.Equal(t, uint32(2), img.Extent().Width)
}

func TestLoaderDownscalesLargeTextures(t *testing.T) {
	loader := assets.NewLoader(assets.WithMaxTextureSize(4))
	defer loader.Close()

	tex := loader.LoadTexture("big", false, func() (common.PixelData, error) {
		return common.PixelData{Pixels: make([]byte, 16*8*4), Width: 16, Height: 8, Channels: 4}, nil
	})
	loader.Wait()
	assert.Equal(t, common.Extent2D{Width: 4, Height: 2}, tex.Extent())
}

func TestLoaderRecordsFailures(t *testing.T) {
	dev, _ := newTestDevice(t)
	fb, err := assets.NewFallbacks(dev)
	require.NoError(t, err)

	loader := assets.NewLoader()
	defer loader.Close()

	boom := errors.New("corrupt file")
	tex := loader.LoadTexture("broken", true, func() (common.PixelData, error) {
		return common.PixelData{}, boom
	})
	mesh := loader.LoadMesh("panics", func() (common.VertexData, error) {
		panic("decoder bug")
	})
	loader.Wait()

	assert.Equal(t, assets.StateFailed, tex.State())
	assert.ErrorIs(t, tex.Err(), boom)
	img, ok := tex.Resolve(dev, fb.White)
	assert.False(t, ok)
	assert.Same(t, fb.White, img)

	assert.Equal(t, assets.StateFailed, mesh.State())
	assert.ErrorContains(t, mesh.Err(), `decode "panics" panicked: decoder bug`)
	assert.False(t, mesh.Drawable(dev))
}

func TestMeshUpload(t *testing.T) {
	dev, _ := newTestDevice(t)

	mesh := assets.NewMeshFromVertices("tri", common.VertexData{
		Positions: [][3]float32{{-1, 0, 0}, {1, 0, 0}, {0, 2, -3}},
		Indices:   []uint32{0, 1, 2},
	})
	lo, hi := mesh.Bounds()
	assert.Equal(t, float32(-1), lo[0])
	assert.Equal(t, float32(-3), lo[2])
	assert.Equal(t, float32(2), hi[1])
	assert.Nil(t, mesh.VertexBuffer())

	require.True(t, mesh.Drawable(dev))
	assert.Equal(t, uint32(3), mesh.IndexCount())
	assert.Equal(t, uint64(3*common.VertexStride), mesh.VertexBuffer().Size())

	idx, err := mesh.IndexBuffer().Read(0, 12)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0}, idx)

	require.NoError(t, mesh.Release())
	require.NoError(t, mesh.Release())
	assert.False(t, mesh.Drawable(dev))
}

func TestFallbacksReleaseIsIdempotent(t *testing.T) {
	dev, backend := newTestDevice(t)
	fb, err := assets.NewFallbacks(dev)
	require.NoError(t, err)

	require.NoError(t, fb.Release())
	require.NoError(t, fb.Release())
	assert.Equal(t, 1, backend.DestroyCount(fb.White.Native()))
	assert.True(t, fb.ShadowSampler.Released())
}

func TestUploadFailureIsLogged(t *testing.T) {
	var out bytes.Buffer
	logging.SetLogger(slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelWarn})))
	t.Cleanup(func() { logging.SetLogger(nil) })

	backend := headless_backend.NewHeadlessBackend()
	dev := gpu.NewDevice(backend)
	fb, err := assets.NewFallbacks(dev)
	require.NoError(t, err)
	_ = dev.Release()

	tex := assets.NewTextureFromPixels("late", false, checker())
	img, ok := tex.Resolve(dev, fb.White)
	assert.False(t, ok)
	assert.Same(t, fb.White, img)
	assert.Equal(t, assets.StateFailed, tex.State())
	assert.Contains(t, out.String(), "texture upload failed, keeping fallback")
	assert.Contains(t, out.String(), "asset=late")
}
