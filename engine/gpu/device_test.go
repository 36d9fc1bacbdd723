package gpu_test

import (
	"math"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu/headless_backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T, options ...headless_backend.HeadlessBackendBuilderOption) (gpu.Device, headless_backend.HeadlessBackend) {
	t.Helper()
	backend := headless_backend.NewHeadlessBackend(options...)
	dev := gpu.NewDevice(backend)
	t.Cleanup(func() { _ = dev.Release() })
	return dev, backend
}

func TestReleaseIsIdempotent(t *testing.T) {
	dev, backend := newTestDevice(t)

	buf, err := dev.CreateBuffer(gpu.BufferDesc{Label: "vertices", Size: 64, Usage: gpu.BufferUsageVertex})
	require.NoError(t, err)
	native := buf.Native()
	assert.Equal(t, gpu.StateCreated, buf.State())
	assert.Equal(t, 1, dev.Live())

	require.NoError(t, buf.Release())
	require.NoError(t, buf.Release())

	assert.Equal(t, gpu.StateDestroyed, buf.State())
	assert.Equal(t, 1, backend.DestroyCount(native))
	assert.Equal(t, 1, backend.Destroyed(gpu.KindBuffer))
	assert.Equal(t, 0, dev.Live())

	err = buf.Upload(0, []byte{1})
	assert.ErrorIs(t, err, gpu.ErrReleased)
}

func TestDeviceReleaseDestroysEverything(t *testing.T) {
	backend := headless_backend.NewHeadlessBackend()
	dev := gpu.NewDevice(backend)

	buf, err := dev.CreateBuffer(gpu.BufferDesc{Label: "b", Size: 16})
	require.NoError(t, err)
	img, err := dev.CreateImage(gpu.ImageDesc{Label: "i", Format: gpu.FormatRGBA8Unorm, Extent: gpu.Extent3D{Width: 4, Height: 4}})
	require.NoError(t, err)
	layout, err := dev.CreateDescriptorSetLayout("l", gpu.LayoutBinding{Binding: 0, Type: gpu.BindingUniformBuffer})
	require.NoError(t, err)
	pool, err := dev.CreateDescriptorPool("p", 4)
	require.NoError(t, err)
	set, err := pool.Allocate("s", layout)
	require.NoError(t, err)
	set.SetBuffer(0, buf)
	require.NoError(t, set.Commit())
	require.NoError(t, buf.Release())

	require.NoError(t, dev.Release())
	require.NoError(t, dev.Release())

	assert.Equal(t, 0, dev.Live())
	assert.True(t, img.Released())
	assert.True(t, set.Released())
	assert.Equal(t, 1, backend.DestroyCount(buf.Native()))
	assert.Equal(t, 1, backend.DestroyCount(img.Native()))
	assert.Equal(t, 1, backend.Destroyed(gpu.KindDescriptorSet))

	_, err = dev.CreateBuffer(gpu.BufferDesc{Label: "late", Size: 4})
	assert.ErrorIs(t, err, gpu.ErrReleased)
}

func TestBufferRoundTrip(t *testing.T) {
	dev, _ := newTestDevice(t)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	buf, err := dev.CreateBufferWithData(gpu.BufferDesc{Label: "data", Usage: gpu.BufferUsageStorage}, data)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), buf.Size())
	assert.NotZero(t, buf.Usage()&gpu.BufferUsageCopyDst)

	out := make([]byte, len(data))
	n, err := buf.CopyTo(out)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, out)

	require.NoError(t, buf.Upload(4, []byte{9, 9}))
	part, err := buf.Read(3, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 9, 9, 7}, part)

	assert.ErrorIs(t, buf.Upload(7, []byte{1, 2}), gpu.ErrOutOfBounds)
	_, err = buf.Read(0, 9)
	assert.ErrorIs(t, err, gpu.ErrOutOfBounds)

	// offset+size must not wrap around into range.
	assert.ErrorIs(t, buf.Upload(math.MaxUint64, []byte{1, 2}), gpu.ErrOutOfBounds)
	_, err = buf.Read(1, math.MaxUint64)
	assert.ErrorIs(t, err, gpu.ErrOutOfBounds)
	_, err = buf.Read(9, 0)
	assert.ErrorIs(t, err, gpu.ErrOutOfBounds)
	empty, err := buf.Read(8, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestImageRoundTrip(t *testing.T) {
	dev, _ := newTestDevice(t)

	cube, err := dev.CreateImage(gpu.ImageDesc{
		Label:     "cube",
		Format:    gpu.FormatRGBA8Unorm,
		Dimension: gpu.ImageCube,
		Extent:    gpu.Extent3D{Width: 2, Height: 2},
		Usage:     gpu.ImageUsageSampled | gpu.ImageUsageCopyDst,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), cube.Extent().Depth)
	assert.Equal(t, gpu.LayoutUndefined, cube.Layout())

	face := make([]byte, cube.Desc().LayerSize())
	for i := range face {
		face[i] = byte(i)
	}
	require.NoError(t, cube.Upload(3, face))

	got, err := cube.Read(3)
	require.NoError(t, err)
	assert.Equal(t, face, got)

	other, err := cube.Read(0)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, len(face)), other)

	assert.ErrorIs(t, cube.Upload(6, face), gpu.ErrOutOfBounds)
	assert.ErrorIs(t, cube.Upload(0, face[:4]), gpu.ErrOutOfBounds)
}

func TestCreateImageRejectsZeroExtent(t *testing.T) {
	dev, _ := newTestDevice(t)
	_, err := dev.CreateImage(gpu.ImageDesc{Label: "empty", Format: gpu.FormatRGBA8Unorm})
	assert.ErrorIs(t, err, gpu.ErrOutOfBounds)
	assert.Equal(t, "create image", gpu.FailedOp(err))
}

func TestFramebufferExtentsMustMatch(t *testing.T) {
	dev, _ := newTestDevice(t)
	color, err := dev.CreateImage(gpu.ImageDesc{Label: "color", Format: gpu.FormatRGBA16Float, Extent: gpu.Extent3D{Width: 8, Height: 8}})
	require.NoError(t, err)
	depth, err := dev.CreateImage(gpu.ImageDesc{Label: "depth", Format: gpu.FormatDepth32Float, Extent: gpu.Extent3D{Width: 8, Height: 8}})
	require.NoError(t, err)
	small, err := dev.CreateImage(gpu.ImageDesc{Label: "small", Format: gpu.FormatDepth32Float, Extent: gpu.Extent3D{Width: 4, Height: 4}})
	require.NoError(t, err)

	fb, err := dev.CreateFramebuffer("scene", []*gpu.Image{color}, depth)
	require.NoError(t, err)
	assert.Equal(t, common.Extent2D{Width: 8, Height: 8}, fb.Extent())

	rp := fb.RenderPass("forward", gpu.LoadClear, [4]float64{0, 0, 0, 1})
	require.Len(t, rp.Color, 1)
	require.NotNil(t, rp.Depth)
	assert.Equal(t, float32(1), rp.Depth.ClearDepth)

	_, err = dev.CreateFramebuffer("bad", []*gpu.Image{color}, small)
	assert.Error(t, err)

	_, err = dev.CreateFramebuffer("color as depth", nil, color)
	assert.Error(t, err)
}

func TestDescriptorSetCommit(t *testing.T) {
	dev, _ := newTestDevice(t)

	layout, err := dev.CreateDescriptorSetLayout("material",
		gpu.LayoutBinding{Binding: 1, Type: gpu.BindingSampler, Visibility: gpu.VisibleFragment},
		gpu.LayoutBinding{Binding: 0, Type: gpu.BindingSampledImage, Visibility: gpu.VisibleFragment},
	)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), layout.Bindings()[0].Binding)

	pool, err := dev.CreateDescriptorPool("pool", 0)
	require.NoError(t, err)
	assert.Equal(t, gpu.DefaultMaxDescriptorSets, pool.Capacity())

	set, err := pool.Allocate("albedo", layout)
	require.NoError(t, err)

	img, err := dev.CreateImage(gpu.ImageDesc{Label: "albedo", Format: gpu.FormatRGBA8Unorm, Extent: gpu.Extent3D{Width: 1, Height: 1}})
	require.NoError(t, err)
	smp, err := dev.CreateSampler(gpu.SamplerDesc{Label: "linear"})
	require.NoError(t, err)

	set.SetImage(0, img)
	err = set.Commit()
	assert.ErrorIs(t, err, gpu.ErrMissingBinding)
	assert.False(t, set.Committed())

	// A sampler in an image slot is as missing as no entry at all.
	set.SetSampler(0, smp)
	set.SetSampler(1, smp)
	assert.ErrorIs(t, set.Commit(), gpu.ErrMissingBinding)

	set.SetImage(0, img)
	require.NoError(t, set.Commit())
	assert.True(t, set.Committed())

	require.NoError(t, img.Release())
	set.SetImage(0, img)
	assert.ErrorIs(t, set.Commit(), gpu.ErrReleased)

	_, err = dev.CreateDescriptorSetLayout("dup",
		gpu.LayoutBinding{Binding: 0, Type: gpu.BindingSampler},
		gpu.LayoutBinding{Binding: 0, Type: gpu.BindingSampler},
	)
	assert.Error(t, err)
}

func TestDescriptorPoolExhaustion(t *testing.T) {
	dev, _ := newTestDevice(t)
	layout, err := dev.CreateDescriptorSetLayout("l", gpu.LayoutBinding{Binding: 0, Type: gpu.BindingUniformBuffer})
	require.NoError(t, err)
	pool, err := dev.CreateDescriptorPool("pool", 2)
	require.NoError(t, err)

	persistent, err := pool.Allocate("persistent", layout)
	require.NoError(t, err)
	transient, err := pool.AllocateTransient("transient", layout)
	require.NoError(t, err)

	_, err = pool.AllocateTransient("overflow", layout)
	assert.ErrorIs(t, err, gpu.ErrPoolExhausted)

	require.NoError(t, pool.ResetTransient())
	assert.True(t, transient.Released())
	assert.False(t, persistent.Released())
	assert.Equal(t, 1, pool.Allocated())

	_, err = pool.AllocateTransient("again", layout)
	assert.NoError(t, err)

	require.NoError(t, pool.Release())
	assert.True(t, persistent.Released())
}

func TestCommandBufferStateMachine(t *testing.T) {
	dev, _ := newTestDevice(t)
	pool, err := dev.CreateCommandPool("frame")
	require.NoError(t, err)
	cb := pool.Allocate("main")
	assert.Equal(t, gpu.CommandBufferInitial, cb.State())

	err = cb.End()
	assert.ErrorIs(t, err, gpu.ErrInvalidState)

	require.NoError(t, cb.Begin())
	assert.ErrorIs(t, cb.Begin(), gpu.ErrInvalidState)

	// Drawing outside a render pass poisons the recording; later commands are dropped.
	cb.Draw(3, 1)
	cb.BeginComputePass("late")
	assert.Empty(t, cb.Commands())
	err = cb.End()
	assert.ErrorIs(t, err, gpu.ErrInvalidState)
	assert.Equal(t, "draw", gpu.FailedOp(err))

	pool.Reset()
	assert.Equal(t, gpu.CommandBufferInitial, cb.State())
	assert.NoError(t, cb.Err())
	require.NoError(t, cb.Begin())
	cb.BeginComputePass("open")
	assert.ErrorIs(t, cb.End(), gpu.ErrInvalidState)
}

func TestRecordAndSubmit(t *testing.T) {
	dev, backend := newTestDevice(t)
	require.NoError(t, dev.ConfigureSurface(common.Extent2D{Width: 4, Height: 4}))

	color, err := dev.CreateImage(gpu.ImageDesc{Label: "color", Format: gpu.FormatRGBA8Unorm, Extent: gpu.Extent3D{Width: 4, Height: 4}, Usage: gpu.ImageUsageColorAttachment})
	require.NoError(t, err)
	pipeline, err := dev.CreatePipeline(gpu.NewGraphicsPipeline("tri",
		gpu.ShaderSource{Code: "// wgsl", VertexEntry: "vs_main", FragmentEntry: "fs_main"},
		gpu.WithColorTargets(gpu.FormatRGBA8Unorm),
		gpu.WithDepth(gpu.FormatUndefined, false, false),
	))
	require.NoError(t, err)
	src, err := dev.CreateBufferWithData(gpu.BufferDesc{Label: "src", Usage: gpu.BufferUsageCopySrc}, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	dst, err := dev.CreateBuffer(gpu.BufferDesc{Label: "dst", Size: 4, Usage: gpu.BufferUsageCopyDst})
	require.NoError(t, err)
	fence, err := dev.CreateFence("fence", false)
	require.NoError(t, err)

	pool, err := dev.CreateCommandPool("pool")
	require.NoError(t, err)
	cb := pool.Allocate("main")
	require.NoError(t, cb.Begin())
	cb.PipelineBarrier(gpu.ImageBarrier{Name: "color", Image: color, OldLayout: gpu.LayoutUndefined, NewLayout: gpu.LayoutColorAttachment})
	cb.BeginRenderPass(gpu.RenderPassDesc{Label: "pass", Color: []gpu.ColorAttachment{{Image: color}}})
	cb.BindPipeline(pipeline)
	cb.Draw(3, 1)
	cb.EndRenderPass()
	cb.CopyBuffer(src, dst, 4)
	require.NoError(t, cb.End())

	assert.Equal(t, gpu.LayoutColorAttachment, color.Layout())
	assert.Equal(t, gpu.StateInUse, pipeline.State())
	require.Len(t, cb.Commands(), 6)

	require.NoError(t, dev.Submit(cb, nil, nil, fence))
	assert.Equal(t, gpu.CommandBufferPending, cb.State())
	require.NoError(t, fence.Wait(time.Second))
	assert.True(t, fence.Signaled())

	out := make([]byte, 4)
	_, err = dst.CopyTo(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, out)

	subs := backend.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "main", subs[0].Label)

	err = dev.Submit(cb, nil, nil, nil)
	assert.ErrorIs(t, err, gpu.ErrInvalidState)
}

func TestFenceWaitTimesOut(t *testing.T) {
	dev, _ := newTestDevice(t, headless_backend.WithExecutionDelay(200*time.Millisecond))
	fence, err := dev.CreateFence("slow", false)
	require.NoError(t, err)
	pool, err := dev.CreateCommandPool("pool")
	require.NoError(t, err)
	cb := pool.Allocate("slow")
	require.NoError(t, cb.Begin())
	require.NoError(t, cb.End())
	require.NoError(t, dev.Submit(cb, nil, nil, fence))

	err = fence.Wait(10 * time.Millisecond)
	assert.ErrorIs(t, err, gpu.ErrTimeout)
	assert.Equal(t, "wait fence", gpu.FailedOp(err))

	require.NoError(t, fence.Wait(time.Second))
}

func TestSwapchainImagesAreExternal(t *testing.T) {
	dev, backend := newTestDevice(t, headless_backend.WithSwapchainImages(2))
	require.NoError(t, dev.ConfigureSurface(common.Extent2D{Width: 8, Height: 6}))

	first := dev.SwapchainImage(0)
	require.NotNil(t, first)
	assert.True(t, first.External())
	assert.Nil(t, dev.SwapchainImage(2))
	assert.Equal(t, gpu.FormatBGRA8UnormSrgb, dev.SurfaceFormat())
	assert.Equal(t, common.Extent2D{Width: 8, Height: 6}, dev.SurfaceExtent())

	require.NoError(t, dev.ConfigureSurface(common.Extent2D{Width: 16, Height: 12}))
	assert.True(t, first.Released())
	assert.Equal(t, 0, backend.DestroyCount(first.Native()))
	assert.Equal(t, uint32(16), dev.SwapchainImage(1).Extent().Width)

	assert.ErrorIs(t, dev.ConfigureSurface(common.Extent2D{}), gpu.ErrOutOfBounds)
}

func TestPipelineValidation(t *testing.T) {
	dev, _ := newTestDevice(t)
	_, err := dev.CreatePipeline(gpu.NewComputePipeline("cs", gpu.ShaderSource{Code: "// wgsl"}))
	assert.Error(t, err)

	p, err := dev.CreatePipeline(gpu.NewComputePipeline("cs", gpu.ShaderSource{Code: "// wgsl", ComputeEntry: "main"}))
	require.NoError(t, err)
	assert.Equal(t, gpu.PipelineCompute, p.PipelineKind())

	_, err = dev.CreatePipeline(gpu.NewGraphicsPipeline("no targets", gpu.ShaderSource{Code: "// wgsl", VertexEntry: "vs"}))
	assert.Error(t, err)
}
