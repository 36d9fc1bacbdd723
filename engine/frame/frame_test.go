package frame_test

import (
	"context"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/frame"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu/headless_backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDevice(t *testing.T, options ...headless_backend.HeadlessBackendBuilderOption) (gpu.Device, headless_backend.HeadlessBackend) {
	t.Helper()
	backend := headless_backend.NewHeadlessBackend(options...)
	dev := gpu.NewDevice(backend)
	t.Cleanup(func() { _ = dev.Release() })
	require.NoError(t, dev.ConfigureSurface(common.Extent2D{Width: 64, Height: 64}))
	return dev, backend
}

// record acquires an image for f and records an empty frame.
func record(t *testing.T, dev gpu.Device, f *frame.Frame) {
	t.Helper()
	require.NoError(t, f.Start())
	_, err := dev.AcquireNextImage(f.ImageAcquired())
	require.NoError(t, err)
	require.NoError(t, f.End())
}

func TestNewFrameStartsSignaled(t *testing.T) {
	dev, backend := newDevice(t)
	f, err := frame.New(dev, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, f.Index())
	assert.Equal(t, "frame[1]", f.Label())
	assert.True(t, f.Fence().Signaled())
	assert.Equal(t, frame.DefaultMaxDescriptorSets, f.DescriptorPool().Capacity())
	assert.Equal(t, 1, backend.Created(gpu.KindFence))
	assert.Equal(t, 2, backend.Created(gpu.KindSemaphore))

	start := time.Now()
	require.NoError(t, f.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitReturnsAfterFenceSignaled(t *testing.T) {
	delay := 60 * time.Millisecond
	dev, backend := newDevice(t, headless_backend.WithExecutionDelay(delay))
	f, err := frame.New(dev, 0)
	require.NoError(t, err)

	require.NoError(t, f.Wait(context.Background()))
	record(t, dev, f)
	require.NoError(t, f.Submit())
	assert.False(t, f.Fence().Signaled())

	start := time.Now()
	require.NoError(t, f.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), delay/2)
	assert.True(t, f.Fence().Signaled())
	assert.Equal(t, 1, backend.Executed())
	assert.Equal(t, 2, backend.FenceWaits())
}

func TestWaitTimeout(t *testing.T) {
	dev, _ := newDevice(t, headless_backend.WithExecutionDelay(300*time.Millisecond))
	f, err := frame.New(dev, 0, frame.WithWaitTimeout(10*time.Millisecond))
	require.NoError(t, err)

	record(t, dev, f)
	require.NoError(t, f.Submit())

	err = f.Wait(context.Background())
	require.ErrorIs(t, err, gpu.ErrTimeout)
	assert.Equal(t, "wait fence", gpu.FailedOp(err))
	assert.Contains(t, err.Error(), "frame[0]")
	assert.True(t, gpu.IsFatal(err))
}

func TestWaitHonoursContext(t *testing.T) {
	dev, _ := newDevice(t)
	f, err := frame.New(dev, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.Canceled)
}

func TestWaitReturnsWhenContextCanceledMidWait(t *testing.T) {
	dev, _ := newDevice(t, headless_backend.WithExecutionDelay(500*time.Millisecond))
	f, err := frame.New(dev, 0)
	require.NoError(t, err)

	record(t, dev, f)
	require.NoError(t, f.Submit())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	start := time.Now()
	assert.ErrorIs(t, f.Wait(ctx), context.Canceled)
	assert.Less(t, time.Since(start), 300*time.Millisecond)
	assert.False(t, f.Fence().Signaled())

	require.NoError(t, f.Wait(context.Background()))
	assert.True(t, f.Fence().Signaled())
}

func TestWaitDeadlineIsContextError(t *testing.T) {
	dev, _ := newDevice(t, headless_backend.WithExecutionDelay(200*time.Millisecond))
	f, err := frame.New(dev, 0)
	require.NoError(t, err)

	record(t, dev, f)
	require.NoError(t, f.Submit())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = f.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, gpu.ErrTimeout)
}

func TestWaitDeviceLost(t *testing.T) {
	dev, backend := newDevice(t, headless_backend.WithExecutionDelay(time.Second))
	f, err := frame.New(dev, 0)
	require.NoError(t, err)

	record(t, dev, f)
	require.NoError(t, f.Submit())
	backend.LoseDevice()

	err = f.Wait(context.Background())
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
	assert.Equal(t, "wait fence", gpu.FailedOp(err))
}

func TestStartReleasesTransientSets(t *testing.T) {
	dev, _ := newDevice(t)
	f, err := frame.New(dev, 0, frame.WithMaxDescriptorSets(2))
	require.NoError(t, err)

	layout, err := dev.CreateDescriptorSetLayout("layout", gpu.LayoutBinding{Binding: 0, Type: gpu.BindingSampler})
	require.NoError(t, err)

	require.NoError(t, f.Start())
	_, err = f.DescriptorPool().AllocateTransient("a", layout)
	require.NoError(t, err)
	_, err = f.DescriptorPool().AllocateTransient("b", layout)
	require.NoError(t, err)
	_, err = f.DescriptorPool().AllocateTransient("c", layout)
	assert.ErrorIs(t, err, gpu.ErrPoolExhausted)

	require.NoError(t, f.Start())
	assert.Equal(t, 0, f.DescriptorPool().Allocated())
	assert.Equal(t, gpu.CommandBufferRecording, f.CommandBuffer().State())
	assert.False(t, f.Fence().Signaled())
}

func TestCleanupIsIdempotent(t *testing.T) {
	dev, backend := newDevice(t)
	f, err := frame.New(dev, 0)
	require.NoError(t, err)
	fence := f.Fence().Native()

	require.NoError(t, f.Cleanup())
	require.NoError(t, f.Cleanup())
	assert.Equal(t, 1, backend.DestroyCount(fence))
	assert.Equal(t, 2, backend.Destroyed(gpu.KindSemaphore))
	assert.ErrorIs(t, f.Wait(context.Background()), frame.ErrCleanedUp)
	assert.ErrorIs(t, f.Start(), frame.ErrCleanedUp)
}
