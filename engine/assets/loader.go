package assets

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/logging"
)

// DefaultMaxTextureSize is the largest texture side kept after decode; larger images are downscaled.
const DefaultMaxTextureSize = 4096

// TextureDecoder produces decoded pixels on a worker goroutine.
type TextureDecoder func() (common.PixelData, error)

// MeshDecoder produces decoded vertex data on a worker goroutine.
type MeshDecoder func() (common.VertexData, error)

// Loader prepares asset data on a worker pool. The returned assets are pending until their task
// publishes, so the render goroutine can bind them immediately and fall back while they load.
type Loader interface {
	// LoadTexture schedules decode and returns the pending texture.
	//
	// Parameters:
	//   - label: the debug label of the texture
	//   - srgb: whether the pixels are sRGB encoded color
	//   - decode: the decode function, run on a worker
	//
	// Returns:
	//   - *Texture: the pending texture
	LoadTexture(label string, srgb bool, decode TextureDecoder) *Texture

	// LoadMesh schedules decode and returns the pending mesh.
	//
	// Parameters:
	//   - label: the debug label of the mesh
	//   - decode: the decode function, run on a worker
	//
	// Returns:
	//   - *Mesh: the pending mesh
	LoadMesh(label string, decode MeshDecoder) *Mesh

	// Pending returns the number of scheduled tasks that have not published yet.
	Pending() int

	// Wait blocks until every scheduled task has published. It is meant for tools and tests;
	// the render goroutine never calls it.
	Wait()

	// Close waits for scheduled tasks and stops the worker pool.
	Close()
}

type loaderImpl struct {
	pool           worker.DynamicWorkerPool
	logger         *slog.Logger
	workers        int
	queueSize      int
	maxTextureSize uint32

	wg      sync.WaitGroup
	pending atomic.Int64
	nextID  atomic.Int64
	closed  atomic.Bool
}

var _ Loader = &loaderImpl{}

// NewLoader creates a Loader backed by a dynamic worker pool.
//
// Parameters:
//   - options: functional options to configure the loader
//
// Returns:
//   - Loader: the new loader
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &loaderImpl{
		workers:        max(runtime.NumCPU()/2, 1),
		queueSize:      256,
		maxTextureSize: DefaultMaxTextureSize,
	}
	for _, opt := range options {
		opt(l)
	}
	l.logger = logging.Or(l.logger).With("component", "assets")
	l.pool = worker.NewDynamicWorkerPool(l.workers, l.queueSize, time.Second)
	return l
}

func (l *loaderImpl) LoadTexture(label string, srgb bool, decode TextureDecoder) *Texture {
	t := NewTexture(label, srgb)
	l.submit(label, func(err error) {
		if !t.Ready() {
			t.Publish(common.PixelData{}, err)
		}
	}, func() error {
		data, err := decode()
		if err == nil {
			if err = data.Validate(); err == nil && (data.Width > l.maxTextureSize || data.Height > l.maxTextureSize) {
				data = data.FitWithin(l.maxTextureSize)
			}
		}
		t.Publish(data, err)
		return t.Err()
	})
	return t
}

func (l *loaderImpl) LoadMesh(label string, decode MeshDecoder) *Mesh {
	m := NewMesh(label)
	l.submit(label, func(err error) {
		if !m.Ready() {
			m.Publish(common.VertexData{}, err)
		}
	}, func() error {
		data, err := decode()
		m.Publish(data, err)
		return m.Err()
	})
	return m
}

// submit queues do on the pool. A panic inside do is reported to fail so the asset ends up failed.
func (l *loaderImpl) submit(label string, fail func(error), do func() error) {
	l.wg.Add(1)
	l.pending.Add(1)
	l.pool.SubmitTask(worker.Task{
		ID:      int(l.nextID.Add(1)),
		Payload: label,
		Do: func() (result any, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("decode %q panicked: %v", label, r)
					l.logger.Error("asset decode panicked", "asset", label, "panic", r)
					fail(err)
				}
				l.pending.Add(-1)
				l.wg.Done()
			}()
			if err := do(); err != nil {
				l.logger.Warn("asset failed to load", "asset", label, "err", err)
				return nil, err
			}
			l.logger.Debug("asset ready", "asset", label)
			return label, nil
		},
	})
}

func (l *loaderImpl) Pending() int {
	return int(l.pending.Load())
}

func (l *loaderImpl) Wait() {
	l.wg.Wait()
}

func (l *loaderImpl) Close() {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}
	l.wg.Wait()
	l.pool.Stop()
}
