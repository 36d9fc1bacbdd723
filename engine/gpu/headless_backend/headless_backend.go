package headless_backend

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
)

// HeadlessBackend is a gpu.Backend that simulates a device in host memory. Submissions are
// executed in order by a queue goroutine which signals their fences, so fence waits behave like
// they do on real hardware. It also records what it was asked to do for inspection in tests
// and benchmarks.
type HeadlessBackend interface {
	gpu.Backend

	// Submissions returns every submission accepted so far, in queue order.
	Submissions() []gpu.Submission

	// Executed returns the number of submissions the queue has finished.
	Executed() int

	// Acquires returns the number of Acquire calls, including failed ones.
	Acquires() int

	// Presents returns the image index of every successful Present, in order.
	Presents() []uint32

	// FenceWaits returns the number of WaitFence calls.
	FenceWaits() int

	// Configures returns the extent of every ConfigureSurface call, in order.
	Configures() []common.Extent2D

	// Created returns how many native objects of kind were created.
	Created(kind gpu.Kind) int

	// Destroyed returns how many native objects of kind were destroyed.
	Destroyed(kind gpu.Kind) int

	// DestroyCount returns how many times native was passed to Destroy.
	DestroyCount(native any) int

	// LoseDevice makes every subsequent submission and pending fence wait fail with gpu.ErrDeviceLost.
	LoseDevice()
}

var errClosed = errors.New("headless backend closed")

type object struct {
	id    uint64
	kind  gpu.Kind
	label string
}

type bufferMem struct {
	object
	data []byte
}

type imageMem struct {
	object
	desc   gpu.ImageDesc
	layers [][]byte
}

type fence struct {
	object
	mu       sync.Mutex
	signaled bool
	done     chan struct{}
}

func newFence(id uint64, signaled bool) *fence {
	f := &fence{object: object{id: id, kind: gpu.KindFence}, done: make(chan struct{})}
	if signaled {
		f.signal()
	}
	return f
}

func (f *fence) signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.signaled {
		f.signaled = true
		close(f.done)
	}
}

func (f *fence) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signaled {
		f.signaled = false
		f.done = make(chan struct{})
	}
}

func (f *fence) state() (bool, <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled, f.done
}

type semaphore struct {
	object
	pending int
}

type job struct {
	sub   gpu.Submission
	fence *fence
}

type headlessBackendImpl struct {
	mu sync.Mutex

	nextID     atomic.Uint64
	queueMu    sync.Mutex // guards sends on queue against Close
	queue      chan job
	inflight   sync.WaitGroup
	workerDone chan struct{}
	closeOnce  sync.Once
	closed     atomic.Bool
	lost       chan struct{}
	lostOnce   sync.Once

	// configuration
	swapchainImages int
	surfaceFormat   gpu.Format
	delay           time.Duration
	acquireFaults   map[int]bool
	presentFaults   map[int]bool
	loseAfter       int

	// surface
	configured bool
	extent     common.Extent2D
	swapchain  []*imageMem
	nextImage  uint32

	// records
	submissions []gpu.Submission
	executed    atomic.Int64
	acquires    int
	presents    []uint32
	presentCall int
	fenceWaits  atomic.Int64
	configures  []common.Extent2D
	created     map[gpu.Kind]int
	destroyed   map[gpu.Kind]int
	destroys    map[any]int
}

var _ HeadlessBackend = &headlessBackendImpl{}

// NewHeadlessBackend creates a simulated backend and starts its queue goroutine.
//
// Parameters:
//   - options: functional options to configure the backend and its fault injection
//
// Returns:
//   - HeadlessBackend: the new backend
func NewHeadlessBackend(options ...HeadlessBackendBuilderOption) HeadlessBackend {
	b := &headlessBackendImpl{
		queue:           make(chan job, 64),
		workerDone:      make(chan struct{}),
		lost:            make(chan struct{}),
		swapchainImages: 3,
		surfaceFormat:   gpu.FormatBGRA8UnormSrgb,
		acquireFaults:   make(map[int]bool),
		presentFaults:   make(map[int]bool),
		loseAfter:       -1,
		created:         make(map[gpu.Kind]int),
		destroyed:       make(map[gpu.Kind]int),
		destroys:        make(map[any]int),
	}
	for _, opt := range options {
		opt(b)
	}
	go b.run()
	return b
}

func (b *headlessBackendImpl) run() {
	defer close(b.workerDone)
	for j := range b.queue {
		if b.delay > 0 {
			select {
			case <-time.After(b.delay):
			case <-b.lost:
			}
		}
		select {
		case <-b.lost:
			// A lost device never completes work.
		default:
			b.execute(j.sub)
			b.executed.Add(1)
			if j.fence != nil {
				j.fence.signal()
			}
		}
		b.inflight.Done()
	}
}

func (b *headlessBackendImpl) execute(sub gpu.Submission) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cmd := range sub.Commands {
		if c, ok := cmd.(gpu.CopyBufferCmd); ok {
			src := c.Src.Native().(*bufferMem)
			dst := c.Dst.Native().(*bufferMem)
			copy(dst.data[:c.Size], src.data[:c.Size])
		}
	}
}

func (b *headlessBackendImpl) newObject(kind gpu.Kind, label string) object {
	b.mu.Lock()
	b.created[kind]++
	b.mu.Unlock()
	return object{id: b.nextID.Add(1), kind: kind, label: label}
}

func (b *headlessBackendImpl) Name() string {
	return "headless"
}

func (b *headlessBackendImpl) CreateBuffer(desc gpu.BufferDesc) (any, error) {
	return &bufferMem{object: b.newObject(gpu.KindBuffer, desc.Label), data: make([]byte, desc.Size)}, nil
}

func (b *headlessBackendImpl) CreateImage(desc gpu.ImageDesc) (any, error) {
	img := &imageMem{object: b.newObject(gpu.KindImage, desc.Label), desc: desc}
	for range desc.Layers() {
		img.layers = append(img.layers, make([]byte, desc.LayerSize()))
	}
	return img, nil
}

func (b *headlessBackendImpl) CreateSampler(desc gpu.SamplerDesc) (any, error) {
	o := b.newObject(gpu.KindSampler, desc.Label)
	return &o, nil
}

func (b *headlessBackendImpl) CreateDescriptorSetLayout(label string, _ []gpu.LayoutBinding) (any, error) {
	o := b.newObject(gpu.KindDescriptorSetLayout, label)
	return &o, nil
}

func (b *headlessBackendImpl) CreateDescriptorSet(layout *gpu.DescriptorSetLayout, entries []gpu.DescriptorEntry) (any, error) {
	if len(entries) != len(layout.Bindings()) {
		return nil, fmt.Errorf("%d entries for %d bindings: %w", len(entries), len(layout.Bindings()), gpu.ErrMissingBinding)
	}
	o := b.newObject(gpu.KindDescriptorSet, layout.Label())
	return &o, nil
}

func (b *headlessBackendImpl) CreatePipeline(desc gpu.PipelineDesc) (any, error) {
	o := b.newObject(gpu.KindPipeline, desc.Label)
	return &o, nil
}

func (b *headlessBackendImpl) CreateFence(signaled bool) (any, error) {
	o := b.newObject(gpu.KindFence, "")
	return newFence(o.id, signaled), nil
}

func (b *headlessBackendImpl) CreateSemaphore() (any, error) {
	return &semaphore{object: b.newObject(gpu.KindSemaphore, "")}, nil
}

func (b *headlessBackendImpl) Destroy(kind gpu.Kind, native any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed[kind]++
	b.destroys[native]++
}

func (b *headlessBackendImpl) WriteBuffer(buf *gpu.Buffer, offset uint64, data []byte) error {
	mem, ok := buf.Native().(*bufferMem)
	if !ok {
		return fmt.Errorf("foreign buffer %q", buf.Label())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(mem.data[offset:], data)
	return nil
}

func (b *headlessBackendImpl) ReadBuffer(buf *gpu.Buffer, offset, size uint64) ([]byte, error) {
	mem, ok := buf.Native().(*bufferMem)
	if !ok {
		return nil, fmt.Errorf("foreign buffer %q", buf.Label())
	}
	b.inflight.Wait()
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(mem.data[offset : offset+size]), nil
}

func (b *headlessBackendImpl) WriteImage(img *gpu.Image, layer uint32, data []byte) error {
	mem, ok := img.Native().(*imageMem)
	if !ok {
		return fmt.Errorf("foreign image %q", img.Label())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(mem.layers[layer], data)
	return nil
}

func (b *headlessBackendImpl) ReadImage(img *gpu.Image, layer uint32) ([]byte, error) {
	mem, ok := img.Native().(*imageMem)
	if !ok {
		return nil, fmt.Errorf("foreign image %q", img.Label())
	}
	b.inflight.Wait()
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(mem.layers[layer]), nil
}

func (b *headlessBackendImpl) Submit(sub gpu.Submission) error {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	if b.closed.Load() {
		return fmt.Errorf("%w: %w", errClosed, gpu.ErrDeviceLost)
	}
	if b.isLost() {
		return gpu.ErrDeviceLost
	}
	var f *fence
	if sub.Fence != nil {
		f = sub.Fence.(*fence)
		if signaled, _ := f.state(); signaled {
			return fmt.Errorf("%q submitted with a signaled fence: %w", sub.Label, gpu.ErrSubmissionFailed)
		}
	}

	b.mu.Lock()
	if b.loseAfter >= 0 && len(b.submissions) >= b.loseAfter {
		b.mu.Unlock()
		b.LoseDevice()
		return gpu.ErrDeviceLost
	}
	for _, w := range sub.Wait {
		s := w.(*semaphore)
		if s.pending == 0 {
			b.mu.Unlock()
			return fmt.Errorf("%q waits on a semaphore nothing signals: %w", sub.Label, gpu.ErrSubmissionFailed)
		}
		s.pending--
	}
	for _, sig := range sub.Signal {
		sig.(*semaphore).pending++
	}
	sub.Commands = slices.Clone(sub.Commands)
	b.submissions = append(b.submissions, sub)
	b.inflight.Add(1)
	b.mu.Unlock()

	b.queue <- job{sub: sub, fence: f}
	return nil
}

func (b *headlessBackendImpl) WaitFence(native any, timeout time.Duration) error {
	b.fenceWaits.Add(1)
	f := native.(*fence)
	signaled, done := f.state()
	if signaled {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-b.lost:
		return gpu.ErrDeviceLost
	case <-timer.C:
		return gpu.ErrTimeout
	}
}

func (b *headlessBackendImpl) ResetFence(native any) error {
	native.(*fence).reset()
	return nil
}

func (b *headlessBackendImpl) FenceSignaled(native any) bool {
	signaled, _ := native.(*fence).state()
	return signaled
}

func (b *headlessBackendImpl) ConfigureSurface(extent common.Extent2D) (gpu.SurfaceConfig, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.configures = append(b.configures, extent)
	b.configured = true
	b.extent = extent
	b.nextImage = 0
	b.swapchain = b.swapchain[:0]
	cfg := gpu.SurfaceConfig{Format: b.surfaceFormat, Extent: extent}
	desc := gpu.ImageDesc{Format: b.surfaceFormat, Extent: gpu.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1}}
	for i := range b.swapchainImages {
		img := &imageMem{
			object: object{id: b.nextID.Add(1), kind: gpu.KindImage, label: fmt.Sprintf("swapchain[%d]", i)},
			desc:   desc,
			layers: [][]byte{make([]byte, desc.LayerSize())},
		}
		b.swapchain = append(b.swapchain, img)
		cfg.Images = append(cfg.Images, img)
	}
	return cfg, nil
}

func (b *headlessBackendImpl) Acquire(signal any) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	call := b.acquires
	b.acquires++
	if b.isLost() {
		return 0, gpu.ErrDeviceLost
	}
	if !b.configured || b.acquireFaults[call] {
		b.configured = false
		return 0, gpu.ErrSurfaceOutOfDate
	}
	idx := b.nextImage
	b.nextImage = (b.nextImage + 1) % uint32(len(b.swapchain))
	if signal != nil {
		signal.(*semaphore).pending++
	}
	return idx, nil
}

func (b *headlessBackendImpl) Present(index uint32, wait any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	call := b.presentCall
	b.presentCall++
	if b.isLost() {
		return gpu.ErrDeviceLost
	}
	if wait != nil {
		s := wait.(*semaphore)
		if s.pending == 0 {
			return fmt.Errorf("present waits on a semaphore nothing signals: %w", gpu.ErrSubmissionFailed)
		}
		s.pending--
	}
	if int(index) >= len(b.swapchain) {
		return fmt.Errorf("present image %d of %d: %w", index, len(b.swapchain), gpu.ErrOutOfBounds)
	}
	if b.presentFaults[call] {
		b.configured = false
		return gpu.ErrSurfaceOutOfDate
	}
	b.presents = append(b.presents, index)
	return nil
}

func (b *headlessBackendImpl) WaitIdle() error {
	if b.isLost() {
		return gpu.ErrDeviceLost
	}
	b.inflight.Wait()
	return nil
}

func (b *headlessBackendImpl) Close() error {
	b.closeOnce.Do(func() {
		b.queueMu.Lock()
		b.closed.Store(true)
		close(b.queue)
		b.queueMu.Unlock()
		<-b.workerDone
	})
	return nil
}

func (b *headlessBackendImpl) LoseDevice() {
	b.lostOnce.Do(func() { close(b.lost) })
}

func (b *headlessBackendImpl) isLost() bool {
	select {
	case <-b.lost:
		return true
	default:
		return false
	}
}

func (b *headlessBackendImpl) Submissions() []gpu.Submission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.submissions)
}

func (b *headlessBackendImpl) Executed() int {
	return int(b.executed.Load())
}

func (b *headlessBackendImpl) Acquires() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acquires
}

func (b *headlessBackendImpl) Presents() []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.presents)
}

func (b *headlessBackendImpl) FenceWaits() int {
	return int(b.fenceWaits.Load())
}

func (b *headlessBackendImpl) Configures() []common.Extent2D {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.configures)
}

func (b *headlessBackendImpl) Created(kind gpu.Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created[kind]
}

func (b *headlessBackendImpl) Destroyed(kind gpu.Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed[kind]
}

func (b *headlessBackendImpl) DestroyCount(native any) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroys[native]
}
