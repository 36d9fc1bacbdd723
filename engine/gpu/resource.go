package gpu

import (
	"fmt"
	"sync/atomic"
)

// Kind identifies the type of a device-owned resource.
type Kind int

const (
	KindBuffer Kind = iota
	KindImage
	KindSampler
	KindFramebuffer
	KindFence
	KindSemaphore
	KindCommandPool
	KindDescriptorSetLayout
	KindDescriptorPool
	KindDescriptorSet
	KindPipeline
)

var kindNames = [...]string{"buffer", "image", "sampler", "framebuffer", "fence", "semaphore",
	"command pool", "descriptor set layout", "descriptor pool", "descriptor set", "pipeline"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ResourceState is the lifecycle state of a resource.
type ResourceState int32

const (
	// StateCreated means the resource is allocated but no command has referenced it yet.
	StateCreated ResourceState = iota
	// StateInUse means at least one recorded command referenced the resource.
	StateInUse
	// StateDestroyed means the native handle was released. It is terminal.
	StateDestroyed
)

func (s ResourceState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInUse:
		return "in use"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("ResourceState(%d)", int32(s))
}

// resource is the bookkeeping shared by every device-owned object. It pairs one native handle
// with one arena slot and guarantees the native handle is destroyed at most once.
type resource struct {
	dev       *device
	handle    Handle
	kind      Kind
	label     string
	native    any
	seq       uint64
	external  bool
	state     atomic.Int32
	onRelease func()
}

// Handle returns the arena handle of the resource.
func (r *resource) Handle() Handle {
	return r.handle
}

// Label returns the debug label of the resource.
func (r *resource) Label() string {
	return r.label
}

// Kind returns the resource type.
func (r *resource) Kind() Kind {
	return r.kind
}

// Native returns the backend handle. Only backends should type-assert it.
func (r *resource) Native() any {
	return r.native
}

// State returns the lifecycle state.
func (r *resource) State() ResourceState {
	return ResourceState(r.state.Load())
}

// Released reports whether Release has been called.
func (r *resource) Released() bool {
	return r.State() == StateDestroyed
}

// Release frees the native handle and the arena slot. Only the first call has an effect;
// subsequent calls return nil without touching the handle.
//
// Returns:
//   - error: an error if the device rejected the release
func (r *resource) Release() error {
	for {
		s := r.state.Load()
		if ResourceState(s) == StateDestroyed {
			return nil
		}
		if r.state.CompareAndSwap(s, int32(StateDestroyed)) {
			break
		}
	}
	if r.onRelease != nil {
		r.onRelease()
	}
	return r.dev.destroy(r)
}

func (r *resource) markInUse() {
	r.state.CompareAndSwap(int32(StateCreated), int32(StateInUse))
}

func (r *resource) checkLive(op string) error {
	if r == nil {
		return &OpError{Op: op, Err: ErrReleased}
	}
	if r.Released() {
		return &OpError{Op: op, Resource: r.label, Err: ErrReleased}
	}
	return nil
}
