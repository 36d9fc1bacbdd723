package binding

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
)

// MinUniformOffsetAlignment is the alignment of dynamic uniform offsets.
const MinUniformOffsetAlignment = 256

// UniformRing is a set of uniform buffers, one per frame slot, so a slot's buffer is only
// written after that slot's fence wait. A ring with capacity > 1 holds an array of elements
// addressed by dynamic offsets.
type UniformRing struct {
	label    string
	elemSize uint64
	stride   uint64
	capacity int
	buffers  []*gpu.Buffer
}

// NewUniformRing creates a ring holding one block of size bytes per frame slot.
//
// Parameters:
//   - dev: the device to allocate on
//   - label: the debug label prefix of the buffers
//   - size: the block size in bytes
//   - frames: the number of frame slots
//
// Returns:
//   - *UniformRing: the ring
//   - error: an allocation error
func NewUniformRing(dev gpu.Device, label string, size uint64, frames int) (*UniformRing, error) {
	return newRing(dev, label, size, size, 1, frames)
}

// NewDynamicUniformRing creates a ring holding capacity blocks per frame slot, spaced for
// dynamic offsets.
//
// Parameters:
//   - dev: the device to allocate on
//   - label: the debug label prefix of the buffers
//   - elemSize: the block size in bytes
//   - capacity: the number of blocks per slot
//   - frames: the number of frame slots
//
// Returns:
//   - *UniformRing: the ring
//   - error: an allocation error
func NewDynamicUniformRing(dev gpu.Device, label string, elemSize uint64, capacity, frames int) (*UniformRing, error) {
	stride := common.AlignUp64(elemSize, MinUniformOffsetAlignment)
	return newRing(dev, label, elemSize, stride, capacity, frames)
}

func newRing(dev gpu.Device, label string, elemSize, stride uint64, capacity, frames int) (*UniformRing, error) {
	if frames < 1 || capacity < 1 {
		return nil, fmt.Errorf("uniform ring %q: frames %d and capacity %d must be positive", label, frames, capacity)
	}
	r := &UniformRing{label: label, elemSize: elemSize, stride: stride, capacity: capacity}
	for i := range frames {
		buf, err := dev.CreateBuffer(gpu.BufferDesc{
			Label: fmt.Sprintf("%s[%d]", label, i),
			Size:  stride*uint64(capacity-1) + elemSize,
			Usage: gpu.BufferUsageUniform | gpu.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, errors.Join(err, r.Release())
		}
		r.buffers = append(r.buffers, buf)
	}
	return r, nil
}

// Buffer returns the buffer of a frame slot.
func (r *UniformRing) Buffer(slot int) *gpu.Buffer {
	return r.buffers[slot]
}

// Frames returns the number of frame slots.
func (r *UniformRing) Frames() int {
	return len(r.buffers)
}

// Capacity returns the number of blocks per slot.
func (r *UniformRing) Capacity() int {
	return r.capacity
}

// Stride returns the distance in bytes between consecutive blocks.
func (r *UniformRing) Stride() uint64 {
	return r.stride
}

// ElemSize returns the block size in bytes.
func (r *UniformRing) ElemSize() uint64 {
	return r.elemSize
}

// Write uploads block 0 of a frame slot.
//
// Parameters:
//   - slot: the frame slot
//   - data: the marshaled block
//
// Returns:
//   - error: an upload error
func (r *UniformRing) Write(slot int, data []byte) error {
	_, err := r.WriteAt(slot, 0, data)
	return err
}

// WriteAt uploads block index of a frame slot and returns its dynamic offset.
//
// Parameters:
//   - slot: the frame slot
//   - index: the block index, below Capacity
//   - data: the marshaled block
//
// Returns:
//   - uint32: the dynamic offset of the block
//   - error: gpu.ErrOutOfBounds for an index past capacity, or an upload error
func (r *UniformRing) WriteAt(slot, index int, data []byte) (uint32, error) {
	if index < 0 || index >= r.capacity {
		return 0, fmt.Errorf("uniform ring %q: block %d of %d: %w", r.label, index, r.capacity, gpu.ErrOutOfBounds)
	}
	offset := r.stride * uint64(index)
	if err := r.buffers[slot].Upload(offset, data); err != nil {
		return 0, err
	}
	return uint32(offset), nil
}

// Release destroys every buffer of the ring. It is idempotent.
func (r *UniformRing) Release() error {
	var errs []error
	for _, b := range r.buffers {
		errs = append(errs, b.Release())
	}
	return errors.Join(errs...)
}

// SetRing holds one persistent descriptor set per frame slot.
type SetRing struct {
	sets []*gpu.DescriptorSet
}

// BindFunc stages the entries of the descriptor set of one frame slot.
type BindFunc func(slot int, set *gpu.DescriptorSet)

// NewSetRing allocates, fills and commits one descriptor set per frame slot.
//
// Parameters:
//   - pool: the pool to allocate from
//   - label: the debug label prefix of the sets
//   - layout: the layout of every set
//   - frames: the number of frame slots
//   - bind: stages the entries of each set
//
// Returns:
//   - *SetRing: the ring
//   - error: an allocation or commit error, e.g. gpu.ErrMissingBinding
func NewSetRing(pool *gpu.DescriptorPool, label string, layout *gpu.DescriptorSetLayout, frames int, bind BindFunc) (*SetRing, error) {
	r := &SetRing{}
	for i := range frames {
		set, err := pool.Allocate(fmt.Sprintf("%s[%d]", label, i), layout)
		if err != nil {
			return nil, errors.Join(err, r.Release())
		}
		r.sets = append(r.sets, set)
	}
	if err := r.Rebind(bind); err != nil {
		return nil, errors.Join(err, r.Release())
	}
	return r, nil
}

// Set returns the descriptor set of a frame slot.
func (r *SetRing) Set(slot int) *gpu.DescriptorSet {
	return r.sets[slot]
}

// Rebind restages and recommits every set, e.g. after attachments were recreated.
//
// Parameters:
//   - bind: stages the entries of each set
//
// Returns:
//   - error: the first commit error
func (r *SetRing) Rebind(bind BindFunc) error {
	for i, set := range r.sets {
		bind(i, set)
		if err := set.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Release destroys every set of the ring. It is idempotent.
func (r *SetRing) Release() error {
	var errs []error
	for _, s := range r.sets {
		errs = append(errs, s.Release())
	}
	return errors.Join(errs...)
}
