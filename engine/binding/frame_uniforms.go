package binding

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
)

// DefaultMaxObjects is the per-frame object capacity of FrameUniforms.
const DefaultMaxObjects = 1024

// FrameBindings returns the slots of the per-frame set: the camera block at 0 and the scene
// block at 1.
func FrameBindings() []gpu.LayoutBinding {
	return []gpu.LayoutBinding{
		{Binding: 0, Type: gpu.BindingUniformBuffer, Visibility: gpu.VisibleVertex | gpu.VisibleFragment | gpu.VisibleCompute},
		{Binding: 1, Type: gpu.BindingUniformBuffer, Visibility: gpu.VisibleVertex | gpu.VisibleFragment | gpu.VisibleCompute},
	}
}

// ObjectBindings returns the slot of the per-object set: one dynamic uniform block at 0.
func ObjectBindings() []gpu.LayoutBinding {
	return []gpu.LayoutBinding{
		{Binding: 0, Type: gpu.BindingUniformBuffer, Visibility: gpu.VisibleVertex | gpu.VisibleFragment, Dynamic: true, Size: ObjectUniformsSize},
	}
}

// FrameUniforms owns the camera, scene and per-object uniform rings of a pass together with
// their descriptor sets.
type FrameUniforms struct {
	Camera  *UniformRing
	Scene   *UniformRing
	Objects *UniformRing

	frameLayout  *gpu.DescriptorSetLayout
	objectLayout *gpu.DescriptorSetLayout
	frameSets    *SetRing
	objectSets   *SetRing
}

// NewFrameUniforms allocates the rings, layouts and sets for frames slots.
//
// Parameters:
//   - dev: the device to allocate on
//   - pool: the pool the persistent sets are allocated from (two per slot)
//   - label: the debug label prefix
//   - frames: the number of frame slots
//   - maxObjects: the per-frame object capacity
//
// Returns:
//   - *FrameUniforms: the uniforms
//   - error: an allocation or commit error
func NewFrameUniforms(dev gpu.Device, pool *gpu.DescriptorPool, label string, frames, maxObjects int) (*FrameUniforms, error) {
	u := &FrameUniforms{}
	fail := func(err error) (*FrameUniforms, error) {
		return nil, errors.Join(err, u.Release())
	}

	var err error
	if u.Camera, err = NewUniformRing(dev, label+".camera", CameraUniformsSize, frames); err != nil {
		return fail(err)
	}
	if u.Scene, err = NewUniformRing(dev, label+".scene", SceneUniformsSize, frames); err != nil {
		return fail(err)
	}
	if u.Objects, err = NewDynamicUniformRing(dev, label+".objects", ObjectUniformsSize, maxObjects, frames); err != nil {
		return fail(err)
	}
	if u.frameLayout, err = dev.CreateDescriptorSetLayout(label+".frame", FrameBindings()...); err != nil {
		return fail(err)
	}
	if u.objectLayout, err = dev.CreateDescriptorSetLayout(label+".object", ObjectBindings()...); err != nil {
		return fail(err)
	}
	u.frameSets, err = NewSetRing(pool, label+".frame", u.frameLayout, frames, func(slot int, set *gpu.DescriptorSet) {
		set.SetBuffer(0, u.Camera.Buffer(slot))
		set.SetBuffer(1, u.Scene.Buffer(slot))
	})
	if err != nil {
		return fail(err)
	}
	u.objectSets, err = NewSetRing(pool, label+".object", u.objectLayout, frames, func(slot int, set *gpu.DescriptorSet) {
		set.SetBuffer(0, u.Objects.Buffer(slot))
	})
	if err != nil {
		return fail(err)
	}
	return u, nil
}

// FrameLayout returns the layout of the per-frame set.
func (u *FrameUniforms) FrameLayout() *gpu.DescriptorSetLayout {
	return u.frameLayout
}

// ObjectLayout returns the layout of the per-object set.
func (u *FrameUniforms) ObjectLayout() *gpu.DescriptorSetLayout {
	return u.objectLayout
}

// FrameSet returns the per-frame set of a slot.
func (u *FrameUniforms) FrameSet(slot int) *gpu.DescriptorSet {
	return u.frameSets.Set(slot)
}

// ObjectSet returns the per-object set of a slot.
func (u *FrameUniforms) ObjectSet(slot int) *gpu.DescriptorSet {
	return u.objectSets.Set(slot)
}

// Update writes the camera, scene and object blocks of s into a slot's buffers. It must only be
// called after the slot's fence wait. Objects past the ring capacity are not written.
//
// Parameters:
//   - slot: the frame slot
//   - s: the scene snapshot
//
// Returns:
//   - []uint32: the dynamic offset of each written object, in object order
//   - error: an upload error
func (u *FrameUniforms) Update(slot int, s *scene.Snapshot) ([]uint32, error) {
	cam := NewCameraUniforms(s.Camera)
	if err := u.Camera.Write(slot, cam.Marshal()); err != nil {
		return nil, err
	}
	sc := NewSceneUniforms(s)
	if err := u.Scene.Write(slot, sc.Marshal()); err != nil {
		return nil, err
	}
	n := min(len(s.Objects), u.Objects.Capacity())
	offsets := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		obj := NewObjectUniforms(s.Objects[i])
		off, err := u.Objects.WriteAt(slot, i, obj.Marshal())
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, off)
	}
	return offsets, nil
}

// Release destroys the rings, sets and layouts. It is idempotent.
func (u *FrameUniforms) Release() error {
	var errs []error
	for _, r := range []*SetRing{u.frameSets, u.objectSets} {
		if r != nil {
			errs = append(errs, r.Release())
		}
	}
	for _, r := range []*UniformRing{u.Camera, u.Scene, u.Objects} {
		if r != nil {
			errs = append(errs, r.Release())
		}
	}
	for _, l := range []*gpu.DescriptorSetLayout{u.frameLayout, u.objectLayout} {
		if l != nil {
			errs = append(errs, l.Release())
		}
	}
	return errors.Join(errs...)
}
