package gpu

import (
	"fmt"
	"slices"
	"sync"
)

// BindingType is the kind of resource a descriptor slot holds.
type BindingType int

const (
	BindingUniformBuffer BindingType = iota
	BindingStorageBuffer
	BindingReadOnlyStorageBuffer
	BindingSampledImage
	BindingDepthImage
	BindingStorageImage
	BindingSampler
	BindingComparisonSampler
)

func (t BindingType) isBuffer() bool {
	return t == BindingUniformBuffer || t == BindingStorageBuffer || t == BindingReadOnlyStorageBuffer
}

func (t BindingType) isImage() bool {
	return t == BindingSampledImage || t == BindingDepthImage || t == BindingStorageImage
}

func (t BindingType) isSampler() bool {
	return t == BindingSampler || t == BindingComparisonSampler
}

// ShaderVisibility is a bit set of shader stages that may access a binding.
type ShaderVisibility uint32

const (
	VisibleVertex ShaderVisibility = 1 << iota
	VisibleFragment
	VisibleCompute
)

// ViewDimension is how a shader views a bound image.
type ViewDimension int

const (
	View2D ViewDimension = iota
	View2DArray
	ViewCube
	View3D
)

// LayoutBinding describes one slot of a DescriptorSetLayout.
type LayoutBinding struct {
	Binding    uint32
	Type       BindingType
	Visibility ShaderVisibility
	// View is the image view dimension for image bindings.
	View ViewDimension
	// Format is the texel format for storage image bindings.
	Format Format
	// Dynamic marks a uniform buffer bound with a per-draw dynamic offset.
	Dynamic bool
	// Size is the bound range of a dynamic buffer binding. Zero binds the whole buffer.
	Size uint64
}

// DescriptorSetLayout is the shape shared by descriptor sets and the pipelines that use them.
type DescriptorSetLayout struct {
	resource
	bindings []LayoutBinding
}

// Bindings returns the slots of the layout sorted by binding number.
func (l *DescriptorSetLayout) Bindings() []LayoutBinding {
	return l.bindings
}

// Binding returns the slot with the given binding number.
func (l *DescriptorSetLayout) Binding(binding uint32) (LayoutBinding, bool) {
	for _, b := range l.bindings {
		if b.Binding == binding {
			return b, true
		}
	}
	return LayoutBinding{}, false
}

// DescriptorEntry is the resource written into one descriptor slot. Exactly one of Buffer,
// Image and Sampler is set.
type DescriptorEntry struct {
	Binding uint32
	Buffer  *Buffer
	Image   *Image
	Sampler *Sampler
}

func (e DescriptorEntry) target() *resource {
	switch {
	case e.Buffer != nil:
		return &e.Buffer.resource
	case e.Image != nil:
		return &e.Image.resource
	case e.Sampler != nil:
		return &e.Sampler.resource
	}
	return nil
}

// DescriptorPool allocates descriptor sets up to a fixed capacity. Persistent sets live until
// they are released; transient sets are released in bulk by ResetTransient.
type DescriptorPool struct {
	resource
	mu        sync.Mutex
	maxSets   int
	persisted []*DescriptorSet
	transient []*DescriptorSet
}

// Capacity returns the maximum number of sets the pool can hold at once.
func (p *DescriptorPool) Capacity() int {
	return p.maxSets
}

// Allocated returns the number of live sets allocated from the pool.
func (p *DescriptorPool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocatedLocked()
}

// Allocate creates a persistent descriptor set for layout.
//
// Parameters:
//   - label: the debug label of the set
//   - layout: the layout of the set
//
// Returns:
//   - *DescriptorSet: the new, uncommitted set
//   - error: ErrPoolExhausted when the pool is full
func (p *DescriptorPool) Allocate(label string, layout *DescriptorSetLayout) (*DescriptorSet, error) {
	return p.allocate(label, layout, false)
}

// AllocateTransient creates a descriptor set that is released by the next ResetTransient.
//
// Parameters:
//   - label: the debug label of the set
//   - layout: the layout of the set
//
// Returns:
//   - *DescriptorSet: the new, uncommitted set
//   - error: ErrPoolExhausted when the pool is full
func (p *DescriptorPool) AllocateTransient(label string, layout *DescriptorSetLayout) (*DescriptorSet, error) {
	return p.allocate(label, layout, true)
}

// ResetTransient releases every transient set. Persistent sets are untouched.
//
// Returns:
//   - error: the first release error, if any
func (p *DescriptorPool) ResetTransient() error {
	p.mu.Lock()
	sets := p.transient
	p.transient = nil
	p.mu.Unlock()

	var first error
	for _, s := range sets {
		if err := s.Release(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (p *DescriptorPool) allocate(label string, layout *DescriptorSetLayout, transient bool) (*DescriptorSet, error) {
	if err := p.checkLive("allocate descriptor set"); err != nil {
		return nil, err
	}
	if err := layout.checkLive("allocate descriptor set"); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.allocatedLocked() >= p.maxSets {
		return nil, opError("allocate descriptor set", p.label, fmt.Errorf("%d of %d sets in use: %w", p.maxSets, p.maxSets, ErrPoolExhausted))
	}

	s := &DescriptorSet{pool: p, layout: layout, entries: make(map[uint32]DescriptorEntry, len(layout.bindings))}
	p.dev.register(&s.resource, KindDescriptorSet, label, nil)
	if transient {
		p.transient = append(p.transient, s)
	} else {
		p.persisted = append(p.persisted, s)
	}
	return s, nil
}

func (p *DescriptorPool) allocatedLocked() int {
	p.persisted = slices.DeleteFunc(p.persisted, func(s *DescriptorSet) bool { return s.Released() })
	p.transient = slices.DeleteFunc(p.transient, func(s *DescriptorSet) bool { return s.Released() })
	return len(p.persisted) + len(p.transient)
}

func (p *DescriptorPool) releaseSets() {
	p.mu.Lock()
	sets := append(p.persisted, p.transient...)
	p.persisted, p.transient = nil, nil
	p.mu.Unlock()
	for _, s := range sets {
		_ = s.Release()
	}
}

// DescriptorSet binds concrete resources to the slots of a DescriptorSetLayout.
// Writes are staged with the Set methods and become visible to commands after Commit.
type DescriptorSet struct {
	resource
	pool    *DescriptorPool
	layout  *DescriptorSetLayout
	entries map[uint32]DescriptorEntry
	dirty   bool
}

// Layout returns the layout of the set.
func (s *DescriptorSet) Layout() *DescriptorSetLayout {
	return s.layout
}

// SetBuffer stages buf for the given binding.
func (s *DescriptorSet) SetBuffer(binding uint32, buf *Buffer) {
	s.entries[binding] = DescriptorEntry{Binding: binding, Buffer: buf}
	s.dirty = true
}

// SetImage stages img for the given binding.
func (s *DescriptorSet) SetImage(binding uint32, img *Image) {
	s.entries[binding] = DescriptorEntry{Binding: binding, Image: img}
	s.dirty = true
}

// SetSampler stages smp for the given binding.
func (s *DescriptorSet) SetSampler(binding uint32, smp *Sampler) {
	s.entries[binding] = DescriptorEntry{Binding: binding, Sampler: smp}
	s.dirty = true
}

// Entry returns the staged entry for binding.
func (s *DescriptorSet) Entry(binding uint32) (DescriptorEntry, bool) {
	e, ok := s.entries[binding]
	return e, ok
}

// Committed reports whether the set has a native binding that matches its staged entries.
func (s *DescriptorSet) Committed() bool {
	return s.native != nil && !s.dirty
}

// Commit validates the staged entries against the layout and rebuilds the native binding.
// Committing an unchanged set is a no-op.
//
// Returns:
//   - error: ErrMissingBinding when a slot is unwritten or holds the wrong resource type,
//     ErrReleased when an entry refers to a released resource
func (s *DescriptorSet) Commit() error {
	if err := s.checkLive("commit descriptor set"); err != nil {
		return err
	}
	if s.Committed() {
		return nil
	}

	entries := make([]DescriptorEntry, 0, len(s.layout.bindings))
	for _, lb := range s.layout.bindings {
		e, ok := s.entries[lb.Binding]
		if !ok || !entryMatches(lb.Type, e) {
			return opError("commit descriptor set", s.label, fmt.Errorf("binding %d: %w", lb.Binding, ErrMissingBinding))
		}
		if t := e.target(); t.Released() {
			return opError("commit descriptor set", s.label, fmt.Errorf("binding %d (%s): %w", lb.Binding, t.label, ErrReleased))
		}
		entries = append(entries, e)
	}

	native, err := s.dev.backend.CreateDescriptorSet(s.layout, entries)
	if err != nil {
		return opError("commit descriptor set", s.label, err)
	}
	if s.native != nil {
		s.dev.backend.Destroy(KindDescriptorSet, s.native)
	}
	s.native = native
	s.dirty = false
	return nil
}

func entryMatches(t BindingType, e DescriptorEntry) bool {
	switch {
	case t.isBuffer():
		return e.Buffer != nil
	case t.isImage():
		return e.Image != nil
	case t.isSampler():
		return e.Sampler != nil
	}
	return false
}

func (s *DescriptorSet) markEntriesInUse() {
	for _, e := range s.entries {
		if t := e.target(); t != nil {
			t.markInUse()
		}
	}
}
