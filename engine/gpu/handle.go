package gpu

import (
	"fmt"
	"sync"
)

// Handle identifies a slot in an Arena. The generation distinguishes successive occupants of
// the same slot, so a handle kept after its value was removed is detected as stale.
// The zero Handle is never valid.
type Handle struct {
	index      uint32
	generation uint32
}

// IsZero reports whether h is the zero (nil) handle.
func (h Handle) IsZero() bool {
	return h.generation == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("#%d.%d", h.index, h.generation)
}

type arenaSlot[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// Arena stores values in reusable slots addressed by generation-checked handles.
// It is safe for concurrent use.
type Arena[T any] struct {
	mu    sync.Mutex
	slots []arenaSlot[T]
	free  []uint32
	live  int
}

// NewArena creates an empty Arena.
//
// Returns:
//   - *Arena[T]: the new arena
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Insert stores v and returns its handle.
//
// Parameters:
//   - v: the value to store
//
// Returns:
//   - Handle: a handle valid until Remove is called with it
func (a *Arena[T]) Insert(v T) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.live++
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.value = v
		s.occupied = true
		return Handle{index: idx, generation: s.generation}
	}
	a.slots = append(a.slots, arenaSlot[T]{value: v, generation: 1, occupied: true})
	return Handle{index: uint32(len(a.slots) - 1), generation: 1}
}

// Get returns the value stored under h.
//
// Parameters:
//   - h: the handle to look up
//
// Returns:
//   - T: the stored value, or the zero value
//   - bool: false if h is zero or stale
func (a *Arena[T]) Get(h Handle) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var zero T
	if !a.validLocked(h) {
		return zero, false
	}
	return a.slots[h.index].value, true
}

// Remove frees the slot behind h and returns the value it held. Removing the same handle
// twice returns ErrStaleHandle the second time.
//
// Parameters:
//   - h: the handle to remove
//
// Returns:
//   - T: the removed value
//   - error: ErrStaleHandle if h is zero, stale or already removed
func (a *Arena[T]) Remove(h Handle) (T, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var zero T
	if !a.validLocked(h) {
		return zero, fmt.Errorf("remove %s: %w", h, ErrStaleHandle)
	}
	s := &a.slots[h.index]
	v := s.value
	s.value = zero
	s.occupied = false
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	a.free = append(a.free, h.index)
	a.live--
	return v, nil
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Values returns a snapshot of the live values in slot order.
func (a *Arena[T]) Values() []T {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]T, 0, a.live)
	for _, s := range a.slots {
		if s.occupied {
			out = append(out, s.value)
		}
	}
	return out
}

func (a *Arena[T]) validLocked(h Handle) bool {
	if h.IsZero() || int(h.index) >= len(a.slots) {
		return false
	}
	s := a.slots[h.index]
	return s.occupied && s.generation == h.generation
}
