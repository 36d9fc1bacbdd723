package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaRejectsStaleHandle(t *testing.T) {
	a := NewArena[string]()
	h := a.Insert("first")

	v, ok := a.Get(h)
	require.True(t, ok)
	assert.Equal(t, "first", v)

	_, err := a.Remove(h)
	require.NoError(t, err)
	_, err = a.Remove(h)
	assert.ErrorIs(t, err, ErrStaleHandle)

	// The slot is reused with a new generation; the old handle must not see the new value.
	h2 := a.Insert("second")
	assert.Equal(t, h.index, h2.index)
	assert.NotEqual(t, h.generation, h2.generation)
	_, ok = a.Get(h)
	assert.False(t, ok)
	v, ok = a.Get(h2)
	require.True(t, ok)
	assert.Equal(t, "second", v)
	assert.Equal(t, 1, a.Len())
}

func TestArenaZeroHandle(t *testing.T) {
	a := NewArena[int]()
	var h Handle
	assert.True(t, h.IsZero())
	_, ok := a.Get(h)
	assert.False(t, ok)
	_, err := a.Remove(h)
	assert.ErrorIs(t, err, ErrStaleHandle)
}

func TestArenaValues(t *testing.T) {
	a := NewArena[int]()
	h1 := a.Insert(1)
	a.Insert(2)
	a.Insert(3)
	_, err := a.Remove(h1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{2, 3}, a.Values())
}

func TestOpError(t *testing.T) {
	err := opError("wait fence", "frame[1]", ErrTimeout)
	assert.EqualError(t, err, `gpu: wait fence "frame[1]": timed out waiting for fence`)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "wait fence", FailedOp(err))
	assert.True(t, IsFatal(err))
	assert.False(t, IsTransient(err))

	// The same operation is not wrapped twice.
	assert.Same(t, err, opError("wait fence", "other", err))
	assert.Nil(t, opError("submit", "", nil))

	outOfDate := opError("acquire", "", ErrSurfaceOutOfDate)
	assert.True(t, IsTransient(outOfDate))
	assert.False(t, IsFatal(outOfDate))
	assert.False(t, IsFatal(nil))
}
