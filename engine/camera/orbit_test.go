package camera

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestPositionFromSphericalCoordinates(t *testing.T) {
	o := NewOrbit(WithRadius(5), WithAzimuth(0), WithElevation(0), WithTarget(1, 2, 3))
	assert.True(t, o.Position().ApproxEqualThreshold(mgl32.Vec3{1, 2, 8}, 1e-5), o.Position())

	o = NewOrbit(WithRadius(4), WithAzimuth(math.Pi/2), WithElevation(0))
	assert.True(t, o.Position().ApproxEqualThreshold(mgl32.Vec3{4, 0, 0}, 1e-5), o.Position())
}

func TestZoomIsClamped(t *testing.T) {
	o := NewOrbit(WithRadius(5), WithRadiusBounds(2, 8), WithSpeeds(0.1, 0.01, 1, 1))
	o.Zoom(10)
	assert.Equal(t, float32(2), o.Radius())
	o.Zoom(-100)
	assert.Equal(t, float32(8), o.Radius())
}

func TestElevationIsClamped(t *testing.T) {
	o := NewOrbit(WithElevation(0), WithSpeeds(1, 1, 1, 1))
	o.Orbit(0, 10)
	assert.Less(t, o.Position().Y(), o.Radius()+1e-3)
	assert.Greater(t, o.Position().Y(), float32(0))
	o.Drag(0, -100)
	assert.Less(t, o.Position().Y(), float32(0))
}

func TestPanMovesTargetAndEye(t *testing.T) {
	o := NewOrbit(WithRadius(5), WithAzimuth(0), WithElevation(0))
	before := o.Position()
	o.Pan(1, 0, 0)

	moved := o.Position().Sub(before)
	assert.True(t, moved.ApproxEqualThreshold(o.Target(), 1e-5))
	assert.InDelta(t, 1, moved.Len(), 1e-5)
	assert.InDelta(t, 0, moved.Y(), 1e-5)
}

func TestCameraLooksAtTarget(t *testing.T) {
	o := NewOrbit(WithRadius(5), WithTarget(0, 1, 0))
	o.SetAspect(2)
	c := o.Camera()

	clip := c.ViewProj().Mul4x1(mgl32.Vec4{0, 1, 0, 1})
	assert.InDelta(t, 0, clip.X()/clip.W(), 1e-5)
	assert.InDelta(t, 0, clip.Y()/clip.W(), 1e-5)
	assert.InDelta(t, c.Proj[5]/2, c.Proj[0], 1e-5)
}
