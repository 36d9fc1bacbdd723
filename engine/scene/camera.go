package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera is the viewpoint of a frame.
type Camera struct {
	View     mgl32.Mat4
	Proj     mgl32.Mat4
	Position mgl32.Vec3
}

// NewPerspectiveCamera returns a camera at eye looking at center.
//
// Parameters:
//   - eye: the world-space camera position
//   - center: the point the camera looks at
//   - fovy: the vertical field of view in radians
//   - aspect: the viewport width divided by its height
//   - near: near plane distance
//   - far: far plane distance
//
// Returns:
//   - Camera: the camera
func NewPerspectiveCamera(eye, center mgl32.Vec3, fovy, aspect, near, far float32) Camera {
	return Camera{
		View:     mgl32.LookAtV(eye, center, mgl32.Vec3{0, 1, 0}),
		Proj:     Perspective(fovy, aspect, near, far),
		Position: eye,
	}
}

// ViewProj returns Proj * View.
func (c Camera) ViewProj() mgl32.Mat4 {
	return c.Proj.Mul4(c.View)
}

// WithAspect returns a copy of c whose projection keeps its field of view and depth range but
// uses a new aspect ratio. It is used after the surface is resized.
func (c Camera) WithAspect(aspect float32) Camera {
	if aspect <= 0 || c.Proj[0] == 0 {
		return c
	}
	c.Proj[0] = c.Proj[5] / aspect
	return c
}

// Perspective builds a right-handed perspective projection with WebGPU's clip-space depth
// range [0, 1].
func Perspective(fovy, aspect, near, far float32) mgl32.Mat4 {
	f := float32(1 / math.Tan(float64(fovy)/2))
	var m mgl32.Mat4
	m[0] = f / aspect
	m[5] = f
	m[10] = far / (near - far)
	m[11] = -1
	m[14] = near * far / (near - far)
	return m
}
