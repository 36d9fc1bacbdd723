// Package camera provides an orbit camera controller that produces per-frame scene cameras.
package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// Orbit circles a target point on a sphere. Orbit moves change the spherical angles, Zoom
// changes the radius and Pan moves the target and the eye together along the camera axes.
// All methods are safe for concurrent use, so input handlers and the render goroutine can
// share one controller.
type Orbit struct {
	mu sync.Mutex

	target    mgl32.Vec3
	radius    float32
	azimuth   float32
	elevation float32

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32

	orbitSpeed       float32
	mouseSensitivity float32
	zoomSpeed        float32
	panSpeed         float32

	fovy   float32
	aspect float32
	near   float32
	far    float32
}

// NewOrbit creates an orbit controller with sensible defaults.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - *Orbit: the controller
func NewOrbit(options ...OrbitBuilderOption) *Orbit {
	o := &Orbit{
		radius:           10,
		elevation:        math.Pi / 6,
		minRadius:        1,
		maxRadius:        500,
		minElevation:     -math.Pi/2 + 0.05,
		maxElevation:     math.Pi/2 - 0.05,
		orbitSpeed:       0.03,
		mouseSensitivity: 0.005,
		zoomSpeed:        1,
		panSpeed:         1,
		fovy:             mgl32.DegToRad(60),
		aspect:           16.0 / 9.0,
		near:             0.1,
		far:              1000,
	}
	for _, opt := range options {
		opt(o)
	}
	o.radius = clamp(o.radius, o.minRadius, o.maxRadius)
	o.elevation = clamp(o.elevation, o.minElevation, o.maxElevation)
	return o
}

// position computes the eye from the target and spherical coordinates. Caller holds mu.
func (o *Orbit) position() mgl32.Vec3 {
	sinElev, cosElev := math.Sincos(float64(o.elevation))
	sinAzim, cosAzim := math.Sincos(float64(o.azimuth))
	return o.target.Add(mgl32.Vec3{
		o.radius * float32(cosElev*sinAzim),
		o.radius * float32(sinElev),
		o.radius * float32(cosElev*cosAzim),
	})
}

// axes returns the right, up and forward vectors of the view. Caller holds mu.
func (o *Orbit) axes() (right, up, forward mgl32.Vec3) {
	forward = o.target.Sub(o.position()).Normalize()
	right = forward.Cross(mgl32.Vec3{0, 1, 0})
	if right.Len() < 1e-6 {
		return mgl32.Vec3{}, mgl32.Vec3{}, forward
	}
	right = right.Normalize()
	up = right.Cross(forward)
	return right, up, forward
}

// Camera returns the current view and projection.
//
// Returns:
//   - scene.Camera: the camera for the next snapshot
func (o *Orbit) Camera() scene.Camera {
	o.mu.Lock()
	defer o.mu.Unlock()
	return scene.NewPerspectiveCamera(o.position(), o.target, o.fovy, o.aspect, o.near, o.far)
}

// Position returns the eye position.
func (o *Orbit) Position() mgl32.Vec3 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.position()
}

// Target returns the point the camera orbits.
func (o *Orbit) Target() mgl32.Vec3 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.target
}

// SetTarget moves the orbit pivot.
func (o *Orbit) SetTarget(target mgl32.Vec3) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.target = target
}

// SetAspect updates the projection aspect ratio after a resize. Non-positive values are ignored.
func (o *Orbit) SetAspect(aspect float32) {
	if aspect <= 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.aspect = aspect
}

// Radius returns the distance from the eye to the target.
func (o *Orbit) Radius() float32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.radius
}

// Zoom moves the eye toward the target for positive delta, within the radius bounds.
func (o *Orbit) Zoom(delta float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.radius = clamp(o.radius-delta*o.zoomSpeed, o.minRadius, o.maxRadius)
}

// Orbit turns the eye around the target by steps of the orbit speed.
//
// Parameters:
//   - horizontal: azimuth steps, positive turns right
//   - vertical: elevation steps, positive moves up
func (o *Orbit) Orbit(horizontal, vertical float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.azimuth += horizontal * o.orbitSpeed
	o.elevation = clamp(o.elevation+vertical*o.orbitSpeed, o.minElevation, o.maxElevation)
}

// Drag orbits by a mouse movement in pixels.
func (o *Orbit) Drag(dx, dy float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.azimuth -= dx * o.mouseSensitivity
	o.elevation = clamp(o.elevation+dy*o.mouseSensitivity, o.minElevation, o.maxElevation)
}

// Pan translates the target along the camera's right, up and forward axes.
func (o *Orbit) Pan(right, up, forward float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, u, f := o.axes()
	offset := r.Mul(right).Add(u.Mul(up)).Add(f.Mul(forward)).Mul(o.panSpeed)
	o.target = o.target.Add(offset)
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
