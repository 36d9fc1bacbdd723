package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// LightType identifies the kind of light source.
type LightType int

const (
	// LightPoint emits in all directions from a position and attenuates with distance.
	LightPoint LightType = iota

	// LightDirectional has no position, only a direction. Used for distant sources like
	// the sun; it affects every fragment uniformly.
	LightDirectional
)

// Light is a light source.
type Light struct {
	Type LightType
	// Position is the world-space position of a point light.
	Position mgl32.Vec3
	// Direction is the direction a directional light travels, from the light into the scene.
	Direction mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
	// Radius is the distance at which a point light's contribution reaches zero.
	Radius float32
	// Decay is the falloff exponent of a point light.
	Decay       float32
	CastsShadow bool
}

// NewDirectionalLight returns a shadow-casting directional light.
//
// Parameters:
//   - direction: the direction the light travels; it is normalized
//   - color: the RGB color
//   - intensity: the scalar intensity multiplier
//
// Returns:
//   - Light: the light
func NewDirectionalLight(direction, color mgl32.Vec3, intensity float32) Light {
	return Light{
		Type:        LightDirectional,
		Direction:   direction.Normalize(),
		Color:       color,
		Intensity:   intensity,
		CastsShadow: true,
	}
}

// NewPointLight returns a point light with quadratic decay.
//
// Parameters:
//   - position: the world-space position
//   - color: the RGB color
//   - intensity: the scalar intensity multiplier
//   - radius: the attenuation cutoff distance
//
// Returns:
//   - Light: the light
func NewPointLight(position, color mgl32.Vec3, intensity, radius float32) Light {
	return Light{
		Type:      LightPoint,
		Position:  position,
		Color:     color,
		Intensity: intensity,
		Radius:    radius,
		Decay:     2,
	}
}

// ShadowViewProj builds an orthographic view-projection for a directional light's shadow map.
// The frustum is centered on center and looks along the light direction.
//
// Parameters:
//   - center: world-space center of the shadow frustum
//   - halfExtent: half-size of the frustum in world units
//   - near: near plane distance
//   - far: far plane distance
//
// Returns:
//   - mgl32.Mat4: the light view-projection matrix
func (l Light) ShadowViewProj(center mgl32.Vec3, halfExtent, near, far float32) mgl32.Mat4 {
	dir := l.Direction
	if dir.Len() == 0 {
		dir = mgl32.Vec3{0, -1, 0}
	}
	dir = dir.Normalize()

	// Place the eye behind the center, opposite the light direction.
	eye := center.Sub(dir.Mul(far * 0.5))

	up := mgl32.Vec3{0, 1, 0}
	if abs32(dir[1]) > 0.99 {
		up = mgl32.Vec3{1, 0, 0}
	}
	view := mgl32.LookAtV(eye, center, up)
	return Ortho(-halfExtent, halfExtent, -halfExtent, halfExtent, near, far).Mul4(view)
}

// Ortho builds an orthographic projection with WebGPU's clip-space depth range [0, 1].
func Ortho(left, right, bottom, top, near, far float32) mgl32.Mat4 {
	m := mgl32.Ident4()
	rl := right - left
	tb := top - bottom
	fn := far - near
	m[0] = 2 / rl
	m[5] = 2 / tb
	m[10] = -1 / fn
	m[12] = -(right + left) / rl
	m[13] = -(top + bottom) / tb
	m[14] = -near / fn
	return m
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
