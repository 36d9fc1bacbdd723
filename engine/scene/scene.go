// Package scene defines the read-only snapshot of the world that the renderer draws each frame.
// Snapshots are built by the caller; passes never modify them.
package scene

import (
	"github.com/Carmen-Shannon/oxy-render/engine/assets"
	"github.com/go-gl/mathgl/mgl32"
)

// ObjectFlags select per-object shading features.
type ObjectFlags uint32

const (
	// FlagFog applies distance fog to the object.
	FlagFog ObjectFlags = 1 << iota
	// FlagReceivesShadow samples the shadow map when lighting the object.
	FlagReceivesShadow
	// FlagCastsShadow draws the object into the shadow map.
	FlagCastsShadow
)

// DefaultObjectFlags are the flags of an ordinary opaque object.
const DefaultObjectFlags = FlagFog | FlagReceivesShadow | FlagCastsShadow

// Has reports whether every bit of f2 is set in f.
func (f ObjectFlags) Has(f2 ObjectFlags) bool {
	return f&f2 == f2
}

// Material is the surface description of a drawable.
type Material struct {
	// BaseColor multiplies the albedo texture.
	BaseColor mgl32.Vec4
	// Albedo is the color texture; nil or pending textures bind the white fallback.
	Albedo *assets.Texture
}

// DefaultMaterial returns an opaque white material with no texture.
func DefaultMaterial() Material {
	return Material{BaseColor: mgl32.Vec4{1, 1, 1, 1}}
}

// Drawable is one mesh instance.
type Drawable struct {
	Mesh      *assets.Mesh
	Transform mgl32.Mat4
	Material  Material
	Flags     ObjectFlags
}

// WorldBounds returns the world-space axis-aligned bounds of the transformed mesh bounds.
// Pending meshes report empty bounds at the object origin.
func (d Drawable) WorldBounds() (mgl32.Vec3, mgl32.Vec3) {
	var lo, hi mgl32.Vec3
	if d.Mesh != nil {
		lo, hi = d.Mesh.Bounds()
	}
	first := true
	var wlo, whi mgl32.Vec3
	for i := 0; i < 8; i++ {
		corner := mgl32.Vec3{lo[0], lo[1], lo[2]}
		if i&1 != 0 {
			corner[0] = hi[0]
		}
		if i&2 != 0 {
			corner[1] = hi[1]
		}
		if i&4 != 0 {
			corner[2] = hi[2]
		}
		p := mgl32.TransformCoordinate(corner, d.Transform)
		if first {
			wlo, whi, first = p, p, false
			continue
		}
		for c := 0; c < 3; c++ {
			wlo[c] = min(wlo[c], p[c])
			whi[c] = max(whi[c], p[c])
		}
	}
	return wlo, whi
}

// Snapshot is the scene state of one frame.
type Snapshot struct {
	// Objects are drawn in slice order.
	Objects     []Drawable
	Lights      []Light
	Camera      Camera
	Environment Environment
}

// ShadowLight returns the first directional light that casts shadows.
//
// Returns:
//   - Light: the shadow-casting light
//   - bool: false when no light casts shadows
func (s *Snapshot) ShadowLight() (Light, bool) {
	if s == nil {
		return Light{}, false
	}
	for _, l := range s.Lights {
		if l.Type == LightDirectional && l.CastsShadow {
			return l, true
		}
	}
	return Light{}, false
}

// Bounds returns the union of the world bounds of every object with a ready mesh.
//
// Returns:
//   - mgl32.Vec3: the minimum corner
//   - mgl32.Vec3: the maximum corner
//   - bool: false when no object has bounds yet
func (s *Snapshot) Bounds() (mgl32.Vec3, mgl32.Vec3, bool) {
	var lo, hi mgl32.Vec3
	found := false
	if s == nil {
		return lo, hi, false
	}
	for _, d := range s.Objects {
		if d.Mesh == nil || !d.Mesh.Ready() {
			continue
		}
		dlo, dhi := d.WorldBounds()
		if !found {
			lo, hi, found = dlo, dhi, true
			continue
		}
		for c := 0; c < 3; c++ {
			lo[c] = min(lo[c], dlo[c])
			hi[c] = max(hi[c], dhi[c])
		}
	}
	return lo, hi, found
}
