package binding

import (
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// NewCameraUniforms builds the camera block of c.
func NewCameraUniforms(c scene.Camera) CameraUniforms {
	return CameraUniforms{View: c.View, Proj: c.Proj, ViewProj: c.ViewProj()}
}

// NewLightUniforms builds the block of one light.
func NewLightUniforms(l scene.Light) LightUniforms {
	u := LightUniforms{Color: l.Color.Vec4(l.Intensity)}
	switch l.Type {
	case scene.LightDirectional:
		u.Position = mgl32.Vec4{0, 0, 0, 1}
		u.DataSlot = l.Direction.Vec4(0)
	default:
		u.Position = l.Position.Vec4(0)
		u.DataSlot = mgl32.Vec4{l.Radius, l.Decay, 0, 0}
	}
	return u
}

// NewSceneUniforms builds the scene block of s. Only the first MaxLights lights are kept.
func NewSceneUniforms(s *scene.Snapshot) SceneUniforms {
	env := s.Environment
	u := SceneUniforms{
		FogColor:     env.FogColor,
		FogParams:    env.FogParams,
		AmbientColor: env.Ambient.Vec4(1),
	}
	for _, l := range s.Lights {
		if int(u.NumLights) == MaxLights {
			break
		}
		u.Lights[u.NumLights] = NewLightUniforms(l)
		u.NumLights++
	}
	return u
}

// NewObjectUniforms builds the per-object block of d.
func NewObjectUniforms(d scene.Drawable) ObjectUniforms {
	u := ObjectUniforms{Model: d.Transform}
	if d.Flags.Has(scene.FlagFog) {
		u.Flags[0] = 1
	}
	if d.Flags.Has(scene.FlagReceivesShadow) {
		u.Flags[1] = 1
	}
	if d.Flags.Has(scene.FlagCastsShadow) {
		u.Flags[2] = 1
	}
	return u
}
