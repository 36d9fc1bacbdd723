package scene

import (
	"github.com/Carmen-Shannon/oxy-render/engine/assets"
	"github.com/go-gl/mathgl/mgl32"
)

// Environment holds the global lighting and atmosphere of a frame.
type Environment struct {
	FogColor mgl32.Vec4
	// FogParams holds x=start distance, y=end distance, z=density.
	FogParams mgl32.Vec4
	Ambient   mgl32.Vec3
	// Panorama is the equirectangular sky image. Nil or pending panoramas use the grey fallback.
	Panorama *assets.Texture
}

// DefaultEnvironment returns a neutral environment without fog or panorama.
func DefaultEnvironment() Environment {
	return Environment{
		FogColor:  mgl32.Vec4{0.6, 0.65, 0.7, 1},
		FogParams: mgl32.Vec4{50, 200, 0, 0},
		Ambient:   mgl32.Vec3{0.05, 0.05, 0.06},
	}
}
