package pass

import "github.com/Carmen-Shannon/oxy-render/engine/binding"

// Default pass settings.
const (
	DefaultShadowMapSize   = 2048
	DefaultShadowExtent    = 20
	DefaultCubemapSize     = 256
	DefaultIrradianceSize  = 32
	DefaultVoxelResolution = 64
)

type settings struct {
	shadowSize      uint32
	shadowExtent    float32
	cubemapSize     uint32
	irradianceSize  uint32
	voxelResolution uint32
	maxObjects      int
	clearColor      [4]float64
	exposure        float32
	gui             GUIProvider
}

func newSettings(options []PassBuilderOption) settings {
	s := settings{
		shadowSize:      DefaultShadowMapSize,
		shadowExtent:    DefaultShadowExtent,
		cubemapSize:     DefaultCubemapSize,
		irradianceSize:  DefaultIrradianceSize,
		voxelResolution: DefaultVoxelResolution,
		maxObjects:      binding.DefaultMaxObjects,
		clearColor:      [4]float64{0, 0, 0, 1},
		exposure:        1,
	}
	for _, opt := range options {
		opt(&s)
	}
	return s
}

// PassBuilderOption is a functional option used to configure a pass during construction.
type PassBuilderOption func(*settings)

// WithShadowMapSize sets the width and height of the shadow map.
//
// Parameters:
//   - size: the size in texels, values of zero are ignored
//
// Returns:
//   - PassBuilderOption: a function that sets the shadow map size
func WithShadowMapSize(size uint32) PassBuilderOption {
	return func(s *settings) {
		if size > 0 {
			s.shadowSize = size
		}
	}
}

// WithShadowExtent sets the half size of the world-space box the shadow map covers.
//
// Parameters:
//   - halfExtent: the half extent in world units, values of zero or less are ignored
//
// Returns:
//   - PassBuilderOption: a function that sets the shadow extent
func WithShadowExtent(halfExtent float32) PassBuilderOption {
	return func(s *settings) {
		if halfExtent > 0 {
			s.shadowExtent = halfExtent
		}
	}
}

// WithCubemapSize sets the face size of the environment cubemap.
func WithCubemapSize(size uint32) PassBuilderOption {
	return func(s *settings) {
		if size > 0 {
			s.cubemapSize = size
		}
	}
}

// WithIrradianceSize sets the face size of the irradiance cubemap.
func WithIrradianceSize(size uint32) PassBuilderOption {
	return func(s *settings) {
		if size > 0 {
			s.irradianceSize = size
		}
	}
}

// WithVoxelResolution sets the edge length of the voxel volume.
//
// Parameters:
//   - n: the number of voxels per axis, rounded up to a multiple of 4
//
// Returns:
//   - PassBuilderOption: a function that sets the voxel resolution
func WithVoxelResolution(n uint32) PassBuilderOption {
	return func(s *settings) {
		if n > 0 {
			s.voxelResolution = (n + 3) &^ 3
		}
	}
}

// WithMaxObjects sets how many objects a pass draws per frame. Extra objects are skipped.
func WithMaxObjects(n int) PassBuilderOption {
	return func(s *settings) {
		if n > 0 {
			s.maxObjects = n
		}
	}
}

// WithClearColor sets the color the forward pass clears the scene to.
func WithClearColor(c [4]float64) PassBuilderOption {
	return func(s *settings) {
		s.clearColor = c
	}
}

// WithExposure sets the sky exposure multiplier.
func WithExposure(exposure float32) PassBuilderOption {
	return func(s *settings) {
		if exposure > 0 {
			s.exposure = exposure
		}
	}
}

// WithGUIProvider sets the source of GUI triangles drawn by the overlay pass.
//
// Parameters:
//   - p: the provider, or nil to only composite the scene
//
// Returns:
//   - PassBuilderOption: a function that sets the GUI provider
func WithGUIProvider(p GUIProvider) PassBuilderOption {
	return func(s *settings) {
		s.gui = p
	}
}
