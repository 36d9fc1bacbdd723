package pass

// Features toggles the optional passes of the standard pipeline.
type Features struct {
	// Shadows adds the shadow pass.
	Shadows bool
	// Environment adds the panorama conversion, irradiance and sky passes.
	Environment bool
	// Voxelization adds the voxelization pass. It samples the shadow map and is skipped
	// without Shadows.
	Voxelization bool
}

// DefaultFeatures enables every optional pass.
func DefaultFeatures() Features {
	return Features{Shadows: true, Environment: true, Voxelization: true}
}

// StandardPasses returns the factories of the built-in pipeline in execution order: shadow,
// panorama conversion, irradiance, voxelization, forward, sky and the GUI overlay.
//
// Parameters:
//   - features: the optional passes to include
//   - options: settings applied to every pass
//
// Returns:
//   - []Factory: one factory per enabled pass
func StandardPasses(features Features, options ...PassBuilderOption) []Factory {
	var out []Factory
	if features.Shadows {
		out = append(out, func(ctx *Context) Pass { return NewShadowPass(ctx, options...) })
	}
	if features.Environment {
		out = append(out,
			func(ctx *Context) Pass { return NewPanoramaConversionPass(ctx, options...) },
			func(ctx *Context) Pass { return NewIrradianceComputePass(ctx, options...) },
		)
	}
	if features.Voxelization && features.Shadows {
		out = append(out, func(ctx *Context) Pass { return NewVoxelizationPass(ctx, options...) })
	}
	out = append(out, func(ctx *Context) Pass { return NewForwardPass(ctx, options...) })
	if features.Environment {
		out = append(out, func(ctx *Context) Pass { return NewSkyPass(ctx, options...) })
	}
	return append(out, func(ctx *Context) Pass { return NewGUIOverlayPass(ctx, options...) })
}
