package camera

// OrbitBuilderOption is a functional option for configuring an Orbit.
type OrbitBuilderOption func(*Orbit)

// WithRadius sets the initial orbit radius (distance from target).
//
// Parameters:
//   - radius: distance from the orbit target
//
// Returns:
//   - OrbitBuilderOption: functional option to set the radius
func WithRadius(radius float32) OrbitBuilderOption {
	return func(o *Orbit) {
		o.radius = radius
	}
}

// WithRadiusBounds sets the closest and farthest zoom distances.
func WithRadiusBounds(minRadius, maxRadius float32) OrbitBuilderOption {
	return func(o *Orbit) {
		if minRadius > 0 && maxRadius >= minRadius {
			o.minRadius, o.maxRadius = minRadius, maxRadius
		}
	}
}

// WithAzimuth sets the initial horizontal angle around the Y axis.
//
// Parameters:
//   - azimuth: horizontal angle in radians (0 = +Z axis)
//
// Returns:
//   - OrbitBuilderOption: functional option to set the azimuth
func WithAzimuth(azimuth float32) OrbitBuilderOption {
	return func(o *Orbit) {
		o.azimuth = azimuth
	}
}

// WithElevation sets the initial vertical angle from the horizontal plane.
//
// Parameters:
//   - elevation: vertical angle in radians (0 = horizontal)
//
// Returns:
//   - OrbitBuilderOption: functional option to set the elevation
func WithElevation(elevation float32) OrbitBuilderOption {
	return func(o *Orbit) {
		o.elevation = elevation
	}
}

// WithTarget sets the look-at/pivot point.
func WithTarget(x, y, z float32) OrbitBuilderOption {
	return func(o *Orbit) {
		o.target = [3]float32{x, y, z}
	}
}

// WithSpeeds sets the orbit step, mouse drag, zoom and pan multipliers.
func WithSpeeds(orbit, mouse, zoom, pan float32) OrbitBuilderOption {
	return func(o *Orbit) {
		o.orbitSpeed, o.mouseSensitivity, o.zoomSpeed, o.panSpeed = orbit, mouse, zoom, pan
	}
}

// WithProjection sets the vertical field of view in radians, the aspect ratio and the depth range.
func WithProjection(fovy, aspect, near, far float32) OrbitBuilderOption {
	return func(o *Orbit) {
		o.fovy, o.aspect, o.near, o.far = fovy, aspect, near, far
	}
}
