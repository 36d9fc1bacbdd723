package wgpu_backend

// WgpuBackendBuilderOption is a functional option used to configure a WgpuBackend during construction.
type WgpuBackendBuilderOption func(*wgpuBackendImpl)

// WithPresentMode sets the present mode used when the surface is configured.
//
// Parameters:
//   - mode: the present mode to use
//
// Returns:
//   - WgpuBackendBuilderOption: a function that sets the present mode
func WithPresentMode(mode PresentMode) WgpuBackendBuilderOption {
	return func(b *wgpuBackendImpl) {
		b.SetPresentMode(mode)
	}
}

// WithForceSoftwareRenderer requests the fallback (software) adapter.
//
// Parameters:
//   - force: whether to force the fallback adapter
//
// Returns:
//   - WgpuBackendBuilderOption: a function that sets the adapter preference
func WithForceSoftwareRenderer(force bool) WgpuBackendBuilderOption {
	return func(b *wgpuBackendImpl) {
		b.forceFallbackAdapter = force
	}
}

// WithDeviceLabel sets the debug label of the WebGPU device.
func WithDeviceLabel(label string) WgpuBackendBuilderOption {
	return func(b *wgpuBackendImpl) {
		b.label = label
	}
}
