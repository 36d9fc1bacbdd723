package gpu

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-render/engine/logging"
)

// DeviceBuilderOption is a functional option used to configure a Device during construction.
type DeviceBuilderOption func(*device)

// NewDevice creates a Device that allocates and submits through backend.
//
// Parameters:
//   - backend: the driver backend
//   - options: functional options to configure the device
//
// Returns:
//   - Device: the new device
func NewDevice(backend Backend, options ...DeviceBuilderOption) Device {
	d := &device{
		backend:   backend,
		resources: NewArena[*resource](),
	}
	for _, opt := range options {
		opt(d)
	}
	d.logger = logging.Or(d.logger).With("component", "gpu", "backend", backend.Name())
	return d
}

// WithLogger sets the logger used for resource lifecycle and surface events.
//
// Parameters:
//   - l: the logger to use, nil falls back to the package-wide logger
//
// Returns:
//   - DeviceBuilderOption: a function that sets the logger for this device
func WithLogger(l *slog.Logger) DeviceBuilderOption {
	return func(d *device) {
		d.logger = l
	}
}
