package pass

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-render/engine/assets"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/logging"
)

// Context carries what every pass shares: the device, the fallback placeholders, the logger and
// the images bound to graph resource names. Passes publish the targets they own and look up
// the targets they read; lookups are non-owning.
type Context struct {
	Device    gpu.Device
	Fallbacks *assets.Fallbacks
	Logger    *slog.Logger

	targets  map[string]*gpu.Image
	versions map[string]uint64
}

// NewContext returns a context for dev.
//
// Parameters:
//   - dev: the device the passes allocate on
//   - fallbacks: the shared placeholders
//   - logger: the logger, or nil for the default
//
// Returns:
//   - *Context: the context
func NewContext(dev gpu.Device, fallbacks *assets.Fallbacks, logger *slog.Logger) *Context {
	return &Context{
		Device:    dev,
		Fallbacks: fallbacks,
		Logger:    logging.Or(logger),
		targets:   make(map[string]*gpu.Image),
		versions:  make(map[string]uint64),
	}
}

// Target returns the image bound to a resource name, or nil.
func (c *Context) Target(name string) *gpu.Image {
	return c.targets[name]
}

// SetTarget binds img to a resource name. A nil image removes the binding.
func (c *Context) SetTarget(name string, img *gpu.Image) {
	if img == nil {
		delete(c.targets, name)
		return
	}
	c.targets[name] = img
}

// Version returns how many times the contents of a resource were regenerated.
func (c *Context) Version(name string) uint64 {
	return c.versions[name]
}

// Touch records that a resource's contents were regenerated.
func (c *Context) Touch(name string) {
	c.versions[name]++
}
