package graph

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
)

// Step is one pass of a compiled plan with the barriers recorded before it.
type Step struct {
	Pass     PassNode
	Reads    []Access
	Writes   []Access
	Barriers []gpu.ImageBarrier
}

// Plan is the compiled, ordered list of steps.
type Plan struct {
	Steps []Step
	// Final holds the transitions recorded after the last pass, e.g. the swapchain image to
	// the present layout.
	Final []gpu.ImageBarrier

	resources map[string]*Resource
	order     []string
}

// Resource returns the tracked resource with the given name.
func (p *Plan) Resource(name string) (*Resource, bool) {
	r, ok := p.resources[name]
	return r, ok
}

// Resources returns every tracked resource in declaration order.
func (p *Plan) Resources() []*Resource {
	out := make([]*Resource, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.resources[name])
	}
	return out
}

// Step returns the step of the named pass.
func (p *Plan) Step(pass string) (Step, bool) {
	for _, s := range p.Steps {
		if s.Pass.Name == pass {
			return s, true
		}
	}
	return Step{}, false
}

// ImageLookup returns the image currently bound to a resource name, or nil.
type ImageLookup func(name string) *gpu.Image

// Resolve binds planned barriers to images. Each barrier's old layout is replaced with the
// layout the image is tracked in, so persistent images keep their contents across frames.
// Barriers that would change nothing are dropped: the image is already in the new layout and
// neither side writes.
//
// Parameters:
//   - barriers: the planned barriers
//   - lookup: maps resource names to images
//
// Returns:
//   - []gpu.ImageBarrier: the barriers to record
//   - error: an error naming a resource that has no image
func Resolve(barriers []gpu.ImageBarrier, lookup ImageLookup) ([]gpu.ImageBarrier, error) {
	out := make([]gpu.ImageBarrier, 0, len(barriers))
	for _, b := range barriers {
		img := lookup(b.Name)
		if img == nil {
			return nil, fmt.Errorf("graph: resource %q has no image bound", b.Name)
		}
		b.Image = img
		b.OldLayout = img.Layout()
		if b.OldLayout == b.NewLayout && !b.SrcAccess.HasWrite() && !b.DstAccess.HasWrite() {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// CheckUsage verifies that every image bound to a non-external resource was allocated with the
// usage bits all of its passes need.
//
// Parameters:
//   - lookup: maps resource names to images
//
// Returns:
//   - error: an error naming the first resource with a missing image or usage bits
func (p *Plan) CheckUsage(lookup ImageLookup) error {
	for _, r := range p.Resources() {
		if r.External {
			continue
		}
		img := lookup(r.Name)
		if img == nil {
			return fmt.Errorf("graph: resource %q has no image bound", r.Name)
		}
		if missing := r.AllUsage &^ img.Desc().Usage; missing != 0 {
			return fmt.Errorf("graph: resource %q is missing image usage %#x", r.Name, uint32(missing))
		}
	}
	return nil
}
