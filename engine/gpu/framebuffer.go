package gpu

import "github.com/Carmen-Shannon/oxy-render/common"

// Framebuffer groups the attachments one render pass draws into.
type Framebuffer struct {
	resource
	colors []*Image
	depth  *Image
	extent common.Extent2D
}

// Colors returns the color attachments in target order.
func (f *Framebuffer) Colors() []*Image {
	return f.colors
}

// Depth returns the depth attachment, or nil.
func (f *Framebuffer) Depth() *Image {
	return f.depth
}

// Extent returns the shared size of all attachments.
func (f *Framebuffer) Extent() common.Extent2D {
	return f.extent
}

// RenderPass returns a RenderPassDesc drawing into every attachment of the framebuffer.
//
// Parameters:
//   - label: the debug label of the pass
//   - load: LoadClear to clear the attachments, LoadLoad to keep their contents
//   - clear: the clear color, used for every color attachment
//
// Returns:
//   - RenderPassDesc: the render pass description
func (f *Framebuffer) RenderPass(label string, load LoadOp, clear [4]float64) RenderPassDesc {
	desc := RenderPassDesc{Label: label}
	for _, c := range f.colors {
		desc.Color = append(desc.Color, ColorAttachment{Image: c, Load: load, Clear: clear})
	}
	if f.depth != nil {
		desc.Depth = &DepthAttachment{Image: f.depth, Load: load, ClearDepth: 1}
	}
	return desc
}
