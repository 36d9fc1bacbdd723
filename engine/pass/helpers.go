package pass

import (
	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// shadowDepthRange is the depth span of the shadow frustum relative to its half extent.
const shadowDepthRange = 4

func newColorTarget(dev gpu.Device, label string, format gpu.Format, extent common.Extent2D, usage gpu.ImageUsage, resizable bool) (*gpu.Image, error) {
	return dev.CreateImage(gpu.ImageDesc{
		Label:     label,
		Format:    format,
		Dimension: gpu.Image2D,
		Extent:    gpu.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		Usage:     gpu.ImageUsageColorAttachment | usage,
		Resizable: resizable,
	})
}

func newDepthTarget(dev gpu.Device, label string, extent common.Extent2D, usage gpu.ImageUsage, resizable bool) (*gpu.Image, error) {
	return dev.CreateImage(gpu.ImageDesc{
		Label:     label,
		Format:    gpu.FormatDepth32Float,
		Dimension: gpu.Image2D,
		Extent:    gpu.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		Usage:     gpu.ImageUsageDepthAttachment | usage,
		Resizable: resizable,
	})
}

func newStorageTarget(dev gpu.Device, label string, format gpu.Format, dim gpu.ImageDimension, extent gpu.Extent3D) (*gpu.Image, error) {
	return dev.CreateImage(gpu.ImageDesc{
		Label:     label,
		Format:    format,
		Dimension: dim,
		Extent:    extent,
		Usage:     gpu.ImageUsageStorage | gpu.ImageUsageSampled,
	})
}

// fullscreenTriangle draws the single triangle that covers the viewport. The vertex shader
// derives positions from the vertex index.
func fullscreenTriangle(cmd *gpu.CommandBuffer) {
	cmd.Draw(3, 1)
}

// meshVertexLayout is the interleaved layout of common.VertexData.Interleave.
func meshVertexLayout() gpu.VertexLayout {
	return gpu.VertexLayout{
		Stride: common.VertexStride,
		Attributes: []gpu.VertexAttribute{
			{Location: 0, Offset: 0, Format: gpu.VertexFloat32x3},
			{Location: 1, Offset: 12, Format: gpu.VertexFloat32x3},
			{Location: 2, Offset: 24, Format: gpu.VertexFloat32x3},
			{Location: 3, Offset: 36, Format: gpu.VertexFloat32x2},
		},
	}
}

// visibleObjects returns up to limit objects whose meshes are uploaded and that carry every bit
// of flags. Meshes whose data has just become ready are uploaded here.
func visibleObjects(dev gpu.Device, objects []scene.Drawable, flags scene.ObjectFlags, limit int) []scene.Drawable {
	out := make([]scene.Drawable, 0, min(len(objects), limit))
	for _, d := range objects {
		if len(out) == limit {
			break
		}
		if !d.Flags.Has(flags) || !d.Mesh.Drawable(dev) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// drawObjects records one draw per object, binding its dynamic object offset at setIndex.
// bind, when set, binds per-object state before the draw.
func drawObjects(cmd *gpu.CommandBuffer, objects []scene.Drawable, offsets []uint32, objectSet *gpu.DescriptorSet, setIndex uint32, bind func(i int, d scene.Drawable) error) (int, error) {
	drawn := 0
	for i, d := range objects {
		if i >= len(offsets) {
			break
		}
		if bind != nil {
			if err := bind(i, d); err != nil {
				return drawn, err
			}
		}
		cmd.BindDescriptorSet(setIndex, objectSet, offsets[i])
		cmd.BindVertexBuffer(d.Mesh.VertexBuffer())
		if ib := d.Mesh.IndexBuffer(); ib != nil {
			cmd.BindIndexBuffer(ib)
			cmd.DrawIndexed(d.Mesh.IndexCount(), 1)
		} else {
			cmd.Draw(d.Mesh.VertexCount(), 1)
		}
		drawn++
	}
	return drawn, cmd.Err()
}

// shadowViewProj returns the light transform of the snapshot's shadow light, centered on the
// scene bounds.
func shadowViewProj(s *scene.Snapshot, halfExtent float32) (mgl32.Mat4, bool) {
	light, ok := s.ShadowLight()
	if !ok {
		return mgl32.Ident4(), false
	}
	var center mgl32.Vec3
	if lo, hi, found := s.Bounds(); found {
		center = lo.Add(hi).Mul(0.5)
	}
	return light.ShadowViewProj(center, halfExtent, 0, halfExtent*shadowDepthRange), true
}

// release releases every non-nil item and appends the errors to errs.
func release[T interface {
	comparable
	Release() error
}](errs []error, items ...T) []error {
	var zero T
	for _, it := range items {
		if it != zero {
			errs = append(errs, it.Release())
		}
	}
	return errs
}
