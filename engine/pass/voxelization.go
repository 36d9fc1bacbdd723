package pass

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/binding"
	"github.com/Carmen-Shannon/oxy-render/engine/frame"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/graph"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// voxelPadding grows the scene bounds so objects on the boundary fill whole voxels.
const voxelPadding = 0.05

// VoxelizationPass clears and refills the voxel.volume grid every frame from the world bounds of
// the scene's objects, lighting each voxel with the shadowed directional light.
type VoxelizationPass struct {
	Lifecycle
	ctx      *Context
	settings settings

	volume   *gpu.Image
	layout   *gpu.DescriptorSetLayout
	pool     *gpu.DescriptorPool
	params   *binding.UniformRing
	boxes    []*gpu.Buffer
	sets     *binding.SetRing
	pipeline *gpu.Pipeline
}

var _ Pass = &VoxelizationPass{}

// NewVoxelizationPass creates an uninitialized voxelization pass.
//
// Parameters:
//   - ctx: the shared pass context
//   - options: WithVoxelResolution, WithShadowExtent and WithMaxObjects apply
//
// Returns:
//   - *VoxelizationPass: the pass
func NewVoxelizationPass(ctx *Context, options ...PassBuilderOption) *VoxelizationPass {
	return &VoxelizationPass{Lifecycle: NewLifecycle("voxelization", KindCompute), ctx: ctx, settings: newSettings(options)}
}

func (p *VoxelizationPass) SetupAttachments(b *graph.Builder) error {
	if err := p.BeginAttachments(); err != nil {
		return err
	}
	n := p.settings.voxelResolution
	extent := gpu.Extent3D{Width: n, Height: n, Depth: n}
	if err := b.BeginPass(p.Name(), p.Kind()); err != nil {
		return err
	}
	if err := b.Read(ShadowMap, graph.ResourceInfo{Usage: graph.UsageSampled}); err != nil {
		return err
	}
	err := b.CreateTarget(VoxelVolume, graph.ResourceInfo{
		Format:    gpu.FormatRGBA8Unorm,
		Dimension: gpu.Image3D,
		Extent:    extent,
		Usage:     graph.UsageStorageWrite,
	})
	if err != nil {
		return err
	}
	if p.volume, err = newStorageTarget(p.ctx.Device, VoxelVolume, gpu.FormatRGBA8Unorm, gpu.Image3D, extent); err != nil {
		return err
	}
	p.ctx.SetTarget(VoxelVolume, p.volume)
	return nil
}

func (p *VoxelizationPass) SetupUniforms(frames int) error {
	if err := p.RequireConfigured("setup uniforms"); err != nil {
		return err
	}
	dev := p.ctx.Device
	var err error
	p.layout, err = dev.CreateDescriptorSetLayout("voxelization",
		gpu.LayoutBinding{Binding: 0, Type: gpu.BindingUniformBuffer, Visibility: gpu.VisibleCompute},
		gpu.LayoutBinding{Binding: 1, Type: gpu.BindingReadOnlyStorageBuffer, Visibility: gpu.VisibleCompute},
		gpu.LayoutBinding{Binding: 2, Type: gpu.BindingDepthImage, Visibility: gpu.VisibleCompute, View: gpu.View2D},
		gpu.LayoutBinding{Binding: 3, Type: gpu.BindingComparisonSampler, Visibility: gpu.VisibleCompute},
		gpu.LayoutBinding{Binding: 4, Type: gpu.BindingStorageImage, Visibility: gpu.VisibleCompute, View: gpu.View3D, Format: gpu.FormatRGBA8Unorm},
	)
	if err != nil {
		return err
	}
	if p.params, err = binding.NewUniformRing(dev, "voxelization.params", binding.VoxelUniformsSize, frames); err != nil {
		return err
	}
	for i := range frames {
		buf, err := dev.CreateBuffer(gpu.BufferDesc{
			Label: fmt.Sprintf("voxelization.boxes[%d]", i),
			Size:  uint64(p.settings.maxObjects * binding.VoxelBoxSize),
			Usage: gpu.BufferUsageStorage | gpu.BufferUsageCopyDst,
		})
		if err != nil {
			return err
		}
		p.boxes = append(p.boxes, buf)
	}
	if p.pool, err = dev.CreateDescriptorPool("voxelization.descriptors", frames); err != nil {
		return err
	}
	p.sets, err = binding.NewSetRing(p.pool, "voxelization", p.layout, frames, func(slot int, set *gpu.DescriptorSet) {
		set.SetBuffer(0, p.params.Buffer(slot))
		set.SetBuffer(1, p.boxes[slot])
		set.SetImage(2, p.ctx.Target(ShadowMap))
		set.SetSampler(3, p.ctx.Fallbacks.ShadowSampler)
		set.SetImage(4, p.volume)
	})
	return err
}

func (p *VoxelizationPass) SetupShaderPasses() error {
	if err := p.RequireConfigured("setup shader passes"); err != nil {
		return err
	}
	pipeline, err := p.ctx.Device.CreatePipeline(gpu.NewComputePipeline("voxelization",
		computeShader("voxelization", voxelSource), gpu.WithLayouts(p.layout)))
	if err != nil {
		return err
	}
	p.pipeline = pipeline
	p.MarkReady()
	return nil
}

func (p *VoxelizationPass) Execute(f *frame.Frame, s *scene.Snapshot, _ uint32) error {
	if err := p.BeginExecute(); err != nil {
		return err
	}
	defer p.EndExecute()

	slot := f.Index()
	objects := visibleObjects(p.ctx.Device, s.Objects, 0, p.settings.maxObjects)
	u := voxelUniforms(s, p.settings.voxelResolution, p.settings.shadowExtent)
	u.NumBoxes = uint32(len(objects))
	if err := p.params.Write(slot, u.Marshal()); err != nil {
		return fmt.Errorf("voxelization: %w", err)
	}
	if len(objects) > 0 {
		boxes := make([]binding.VoxelBox, 0, len(objects))
		for _, d := range objects {
			lo, hi := d.WorldBounds()
			boxes = append(boxes, binding.VoxelBox{Min: lo.Vec4(0), Max: hi.Vec4(0), Color: d.Material.BaseColor})
		}
		if err := p.boxes[slot].Upload(0, binding.MarshalVoxelBoxes(boxes)); err != nil {
			return fmt.Errorf("voxelization: %w", err)
		}
	}

	groups := p.settings.voxelResolution / 4
	cmd := f.CommandBuffer()
	cmd.BeginComputePass("voxelization")
	cmd.BindPipeline(p.pipeline)
	cmd.BindDescriptorSet(0, p.sets.Set(slot))
	cmd.Dispatch(groups, groups, groups)
	cmd.EndComputePass()
	return cmd.Err()
}

// voxelUniforms describes the voxel grid covering the scene bounds and the shadow light.
func voxelUniforms(s *scene.Snapshot, resolution uint32, shadowExtent float32) binding.VoxelUniforms {
	lo, hi, ok := s.Bounds()
	if !ok {
		lo, hi = mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}
	}
	pad := hi.Sub(lo).Mul(voxelPadding)
	lo, hi = lo.Sub(pad), hi.Add(pad)

	u := binding.VoxelUniforms{
		GridMin: lo.Vec4(0),
		GridMax: hi.Vec4(float32(resolution)),
	}
	if light, found := s.ShadowLight(); found {
		vp, _ := shadowViewProj(s, shadowExtent)
		u.LightDir = light.Direction.Vec4(1)
		u.LightColor = light.Color.Mul(light.Intensity).Vec4(1)
		u.LightViewProj = vp
	} else {
		u.LightColor = mgl32.Vec4{1, 1, 1, 1}
		u.LightViewProj = mgl32.Ident4()
	}
	return u
}

func (p *VoxelizationPass) Resize(common.Extent2D) error {
	return p.RequireReady("resize")
}

func (p *VoxelizationPass) Cleanup() error {
	if err := p.BeginCleanup(); err != nil {
		return err
	}
	p.ctx.SetTarget(VoxelVolume, nil)
	errs := release(nil, p.pipeline)
	errs = release(errs, p.sets)
	errs = release(errs, p.pool)
	errs = release(errs, p.params)
	errs = release(errs, p.boxes...)
	errs = release(errs, p.layout)
	errs = release(errs, p.volume)
	return errors.Join(errs...)
}
