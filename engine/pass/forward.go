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

const (
	// shadowBias is the depth offset applied before the shadow comparison.
	shadowBias = 0.002
	// materialSetsPerFrame bounds the cached material sets of one frame slot.
	materialSetsPerFrame = 64
)

type materialKey struct {
	image *gpu.Image
	slot  int
}

type materialEntry struct {
	set *gpu.DescriptorSet
	// used is the execution that last bound the set.
	used uint64
}

// ForwardPass shades every visible object into the HDR scene.color target. It reads the shadow
// map, the irradiance cube and the voxel volume when earlier passes produce them and binds 1x1
// placeholders otherwise.
type ForwardPass struct {
	Lifecycle
	ctx      *Context
	settings settings

	color *gpu.Image
	depth *gpu.Image

	shadowMap  *gpu.Image
	irradiance *gpu.Image
	voxels     *gpu.Image
	// placeholders are owned by the pass and released on cleanup.
	placeholders []*gpu.Image

	pool           *gpu.DescriptorPool
	uniforms       *binding.FrameUniforms
	shadowParams   *binding.UniformRing
	voxelParams    *binding.UniformRing
	materialParams *binding.UniformRing
	lightingLayout *gpu.DescriptorSetLayout
	materialLayout *gpu.DescriptorSetLayout
	lighting       *binding.SetRing
	materials      map[materialKey]*materialEntry
	executions     uint64
	pipeline       *gpu.Pipeline
}

var _ Pass = &ForwardPass{}

// NewForwardPass creates an uninitialized forward pass.
//
// Parameters:
//   - ctx: the shared pass context
//   - options: WithClearColor, WithMaxObjects, WithShadowExtent, WithShadowMapSize and
//     WithVoxelResolution apply
//
// Returns:
//   - *ForwardPass: the pass
func NewForwardPass(ctx *Context, options ...PassBuilderOption) *ForwardPass {
	return &ForwardPass{
		Lifecycle: NewLifecycle("forward", KindGraphical),
		ctx:       ctx,
		settings:  newSettings(options),
		materials: make(map[materialKey]*materialEntry),
	}
}

// ColorTarget returns the current scene.color image.
func (p *ForwardPass) ColorTarget() *gpu.Image {
	return p.color
}

// DepthTarget returns the current scene.depth image.
func (p *ForwardPass) DepthTarget() *gpu.Image {
	return p.depth
}

// MaterialSets returns the number of cached material descriptor sets.
func (p *ForwardPass) MaterialSets() int {
	return len(p.materials)
}

func (p *ForwardPass) SetupAttachments(b *graph.Builder) error {
	if err := p.BeginAttachments(); err != nil {
		return err
	}
	if err := b.BeginPass(p.Name(), p.Kind()); err != nil {
		return err
	}
	for _, name := range []string{ShadowMap, EnvIrradiance, VoxelVolume} {
		if !b.Declared(name) {
			continue
		}
		if err := b.Read(name, graph.ResourceInfo{Usage: graph.UsageSampled}); err != nil {
			return err
		}
	}
	err := b.CreateTarget(SceneColor, graph.ResourceInfo{
		Format:    gpu.FormatRGBA16Float,
		Usage:     graph.UsageColorAttachment,
		Resizable: true,
	})
	if err != nil {
		return err
	}
	err = b.CreateTarget(SceneDepth, graph.ResourceInfo{
		Format:    gpu.FormatDepth32Float,
		Usage:     graph.UsageDepthAttachment,
		Resizable: true,
	})
	if err != nil {
		return err
	}
	if err := p.createTargets(p.ctx.Device.SurfaceExtent()); err != nil {
		return err
	}
	return p.resolveInputs()
}

func (p *ForwardPass) createTargets(extent common.Extent2D) error {
	color, err := newColorTarget(p.ctx.Device, SceneColor, gpu.FormatRGBA16Float, extent, gpu.ImageUsageSampled, true)
	if err != nil {
		return err
	}
	depth, err := newDepthTarget(p.ctx.Device, SceneDepth, extent, 0, true)
	if err != nil {
		return errors.Join(err, color.Release())
	}
	p.color, p.depth = color, depth
	p.ctx.SetTarget(SceneColor, color)
	p.ctx.SetTarget(SceneDepth, depth)
	return nil
}

// resolveInputs looks up the optional inputs and creates a placeholder for each missing one.
func (p *ForwardPass) resolveInputs() error {
	dev := p.ctx.Device
	one := gpu.Extent3D{Width: 1, Height: 1, Depth: 1}
	inputs := []struct {
		name string
		dst  **gpu.Image
		desc gpu.ImageDesc
	}{
		{ShadowMap, &p.shadowMap, gpu.ImageDesc{Label: "forward.placeholder.shadow", Format: gpu.FormatDepth32Float, Dimension: gpu.Image2D, Extent: one, Usage: gpu.ImageUsageDepthAttachment | gpu.ImageUsageSampled}},
		{EnvIrradiance, &p.irradiance, gpu.ImageDesc{Label: "forward.placeholder.irradiance", Format: gpu.FormatRGBA16Float, Dimension: gpu.ImageCube, Extent: one, Usage: gpu.ImageUsageSampled}},
		{VoxelVolume, &p.voxels, gpu.ImageDesc{Label: "forward.placeholder.voxels", Format: gpu.FormatRGBA8Unorm, Dimension: gpu.Image3D, Extent: one, Usage: gpu.ImageUsageSampled}},
	}
	for _, in := range inputs {
		if img := p.ctx.Target(in.name); img != nil {
			*in.dst = img
			continue
		}
		img, err := dev.CreateImage(in.desc)
		if err != nil {
			return err
		}
		p.placeholders = append(p.placeholders, img)
		*in.dst = img
	}
	return nil
}

// hasInput reports whether img is a real input rather than a placeholder.
func (p *ForwardPass) hasInput(img *gpu.Image) bool {
	for _, ph := range p.placeholders {
		if ph == img {
			return false
		}
	}
	return img != nil
}

func (p *ForwardPass) SetupUniforms(frames int) error {
	if err := p.RequireConfigured("setup uniforms"); err != nil {
		return err
	}
	dev := p.ctx.Device
	var err error
	if p.pool, err = dev.CreateDescriptorPool("forward.descriptors", frames*(3+materialSetsPerFrame)); err != nil {
		return err
	}
	if p.uniforms, err = binding.NewFrameUniforms(dev, p.pool, "forward", frames, p.settings.maxObjects); err != nil {
		return err
	}
	if p.shadowParams, err = binding.NewUniformRing(dev, "forward.shadow", binding.ShadowUniformsSize, frames); err != nil {
		return err
	}
	if p.voxelParams, err = binding.NewUniformRing(dev, "forward.voxel", binding.VoxelUniformsSize, frames); err != nil {
		return err
	}
	if p.materialParams, err = binding.NewDynamicUniformRing(dev, "forward.material", binding.MaterialUniformsSize, p.settings.maxObjects, frames); err != nil {
		return err
	}
	p.lightingLayout, err = dev.CreateDescriptorSetLayout("forward.lighting",
		gpu.LayoutBinding{Binding: 0, Type: gpu.BindingUniformBuffer, Visibility: gpu.VisibleFragment},
		gpu.LayoutBinding{Binding: 1, Type: gpu.BindingDepthImage, Visibility: gpu.VisibleFragment, View: gpu.View2D},
		gpu.LayoutBinding{Binding: 2, Type: gpu.BindingComparisonSampler, Visibility: gpu.VisibleFragment},
		gpu.LayoutBinding{Binding: 3, Type: gpu.BindingSampledImage, Visibility: gpu.VisibleFragment, View: gpu.ViewCube},
		gpu.LayoutBinding{Binding: 4, Type: gpu.BindingSampledImage, Visibility: gpu.VisibleFragment, View: gpu.View3D},
		gpu.LayoutBinding{Binding: 5, Type: gpu.BindingSampler, Visibility: gpu.VisibleFragment},
		gpu.LayoutBinding{Binding: 6, Type: gpu.BindingUniformBuffer, Visibility: gpu.VisibleFragment},
	)
	if err != nil {
		return err
	}
	p.materialLayout, err = dev.CreateDescriptorSetLayout("forward.material",
		gpu.LayoutBinding{Binding: 0, Type: gpu.BindingSampledImage, Visibility: gpu.VisibleFragment, View: gpu.View2D},
		gpu.LayoutBinding{Binding: 1, Type: gpu.BindingSampler, Visibility: gpu.VisibleFragment},
		gpu.LayoutBinding{Binding: 2, Type: gpu.BindingUniformBuffer, Visibility: gpu.VisibleFragment, Dynamic: true, Size: binding.MaterialUniformsSize},
	)
	if err != nil {
		return err
	}
	p.lighting, err = binding.NewSetRing(p.pool, "forward.lighting", p.lightingLayout, frames, func(slot int, set *gpu.DescriptorSet) {
		set.SetBuffer(0, p.shadowParams.Buffer(slot))
		set.SetImage(1, p.shadowMap)
		set.SetSampler(2, p.ctx.Fallbacks.ShadowSampler)
		set.SetImage(3, p.irradiance)
		set.SetImage(4, p.voxels)
		set.SetSampler(5, p.ctx.Fallbacks.ClampSampler)
		set.SetBuffer(6, p.voxelParams.Buffer(slot))
	})
	return err
}

func (p *ForwardPass) SetupShaderPasses() error {
	if err := p.RequireConfigured("setup shader passes"); err != nil {
		return err
	}
	desc := gpu.NewGraphicsPipeline("forward", graphicsShader("forward", forwardShader),
		gpu.WithLayouts(p.uniforms.FrameLayout(), p.uniforms.ObjectLayout(), p.lightingLayout, p.materialLayout),
		gpu.WithVertexLayout(meshVertexLayout()),
		gpu.WithColorTargets(gpu.FormatRGBA16Float),
		gpu.WithDepth(gpu.FormatDepth32Float, true, true),
		gpu.WithDepthCompare(gpu.CompareLess),
		gpu.WithCullMode(gpu.CullBack),
	)
	pipeline, err := p.ctx.Device.CreatePipeline(desc)
	if err != nil {
		return err
	}
	p.pipeline = pipeline
	p.MarkReady()
	return nil
}

func (p *ForwardPass) Execute(f *frame.Frame, s *scene.Snapshot, _ uint32) error {
	if err := p.BeginExecute(); err != nil {
		return err
	}
	defer p.EndExecute()
	p.executions++

	slot := f.Index()
	objects := visibleObjects(p.ctx.Device, s.Objects, 0, p.settings.maxObjects)
	visible := *s
	visible.Objects = objects
	offsets, err := p.uniforms.Update(slot, &visible)
	if err != nil {
		return fmt.Errorf("forward: update uniforms: %w", err)
	}
	if err := p.writeLighting(slot, s); err != nil {
		return fmt.Errorf("forward: update lighting: %w", err)
	}
	p.dropMaterials(slot, func(e *materialEntry, img *gpu.Image) bool { return img.Released() })

	cmd := f.CommandBuffer()
	cmd.BeginRenderPass(gpu.RenderPassDesc{
		Label: "forward",
		Color: []gpu.ColorAttachment{{Image: p.color, Load: gpu.LoadClear, Clear: p.settings.clearColor}},
		Depth: &gpu.DepthAttachment{Image: p.depth, Load: gpu.LoadClear, ClearDepth: 1},
	})
	defer cmd.EndRenderPass()

	cmd.BindPipeline(p.pipeline)
	cmd.BindDescriptorSet(0, p.uniforms.FrameSet(slot))
	cmd.BindDescriptorSet(2, p.lighting.Set(slot))
	_, err = drawObjects(cmd, objects, offsets, p.uniforms.ObjectSet(slot), 1, func(i int, d scene.Drawable) error {
		mu := binding.MaterialUniforms{BaseColor: d.Material.BaseColor}
		off, err := p.materialParams.WriteAt(slot, i, mu.Marshal())
		if err != nil {
			return err
		}
		albedo, _ := d.Material.Albedo.Resolve(p.ctx.Device, p.ctx.Fallbacks.White)
		set, err := p.materialSet(slot, albedo)
		if err != nil {
			return err
		}
		cmd.BindDescriptorSet(3, set, off)
		return nil
	})
	return err
}

func (p *ForwardPass) writeLighting(slot int, s *scene.Snapshot) error {
	su := binding.ShadowUniforms{ViewProj: mgl32.Ident4()}
	if p.hasInput(p.shadowMap) {
		if vp, ok := shadowViewProj(s, p.settings.shadowExtent); ok {
			su.ViewProj = vp
			su.Params = mgl32.Vec4{shadowBias, 1 / float32(p.shadowMap.Extent().Width), 1, 0}
		}
	}
	if err := p.shadowParams.Write(slot, su.Marshal()); err != nil {
		return err
	}
	var vu binding.VoxelUniforms
	if p.hasInput(p.voxels) {
		vu = voxelUniforms(s, p.voxels.Extent().Width, p.settings.shadowExtent)
	}
	return p.voxelParams.Write(slot, vu.Marshal())
}

// materialSet returns the cached material set of a slot for albedo, allocating it on first use.
// When the pool is full the slot's sets not bound during this execution are dropped and the
// allocation retried.
func (p *ForwardPass) materialSet(slot int, albedo *gpu.Image) (*gpu.DescriptorSet, error) {
	key := materialKey{image: albedo, slot: slot}
	if e, ok := p.materials[key]; ok {
		e.used = p.executions
		return e.set, nil
	}
	label := fmt.Sprintf("forward.material[%d]", slot)
	set, err := p.pool.Allocate(label, p.materialLayout)
	if errors.Is(err, gpu.ErrPoolExhausted) {
		p.dropMaterials(slot, func(e *materialEntry, _ *gpu.Image) bool { return e.used != p.executions })
		set, err = p.pool.Allocate(label, p.materialLayout)
	}
	if err != nil {
		return nil, err
	}
	set.SetImage(0, albedo)
	set.SetSampler(1, p.ctx.Fallbacks.Sampler)
	set.SetBuffer(2, p.materialParams.Buffer(slot))
	if err := set.Commit(); err != nil {
		return nil, errors.Join(err, set.Release())
	}
	p.materials[key] = &materialEntry{set: set, used: p.executions}
	return set, nil
}

// dropMaterials releases the cached sets of a slot that match.
func (p *ForwardPass) dropMaterials(slot int, match func(e *materialEntry, img *gpu.Image) bool) {
	for key, e := range p.materials {
		if key.slot != slot || !match(e, key.image) {
			continue
		}
		_ = e.set.Release()
		delete(p.materials, key)
	}
}

// Resize recreates scene.color and scene.depth at the new extent. The caller must have waited
// for the device to go idle.
func (p *ForwardPass) Resize(extent common.Extent2D) error {
	if err := p.RequireReady("resize"); err != nil {
		return err
	}
	old := []*gpu.Image{p.color, p.depth}
	if err := p.createTargets(extent); err != nil {
		return fmt.Errorf("forward: resize to %dx%d: %w", extent.Width, extent.Height, err)
	}
	return errors.Join(release(nil, old...)...)
}

func (p *ForwardPass) Cleanup() error {
	if err := p.BeginCleanup(); err != nil {
		return err
	}
	p.ctx.SetTarget(SceneColor, nil)
	p.ctx.SetTarget(SceneDepth, nil)
	for key, e := range p.materials {
		_ = e.set.Release()
		delete(p.materials, key)
	}
	errs := release(nil, p.pipeline)
	errs = release(errs, p.lighting)
	errs = release(errs, p.uniforms)
	errs = release(errs, p.pool)
	errs = release(errs, p.shadowParams, p.voxelParams, p.materialParams)
	errs = release(errs, p.lightingLayout, p.materialLayout)
	errs = release(errs, p.placeholders...)
	errs = release(errs, p.color, p.depth)
	return errors.Join(errs...)
}
