package pass

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/binding"
	"github.com/Carmen-Shannon/oxy-render/engine/frame"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/graph"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
)

// IrradianceComputePass convolves env.cubemap into the diffuse irradiance cube env.irradiance.
// It runs when the environment cubemap has changed since its last run, or after MarkDirty.
type IrradianceComputePass struct {
	Lifecycle
	ctx      *Context
	settings settings

	irradiance *gpu.Image
	layout     *gpu.DescriptorSetLayout
	pool       *gpu.DescriptorPool
	sets       *binding.SetRing
	pipeline   *gpu.Pipeline
	seen       uint64
	dirty      bool
}

var _ Pass = &IrradianceComputePass{}

// NewIrradianceComputePass creates an uninitialized irradiance pass.
//
// Parameters:
//   - ctx: the shared pass context
//   - options: WithIrradianceSize applies
//
// Returns:
//   - *IrradianceComputePass: the pass
func NewIrradianceComputePass(ctx *Context, options ...PassBuilderOption) *IrradianceComputePass {
	return &IrradianceComputePass{
		Lifecycle: NewLifecycle("irradiance", KindCompute),
		ctx:       ctx,
		settings:  newSettings(options),
		dirty:     true,
	}
}

// MarkDirty forces the convolution to run on the next frame.
func (p *IrradianceComputePass) MarkDirty() {
	p.dirty = true
}

// Dirty reports whether the next Execute records the convolution.
func (p *IrradianceComputePass) Dirty() bool {
	return p.dirty || p.ctx.Version(EnvCubemap) != p.seen
}

func (p *IrradianceComputePass) SetupAttachments(b *graph.Builder) error {
	if err := p.BeginAttachments(); err != nil {
		return err
	}
	size := p.settings.irradianceSize
	extent := gpu.Extent3D{Width: size, Height: size, Depth: 1}
	if err := b.BeginPass(p.Name(), p.Kind()); err != nil {
		return err
	}
	if err := b.Read(EnvCubemap, graph.ResourceInfo{Usage: graph.UsageSampled}); err != nil {
		return err
	}
	err := b.CreateTarget(EnvIrradiance, graph.ResourceInfo{
		Format:    gpu.FormatRGBA16Float,
		Dimension: gpu.ImageCube,
		Extent:    extent,
		Usage:     graph.UsageStorageWrite,
	})
	if err != nil {
		return err
	}
	if p.irradiance, err = newStorageTarget(p.ctx.Device, EnvIrradiance, gpu.FormatRGBA16Float, gpu.ImageCube, extent); err != nil {
		return err
	}
	p.ctx.SetTarget(EnvIrradiance, p.irradiance)
	return nil
}

func (p *IrradianceComputePass) SetupUniforms(frames int) error {
	if err := p.RequireConfigured("setup uniforms"); err != nil {
		return err
	}
	dev := p.ctx.Device
	var err error
	p.layout, err = dev.CreateDescriptorSetLayout("irradiance",
		gpu.LayoutBinding{Binding: 0, Type: gpu.BindingSampledImage, Visibility: gpu.VisibleCompute, View: gpu.ViewCube},
		gpu.LayoutBinding{Binding: 1, Type: gpu.BindingSampler, Visibility: gpu.VisibleCompute},
		gpu.LayoutBinding{Binding: 2, Type: gpu.BindingStorageImage, Visibility: gpu.VisibleCompute, View: gpu.View2DArray, Format: gpu.FormatRGBA16Float},
	)
	if err != nil {
		return err
	}
	if p.pool, err = dev.CreateDescriptorPool("irradiance.descriptors", frames); err != nil {
		return err
	}
	p.sets, err = binding.NewSetRing(p.pool, "irradiance", p.layout, frames, p.bind)
	return err
}

func (p *IrradianceComputePass) bind(_ int, set *gpu.DescriptorSet) {
	set.SetImage(0, p.ctx.Target(EnvCubemap))
	set.SetSampler(1, p.ctx.Fallbacks.ClampSampler)
	set.SetImage(2, p.irradiance)
}

func (p *IrradianceComputePass) SetupShaderPasses() error {
	if err := p.RequireConfigured("setup shader passes"); err != nil {
		return err
	}
	pipeline, err := p.ctx.Device.CreatePipeline(gpu.NewComputePipeline("irradiance",
		computeShader("irradiance", irradianceSource), gpu.WithLayouts(p.layout)))
	if err != nil {
		return err
	}
	p.pipeline = pipeline
	p.MarkReady()
	return nil
}

func (p *IrradianceComputePass) Execute(f *frame.Frame, _ *scene.Snapshot, _ uint32) error {
	if err := p.BeginExecute(); err != nil {
		return err
	}
	defer p.EndExecute()

	if !p.Dirty() {
		return nil
	}
	groups := (p.settings.irradianceSize + 7) / 8
	cmd := f.CommandBuffer()
	cmd.BeginComputePass("irradiance")
	cmd.BindPipeline(p.pipeline)
	cmd.BindDescriptorSet(0, p.sets.Set(f.Index()))
	cmd.Dispatch(groups, groups, 6)
	cmd.EndComputePass()
	if err := cmd.Err(); err != nil {
		return err
	}
	p.seen = p.ctx.Version(EnvCubemap)
	p.dirty = false
	p.ctx.Touch(EnvIrradiance)
	return nil
}

func (p *IrradianceComputePass) Resize(common.Extent2D) error {
	return p.RequireReady("resize")
}

func (p *IrradianceComputePass) Cleanup() error {
	if err := p.BeginCleanup(); err != nil {
		return err
	}
	p.ctx.SetTarget(EnvIrradiance, nil)
	errs := release(nil, p.pipeline)
	errs = release(errs, p.sets)
	errs = release(errs, p.pool)
	errs = release(errs, p.layout)
	errs = release(errs, p.irradiance)
	return errors.Join(errs...)
}
