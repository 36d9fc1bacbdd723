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

// SkyPass fills the pixels of scene.color that no object covered with env.cubemap.
// It tests against scene.depth without writing it.
type SkyPass struct {
	Lifecycle
	ctx      *Context
	settings settings

	layout   *gpu.DescriptorSetLayout
	pool     *gpu.DescriptorPool
	params   *binding.UniformRing
	sets     *binding.SetRing
	pipeline *gpu.Pipeline
}

var _ Pass = &SkyPass{}

// NewSkyPass creates an uninitialized sky pass.
//
// Parameters:
//   - ctx: the shared pass context
//   - options: WithExposure applies
//
// Returns:
//   - *SkyPass: the pass
func NewSkyPass(ctx *Context, options ...PassBuilderOption) *SkyPass {
	return &SkyPass{Lifecycle: NewLifecycle("sky", KindGraphical), ctx: ctx, settings: newSettings(options)}
}

func (p *SkyPass) SetupAttachments(b *graph.Builder) error {
	if err := p.BeginAttachments(); err != nil {
		return err
	}
	if err := b.BeginPass(p.Name(), p.Kind()); err != nil {
		return err
	}
	if err := b.Read(EnvCubemap, graph.ResourceInfo{Usage: graph.UsageSampled}); err != nil {
		return err
	}
	if err := b.Read(SceneDepth, graph.ResourceInfo{Usage: graph.UsageDepthReadOnly}); err != nil {
		return err
	}
	return b.Write(SceneColor)
}

func (p *SkyPass) SetupUniforms(frames int) error {
	if err := p.RequireConfigured("setup uniforms"); err != nil {
		return err
	}
	dev := p.ctx.Device
	var err error
	p.layout, err = dev.CreateDescriptorSetLayout("sky",
		gpu.LayoutBinding{Binding: 0, Type: gpu.BindingUniformBuffer, Visibility: gpu.VisibleVertex | gpu.VisibleFragment},
		gpu.LayoutBinding{Binding: 1, Type: gpu.BindingSampledImage, Visibility: gpu.VisibleFragment, View: gpu.ViewCube},
		gpu.LayoutBinding{Binding: 2, Type: gpu.BindingSampler, Visibility: gpu.VisibleFragment},
	)
	if err != nil {
		return err
	}
	if p.params, err = binding.NewUniformRing(dev, "sky.params", binding.SkyUniformsSize, frames); err != nil {
		return err
	}
	if p.pool, err = dev.CreateDescriptorPool("sky.descriptors", frames); err != nil {
		return err
	}
	p.sets, err = binding.NewSetRing(p.pool, "sky", p.layout, frames, func(slot int, set *gpu.DescriptorSet) {
		set.SetBuffer(0, p.params.Buffer(slot))
		set.SetImage(1, p.ctx.Target(EnvCubemap))
		set.SetSampler(2, p.ctx.Fallbacks.ClampSampler)
	})
	return err
}

func (p *SkyPass) SetupShaderPasses() error {
	if err := p.RequireConfigured("setup shader passes"); err != nil {
		return err
	}
	desc := gpu.NewGraphicsPipeline("sky", graphicsShader("sky", skySource),
		gpu.WithLayouts(p.layout),
		gpu.WithColorTargets(gpu.FormatRGBA16Float),
		gpu.WithDepth(gpu.FormatDepth32Float, true, false),
		gpu.WithDepthCompare(gpu.CompareLessEqual),
		gpu.WithCullMode(gpu.CullNone),
	)
	pipeline, err := p.ctx.Device.CreatePipeline(desc)
	if err != nil {
		return err
	}
	p.pipeline = pipeline
	p.MarkReady()
	return nil
}

// skyUniforms inverts the camera's projection combined with the rotation part of its view, so
// clip positions map to world-space view directions.
func skyUniforms(c scene.Camera, exposure float32) binding.SkyUniforms {
	view := c.View
	view[12], view[13], view[14] = 0, 0, 0
	return binding.SkyUniforms{
		InvViewProj: c.Proj.Mul4(view).Inv(),
		Params:      mgl32.Vec4{exposure, 0, 0, 0},
	}
}

func (p *SkyPass) Execute(f *frame.Frame, s *scene.Snapshot, _ uint32) error {
	if err := p.BeginExecute(); err != nil {
		return err
	}
	defer p.EndExecute()

	slot := f.Index()
	u := skyUniforms(s.Camera, p.settings.exposure)
	if err := p.params.Write(slot, u.Marshal()); err != nil {
		return fmt.Errorf("sky: %w", err)
	}

	cmd := f.CommandBuffer()
	cmd.BeginRenderPass(gpu.RenderPassDesc{
		Label: "sky",
		Color: []gpu.ColorAttachment{{Image: p.ctx.Target(SceneColor), Load: gpu.LoadLoad}},
		Depth: &gpu.DepthAttachment{Image: p.ctx.Target(SceneDepth), Load: gpu.LoadLoad, ReadOnly: true},
	})
	cmd.BindPipeline(p.pipeline)
	cmd.BindDescriptorSet(0, p.sets.Set(slot))
	fullscreenTriangle(cmd)
	cmd.EndRenderPass()
	return cmd.Err()
}

func (p *SkyPass) Resize(common.Extent2D) error {
	return p.RequireReady("resize")
}

func (p *SkyPass) Cleanup() error {
	if err := p.BeginCleanup(); err != nil {
		return err
	}
	errs := release(nil, p.pipeline)
	errs = release(errs, p.sets)
	errs = release(errs, p.pool)
	errs = release(errs, p.params)
	errs = release(errs, p.layout)
	return errors.Join(errs...)
}
