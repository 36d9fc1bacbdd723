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

// ShadowPass renders the depth of shadow casting objects from the first shadow casting
// directional light into shadow.map.
type ShadowPass struct {
	Lifecycle
	ctx      *Context
	settings settings

	depth    *gpu.Image
	pool     *gpu.DescriptorPool
	uniforms *binding.FrameUniforms
	pipeline *gpu.Pipeline
}

var _ Pass = &ShadowPass{}

// NewShadowPass creates an uninitialized shadow pass.
//
// Parameters:
//   - ctx: the shared pass context
//   - options: WithShadowMapSize, WithShadowExtent and WithMaxObjects apply
//
// Returns:
//   - *ShadowPass: the pass
func NewShadowPass(ctx *Context, options ...PassBuilderOption) *ShadowPass {
	return &ShadowPass{Lifecycle: NewLifecycle("shadow", KindGraphical), ctx: ctx, settings: newSettings(options)}
}

func (p *ShadowPass) SetupAttachments(b *graph.Builder) error {
	if err := p.BeginAttachments(); err != nil {
		return err
	}
	size := p.settings.shadowSize
	if err := b.BeginPass(p.Name(), p.Kind()); err != nil {
		return err
	}
	err := b.CreateTarget(ShadowMap, graph.ResourceInfo{
		Format: gpu.FormatDepth32Float,
		Extent: gpu.Extent3D{Width: size, Height: size, Depth: 1},
		Usage:  graph.UsageDepthAttachment,
	})
	if err != nil {
		return err
	}
	p.depth, err = newDepthTarget(p.ctx.Device, ShadowMap, common.Extent2D{Width: size, Height: size}, gpu.ImageUsageSampled, false)
	if err != nil {
		return err
	}
	p.ctx.SetTarget(ShadowMap, p.depth)
	return nil
}

func (p *ShadowPass) SetupUniforms(frames int) error {
	if err := p.RequireConfigured("setup uniforms"); err != nil {
		return err
	}
	var err error
	if p.pool, err = p.ctx.Device.CreateDescriptorPool("shadow.descriptors", 2*frames); err != nil {
		return err
	}
	p.uniforms, err = binding.NewFrameUniforms(p.ctx.Device, p.pool, "shadow", frames, p.settings.maxObjects)
	return err
}

func (p *ShadowPass) SetupShaderPasses() error {
	if err := p.RequireConfigured("setup shader passes"); err != nil {
		return err
	}
	desc := gpu.NewGraphicsPipeline("shadow", depthOnlyShader("shadow", shadowShader),
		gpu.WithLayouts(p.uniforms.FrameLayout(), p.uniforms.ObjectLayout()),
		gpu.WithVertexLayout(meshVertexLayout()),
		gpu.WithDepth(gpu.FormatDepth32Float, true, true),
		gpu.WithDepthBias(2, 2),
		gpu.WithCullMode(gpu.CullFront),
	)
	pipeline, err := p.ctx.Device.CreatePipeline(desc)
	if err != nil {
		return err
	}
	p.pipeline = pipeline
	p.MarkReady()
	return nil
}

func (p *ShadowPass) Execute(f *frame.Frame, s *scene.Snapshot, _ uint32) error {
	if err := p.BeginExecute(); err != nil {
		return err
	}
	defer p.EndExecute()

	cmd := f.CommandBuffer()
	cmd.BeginRenderPass(gpu.RenderPassDesc{
		Label: "shadow",
		Depth: &gpu.DepthAttachment{Image: p.depth, Load: gpu.LoadClear, ClearDepth: 1},
	})
	defer cmd.EndRenderPass()

	vp, ok := shadowViewProj(s, p.settings.shadowExtent)
	if !ok {
		return cmd.Err()
	}
	casters := visibleObjects(p.ctx.Device, s.Objects, scene.FlagCastsShadow, p.settings.maxObjects)
	if len(casters) == 0 {
		return cmd.Err()
	}
	light := *s
	light.Objects = casters
	light.Camera = scene.Camera{View: mgl32.Ident4(), Proj: vp}
	offsets, err := p.uniforms.Update(f.Index(), &light)
	if err != nil {
		return fmt.Errorf("shadow: update uniforms: %w", err)
	}

	cmd.BindPipeline(p.pipeline)
	cmd.BindDescriptorSet(0, p.uniforms.FrameSet(f.Index()))
	_, err = drawObjects(cmd, casters, offsets, p.uniforms.ObjectSet(f.Index()), 1, nil)
	return err
}

func (p *ShadowPass) Resize(common.Extent2D) error {
	return p.RequireReady("resize")
}

func (p *ShadowPass) Cleanup() error {
	if err := p.BeginCleanup(); err != nil {
		return err
	}
	p.ctx.SetTarget(ShadowMap, nil)
	errs := release(nil, p.pipeline)
	errs = release(errs, p.uniforms)
	errs = release(errs, p.pool)
	errs = release(errs, p.depth)
	return errors.Join(errs...)
}
