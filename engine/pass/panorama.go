package pass

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/frame"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/graph"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/google/uuid"
)

// PanoramaConversionPass projects the environment's equirectangular panorama onto the faces of
// env.cubemap. It runs on the first frame with the grey fallback and again whenever a different
// panorama becomes ready; other frames record nothing.
type PanoramaConversionPass struct {
	Lifecycle
	ctx      *Context
	settings settings

	cubemap   *gpu.Image
	layout    *gpu.DescriptorSetLayout
	pipeline  *gpu.Pipeline
	converted bool
	source    uuid.UUID
}

var _ Pass = &PanoramaConversionPass{}

// NewPanoramaConversionPass creates an uninitialized panorama conversion pass.
//
// Parameters:
//   - ctx: the shared pass context
//   - options: WithCubemapSize applies
//
// Returns:
//   - *PanoramaConversionPass: the pass
func NewPanoramaConversionPass(ctx *Context, options ...PassBuilderOption) *PanoramaConversionPass {
	return &PanoramaConversionPass{Lifecycle: NewLifecycle("panorama", KindCompute), ctx: ctx, settings: newSettings(options)}
}

func (p *PanoramaConversionPass) SetupAttachments(b *graph.Builder) error {
	if err := p.BeginAttachments(); err != nil {
		return err
	}
	size := p.settings.cubemapSize
	extent := gpu.Extent3D{Width: size, Height: size, Depth: 1}
	if err := b.BeginPass(p.Name(), p.Kind()); err != nil {
		return err
	}
	err := b.CreateTarget(EnvCubemap, graph.ResourceInfo{
		Format:    gpu.FormatRGBA16Float,
		Dimension: gpu.ImageCube,
		Extent:    extent,
		Usage:     graph.UsageStorageWrite,
	})
	if err != nil {
		return err
	}
	if p.cubemap, err = newStorageTarget(p.ctx.Device, EnvCubemap, gpu.FormatRGBA16Float, gpu.ImageCube, extent); err != nil {
		return err
	}
	p.ctx.SetTarget(EnvCubemap, p.cubemap)
	return nil
}

func (p *PanoramaConversionPass) SetupUniforms(int) error {
	if err := p.RequireConfigured("setup uniforms"); err != nil {
		return err
	}
	var err error
	p.layout, err = p.ctx.Device.CreateDescriptorSetLayout("panorama",
		gpu.LayoutBinding{Binding: 0, Type: gpu.BindingSampledImage, Visibility: gpu.VisibleCompute, View: gpu.View2D},
		gpu.LayoutBinding{Binding: 1, Type: gpu.BindingSampler, Visibility: gpu.VisibleCompute},
		gpu.LayoutBinding{Binding: 2, Type: gpu.BindingStorageImage, Visibility: gpu.VisibleCompute, View: gpu.View2DArray, Format: gpu.FormatRGBA16Float},
	)
	return err
}

func (p *PanoramaConversionPass) SetupShaderPasses() error {
	if err := p.RequireConfigured("setup shader passes"); err != nil {
		return err
	}
	pipeline, err := p.ctx.Device.CreatePipeline(gpu.NewComputePipeline("panorama",
		computeShader("panorama", panoramaSource), gpu.WithLayouts(p.layout)))
	if err != nil {
		return err
	}
	p.pipeline = pipeline
	p.MarkReady()
	return nil
}

// Converted reports whether the cubemap holds a conversion, and the id of the panorama it was
// converted from (uuid.Nil for the fallback).
func (p *PanoramaConversionPass) Converted() (uuid.UUID, bool) {
	return p.source, p.converted
}

func (p *PanoramaConversionPass) Execute(f *frame.Frame, s *scene.Snapshot, _ uint32) error {
	if err := p.BeginExecute(); err != nil {
		return err
	}
	defer p.EndExecute()

	tex := s.Environment.Panorama
	img, loaded := tex.Resolve(p.ctx.Device, p.ctx.Fallbacks.Panorama)
	source := uuid.Nil
	if loaded {
		source = tex.ID()
	}
	if p.converted && source == p.source {
		return nil
	}

	set, err := f.DescriptorPool().AllocateTransient("panorama", p.layout)
	if err != nil {
		return fmt.Errorf("panorama: %w", err)
	}
	set.SetImage(0, img)
	set.SetSampler(1, p.ctx.Fallbacks.ClampSampler)
	set.SetImage(2, p.cubemap)
	if err := set.Commit(); err != nil {
		return fmt.Errorf("panorama: %w", err)
	}

	groups := (p.settings.cubemapSize + 7) / 8
	cmd := f.CommandBuffer()
	cmd.BeginComputePass("panorama")
	cmd.BindPipeline(p.pipeline)
	cmd.BindDescriptorSet(0, set)
	cmd.Dispatch(groups, groups, 6)
	cmd.EndComputePass()
	if err := cmd.Err(); err != nil {
		return err
	}

	p.converted, p.source = true, source
	p.ctx.Touch(EnvCubemap)
	p.ctx.Logger.Debug("panorama converted", "pass", p.Name(), "source", source, "loaded", loaded)
	return nil
}

func (p *PanoramaConversionPass) Resize(common.Extent2D) error {
	return p.RequireReady("resize")
}

func (p *PanoramaConversionPass) Cleanup() error {
	if err := p.BeginCleanup(); err != nil {
		return err
	}
	p.ctx.SetTarget(EnvCubemap, nil)
	errs := release(nil, p.pipeline)
	errs = release(errs, p.layout)
	errs = release(errs, p.cubemap)
	return errors.Join(errs...)
}
