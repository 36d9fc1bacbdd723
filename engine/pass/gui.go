package pass

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/assets"
	"github.com/Carmen-Shannon/oxy-render/engine/binding"
	"github.com/Carmen-Shannon/oxy-render/engine/frame"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/graph"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
)

// GUIVertexSize is the byte size of one packed GUIVertex.
const GUIVertexSize = 32

// minGUIBufferSize is the initial capacity of the GUI vertex and index buffers.
const minGUIBufferSize = 4096

// GUIVertex is one vertex of the overlay. Position is in normalized device coordinates.
type GUIVertex struct {
	Position [2]float32
	UV       [2]float32
	Color    [4]float32
}

// GUIDrawData is the indexed triangle list of one overlay frame.
type GUIDrawData struct {
	Vertices []GUIVertex
	Indices  []uint32
	// Texture is sampled by every triangle; nil or pending textures bind the white fallback.
	Texture *assets.Texture
}

// GUIProvider supplies the overlay drawn on top of the composited scene.
type GUIProvider interface {
	// GUIFrame returns the overlay geometry of the next frame.
	//
	// Returns:
	//   - GUIDrawData: the triangles to draw
	//   - bool: false when there is nothing to draw
	GUIFrame() (GUIDrawData, bool)
}

// GUIProviderFunc adapts a function to GUIProvider.
type GUIProviderFunc func() (GUIDrawData, bool)

// GUIFrame calls f.
func (f GUIProviderFunc) GUIFrame() (GUIDrawData, bool) {
	return f()
}

func marshalGUIVertices(vertices []GUIVertex) []byte {
	out := make([]byte, len(vertices)*GUIVertexSize)
	for i, v := range vertices {
		fields := [8]float32{v.Position[0], v.Position[1], v.UV[0], v.UV[1], v.Color[0], v.Color[1], v.Color[2], v.Color[3]}
		for j, f := range fields {
			binary.LittleEndian.PutUint32(out[i*GUIVertexSize+j*4:], math.Float32bits(f))
		}
	}
	return out
}

func marshalIndices(indices []uint32) []byte {
	out := make([]byte, len(indices)*4)
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(out[i*4:], idx)
	}
	return out
}

// GUIOverlayPass tone maps scene.color into the swapchain image and draws the GUI on top.
type GUIOverlayPass struct {
	Lifecycle
	ctx      *Context
	settings settings

	compositeLayout   *gpu.DescriptorSetLayout
	guiLayout         *gpu.DescriptorSetLayout
	pool              *gpu.DescriptorPool
	composite         *binding.SetRing
	compositePipeline *gpu.Pipeline
	guiPipeline       *gpu.Pipeline
	vertices          []*gpu.Buffer
	indices           []*gpu.Buffer
	drawn             int
}

var _ Pass = &GUIOverlayPass{}

// NewGUIOverlayPass creates an uninitialized overlay pass.
//
// Parameters:
//   - ctx: the shared pass context
//   - options: WithGUIProvider applies
//
// Returns:
//   - *GUIOverlayPass: the pass
func NewGUIOverlayPass(ctx *Context, options ...PassBuilderOption) *GUIOverlayPass {
	return &GUIOverlayPass{Lifecycle: NewLifecycle("gui", KindGraphical), ctx: ctx, settings: newSettings(options)}
}

// DrawnIndices returns the number of GUI indices drawn by the last Execute.
func (p *GUIOverlayPass) DrawnIndices() int {
	return p.drawn
}

func (p *GUIOverlayPass) SetupAttachments(b *graph.Builder) error {
	if err := p.BeginAttachments(); err != nil {
		return err
	}
	if err := b.BeginPass(p.Name(), p.Kind()); err != nil {
		return err
	}
	if err := b.Read(SceneColor, graph.ResourceInfo{Usage: graph.UsageSampled}); err != nil {
		return err
	}
	return b.Write(SwapchainTarget)
}

func (p *GUIOverlayPass) SetupUniforms(frames int) error {
	if err := p.RequireConfigured("setup uniforms"); err != nil {
		return err
	}
	dev := p.ctx.Device
	bindings := []gpu.LayoutBinding{
		{Binding: 0, Type: gpu.BindingSampledImage, Visibility: gpu.VisibleFragment, View: gpu.View2D},
		{Binding: 1, Type: gpu.BindingSampler, Visibility: gpu.VisibleFragment},
	}
	var err error
	if p.compositeLayout, err = dev.CreateDescriptorSetLayout("composite", bindings...); err != nil {
		return err
	}
	if p.guiLayout, err = dev.CreateDescriptorSetLayout("gui", bindings...); err != nil {
		return err
	}
	if p.pool, err = dev.CreateDescriptorPool("gui.descriptors", frames); err != nil {
		return err
	}
	if p.composite, err = binding.NewSetRing(p.pool, "composite", p.compositeLayout, frames, p.bindComposite); err != nil {
		return err
	}
	p.vertices = make([]*gpu.Buffer, frames)
	p.indices = make([]*gpu.Buffer, frames)
	return nil
}

func (p *GUIOverlayPass) bindComposite(_ int, set *gpu.DescriptorSet) {
	set.SetImage(0, p.ctx.Target(SceneColor))
	set.SetSampler(1, p.ctx.Fallbacks.ClampSampler)
}

func (p *GUIOverlayPass) SetupShaderPasses() error {
	if err := p.RequireConfigured("setup shader passes"); err != nil {
		return err
	}
	dev := p.ctx.Device
	format := dev.SurfaceFormat()
	var err error
	p.compositePipeline, err = dev.CreatePipeline(gpu.NewGraphicsPipeline("composite", graphicsShader("composite", compositeSource),
		gpu.WithLayouts(p.compositeLayout),
		gpu.WithColorTargets(format),
		gpu.WithCullMode(gpu.CullNone),
	))
	if err != nil {
		return err
	}
	p.guiPipeline, err = dev.CreatePipeline(gpu.NewGraphicsPipeline("gui", graphicsShader("gui", guiSource),
		gpu.WithLayouts(p.guiLayout),
		gpu.WithVertexLayout(gpu.VertexLayout{
			Stride: GUIVertexSize,
			Attributes: []gpu.VertexAttribute{
				{Location: 0, Offset: 0, Format: gpu.VertexFloat32x2},
				{Location: 1, Offset: 8, Format: gpu.VertexFloat32x2},
				{Location: 2, Offset: 16, Format: gpu.VertexFloat32x4},
			},
		}),
		gpu.WithColorTargets(format),
		gpu.WithBlendEnabled(true),
		gpu.WithCullMode(gpu.CullNone),
	))
	if err != nil {
		return err
	}
	p.MarkReady()
	return nil
}

func (p *GUIOverlayPass) Execute(f *frame.Frame, _ *scene.Snapshot, _ uint32) error {
	if err := p.BeginExecute(); err != nil {
		return err
	}
	defer p.EndExecute()

	target := p.ctx.Target(SwapchainTarget)
	if target == nil {
		return fmt.Errorf("gui: %w", &graph.UnknownResourceError{Pass: p.Name(), Resource: SwapchainTarget})
	}
	slot := f.Index()
	p.drawn = 0

	var data GUIDrawData
	ok := false
	if p.settings.gui != nil {
		data, ok = p.settings.gui.GUIFrame()
	}
	ok = ok && len(data.Vertices) > 0 && len(data.Indices) > 0
	var set *gpu.DescriptorSet
	if ok {
		var err error
		if set, err = p.prepareGUI(f, slot, data); err != nil {
			return fmt.Errorf("gui: %w", err)
		}
	}

	cmd := f.CommandBuffer()
	cmd.BeginRenderPass(gpu.RenderPassDesc{
		Label: "gui",
		Color: []gpu.ColorAttachment{{Image: target, Load: gpu.LoadClear, Clear: [4]float64{0, 0, 0, 1}}},
	})
	defer cmd.EndRenderPass()

	cmd.BindPipeline(p.compositePipeline)
	cmd.BindDescriptorSet(0, p.composite.Set(slot))
	fullscreenTriangle(cmd)

	if ok {
		cmd.BindPipeline(p.guiPipeline)
		cmd.BindDescriptorSet(0, set)
		cmd.BindVertexBuffer(p.vertices[slot])
		cmd.BindIndexBuffer(p.indices[slot])
		cmd.DrawIndexed(uint32(len(data.Indices)), 1)
		p.drawn = len(data.Indices)
	}
	return cmd.Err()
}

// prepareGUI uploads the overlay geometry into the slot's buffers and allocates its texture set
// from the frame's transient descriptors.
func (p *GUIOverlayPass) prepareGUI(f *frame.Frame, slot int, data GUIDrawData) (*gpu.DescriptorSet, error) {
	vb := marshalGUIVertices(data.Vertices)
	ib := marshalIndices(data.Indices)
	var err error
	if p.vertices[slot], err = p.ensureBuffer(p.vertices[slot], fmt.Sprintf("gui.vertices[%d]", slot), gpu.BufferUsageVertex, len(vb)); err != nil {
		return nil, err
	}
	if p.indices[slot], err = p.ensureBuffer(p.indices[slot], fmt.Sprintf("gui.indices[%d]", slot), gpu.BufferUsageIndex, len(ib)); err != nil {
		return nil, err
	}
	if err := p.vertices[slot].Upload(0, vb); err != nil {
		return nil, err
	}
	if err := p.indices[slot].Upload(0, ib); err != nil {
		return nil, err
	}

	tex, _ := data.Texture.Resolve(p.ctx.Device, p.ctx.Fallbacks.White)
	set, err := f.DescriptorPool().AllocateTransient("gui", p.guiLayout)
	if err != nil {
		return nil, err
	}
	set.SetImage(0, tex)
	set.SetSampler(1, p.ctx.Fallbacks.Sampler)
	return set, set.Commit()
}

// ensureBuffer returns buf when it holds size bytes, otherwise a replacement of at least twice
// the needed size. The old buffer is released; its slot's fence has already been waited on.
func (p *GUIOverlayPass) ensureBuffer(buf *gpu.Buffer, label string, usage gpu.BufferUsage, size int) (*gpu.Buffer, error) {
	if buf != nil && buf.Size() >= uint64(size) {
		return buf, nil
	}
	capacity := max(uint64(minGUIBufferSize), common.AlignUp64(uint64(size)*2, 4))
	next, err := p.ctx.Device.CreateBuffer(gpu.BufferDesc{Label: label, Size: capacity, Usage: usage | gpu.BufferUsageCopyDst})
	if err != nil {
		return nil, err
	}
	if buf != nil {
		if err := buf.Release(); err != nil {
			return nil, errors.Join(err, next.Release())
		}
	}
	return next, nil
}

// Resize rebinds the composite sets to the scene.color image recreated by the forward pass.
func (p *GUIOverlayPass) Resize(common.Extent2D) error {
	if err := p.RequireReady("resize"); err != nil {
		return err
	}
	return p.composite.Rebind(p.bindComposite)
}

func (p *GUIOverlayPass) Cleanup() error {
	if err := p.BeginCleanup(); err != nil {
		return err
	}
	errs := release(nil, p.compositePipeline, p.guiPipeline)
	errs = release(errs, p.composite)
	errs = release(errs, p.pool)
	errs = release(errs, p.vertices...)
	errs = release(errs, p.indices...)
	errs = release(errs, p.compositeLayout, p.guiLayout)
	return errors.Join(errs...)
}
