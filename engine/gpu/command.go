package gpu

import (
	"errors"
	"fmt"
	"sync"
)

// LoadOp selects what happens to an attachment at the start of a render pass.
type LoadOp int

const (
	LoadClear LoadOp = iota
	LoadLoad
)

// ColorAttachment is one color target of a render pass.
type ColorAttachment struct {
	Image *Image
	// Layer is the array layer (cube face) to render into.
	Layer uint32
	Load  LoadOp
	Clear [4]float64
}

// DepthAttachment is the depth target of a render pass.
type DepthAttachment struct {
	Image      *Image
	Layer      uint32
	Load       LoadOp
	ClearDepth float32
	// ReadOnly disables depth writes for the pass.
	ReadOnly bool
}

// RenderPassDesc describes the attachments of one render pass.
type RenderPassDesc struct {
	Label string
	Color []ColorAttachment
	Depth *DepthAttachment
}

func (d RenderPassDesc) images() []*Image {
	out := make([]*Image, 0, len(d.Color)+1)
	for _, c := range d.Color {
		out = append(out, c.Image)
	}
	if d.Depth != nil {
		out = append(out, d.Depth.Image)
	}
	return out
}

// Command is one recorded command. Backends replay the concrete types below.
type Command interface {
	Name() string
}

// BeginRenderPassCmd opens a render pass.
type BeginRenderPassCmd struct {
	Desc RenderPassDesc
}

// EndRenderPassCmd closes the open render pass.
type EndRenderPassCmd struct{}

// BeginComputePassCmd opens a compute pass.
type BeginComputePassCmd struct {
	Label string
}

// EndComputePassCmd closes the open compute pass.
type EndComputePassCmd struct{}

// BindPipelineCmd binds a pipeline to the open pass.
type BindPipelineCmd struct {
	Pipeline *Pipeline
}

// BindDescriptorSetCmd binds a committed descriptor set.
type BindDescriptorSetCmd struct {
	Index          uint32
	Set            *DescriptorSet
	DynamicOffsets []uint32
}

// BindVertexBufferCmd binds the vertex buffer at slot 0.
type BindVertexBufferCmd struct {
	Buffer *Buffer
}

// BindIndexBufferCmd binds a uint32 index buffer.
type BindIndexBufferCmd struct {
	Buffer *Buffer
}

// DrawCmd is a non-indexed draw.
type DrawCmd struct {
	VertexCount   uint32
	InstanceCount uint32
}

// DrawIndexedCmd is an indexed draw.
type DrawIndexedCmd struct {
	IndexCount    uint32
	InstanceCount uint32
}

// DispatchCmd is a compute dispatch in workgroups.
type DispatchCmd struct {
	X, Y, Z uint32
}

// BarrierCmd transitions image layouts.
type BarrierCmd struct {
	Barriers []ImageBarrier
}

// CopyBufferCmd copies Size bytes from the start of Src to the start of Dst.
type CopyBufferCmd struct {
	Src  *Buffer
	Dst  *Buffer
	Size uint64
}

func (BeginRenderPassCmd) Name() string   { return "begin render pass" }
func (EndRenderPassCmd) Name() string     { return "end render pass" }
func (BeginComputePassCmd) Name() string  { return "begin compute pass" }
func (EndComputePassCmd) Name() string    { return "end compute pass" }
func (BindPipelineCmd) Name() string      { return "bind pipeline" }
func (BindDescriptorSetCmd) Name() string { return "bind descriptor set" }
func (BindVertexBufferCmd) Name() string  { return "bind vertex buffer" }
func (BindIndexBufferCmd) Name() string   { return "bind index buffer" }
func (DrawCmd) Name() string              { return "draw" }
func (DrawIndexedCmd) Name() string       { return "draw indexed" }
func (DispatchCmd) Name() string          { return "dispatch" }
func (BarrierCmd) Name() string           { return "pipeline barrier" }
func (CopyBufferCmd) Name() string        { return "copy buffer" }

// CommandBufferState is the recording state of a CommandBuffer.
type CommandBufferState int

const (
	CommandBufferInitial CommandBufferState = iota
	CommandBufferRecording
	CommandBufferExecutable
	CommandBufferPending
)

var commandBufferStateNames = [...]string{"initial", "recording", "executable", "pending"}

func (s CommandBufferState) String() string {
	if int(s) < len(commandBufferStateNames) {
		return commandBufferStateNames[s]
	}
	return fmt.Sprintf("CommandBufferState(%d)", int(s))
}

// CommandPool owns the command buffers of one frame.
type CommandPool struct {
	resource
	mu      sync.Mutex
	buffers []*CommandBuffer
}

// Allocate creates a command buffer in the initial state.
//
// Parameters:
//   - label: the debug label of the command buffer
//
// Returns:
//   - *CommandBuffer: the new command buffer
func (p *CommandPool) Allocate(label string) *CommandBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	cb := &CommandBuffer{pool: p, label: label}
	p.buffers = append(p.buffers, cb)
	return cb
}

// Reset returns every command buffer of the pool to the initial state.
// It must only be called once the submissions using them have completed.
func (p *CommandPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cb := range p.buffers {
		cb.Reset()
	}
}

type passScope int

const (
	scopeNone passScope = iota
	scopeRender
	scopeCompute
)

// CommandBuffer records commands for later submission. Recording errors are sticky: the first
// one is kept, later commands are dropped, and End returns it.
type CommandBuffer struct {
	pool     *CommandPool
	label    string
	state    CommandBufferState
	commands []Command
	scope    passScope
	pipeline *Pipeline
	index    bool
	err      error
}

// Label returns the debug label of the command buffer.
func (c *CommandBuffer) Label() string {
	return c.label
}

// State returns the recording state.
func (c *CommandBuffer) State() CommandBufferState {
	return c.state
}

// Commands returns the recorded commands.
func (c *CommandBuffer) Commands() []Command {
	return c.commands
}

// Err returns the first recording error, if any.
func (c *CommandBuffer) Err() error {
	return c.err
}

// Begin starts recording. The buffer must be in the initial state.
//
// Returns:
//   - error: ErrInvalidState if the buffer is not in the initial state
func (c *CommandBuffer) Begin() error {
	if c.pool.Released() {
		return opError("begin command buffer", c.label, ErrReleased)
	}
	if c.state != CommandBufferInitial {
		return opError("begin command buffer", c.label, fmt.Errorf("buffer is %s: %w", c.state, ErrInvalidState))
	}
	c.state = CommandBufferRecording
	return nil
}

// End finishes recording and makes the buffer executable.
//
// Returns:
//   - error: the first recording error, or ErrInvalidState if a pass is still open
func (c *CommandBuffer) End() error {
	if c.state != CommandBufferRecording {
		return opError("end command buffer", c.label, fmt.Errorf("buffer is %s: %w", c.state, ErrInvalidState))
	}
	if c.err == nil && c.scope != scopeNone {
		c.err = opError("end command buffer", c.label, fmt.Errorf("pass still open: %w", ErrInvalidState))
	}
	if c.err != nil {
		return c.err
	}
	c.state = CommandBufferExecutable
	return nil
}

// Reset discards recorded commands and returns the buffer to the initial state.
func (c *CommandBuffer) Reset() {
	c.state = CommandBufferInitial
	c.commands = c.commands[:0]
	c.scope = scopeNone
	c.pipeline = nil
	c.index = false
	c.err = nil
}

// BeginRenderPass opens a render pass over the given attachments.
//
// Parameters:
//   - desc: the attachments and their load operations
func (c *CommandBuffer) BeginRenderPass(desc RenderPassDesc) {
	if !c.recording("begin render pass", scopeNone) {
		return
	}
	imgs := desc.images()
	if len(imgs) == 0 {
		c.fail("begin render pass", errors.New("render pass has no attachments"))
		return
	}
	extent := imgs[0].Extent().Extent2D()
	for _, img := range imgs {
		if err := img.checkLive("begin render pass"); err != nil {
			c.fail("begin render pass", err)
			return
		}
		if img.Extent().Extent2D() != extent {
			c.fail("begin render pass", fmt.Errorf("attachment %q is %s, expected %s", img.label, img.Extent().Extent2D(), extent))
			return
		}
		img.markInUse()
	}
	c.scope = scopeRender
	c.commands = append(c.commands, BeginRenderPassCmd{Desc: desc})
}

// EndRenderPass closes the open render pass.
func (c *CommandBuffer) EndRenderPass() {
	if !c.recording("end render pass", scopeRender) {
		return
	}
	c.scope = scopeNone
	c.pipeline = nil
	c.index = false
	c.commands = append(c.commands, EndRenderPassCmd{})
}

// BeginComputePass opens a compute pass.
func (c *CommandBuffer) BeginComputePass(label string) {
	if !c.recording("begin compute pass", scopeNone) {
		return
	}
	c.scope = scopeCompute
	c.commands = append(c.commands, BeginComputePassCmd{Label: label})
}

// EndComputePass closes the open compute pass.
func (c *CommandBuffer) EndComputePass() {
	if !c.recording("end compute pass", scopeCompute) {
		return
	}
	c.scope = scopeNone
	c.pipeline = nil
	c.commands = append(c.commands, EndComputePassCmd{})
}

// BindPipeline binds p. Graphics pipelines need an open render pass and compute pipelines an
// open compute pass.
func (c *CommandBuffer) BindPipeline(p *Pipeline) {
	want := scopeRender
	if p != nil && p.desc.Kind == PipelineCompute {
		want = scopeCompute
	}
	if !c.recording("bind pipeline", want) {
		return
	}
	if err := p.checkLive("bind pipeline"); err != nil {
		c.fail("bind pipeline", err)
		return
	}
	p.markInUse()
	c.pipeline = p
	c.commands = append(c.commands, BindPipelineCmd{Pipeline: p})
}

// BindDescriptorSet binds a committed descriptor set at index.
//
// Parameters:
//   - index: the set index in the pipeline layout
//   - set: the committed descriptor set
//   - dynamicOffsets: one offset per dynamic binding, in binding order
func (c *CommandBuffer) BindDescriptorSet(index uint32, set *DescriptorSet, dynamicOffsets ...uint32) {
	if !c.inPass("bind descriptor set") {
		return
	}
	if err := set.checkLive("bind descriptor set"); err != nil {
		c.fail("bind descriptor set", err)
		return
	}
	if !set.Committed() {
		c.fail("bind descriptor set", fmt.Errorf("set %q is not committed: %w", set.label, ErrInvalidState))
		return
	}
	set.markInUse()
	set.markEntriesInUse()
	c.commands = append(c.commands, BindDescriptorSetCmd{Index: index, Set: set, DynamicOffsets: dynamicOffsets})
}

// BindVertexBuffer binds the vertex buffer for subsequent draws.
func (c *CommandBuffer) BindVertexBuffer(buf *Buffer) {
	if !c.recording("bind vertex buffer", scopeRender) {
		return
	}
	if err := buf.checkLive("bind vertex buffer"); err != nil {
		c.fail("bind vertex buffer", err)
		return
	}
	buf.markInUse()
	c.commands = append(c.commands, BindVertexBufferCmd{Buffer: buf})
}

// BindIndexBuffer binds a uint32 index buffer for subsequent indexed draws.
func (c *CommandBuffer) BindIndexBuffer(buf *Buffer) {
	if !c.recording("bind index buffer", scopeRender) {
		return
	}
	if err := buf.checkLive("bind index buffer"); err != nil {
		c.fail("bind index buffer", err)
		return
	}
	buf.markInUse()
	c.index = true
	c.commands = append(c.commands, BindIndexBufferCmd{Buffer: buf})
}

// Draw records a non-indexed draw.
func (c *CommandBuffer) Draw(vertexCount, instanceCount uint32) {
	if !c.drawable("draw") {
		return
	}
	c.commands = append(c.commands, DrawCmd{VertexCount: vertexCount, InstanceCount: instanceCount})
}

// DrawIndexed records an indexed draw. An index buffer must be bound.
func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount uint32) {
	if !c.drawable("draw indexed") {
		return
	}
	if !c.index {
		c.fail("draw indexed", fmt.Errorf("no index buffer bound: %w", ErrInvalidState))
		return
	}
	c.commands = append(c.commands, DrawIndexedCmd{IndexCount: indexCount, InstanceCount: instanceCount})
}

// Dispatch records a compute dispatch. A compute pipeline must be bound.
func (c *CommandBuffer) Dispatch(x, y, z uint32) {
	if !c.recording("dispatch", scopeCompute) {
		return
	}
	if c.pipeline == nil {
		c.fail("dispatch", fmt.Errorf("no pipeline bound: %w", ErrInvalidState))
		return
	}
	c.commands = append(c.commands, DispatchCmd{X: x, Y: y, Z: z})
}

// PipelineBarrier records image layout transitions. It must be recorded outside a pass.
// Each image's tracked layout is updated to the barrier's new layout.
func (c *CommandBuffer) PipelineBarrier(barriers ...ImageBarrier) {
	if len(barriers) == 0 || !c.recording("pipeline barrier", scopeNone) {
		return
	}
	for _, b := range barriers {
		if b.Image == nil {
			c.fail("pipeline barrier", fmt.Errorf("barrier %q has no image: %w", b.Name, ErrInvalidState))
			return
		}
		if err := b.Image.checkLive("pipeline barrier"); err != nil {
			c.fail("pipeline barrier", err)
			return
		}
	}
	for _, b := range barriers {
		b.Image.layout = b.NewLayout
		b.Image.markInUse()
	}
	c.commands = append(c.commands, BarrierCmd{Barriers: barriers})
}

// CopyBuffer records a copy of size bytes from the start of src to the start of dst.
func (c *CommandBuffer) CopyBuffer(src, dst *Buffer, size uint64) {
	if !c.recording("copy buffer", scopeNone) {
		return
	}
	for _, b := range []*Buffer{src, dst} {
		if err := b.checkLive("copy buffer"); err != nil {
			c.fail("copy buffer", err)
			return
		}
	}
	if size > src.Size() || size > dst.Size() {
		c.fail("copy buffer", ErrOutOfBounds)
		return
	}
	src.markInUse()
	dst.markInUse()
	c.commands = append(c.commands, CopyBufferCmd{Src: src, Dst: dst, Size: size})
}

func (c *CommandBuffer) recording(op string, scope passScope) bool {
	if c.err != nil {
		return false
	}
	if c.state != CommandBufferRecording {
		c.fail(op, fmt.Errorf("buffer is %s: %w", c.state, ErrInvalidState))
		return false
	}
	if c.scope != scope {
		c.fail(op, fmt.Errorf("wrong pass scope: %w", ErrInvalidState))
		return false
	}
	return true
}

func (c *CommandBuffer) inPass(op string) bool {
	if c.scope == scopeNone {
		return c.recording(op, scopeRender)
	}
	return c.recording(op, c.scope)
}

func (c *CommandBuffer) drawable(op string) bool {
	if !c.recording(op, scopeRender) {
		return false
	}
	if c.pipeline == nil {
		c.fail(op, fmt.Errorf("no pipeline bound: %w", ErrInvalidState))
		return false
	}
	return true
}

func (c *CommandBuffer) fail(op string, err error) {
	if c.err == nil {
		c.err = opError(op, c.label, err)
	}
}
