// Package pass defines the render pass contract, the lifecycle every pass follows, and the
// concrete passes of the frame: shadow, panorama conversion, irradiance, voxelization, forward,
// sky and GUI overlay.
package pass

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/frame"
	"github.com/Carmen-Shannon/oxy-render/engine/graph"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
)

// Kind is the queue work a pass records.
type Kind = graph.PassKind

const (
	KindGraphical = graph.KindGraphical
	KindCompute   = graph.KindCompute
)

// Resource names exchanged between the passes.
const (
	ShadowMap       = "shadow.map"
	EnvCubemap      = "env.cubemap"
	EnvIrradiance   = "env.irradiance"
	VoxelVolume     = "voxel.volume"
	SceneColor      = "scene.color"
	SceneDepth      = "scene.depth"
	SwapchainTarget = "swapchain"
)

var (
	// ErrNotReady is returned when a pass is executed or resized before its setup completed.
	ErrNotReady = errors.New("pass not ready")

	// ErrAlreadyCleanedUp is returned by a second Cleanup.
	ErrAlreadyCleanedUp = errors.New("pass already cleaned up")

	// ErrInvalidTransition is returned when a setup step runs out of order.
	ErrInvalidTransition = errors.New("invalid pass state transition")
)

// StateError names the pass and state a lifecycle operation was rejected in.
type StateError struct {
	Pass  string
	Op    string
	State State
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("pass %q: %s in state %s: %v", e.Pass, e.Op, e.State, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// Pass is one node of the frame. Setup runs once, in order: SetupAttachments for every pass,
// then the graph is compiled, then SetupUniforms and SetupShaderPasses. Execute records the
// pass into a frame and never waits on the GPU.
type Pass interface {
	// Name returns the unique pass name used by the render graph.
	Name() string

	// Kind returns the queue work the pass records.
	Kind() Kind

	// State returns the lifecycle state.
	State() State

	// SetupAttachments declares the pass's resources and creates the images it owns.
	//
	// Parameters:
	//   - b: the graph builder of the renderer
	//
	// Returns:
	//   - error: a graph declaration or allocation error
	SetupAttachments(b *graph.Builder) error

	// SetupUniforms creates the per-frame uniform buffers and descriptor sets.
	//
	// Parameters:
	//   - frames: the number of frames in flight
	//
	// Returns:
	//   - error: an allocation or commit error
	SetupUniforms(frames int) error

	// SetupShaderPasses creates the pipelines and makes the pass ready.
	//
	// Returns:
	//   - error: a pipeline creation error
	SetupShaderPasses() error

	// Execute records the pass into f.
	//
	// Parameters:
	//   - f: the frame being recorded, its fence already waited on
	//   - s: the scene snapshot, read only
	//   - presentImageIndex: the acquired swapchain image index
	//
	// Returns:
	//   - error: ErrNotReady before setup, or a recording error
	Execute(f *frame.Frame, s *scene.Snapshot, presentImageIndex uint32) error

	// Resize recreates size-dependent attachments and rebinds the sets that reference them.
	//
	// Parameters:
	//   - extent: the new surface size
	//
	// Returns:
	//   - error: ErrNotReady before setup, or an allocation error
	Resize(extent common.Extent2D) error

	// Cleanup destroys everything the pass owns.
	//
	// Returns:
	//   - error: ErrAlreadyCleanedUp on a second call
	Cleanup() error
}

// Factory constructs a pass bound to a context.
type Factory func(ctx *Context) Pass
