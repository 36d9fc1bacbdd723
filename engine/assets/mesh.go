package assets

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/logging"
	"github.com/go-gl/mathgl/mgl32"
)

// Mesh is an interleaved vertex buffer with an optional uint32 index buffer.
type Mesh struct {
	asset
	data        common.VertexData
	min, max    mgl32.Vec3
	vertexCount uint32
	indexCount  uint32
	vertices    *gpu.Buffer
	indices     *gpu.Buffer
}

// NewMesh creates a pending mesh. Its data is published later by a loader task.
//
// Parameters:
//   - label: the debug label of the mesh
//
// Returns:
//   - *Mesh: the pending mesh
func NewMesh(label string) *Mesh {
	return &Mesh{asset: newAsset(label)}
}

// NewMeshFromVertices creates a mesh whose data is already available.
//
// Parameters:
//   - label: the debug label of the mesh
//   - data: the vertex attributes and indices
//
// Returns:
//   - *Mesh: the ready mesh
func NewMeshFromVertices(label string, data common.VertexData) *Mesh {
	m := NewMesh(label)
	m.Publish(data, nil)
	return m
}

// Publish stores the prepared vertex data and marks the mesh ready. A non-nil err marks it failed.
// It must be called at most once.
//
// Parameters:
//   - data: the vertex attributes and indices
//   - err: the decode error, if any
func (m *Mesh) Publish(data common.VertexData, err error) {
	if err == nil {
		err = data.Validate()
	}
	if err == nil {
		m.data = data
		m.vertexCount = uint32(data.VertexCount())
		m.indexCount = uint32(len(data.Indices))
		m.min = mgl32.Vec3(data.Positions[0])
		m.max = m.min
		for _, p := range data.Positions[1:] {
			for c := 0; c < 3; c++ {
				m.min[c] = min(m.min[c], p[c])
				m.max[c] = max(m.max[c], p[c])
			}
		}
	}
	m.publish(err)
}

// Bounds returns the object-space axis-aligned bounds, or zero vectors while pending.
func (m *Mesh) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	if !m.Ready() {
		return mgl32.Vec3{}, mgl32.Vec3{}
	}
	return m.min, m.max
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() uint32 {
	if !m.Ready() {
		return 0
	}
	return m.vertexCount
}

// IndexCount returns the number of indices, or 0 for an unindexed mesh.
func (m *Mesh) IndexCount() uint32 {
	if !m.Ready() {
		return 0
	}
	return m.indexCount
}

// VertexBuffer returns the uploaded vertex buffer, or nil before upload.
func (m *Mesh) VertexBuffer() *gpu.Buffer {
	if m.State() != StateUploaded {
		return nil
	}
	return m.vertices
}

// IndexBuffer returns the uploaded index buffer, or nil before upload or for unindexed meshes.
func (m *Mesh) IndexBuffer() *gpu.Buffer {
	if m.State() != StateUploaded {
		return nil
	}
	return m.indices
}

// Upload creates the vertex and index buffers from the published data. It uploads once.
//
// Parameters:
//   - dev: the device to allocate on
//
// Returns:
//   - error: ErrNotReady while pending, the recorded error of a failed mesh, or an allocation error
func (m *Mesh) Upload(dev gpu.Device) error {
	ok, err := m.beginUpload()
	if !ok {
		return err
	}
	vb, err := dev.CreateBufferWithData(gpu.BufferDesc{
		Label: m.label + " Vertices",
		Usage: gpu.BufferUsageVertex,
	}, m.data.Interleave())
	if err != nil {
		return m.fail(err)
	}
	var ib *gpu.Buffer
	if idx := m.data.IndexBytes(); idx != nil {
		ib, err = dev.CreateBufferWithData(gpu.BufferDesc{
			Label: m.label + " Indices",
			Usage: gpu.BufferUsageIndex,
		}, idx)
		if err != nil {
			return m.fail(errors.Join(err, vb.Release()))
		}
	}
	m.vertices, m.indices = vb, ib
	m.data = common.VertexData{}
	m.state.Store(int32(StateUploaded))
	return nil
}

// Drawable uploads the mesh if its data has just become ready and reports whether it can be drawn.
// It never blocks.
//
// Parameters:
//   - dev: the device to allocate on
//
// Returns:
//   - bool: true when the buffers are uploaded
func (m *Mesh) Drawable(dev gpu.Device) bool {
	if m == nil || !m.Ready() {
		return false
	}
	if m.State() == StateReady {
		if err := m.Upload(dev); err != nil {
			logging.Logger().Warn("mesh upload failed, keeping fallback", "asset", m.label, "err", err)
		}
	}
	return m.State() == StateUploaded
}

// Release destroys the GPU buffers. It is idempotent.
func (m *Mesh) Release() error {
	if m.State() != StateUploaded {
		return nil
	}
	m.state.Store(int32(StateReleased))
	var err error
	if m.indices != nil {
		err = m.indices.Release()
	}
	return errors.Join(err, m.vertices.Release())
}
