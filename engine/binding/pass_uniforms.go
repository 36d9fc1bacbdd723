package binding

import (
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
)

// Pass-specific uniform block sizes in bytes.
const (
	ShadowUniformsSize   = 80
	SkyUniformsSize      = 80
	MaterialUniformsSize = 16
	VoxelUniformsSize    = 144
	VoxelBoxSize         = 48
)

// ShadowUniforms is the light transform used to sample the shadow map.
// Size: 80 bytes.
//
// Layout:
//
//	mat4x4<f32> view_proj (64 bytes, offset  0)
//	vec4<f32>   params    (16 bytes, offset 64)  x = depth bias, y = texel size, z = enabled
type ShadowUniforms struct {
	ViewProj mgl32.Mat4
	Params   mgl32.Vec4
}

// Marshal serializes the block for GPU upload.
//
// Returns:
//   - []byte: 80-byte buffer ready for GPU upload
func (u *ShadowUniforms) Marshal() []byte {
	buf := make([]byte, ShadowUniformsSize)
	putMat4(buf[0:], u.ViewProj)
	putVec4(buf[64:], u.Params)
	return buf
}

// SkyUniforms holds the rotation-only inverse view-projection used to turn screen positions
// into view directions.
// Size: 80 bytes.
//
// Layout:
//
//	mat4x4<f32> inv_view_proj (64 bytes, offset  0)
//	vec4<f32>   params        (16 bytes, offset 64)  x = exposure
type SkyUniforms struct {
	InvViewProj mgl32.Mat4
	Params      mgl32.Vec4
}

// Marshal serializes the block for GPU upload.
func (u *SkyUniforms) Marshal() []byte {
	buf := make([]byte, SkyUniformsSize)
	putMat4(buf[0:], u.InvViewProj)
	putVec4(buf[64:], u.Params)
	return buf
}

// MaterialUniforms is the per-object material block, bound with a dynamic offset.
// Size: 16 bytes.
type MaterialUniforms struct {
	BaseColor mgl32.Vec4
}

// Marshal serializes the block for GPU upload.
func (u *MaterialUniforms) Marshal() []byte {
	buf := make([]byte, MaterialUniformsSize)
	putVec4(buf, u.BaseColor)
	return buf
}

// VoxelUniforms describes the voxel grid and the light that illuminates it.
// Size: 144 bytes.
//
// Layout:
//
//	vec4<f32>   grid_min        (16 bytes, offset   0)
//	vec4<f32>   grid_max        (16 bytes, offset  16)  w = resolution
//	vec4<f32>   light_dir       (16 bytes, offset  32)  w = 1 when a shadow light exists
//	vec4<f32>   light_color     (16 bytes, offset  48)
//	mat4x4<f32> light_view_proj (64 bytes, offset  64)
//	u32         num_boxes       ( 4 bytes, offset 128)
//	u32 x3      padding         (12 bytes, offset 132)
type VoxelUniforms struct {
	GridMin       mgl32.Vec4
	GridMax       mgl32.Vec4
	LightDir      mgl32.Vec4
	LightColor    mgl32.Vec4
	LightViewProj mgl32.Mat4
	NumBoxes      uint32
}

// Marshal serializes the block for GPU upload.
func (u *VoxelUniforms) Marshal() []byte {
	buf := make([]byte, VoxelUniformsSize)
	putVec4(buf[0:], u.GridMin)
	putVec4(buf[16:], u.GridMax)
	putVec4(buf[32:], u.LightDir)
	putVec4(buf[48:], u.LightColor)
	putMat4(buf[64:], u.LightViewProj)
	binary.LittleEndian.PutUint32(buf[128:], u.NumBoxes)
	return buf
}

// VoxelBox is one object's world bounds and color in the voxelization storage buffer.
// Size: 48 bytes.
type VoxelBox struct {
	Min   mgl32.Vec4
	Max   mgl32.Vec4
	Color mgl32.Vec4
}

// MarshalVoxelBoxes serializes boxes into a tightly packed storage buffer.
//
// Parameters:
//   - boxes: the boxes to serialize
//
// Returns:
//   - []byte: len(boxes)*48 bytes
func MarshalVoxelBoxes(boxes []VoxelBox) []byte {
	buf := make([]byte, len(boxes)*VoxelBoxSize)
	for i, b := range boxes {
		off := i * VoxelBoxSize
		putVec4(buf[off:], b.Min)
		putVec4(buf[off+16:], b.Max)
		putVec4(buf[off+32:], b.Color)
	}
	return buf
}
