// Package binding marshals the uniform blocks shared by the passes and manages their per-frame
// buffers and descriptor sets. Every layout is little-endian and follows WGSL uniform
// (std140-compatible) alignment.
package binding

import (
	_ "embed"
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxLights is the number of lights the scene uniform block holds. Extra lights are dropped.
const MaxLights = 16

// Uniform block sizes in bytes.
const (
	CameraUniformsSize = 192
	LightUniformsSize  = 48
	SceneUniformsSize  = 3*16 + MaxLights*LightUniformsSize + 16
	ObjectUniformsSize = 80
)

// CameraUniformsSource is the WGSL definition of CameraUniforms.
//
//go:embed assets/camera.wgsl
var CameraUniformsSource string

// LightUniformsSource is the WGSL definition of LightUniforms.
//
//go:embed assets/light.wgsl
var LightUniformsSource string

// SceneUniformsSource is the WGSL definition of SceneUniforms. It requires LightUniformsSource.
//
//go:embed assets/scene.wgsl
var SceneUniformsSource string

// ObjectUniformsSource is the WGSL definition of ObjectUniforms.
//
//go:embed assets/object.wgsl
var ObjectUniformsSource string

// CameraUniforms is the per-frame camera block.
// Size: 192 bytes.
//
// Layout:
//
//	mat4x4<f32> view      (64 bytes, offset   0)
//	mat4x4<f32> proj      (64 bytes, offset  64)
//	mat4x4<f32> view_proj (64 bytes, offset 128)
type CameraUniforms struct {
	View     mgl32.Mat4
	Proj     mgl32.Mat4
	ViewProj mgl32.Mat4
}

// Size returns the size of the block in bytes.
//
// Returns:
//   - int: 192
func (u *CameraUniforms) Size() int {
	return CameraUniformsSize
}

// Marshal serializes the block for GPU upload.
//
// Returns:
//   - []byte: 192-byte buffer ready for GPU upload
func (u *CameraUniforms) Marshal() []byte {
	buf := make([]byte, CameraUniformsSize)
	putMat4(buf[0:], u.View)
	putMat4(buf[64:], u.Proj)
	putMat4(buf[128:], u.ViewProj)
	return buf
}

// LightUniforms is one light in the scene block.
// Size: 48 bytes.
//
// Layout:
//
//	vec4<f32> position (16 bytes, offset  0)  w: 0 = point, 1 = directional
//	vec4<f32> color    (16 bytes, offset 16)  w: intensity
//	vec4<f32> data     (16 bytes, offset 32)  point: x = radius, y = decay; directional: xyz = direction
type LightUniforms struct {
	Position mgl32.Vec4
	Color    mgl32.Vec4
	DataSlot mgl32.Vec4
}

// Size returns the size of the block in bytes.
//
// Returns:
//   - int: 48
func (u *LightUniforms) Size() int {
	return LightUniformsSize
}

// Marshal serializes the block for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload
func (u *LightUniforms) Marshal() []byte {
	buf := make([]byte, LightUniformsSize)
	u.put(buf)
	return buf
}

func (u *LightUniforms) put(buf []byte) {
	putVec4(buf[0:], u.Position)
	putVec4(buf[16:], u.Color)
	putVec4(buf[32:], u.DataSlot)
}

// SceneUniforms is the per-frame lighting and atmosphere block.
// Size: 832 bytes.
//
// Layout:
//
//	vec4<f32>      fog_color     ( 16 bytes, offset   0)
//	vec4<f32>      fog_params    ( 16 bytes, offset  16)
//	vec4<f32>      ambient_color ( 16 bytes, offset  32)
//	array<Light,16> lights       (768 bytes, offset  48)
//	u32            num_lights    (  4 bytes, offset 816)
//	u32 x3         padding       ( 12 bytes, offset 820)
type SceneUniforms struct {
	FogColor     mgl32.Vec4
	FogParams    mgl32.Vec4
	AmbientColor mgl32.Vec4
	Lights       [MaxLights]LightUniforms
	NumLights    uint32
}

// Size returns the size of the block in bytes.
//
// Returns:
//   - int: 832
func (u *SceneUniforms) Size() int {
	return SceneUniformsSize
}

// Marshal serializes the block for GPU upload. Light slots past NumLights are written as zero.
//
// Returns:
//   - []byte: 832-byte buffer ready for GPU upload
func (u *SceneUniforms) Marshal() []byte {
	buf := make([]byte, SceneUniformsSize)
	putVec4(buf[0:], u.FogColor)
	putVec4(buf[16:], u.FogParams)
	putVec4(buf[32:], u.AmbientColor)
	n := min(int(u.NumLights), MaxLights)
	for i := 0; i < n; i++ {
		u.Lights[i].put(buf[48+i*LightUniformsSize:])
	}
	binary.LittleEndian.PutUint32(buf[816:], uint32(n))
	return buf
}

// ObjectUniforms is the per-object block, bound with a dynamic offset.
// Size: 80 bytes.
//
// Layout:
//
//	mat4x4<f32> model (64 bytes, offset  0)
//	vec4<u32>   flags (16 bytes, offset 64)  x = fog, y = receives shadow, z = casts shadow
type ObjectUniforms struct {
	Model mgl32.Mat4
	Flags [4]uint32
}

// Size returns the size of the block in bytes.
//
// Returns:
//   - int: 80
func (u *ObjectUniforms) Size() int {
	return ObjectUniformsSize
}

// Marshal serializes the block for GPU upload.
//
// Returns:
//   - []byte: 80-byte buffer ready for GPU upload
func (u *ObjectUniforms) Marshal() []byte {
	buf := make([]byte, ObjectUniformsSize)
	putMat4(buf[0:], u.Model)
	for i, f := range u.Flags {
		binary.LittleEndian.PutUint32(buf[64+i*4:], f)
	}
	return buf
}

func putMat4(buf []byte, m mgl32.Mat4) {
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(m[i]))
	}
}

func putVec4(buf []byte, v mgl32.Vec4) {
	for i := range 4 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v[i]))
	}
}
