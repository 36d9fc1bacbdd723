package scene_test

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/assets"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func cube() *assets.Mesh {
	return assets.NewMeshFromVertices("cube", common.VertexData{
		Positions: [][3]float32{{-1, -1, -1}, {1, 1, 1}, {1, -1, 1}},
	})
}

func TestPerspectiveDepthRange(t *testing.T) {
	proj := scene.Perspective(mgl32.DegToRad(60), 1, 1, 100)

	near := proj.Mul4x1(mgl32.Vec4{0, 0, -1, 1})
	far := proj.Mul4x1(mgl32.Vec4{0, 0, -100, 1})
	assert.InDelta(t, 0, near[2]/near[3], 1e-5)
	assert.InDelta(t, 1, far[2]/far[3], 1e-5)
}

func TestWithAspectKeepsFov(t *testing.T) {
	cam := scene.NewPerspectiveCamera(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}, mgl32.DegToRad(60), 1, 0.1, 100)
	wide := cam.WithAspect(2)

	assert.Equal(t, cam.Proj[5], wide.Proj[5])
	assert.InDelta(t, cam.Proj[0]/2, wide.Proj[0], 1e-6)
	assert.Equal(t, cam.View, wide.View)
}

func TestShadowViewProjMapsCenterInsideClip(t *testing.T) {
	l := scene.NewDirectionalLight(mgl32.Vec3{0.3, -1, 0.2}, mgl32.Vec3{1, 1, 1}, 3)
	center := mgl32.Vec3{4, 0, -2}
	vp := l.ShadowViewProj(center, 10, 0.1, 50)

	p := vp.Mul4x1(center.Vec4(1))
	assert.InDelta(t, 0, p[0], 1e-4)
	assert.InDelta(t, 0, p[1], 1e-4)
	assert.Greater(t, p[2], float32(0))
	assert.Less(t, p[2], float32(1))

	straightDown := scene.NewDirectionalLight(mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 1, 1}, 1)
	vp = straightDown.ShadowViewProj(mgl32.Vec3{}, 10, 0.1, 50)
	assert.False(t, vp.ApproxEqual(mgl32.Mat4{}))
}

func TestShadowLight(t *testing.T) {
	snap := &scene.Snapshot{Lights: []scene.Light{
		scene.NewPointLight(mgl32.Vec3{}, mgl32.Vec3{1, 0, 0}, 1, 5),
		scene.NewDirectionalLight(mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 1, 1}, 2),
	}}
	l, ok := snap.ShadowLight()
	assert.True(t, ok)
	assert.Equal(t, scene.LightDirectional, l.Type)

	snap.Lights[1].CastsShadow = false
	_, ok = snap.ShadowLight()
	assert.False(t, ok)

	var empty *scene.Snapshot
	_, ok = empty.ShadowLight()
	assert.False(t, ok)
}

func TestSnapshotBounds(t *testing.T) {
	snap := &scene.Snapshot{Objects: []scene.Drawable{
		{Mesh: cube(), Transform: mgl32.Translate3D(10, 0, 0)},
		{Mesh: cube(), Transform: mgl32.Scale3D(2, 2, 2)},
		{Mesh: assets.NewMesh("pending"), Transform: mgl32.Translate3D(100, 100, 100)},
		{Transform: mgl32.Ident4()},
	}}

	lo, hi, ok := snap.Bounds()
	assert.True(t, ok)
	assert.Equal(t, mgl32.Vec3{-2, -2, -2}, lo)
	assert.Equal(t, mgl32.Vec3{11, 2, 2}, hi)

	_, _, ok = (&scene.Snapshot{}).Bounds()
	assert.False(t, ok)
}

func TestObjectFlags(t *testing.T) {
	f := scene.FlagFog | scene.FlagCastsShadow
	assert.True(t, f.Has(scene.FlagFog))
	assert.False(t, f.Has(scene.FlagReceivesShadow))
	assert.True(t, scene.DefaultObjectFlags.Has(f))
}
