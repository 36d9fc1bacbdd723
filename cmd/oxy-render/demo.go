package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"sync"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/assets"
	"github.com/Carmen-Shannon/oxy-render/engine/camera"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// demoScene is a grid of spinning cubes on a ground plane under one shadowing sun and a few
// point lights. Ticks advance the animation; the render goroutine takes snapshots.
type demoScene struct {
	mu       sync.Mutex
	orbit    *camera.Orbit
	cube     *assets.Mesh
	ground   *assets.Mesh
	checker  *assets.Texture
	panorama *assets.Texture
	grid     int
	time     float32
	snapshot scene.Snapshot
}

// newDemoScene schedules the demo assets on loader. A non-empty panoramaPath is decoded from disk
// instead of the procedural sky.
func newDemoScene(loader assets.Loader, grid int, panoramaPath string, aspect float32) *demoScene {
	d := &demoScene{
		orbit: camera.NewOrbit(
			camera.WithRadius(float32(grid)*3+6),
			camera.WithElevation(0.45),
			camera.WithAzimuth(0.6),
			camera.WithRadiusBounds(2, 400),
			camera.WithProjection(mgl32.DegToRad(55), aspect, 0.1, 500),
		),
		grid: max(grid, 1),
	}
	d.cube = loader.LoadMesh("demo.cube", func() (common.VertexData, error) { return cubeVertices(), nil })
	d.ground = loader.LoadMesh("demo.ground", func() (common.VertexData, error) { return planeVertices(float32(d.grid) * 4), nil })
	d.checker = loader.LoadTexture("demo.checker", true, func() (common.PixelData, error) { return checkerPixels(256, 32), nil })
	if panoramaPath != "" {
		d.panorama = loader.LoadTexture("demo.panorama", true, func() (common.PixelData, error) { return decodeImageFile(panoramaPath) })
	} else {
		d.panorama = loader.LoadTexture("demo.sky", true, func() (common.PixelData, error) { return skyPixels(512, 256), nil })
	}
	return d
}

// Tick advances the animation clock.
func (d *demoScene) Tick(dt float32) {
	d.mu.Lock()
	d.time += dt
	d.mu.Unlock()
	d.orbit.Orbit(dt*2, 0)
}

// Resize keeps the projection aspect in step with the surface.
func (d *demoScene) Resize(width, height int) {
	if width > 0 && height > 0 {
		d.orbit.SetAspect(float32(width) / float32(height))
	}
}

// Snapshot rebuilds the reusable snapshot. The renderer records it before the next call.
func (d *demoScene) Snapshot(float32) *scene.Snapshot {
	d.mu.Lock()
	t := d.time
	d.mu.Unlock()

	s := &d.snapshot
	s.Objects = s.Objects[:0]
	s.Objects = append(s.Objects, scene.Drawable{
		Mesh:      d.ground,
		Transform: mgl32.Ident4(),
		Material:  scene.Material{BaseColor: mgl32.Vec4{0.8, 0.8, 0.8, 1}, Albedo: d.checker},
		Flags:     scene.FlagReceivesShadow | scene.FlagFog,
	})
	half := float32(d.grid-1) / 2
	for x := range d.grid {
		for z := range d.grid {
			fx, fz := float32(x)-half, float32(z)-half
			spin := t + (fx+fz)*0.3
			s.Objects = append(s.Objects, scene.Drawable{
				Mesh:      d.cube,
				Transform: mgl32.Translate3D(fx*3, 1+0.25*float32(math.Sin(float64(spin))), fz*3).Mul4(mgl32.HomogRotate3DY(spin)),
				Material:  scene.Material{BaseColor: mgl32.Vec4{0.5 + 0.5*fx/max(half, 1), 0.6, 0.5 - 0.5*fz/max(half, 1), 1}},
				Flags:     scene.DefaultObjectFlags,
			})
		}
	}

	s.Lights = s.Lights[:0]
	s.Lights = append(s.Lights, scene.NewDirectionalLight(mgl32.Vec3{-0.4, -1, -0.3}, mgl32.Vec3{1, 0.95, 0.85}, 2.5))
	for i := range 3 {
		angle := t*0.7 + float32(i)*2*math.Pi/3
		pos := mgl32.Vec3{float32(math.Cos(float64(angle))) * half * 3, 2, float32(math.Sin(float64(angle))) * half * 3}
		color := mgl32.Vec3{0, 0, 0}
		color[i] = 1
		s.Lights = append(s.Lights, scene.NewPointLight(pos, color, 4, 8))
	}

	s.Camera = d.orbit.Camera()
	s.Environment = scene.DefaultEnvironment()
	s.Environment.Panorama = d.panorama
	return s
}

// Release frees the demo meshes and textures. It runs after the renderer is closed.
func (d *demoScene) Release() {
	_ = d.cube.Release()
	_ = d.ground.Release()
	_ = d.checker.Release()
	_ = d.panorama.Release()
}

func decodeImageFile(path string) (common.PixelData, error) {
	f, err := os.Open(path)
	if err != nil {
		return common.PixelData{}, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return common.PixelData{}, fmt.Errorf("decode %s: %w", path, err)
	}
	b := img.Bounds()
	data := common.PixelData{Width: uint32(b.Dx()), Height: uint32(b.Dy()), Channels: 4}
	data.Pixels = make([]byte, 0, b.Dx()*b.Dy()*4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			data.Pixels = append(data.Pixels, byte(r>>8), byte(g>>8), byte(bl>>8), byte(a>>8))
		}
	}
	return data, nil
}

func checkerPixels(size, cell uint32) common.PixelData {
	data := common.PixelData{Width: size, Height: size, Channels: 4, Pixels: make([]byte, 0, size*size*4)}
	for y := range size {
		for x := range size {
			v := byte(90)
			if (x/cell+y/cell)%2 == 0 {
				v = 200
			}
			data.Pixels = append(data.Pixels, v, v, v, 255)
		}
	}
	return data
}

// skyPixels is an equirectangular gradient from a warm horizon to a blue zenith.
func skyPixels(width, height uint32) common.PixelData {
	data := common.PixelData{Width: width, Height: height, Channels: 4, Pixels: make([]byte, 0, width*height*4)}
	horizon := mgl32.Vec3{0.95, 0.8, 0.6}
	zenith := mgl32.Vec3{0.2, 0.4, 0.85}
	ground := mgl32.Vec3{0.25, 0.22, 0.2}
	for y := range height {
		v := 1 - 2*float32(y)/float32(height-1)
		var c mgl32.Vec3
		if v >= 0 {
			c = horizon.Mul(1 - v).Add(zenith.Mul(v))
		} else {
			c = horizon.Mul(1 + v).Add(ground.Mul(-v))
		}
		for range width {
			data.Pixels = append(data.Pixels, byte(c[0]*255), byte(c[1]*255), byte(c[2]*255), 255)
		}
	}
	return data
}

func planeVertices(half float32) common.VertexData {
	return common.VertexData{
		Positions: [][3]float32{{-half, 0, -half}, {half, 0, -half}, {half, 0, half}, {-half, 0, half}},
		Normals:   [][3]float32{{0, 1, 0}, {0, 1, 0}, {0, 1, 0}, {0, 1, 0}},
		Tangents:  [][3]float32{{1, 0, 0}, {1, 0, 0}, {1, 0, 0}, {1, 0, 0}},
		UVs:       [][2]float32{{0, 0}, {half, 0}, {half, half}, {0, half}},
		Indices:   []uint32{0, 2, 1, 0, 3, 2},
	}
}

// cubeVertices builds a unit cube with per-face normals.
func cubeVertices() common.VertexData {
	faces := []struct{ normal, u, v mgl32.Vec3 }{
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	}
	var data common.VertexData
	for _, f := range faces {
		base := uint32(len(data.Positions))
		for _, c := range [][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			p := f.normal.Add(f.u.Mul(c[0])).Add(f.v.Mul(c[1])).Mul(0.5)
			data.Positions = append(data.Positions, p)
			data.Normals = append(data.Normals, f.normal)
			data.Tangents = append(data.Tangents, f.u)
			data.UVs = append(data.UVs, [2]float32{(c[0] + 1) / 2, (1 - c[1]) / 2})
		}
		data.Indices = append(data.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return data
}
