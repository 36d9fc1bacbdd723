// Package common contains plain data types shared across the engine: surface extents and the
// decoded vertex/pixel payloads handed over by asset loaders for GPU upload.
package common

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Extent2D is a width/height pair in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether either dimension is zero (e.g. a minimized window).
func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

// Aspect returns width/height, or 1 for a zero extent.
func (e Extent2D) Aspect() float32 {
	if e.IsZero() {
		return 1
	}
	return float32(e.Width) / float32(e.Height)
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// PixelData holds a decoded, uncompressed pixel buffer as produced by an image decoder.
// Pixels are tightly packed rows of Channels bytes per pixel.
type PixelData struct {
	// Pixels is the raw row-major pixel data.
	Pixels []byte
	// Width is the image width in pixels.
	Width uint32
	// Height is the image height in pixels.
	Height uint32
	// Channels is the number of 8-bit channels per pixel (1 to 4).
	Channels uint32
}

// Validate checks that the pixel buffer length matches its declared dimensions.
//
// Returns:
//   - error: an error describing the mismatch, or nil
func (p PixelData) Validate() error {
	if p.Width == 0 || p.Height == 0 {
		return fmt.Errorf("pixel data has zero extent %dx%d", p.Width, p.Height)
	}
	if p.Channels < 1 || p.Channels > 4 {
		return fmt.Errorf("pixel data has unsupported channel count %d", p.Channels)
	}
	if want := uint64(p.Width) * uint64(p.Height) * uint64(p.Channels); uint64(len(p.Pixels)) != want {
		return fmt.Errorf("pixel data length %d does not match %dx%dx%d", len(p.Pixels), p.Width, p.Height, p.Channels)
	}
	return nil
}

// RGBA expands the pixel data to 4 channels. Missing color channels replicate the first
// channel (grey) and a missing alpha channel is opaque.
//
// Returns:
//   - []byte: RGBA8 pixels, 4 bytes per pixel
func (p PixelData) RGBA() []byte {
	if p.Channels == 4 {
		return p.Pixels
	}
	n := int(uint64(p.Width) * uint64(p.Height))
	out := make([]byte, n*4)
	c := int(p.Channels)
	for i := 0; i < n; i++ {
		src := p.Pixels[i*c : i*c+c]
		dst := out[i*4 : i*4+4]
		switch c {
		case 1:
			dst[0], dst[1], dst[2], dst[3] = src[0], src[0], src[0], 255
		case 2:
			dst[0], dst[1], dst[2], dst[3] = src[0], src[0], src[0], src[1]
		case 3:
			dst[0], dst[1], dst[2], dst[3] = src[0], src[1], src[2], 255
		}
	}
	return out
}

// Resize returns an RGBA copy scaled to the given size with Catmull-Rom filtering.
// It returns p expanded to RGBA unchanged when the size already matches.
//
// Parameters:
//   - width: the target width in pixels
//   - height: the target height in pixels
//
// Returns:
//   - PixelData: the resized 4-channel pixel data
func (p PixelData) Resize(width, height uint32) PixelData {
	rgba := p.RGBA()
	if width == p.Width && height == p.Height {
		return PixelData{Pixels: rgba, Width: width, Height: height, Channels: 4}
	}
	src := &image.RGBA{
		Pix:    rgba,
		Stride: int(p.Width) * 4,
		Rect:   image.Rect(0, 0, int(p.Width), int(p.Height)),
	}
	dst := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return PixelData{Pixels: dst.Pix, Width: width, Height: height, Channels: 4}
}

// FitWithin downscales p (preserving aspect ratio) so neither side exceeds maxSide.
// Images already within bounds are returned expanded to RGBA.
//
// Parameters:
//   - maxSide: the largest allowed width or height
//
// Returns:
//   - PixelData: 4-channel pixel data within the bound
func (p PixelData) FitWithin(maxSide uint32) PixelData {
	if p.Width <= maxSide && p.Height <= maxSide {
		return p.Resize(p.Width, p.Height)
	}
	scale := float64(maxSide) / float64(max(p.Width, p.Height))
	w := max(uint32(math.Round(float64(p.Width)*scale)), 1)
	h := max(uint32(math.Round(float64(p.Height)*scale)), 1)
	return p.Resize(w, h)
}

// VertexStride is the size in bytes of one interleaved vertex:
// position(3) + normal(3) + tangent(3) + uv(2) float32s.
const VertexStride = (3 + 3 + 3 + 2) * 4

// VertexData holds decoded vertex attribute arrays, optionally indexed.
// Normals, Tangents and UVs may be empty; missing attributes upload as zero.
type VertexData struct {
	Positions [][3]float32
	Normals   [][3]float32
	Tangents  [][3]float32
	UVs       [][2]float32
	Indices   []uint32
}

// Validate checks that every present attribute array matches the position count and that
// every index is in range.
//
// Returns:
//   - error: an error describing the first inconsistency, or nil
func (v VertexData) Validate() error {
	n := len(v.Positions)
	if n == 0 {
		return fmt.Errorf("vertex data has no positions")
	}
	for name, l := range map[string]int{"normals": len(v.Normals), "tangents": len(v.Tangents), "uvs": len(v.UVs)} {
		if l != 0 && l != n {
			return fmt.Errorf("vertex data has %d %s for %d positions", l, name, n)
		}
	}
	for i, idx := range v.Indices {
		if int(idx) >= n {
			return fmt.Errorf("vertex index %d at %d out of range (%d vertices)", idx, i, n)
		}
	}
	return nil
}

// VertexCount returns the number of vertices.
func (v VertexData) VertexCount() int {
	return len(v.Positions)
}

// Interleave packs the attributes into a little-endian byte buffer of VertexStride bytes per vertex.
//
// Returns:
//   - []byte: interleaved vertex bytes
func (v VertexData) Interleave() []byte {
	out := make([]byte, len(v.Positions)*VertexStride)
	put := func(off int, f float32) {
		binary.LittleEndian.PutUint32(out[off:], math.Float32bits(f))
	}
	for i, p := range v.Positions {
		base := i * VertexStride
		for c := 0; c < 3; c++ {
			put(base+c*4, p[c])
		}
		if len(v.Normals) > 0 {
			for c := 0; c < 3; c++ {
				put(base+12+c*4, v.Normals[i][c])
			}
		}
		if len(v.Tangents) > 0 {
			for c := 0; c < 3; c++ {
				put(base+24+c*4, v.Tangents[i][c])
			}
		}
		if len(v.UVs) > 0 {
			put(base+36, v.UVs[i][0])
			put(base+40, v.UVs[i][1])
		}
	}
	return out
}

// IndexBytes returns the indices as little-endian uint32 bytes, or nil when unindexed.
//
// Returns:
//   - []byte: the index buffer contents
func (v VertexData) IndexBytes() []byte {
	if len(v.Indices) == 0 {
		return nil
	}
	out := make([]byte, len(v.Indices)*4)
	for i, idx := range v.Indices {
		binary.LittleEndian.PutUint32(out[i*4:], idx)
	}
	return out
}
