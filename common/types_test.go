package common

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalesce(t *testing.T) {
	assert.Equal(t, 3, Coalesce(0, 3, 4))
	assert.Equal(t, "", Coalesce("", ""))
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint32(256), AlignUp(1, 256))
	assert.Equal(t, uint32(256), AlignUp(256, 256))
	assert.Equal(t, uint32(512), AlignUp(257, 256))
}

func TestExtent2D(t *testing.T) {
	assert.True(t, Extent2D{Width: 0, Height: 10}.IsZero())
	assert.Equal(t, float32(2), Extent2D{Width: 20, Height: 10}.Aspect())
	assert.Equal(t, float32(1), Extent2D{}.Aspect())
	assert.Equal(t, "20x10", Extent2D{Width: 20, Height: 10}.String())
}

func TestPixelDataValidate(t *testing.T) {
	ok := PixelData{Pixels: make([]byte, 2*2*3), Width: 2, Height: 2, Channels: 3}
	require.NoError(t, ok.Validate())

	short := ok
	short.Pixels = short.Pixels[:5]
	assert.Error(t, short.Validate())

	badChannels := ok
	badChannels.Channels = 5
	assert.Error(t, badChannels.Validate())

	assert.Error(t, PixelData{Channels: 4}.Validate())

	// 65536*65536 wraps to zero in 32 bits.
	huge := PixelData{Width: 65536, Height: 65536, Channels: 1}
	assert.ErrorContains(t, huge.Validate(), "does not match 65536x65536x1")
}

func TestPixelDataRGBA(t *testing.T) {
	grey := PixelData{Pixels: []byte{10, 20}, Width: 2, Height: 1, Channels: 1}
	assert.Equal(t, []byte{10, 10, 10, 255, 20, 20, 20, 255}, grey.RGBA())

	rgb := PixelData{Pixels: []byte{1, 2, 3}, Width: 1, Height: 1, Channels: 3}
	assert.Equal(t, []byte{1, 2, 3, 255}, rgb.RGBA())

	rgba := PixelData{Pixels: []byte{1, 2, 3, 4}, Width: 1, Height: 1, Channels: 4}
	assert.Equal(t, []byte{1, 2, 3, 4}, rgba.RGBA())
}

func TestPixelDataFitWithin(t *testing.T) {
	src := PixelData{Pixels: make([]byte, 64*32*4), Width: 64, Height: 32, Channels: 4}
	out := src.FitWithin(16)
	assert.Equal(t, uint32(16), out.Width)
	assert.Equal(t, uint32(8), out.Height)
	assert.Len(t, out.Pixels, 16*8*4)

	same := src.FitWithin(128)
	assert.Equal(t, src.Width, same.Width)
	assert.Equal(t, src.Height, same.Height)
}

func TestVertexDataInterleave(t *testing.T) {
	v := VertexData{
		Positions: [][3]float32{{1, 2, 3}, {4, 5, 6}},
		UVs:       [][2]float32{{0.5, 0.25}, {1, 1}},
		Indices:   []uint32{0, 1, 0},
	}
	require.NoError(t, v.Validate())

	buf := v.Interleave()
	require.Len(t, buf, 2*VertexStride)
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])) }
	assert.Equal(t, float32(4), f(VertexStride))
	assert.Equal(t, float32(0), f(12))
	assert.Equal(t, float32(0.25), f(40))

	assert.Len(t, v.IndexBytes(), 12)
	assert.Nil(t, VertexData{Positions: v.Positions}.IndexBytes())
}

func TestVertexDataValidate(t *testing.T) {
	assert.Error(t, VertexData{}.Validate())
	assert.Error(t, VertexData{Positions: [][3]float32{{}}, Normals: [][3]float32{{}, {}}}.Validate())
	assert.Error(t, VertexData{Positions: [][3]float32{{}}, Indices: []uint32{1}}.Validate())
}
