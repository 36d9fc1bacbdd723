package gpu

import "fmt"

// Image is a texture in device memory. It tracks the layout it was last transitioned to by a
// recorded barrier so later barriers can use it as their source layout.
type Image struct {
	resource
	desc   ImageDesc
	layout ImageLayout
}

// Desc returns the description the image was created with.
func (i *Image) Desc() ImageDesc {
	return i.desc
}

// Format returns the pixel format.
func (i *Image) Format() Format {
	return i.desc.Format
}

// Extent returns the image size.
func (i *Image) Extent() Extent3D {
	return i.desc.Extent
}

// Layout returns the layout the most recently recorded barrier left the image in.
func (i *Image) Layout() ImageLayout {
	return i.layout
}

// External reports whether the native image is owned by the swapchain rather than the device.
func (i *Image) External() bool {
	return i.external
}

// Upload replaces one layer of the image with tightly packed texels.
//
// Parameters:
//   - layer: the array layer (cube face) to write; 0 for 2D and 3D images
//   - data: exactly Desc().LayerSize() bytes
//
// Returns:
//   - error: ErrOutOfBounds on a bad layer or size, ErrReleased after Release
func (i *Image) Upload(layer uint32, data []byte) error {
	if err := i.checkLive("upload image"); err != nil {
		return err
	}
	if err := i.checkLayer(layer, uint64(len(data))); err != nil {
		return opError("upload image", i.label, err)
	}
	return opError("upload image", i.label, i.dev.backend.WriteImage(i, layer, data))
}

// Read returns one layer of the image as tightly packed texels.
//
// Parameters:
//   - layer: the array layer (cube face) to read
//
// Returns:
//   - []byte: Desc().LayerSize() bytes
//   - error: ErrOutOfBounds on a bad layer, ErrReleased after Release
func (i *Image) Read(layer uint32) ([]byte, error) {
	if err := i.checkLive("read image"); err != nil {
		return nil, err
	}
	if err := i.checkLayer(layer, i.desc.LayerSize()); err != nil {
		return nil, opError("read image", i.label, err)
	}
	data, err := i.dev.backend.ReadImage(i, layer)
	if err != nil {
		return nil, opError("read image", i.label, err)
	}
	return data, nil
}

// CopyTo copies one layer of the image into dst, up to len(dst) bytes.
//
// Parameters:
//   - layer: the array layer to copy
//   - dst: the destination slice
//
// Returns:
//   - int: the number of bytes copied
//   - error: an error if the read failed
func (i *Image) CopyTo(layer uint32, dst []byte) (int, error) {
	data, err := i.Read(layer)
	if err != nil {
		return 0, err
	}
	return copy(dst, data), nil
}

func (i *Image) checkLayer(layer uint32, size uint64) error {
	if layer >= i.desc.Layers() {
		return fmt.Errorf("layer %d of %d: %w", layer, i.desc.Layers(), ErrOutOfBounds)
	}
	if size != i.desc.LayerSize() {
		return fmt.Errorf("got %d bytes, layer holds %d: %w", size, i.desc.LayerSize(), ErrOutOfBounds)
	}
	return nil
}

// Sampler controls how shaders filter and address an Image.
type Sampler struct {
	resource
	desc SamplerDesc
}

// Desc returns the description the sampler was created with.
func (s *Sampler) Desc() SamplerDesc {
	return s.desc
}
