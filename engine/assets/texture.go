package assets

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/logging"
)

// Texture is a 2D RGBA8 image asset.
type Texture struct {
	asset
	srgb  bool
	data  common.PixelData
	image *gpu.Image
}

// NewTexture creates a pending texture. Its data is published later by a loader task.
//
// Parameters:
//   - label: the debug label of the texture
//   - srgb: whether the pixels are sRGB encoded color
//
// Returns:
//   - *Texture: the pending texture
func NewTexture(label string, srgb bool) *Texture {
	return &Texture{asset: newAsset(label), srgb: srgb}
}

// NewTextureFromPixels creates a texture whose data is already available.
//
// Parameters:
//   - label: the debug label of the texture
//   - srgb: whether the pixels are sRGB encoded color
//   - data: the decoded pixels
//
// Returns:
//   - *Texture: the ready texture
func NewTextureFromPixels(label string, srgb bool, data common.PixelData) *Texture {
	t := NewTexture(label, srgb)
	t.Publish(data, nil)
	return t
}

// Publish stores the prepared pixels and marks the texture ready. A non-nil err marks it failed.
// It must be called at most once.
//
// Parameters:
//   - data: the decoded pixels
//   - err: the decode error, if any
func (t *Texture) Publish(data common.PixelData, err error) {
	if err == nil {
		err = data.Validate()
	}
	if err == nil {
		t.data = data.Resize(data.Width, data.Height)
	}
	t.publish(err)
}

// Extent returns the size of the published pixels, or zero while pending.
func (t *Texture) Extent() common.Extent2D {
	if !t.Ready() {
		return common.Extent2D{}
	}
	return common.Extent2D{Width: t.data.Width, Height: t.data.Height}
}

// Image returns the uploaded image, or nil until Upload succeeds.
func (t *Texture) Image() *gpu.Image {
	if t.State() != StateUploaded {
		return nil
	}
	return t.image
}

// Upload creates the GPU image from the published pixels. It uploads once; later calls on an
// uploaded texture are no-ops.
//
// Parameters:
//   - dev: the device to allocate on
//
// Returns:
//   - error: ErrNotReady while pending, the recorded error of a failed texture, or an allocation error
func (t *Texture) Upload(dev gpu.Device) error {
	ok, err := t.beginUpload()
	if !ok {
		return err
	}
	format := gpu.FormatRGBA8Unorm
	if t.srgb {
		format = gpu.FormatRGBA8UnormSrgb
	}
	img, err := dev.CreateImage(gpu.ImageDesc{
		Label:  t.label,
		Format: format,
		Extent: gpu.Extent3D{Width: t.data.Width, Height: t.data.Height, Depth: 1},
		Usage:  gpu.ImageUsageSampled | gpu.ImageUsageCopyDst,
	})
	if err != nil {
		return t.fail(err)
	}
	if err := img.Upload(0, t.data.Pixels); err != nil {
		return t.fail(errors.Join(err, img.Release()))
	}
	t.image = img
	t.data.Pixels = nil
	t.state.Store(int32(StateUploaded))
	return nil
}

// Resolve returns the uploaded image, uploading it first if the data has just become ready.
// While the texture is pending or failed it returns fallback. It never blocks.
//
// Parameters:
//   - dev: the device to allocate on
//   - fallback: the placeholder bound until the texture is usable
//
// Returns:
//   - *gpu.Image: the texture image or fallback
//   - bool: true when the texture image was returned
func (t *Texture) Resolve(dev gpu.Device, fallback *gpu.Image) (*gpu.Image, bool) {
	if t == nil || !t.Ready() {
		return fallback, false
	}
	if t.State() == StateReady {
		if err := t.Upload(dev); err != nil {
			logging.Logger().Warn("texture upload failed, keeping fallback", "asset", t.label, "err", err)
		}
	}
	if img := t.Image(); img != nil {
		return img, true
	}
	return fallback, false
}

// Release destroys the GPU image. It is idempotent.
func (t *Texture) Release() error {
	if t.State() != StateUploaded {
		return nil
	}
	t.state.Store(int32(StateReleased))
	return t.image.Release()
}
