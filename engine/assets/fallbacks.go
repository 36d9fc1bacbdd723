package assets

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
)

// Fallbacks are the placeholder resources bound while assets are pending or failed.
// They are created once by the caller and shared by every pass.
type Fallbacks struct {
	// White is a 1x1 opaque white sRGB texture used for missing albedo.
	White *gpu.Image
	// Panorama is a 2x1 neutral grey equirectangular image used until a panorama loads.
	Panorama *gpu.Image
	// Sampler is a linear, repeating sampler.
	Sampler *gpu.Sampler
	// ClampSampler is a linear, clamp-to-edge sampler for environment lookups.
	ClampSampler *gpu.Sampler
	// ShadowSampler is a less-than comparison sampler for shadow map lookups.
	ShadowSampler *gpu.Sampler

	released bool
}

// NewFallbacks allocates the placeholder resources on dev.
//
// Parameters:
//   - dev: the device to allocate on
//
// Returns:
//   - *Fallbacks: the placeholders
//   - error: an allocation or upload error
func NewFallbacks(dev gpu.Device) (*Fallbacks, error) {
	f := &Fallbacks{}
	var err error
	if f.White, err = solidImage(dev, "fallback.white", gpu.FormatRGBA8UnormSrgb, 1, []byte{255, 255, 255, 255}); err != nil {
		return nil, f.releaseOnError(err)
	}
	if f.Panorama, err = solidImage(dev, "fallback.panorama", gpu.FormatRGBA8Unorm, 2, []byte{128, 128, 128, 255}); err != nil {
		return nil, f.releaseOnError(err)
	}
	if f.Sampler, err = dev.CreateSampler(gpu.SamplerDesc{Label: "fallback.sampler", Filter: gpu.FilterLinear, Address: gpu.AddressRepeat}); err != nil {
		return nil, f.releaseOnError(err)
	}
	if f.ClampSampler, err = dev.CreateSampler(gpu.SamplerDesc{Label: "fallback.clamp", Filter: gpu.FilterLinear, Address: gpu.AddressClampToEdge}); err != nil {
		return nil, f.releaseOnError(err)
	}
	if f.ShadowSampler, err = dev.CreateSampler(gpu.SamplerDesc{Label: "fallback.shadow", Filter: gpu.FilterLinear, Address: gpu.AddressClampToEdge, Compare: true}); err != nil {
		return nil, f.releaseOnError(err)
	}
	return f, nil
}

func solidImage(dev gpu.Device, label string, format gpu.Format, width uint32, texel []byte) (*gpu.Image, error) {
	img, err := dev.CreateImage(gpu.ImageDesc{
		Label:  label,
		Format: format,
		Extent: gpu.Extent3D{Width: width, Height: 1, Depth: 1},
		Usage:  gpu.ImageUsageSampled | gpu.ImageUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	pix := make([]byte, 0, int(width)*len(texel))
	for range width {
		pix = append(pix, texel...)
	}
	if err := img.Upload(0, pix); err != nil {
		return nil, errors.Join(err, img.Release())
	}
	return img, nil
}

func (f *Fallbacks) releaseOnError(err error) error {
	return errors.Join(err, f.Release())
}

// Release destroys the placeholders. It is idempotent.
//
// Returns:
//   - error: the joined release errors
func (f *Fallbacks) Release() error {
	if f == nil || f.released {
		return nil
	}
	f.released = true
	var errs []error
	for _, img := range []*gpu.Image{f.White, f.Panorama} {
		if img != nil {
			errs = append(errs, img.Release())
		}
	}
	for _, s := range []*gpu.Sampler{f.Sampler, f.ClampSampler, f.ShadowSampler} {
		if s != nil {
			errs = append(errs, s.Release())
		}
	}
	return errors.Join(errs...)
}
