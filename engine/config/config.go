// Package config loads the renderer and window settings from TOML or YAML files.
package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/binding"
	"github.com/Carmen-Shannon/oxy-render/engine/pass"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Present modes accepted by Config.PresentMode.
const (
	PresentModeVSync    = "vsync"
	PresentModeUncapped = "uncapped"
)

// ErrUnknownFormat is returned for config files whose extension is neither TOML nor YAML.
var ErrUnknownFormat = errors.New("config: unknown file format")

// Duration is a time.Duration written as text, e.g. "1.5s".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Window holds the settings of the application window.
type Window struct {
	Title  string `toml:"title" yaml:"title"`
	Width  int    `toml:"width" yaml:"width"`
	Height int    `toml:"height" yaml:"height"`
}

// Passes toggles the optional passes of the standard pipeline.
type Passes struct {
	Shadows      bool `toml:"shadows" yaml:"shadows"`
	Environment  bool `toml:"environment" yaml:"environment"`
	Voxelization bool `toml:"voxelization" yaml:"voxelization"`
}

// Config is the full set of renderer settings.
type Config struct {
	FramesInFlight int      `toml:"frames_in_flight" yaml:"frames_in_flight"`
	PresentMode    string   `toml:"present_mode" yaml:"present_mode"`
	FenceTimeout   Duration `toml:"fence_timeout" yaml:"fence_timeout"`
	LogLevel       string   `toml:"log_level" yaml:"log_level"`

	ShadowMapSize   uint32  `toml:"shadow_map_size" yaml:"shadow_map_size"`
	ShadowExtent    float32 `toml:"shadow_extent" yaml:"shadow_extent"`
	CubemapSize     uint32  `toml:"cubemap_size" yaml:"cubemap_size"`
	IrradianceSize  uint32  `toml:"irradiance_size" yaml:"irradiance_size"`
	VoxelResolution uint32  `toml:"voxel_resolution" yaml:"voxel_resolution"`
	MaxObjects      int     `toml:"max_objects" yaml:"max_objects"`
	Exposure        float32 `toml:"exposure" yaml:"exposure"`

	Window Window `toml:"window" yaml:"window"`
	Passes Passes `toml:"passes" yaml:"passes"`
}

// Default returns the settings used when no file is given.
//
// Returns:
//   - Config: the default configuration
func Default() Config {
	return Config{
		FramesInFlight:  renderer.DefaultFramesInFlight,
		PresentMode:     PresentModeVSync,
		FenceTimeout:    Duration(2 * time.Second),
		LogLevel:        "info",
		ShadowMapSize:   pass.DefaultShadowMapSize,
		ShadowExtent:    pass.DefaultShadowExtent,
		CubemapSize:     pass.DefaultCubemapSize,
		IrradianceSize:  pass.DefaultIrradianceSize,
		VoxelResolution: pass.DefaultVoxelResolution,
		MaxObjects:      binding.DefaultMaxObjects,
		Exposure:        1,
		Window:          Window{Title: "oxy-render", Width: 1280, Height: 720},
		Passes:          Passes{Shadows: true, Environment: true, Voxelization: true},
	}
}

// Decoder decodes a config document into v.
type Decoder interface {
	Decode(v any) error
}

// Encoder encodes a config document.
type Encoder interface {
	Encode(v any) error
}

// DecoderFunc creates a Decoder reading r.
type DecoderFunc func(r io.Reader) Decoder

// EncoderFunc creates an Encoder writing to w.
type EncoderFunc func(w io.Writer) Encoder

// Format is a config file syntax.
type Format struct {
	Name       string
	Extensions []string
	Decoder    DecoderFunc
	Encoder    EncoderFunc
}

// Formats lists the supported config syntaxes.
var Formats = []Format{
	{
		Name:       "toml",
		Extensions: []string{".toml"},
		Decoder:    func(r io.Reader) Decoder { return toml.NewDecoder(r).DisallowUnknownFields() },
		Encoder:    func(w io.Writer) Encoder { return toml.NewEncoder(w) },
	},
	{
		Name:       "yaml",
		Extensions: []string{".yaml", ".yml"},
		Decoder: func(r io.Reader) Decoder {
			d := yaml.NewDecoder(r)
			d.KnownFields(true)
			return d
		},
		Encoder: func(w io.Writer) Encoder {
			e := yaml.NewEncoder(w)
			e.SetIndent(2)
			return e
		},
	},
}

// FormatFor returns the format of a file name by its extension.
//
// Parameters:
//   - filename: the file name or path
//
// Returns:
//   - Format: the matching format
//   - error: ErrUnknownFormat when no format matches
func FormatFor(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, f := range Formats {
		for _, e := range f.Extensions {
			if e == ext {
				return f, nil
			}
		}
	}
	return Format{}, fmt.Errorf("%w: %q", ErrUnknownFormat, filename)
}

// FormatNamed returns the format with the given name, "toml" or "yaml".
func FormatNamed(name string) (Format, error) {
	for _, f := range Formats {
		if f.Name == strings.ToLower(name) {
			return f, nil
		}
	}
	return Format{}, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// Open reads a config file on top of the defaults and validates the result.
//
// Parameters:
//   - filename: the path of a .toml, .yaml or .yml file
//
// Returns:
//   - Config: the loaded configuration
//   - error: an error if the file cannot be read, decoded or validated
func Open(filename string) (Config, error) {
	format, err := FormatFor(filename)
	if err != nil {
		return Config{}, err
	}
	fp, err := os.Open(filename)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer fp.Close()
	cfg, err := Read(bufio.NewReader(fp), format)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", filename, err)
	}
	return cfg, nil
}

// Read decodes a config document on top of the defaults and validates the result.
//
// Parameters:
//   - r: the document
//   - format: the document syntax
//
// Returns:
//   - Config: the loaded configuration
//   - error: a decode or validation error
func Read(r io.Reader, format Format) (Config, error) {
	cfg := Default()
	if err := format.Decoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode %s: %w", format.Name, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReadBytes is Read over an in-memory document.
func ReadBytes(data []byte, format Format) (Config, error) {
	return Read(bytes.NewReader(data), format)
}

// Write encodes c in the given format.
func (c Config) Write(w io.Writer, format Format) error {
	return format.Encoder(w).Encode(c)
}

// Validate checks every setting and returns all problems joined.
//
// Returns:
//   - error: nil when the configuration is usable
func (c Config) Validate() error {
	var errs []error
	if c.FramesInFlight < 1 || c.FramesInFlight > renderer.MaxFramesInFlight {
		errs = append(errs, fmt.Errorf("frames_in_flight %d out of range 1..%d", c.FramesInFlight, renderer.MaxFramesInFlight))
	}
	if c.PresentMode != PresentModeVSync && c.PresentMode != PresentModeUncapped {
		errs = append(errs, fmt.Errorf("present_mode %q is not %q or %q", c.PresentMode, PresentModeVSync, PresentModeUncapped))
	}
	if c.FenceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fence_timeout %s must be positive", time.Duration(c.FenceTimeout)))
	}
	if !isPow2(c.ShadowMapSize) {
		errs = append(errs, fmt.Errorf("shadow_map_size %d is not a power of two", c.ShadowMapSize))
	}
	if c.ShadowExtent <= 0 {
		errs = append(errs, fmt.Errorf("shadow_extent %g must be positive", c.ShadowExtent))
	}
	if !isPow2(c.CubemapSize) {
		errs = append(errs, fmt.Errorf("cubemap_size %d is not a power of two", c.CubemapSize))
	}
	if !isPow2(c.IrradianceSize) {
		errs = append(errs, fmt.Errorf("irradiance_size %d is not a power of two", c.IrradianceSize))
	}
	if c.VoxelResolution < 4 || c.VoxelResolution%4 != 0 {
		errs = append(errs, fmt.Errorf("voxel_resolution %d must be a positive multiple of 4", c.VoxelResolution))
	}
	if c.MaxObjects < 1 {
		errs = append(errs, fmt.Errorf("max_objects %d must be positive", c.MaxObjects))
	}
	if c.Exposure <= 0 {
		errs = append(errs, fmt.Errorf("exposure %g must be positive", c.Exposure))
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d must be positive", c.Window.Width, c.Window.Height))
	}
	if c.Passes.Voxelization && !c.Passes.Shadows {
		errs = append(errs, errors.New("passes.voxelization requires passes.shadows"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// PassOptions maps the pass settings onto pass builder options.
func (c Config) PassOptions() []pass.PassBuilderOption {
	return []pass.PassBuilderOption{
		pass.WithShadowMapSize(c.ShadowMapSize),
		pass.WithShadowExtent(c.ShadowExtent),
		pass.WithCubemapSize(c.CubemapSize),
		pass.WithIrradianceSize(c.IrradianceSize),
		pass.WithVoxelResolution(c.VoxelResolution),
		pass.WithMaxObjects(c.MaxObjects),
		pass.WithExposure(c.Exposure),
	}
}

// RendererOptions maps the configuration onto renderer builder options.
//
// Returns:
//   - []renderer.RendererBuilderOption: the options for renderer.NewRenderer
func (c Config) RendererOptions() []renderer.RendererBuilderOption {
	return []renderer.RendererBuilderOption{
		renderer.WithFramesInFlight(c.FramesInFlight),
		renderer.WithFrameTimeout(time.Duration(c.FenceTimeout)),
		renderer.WithShadows(c.Passes.Shadows),
		renderer.WithEnvironment(c.Passes.Environment),
		renderer.WithVoxelization(c.Passes.Voxelization),
		renderer.WithPassOptions(c.PassOptions()...),
	}
}

func isPow2(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}
