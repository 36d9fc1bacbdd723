package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"render.toml", "toml"},
		{"render.yaml", "yaml"},
		{"dir/RENDER.YML", "yaml"},
	}
	for _, tt := range tests {
		f, err := FormatFor(tt.file)
		require.NoError(t, err, tt.file)
		assert.Equal(t, tt.want, f.Name)
	}

	_, err := FormatFor("render.json")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestReadTOMLOverridesDefaults(t *testing.T) {
	doc := `
frames_in_flight = 3
fence_timeout = "500ms"
voxel_resolution = 32

[window]
title = "demo"

[passes]
voxelization = false
`
	f, err := FormatNamed("toml")
	require.NoError(t, err)
	cfg, err := ReadBytes([]byte(doc), f)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.FramesInFlight)
	assert.Equal(t, Duration(500*time.Millisecond), cfg.FenceTimeout)
	assert.Equal(t, uint32(32), cfg.VoxelResolution)
	assert.Equal(t, "demo", cfg.Window.Title)
	assert.Equal(t, 1280, cfg.Window.Width)
	assert.True(t, cfg.Passes.Shadows)
	assert.False(t, cfg.Passes.Voxelization)
}

func TestReadYAML(t *testing.T) {
	doc := `
present_mode: uncapped
shadow_map_size: 1024
passes:
  environment: false
`
	f, err := FormatNamed("yaml")
	require.NoError(t, err)
	cfg, err := ReadBytes([]byte(doc), f)
	require.NoError(t, err)

	assert.Equal(t, PresentModeUncapped, cfg.PresentMode)
	assert.Equal(t, uint32(1024), cfg.ShadowMapSize)
	assert.False(t, cfg.Passes.Environment)
	assert.Equal(t, Default().FenceTimeout, cfg.FenceTimeout)
}

func TestEmptyDocumentGivesDefaults(t *testing.T) {
	f, err := FormatNamed("yaml")
	require.NoError(t, err)
	cfg, err := ReadBytes(nil, f)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestUnknownFieldsAreRejected(t *testing.T) {
	for _, tt := range []struct{ format, doc string }{
		{"toml", "frame_count = 2\n"},
		{"yaml", "frame_count: 2\n"},
	} {
		f, err := FormatNamed(tt.format)
		require.NoError(t, err)
		_, err = ReadBytes([]byte(tt.doc), f)
		assert.Error(t, err, tt.format)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"frames in flight zero", func(c *Config) { c.FramesInFlight = 0 }},
		{"frames in flight too deep", func(c *Config) { c.FramesInFlight = 9 }},
		{"present mode", func(c *Config) { c.PresentMode = "mailbox" }},
		{"fence timeout", func(c *Config) { c.FenceTimeout = 0 }},
		{"shadow map size", func(c *Config) { c.ShadowMapSize = 1000 }},
		{"voxel resolution", func(c *Config) { c.VoxelResolution = 30 }},
		{"window", func(c *Config) { c.Window.Height = 0 }},
		{"voxelization without shadows", func(c *Config) { c.Passes.Shadows = false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteThenOpen(t *testing.T) {
	cfg := Default()
	cfg.FramesInFlight = 3
	cfg.FenceTimeout = Duration(time.Second)
	cfg.Window.Title = "written"

	for _, name := range []string{"render.toml", "render.yaml"} {
		f, err := FormatFor(name)
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, cfg.Write(&buf, f))

		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
		got, err := Open(path)
		require.NoError(t, err, name)
		assert.Equal(t, cfg, got, name)
	}
}

func TestRendererOptions(t *testing.T) {
	assert.Len(t, Default().RendererOptions(), 6)
	assert.Len(t, Default().PassOptions(), 7)
}
