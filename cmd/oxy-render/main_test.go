package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-render/engine/assets"
	"github.com/Carmen-Shannon/oxy-render/engine/config"
	"github.com/Carmen-Shannon/oxy-render/engine/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smallConfig = `
frames_in_flight: 2
log_level: error
shadow_map_size: 64
cubemap_size: 16
irradiance_size: 8
voxel_resolution: 8
window:
  width: 64
  height: 48
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	t.Cleanup(func() { logging.SetLogger(nil) })
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute(), out.String())
	return out.String()
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "render.yaml")
	require.NoError(t, os.WriteFile(path, []byte(smallConfig), 0o644))
	return path
}

func newTestLoader(t *testing.T) assets.Loader {
	t.Helper()
	l := assets.NewLoader(assets.WithWorkers(2))
	t.Cleanup(l.Close)
	return l
}

func TestConfigCommandPrintsEffectiveConfig(t *testing.T) {
	out := execute(t, "config", "--config", writeConfig(t), "--format", "yaml")

	cfg, err := config.ReadBytes([]byte(out), config.Formats[1])
	require.NoError(t, err)
	assert.Equal(t, uint32(64), cfg.ShadowMapSize)
	assert.Equal(t, 48, cfg.Window.Height)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestConfigCommandDefaultsToTOML(t *testing.T) {
	out := execute(t, "config", "--log-level", "error")
	assert.Contains(t, out, "frames_in_flight = 2")
	assert.Contains(t, out, "[passes]")
}

func TestBenchCommand(t *testing.T) {
	out := execute(t, "bench", "--config", writeConfig(t), "--frames", "6", "--grid", "2")
	assert.Contains(t, out, "frames          6\n")
	assert.Contains(t, out, "presents        6\n")
}

func TestDemoSceneSnapshot(t *testing.T) {
	loader := newTestLoader(t)
	d := newDemoScene(loader, 3, "", 1.5)
	loader.Wait()
	t.Cleanup(d.Release)

	s := d.Snapshot(0)
	assert.Len(t, s.Objects, 1+9)
	assert.Len(t, s.Lights, 4)
	_, ok := s.ShadowLight()
	assert.True(t, ok)
	assert.True(t, s.Environment.Panorama.Ready())
	assert.True(t, s.Objects[1].Mesh.Ready())

	d.Tick(0.5)
	moved := d.Snapshot(0)
	assert.Same(t, s, moved)
}

func TestCubeVerticesAreValid(t *testing.T) {
	v := cubeVertices()
	require.NoError(t, v.Validate())
	assert.Len(t, v.Positions, 24)
	assert.Len(t, v.Indices, 36)
	require.NoError(t, planeVertices(4).Validate())
	require.NoError(t, skyPixels(16, 8).Validate())
	require.NoError(t, checkerPixels(16, 4).Validate())
}
