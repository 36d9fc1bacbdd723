package profiler

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/stretchr/testify/assert"
)

type fakeStats struct {
	stats renderer.Stats
}

func (f *fakeStats) Stats() renderer.Stats {
	return f.stats
}

func TestTickReportsInterval(t *testing.T) {
	src := &fakeStats{}
	var buf bytes.Buffer
	p := NewProfiler(src, slog.New(slog.NewTextHandler(&buf, nil)))
	p.SetInterval(time.Hour)

	for range 4 {
		src.stats.Frames++
		src.stats.FenceWaits++
		src.stats.LastFenceWait = 2 * time.Millisecond
		assert.False(t, p.Tick())
	}
	src.stats.SkippedFrames = 1
	src.stats.Resizes = 1
	src.stats.FenceWaits++
	src.stats.LastFenceWait = 6 * time.Millisecond

	p.lastTime = time.Now().Add(-2 * time.Hour)
	assert.True(t, p.Tick())

	r := p.Last()
	assert.Equal(t, uint64(1), r.Skipped)
	assert.Equal(t, uint64(1), r.Resizes)
	assert.Equal(t, 14*time.Millisecond/5, r.AvgFenceWait)
	assert.Greater(t, r.FPS, 0.0)
	assert.Contains(t, buf.String(), "fence_wait")

	p.lastTime = time.Now().Add(-2 * time.Hour)
	assert.True(t, p.Tick())
	assert.Zero(t, p.Last().Skipped)
	assert.Zero(t, p.Last().AvgFenceWait)
}
