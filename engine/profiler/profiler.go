package profiler

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/logging"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
)

// Report is one interval of frame and memory statistics.
type Report struct {
	Interval time.Duration
	FPS      float64
	// Skipped is the number of frames dropped for resizes during the interval.
	Skipped uint64
	// Resizes is the number of surface reconfigurations during the interval.
	Resizes uint64
	// AvgFenceWait is the mean time a frame slot blocked on its fence during the interval.
	AvgFenceWait time.Duration

	HeapMB      float64
	AllocRateMB float64
	SysMB       float64
	GCCount     uint32
	LastPauseUs uint64
	MaxPauseUs  uint64
}

// StatsSource reports cumulative renderer counters.
type StatsSource interface {
	Stats() renderer.Stats
}

// Profiler tracks frame rate, fence waits and memory statistics for performance monitoring.
// Outputs stats to the logger at a configurable interval.
type Profiler struct {
	source         StatsSource
	logger         *slog.Logger
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	last           renderer.Stats
	seenWaits      uint64
	fenceWait      time.Duration
	report         Report
}

// NewProfiler creates a new Profiler reading counters from source.
// Update interval defaults to 1 second.
//
// Parameters:
//   - source: the renderer whose counters are reported
//   - logger: the logger receiving the reports, or nil for the default logger
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(source StatsSource, logger *slog.Logger) *Profiler {
	p := &Profiler{
		source:         source,
		logger:         logging.Or(logger),
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
	p.last = source.Stats()
	p.seenWaits = p.last.FenceWaits
	return p
}

// SetInterval changes how often Tick reports. Values <= 0 are ignored.
func (p *Profiler) SetInterval(d time.Duration) {
	if d > 0 {
		p.updateInterval = d
	}
}

// Last returns the most recent report.
func (p *Profiler) Last() Report {
	return p.report
}

// Tick should be called once per frame, after RenderFrame.
// Logs performance statistics when the update interval has elapsed.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	stats := p.source.Stats()
	if stats.FenceWaits > p.seenWaits {
		p.fenceWait += stats.LastFenceWait
		p.seenWaits = stats.FenceWaits
	}
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}
	p.report = p.collect(stats, elapsed)
	r := p.report
	p.logger.Info("profiler",
		"fps", r.FPS,
		"skipped", r.Skipped,
		"resizes", r.Resizes,
		"fence_wait", r.AvgFenceWait,
		"heap_mb", r.HeapMB,
		"alloc_rate_mb", r.AllocRateMB,
		"gc", r.GCCount,
		"gc_last_us", r.LastPauseUs,
		"gc_max_us", r.MaxPauseUs,
		"sys_mb", r.SysMB,
	)

	p.lastTime = currentTime
	p.last = stats
	p.fenceWait = 0
	return true
}

func (p *Profiler) collect(stats renderer.Stats, elapsed time.Duration) Report {
	r := Report{
		Interval: elapsed,
		FPS:      float64(stats.Frames-p.last.Frames) / elapsed.Seconds(),
		Skipped:  stats.SkippedFrames - p.last.SkippedFrames,
		Resizes:  stats.Resizes - p.last.Resizes,
	}
	if waits := stats.FenceWaits - p.last.FenceWaits; waits > 0 {
		r.AvgFenceWait = p.fenceWait / time.Duration(waits)
	}

	runtime.ReadMemStats(&p.memStats)
	// TotalAlloc only grows, so its delta is the churn since the last report.
	r.HeapMB = float64(p.memStats.Alloc) / 1024 / 1024
	r.SysMB = float64(p.memStats.Sys) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	r.AllocRateMB = float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	r.GCCount = gcCount
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses
		r.LastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			if pause := p.memStats.PauseNs[i%256] / 1000; pause > r.MaxPauseUs {
				r.MaxPauseUs = pause
			}
		}
	}
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return r
}
