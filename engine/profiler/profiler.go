package profiler

import (
	"log/slog"
	"runtime"
	"time"
)

// Stats is one reporting window of the profiler.
type Stats struct {
	FPS         float64
	FrameTime   time.Duration // mean over the window
	HeapMB      float64
	AllocRateMB float64 // MB allocated per second
	NumGC       uint32
	LastPause   time.Duration
	MaxPause    time.Duration // longest GC pause inside the window
	SysMB       float64
}

// Profiler tracks frame rate and memory statistics and logs them once per interval.
// It is not safe for concurrent use; call Tick from the render thread.
type Profiler struct {
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	frameCount     int
	lastTime       time.Time
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	last           Stats
}

// ProfilerBuilderOption configures a Profiler during NewProfiler.
type ProfilerBuilderOption func(*Profiler)

// WithLogger sets the logger the stats are written to.
func WithLogger(logger *slog.Logger) ProfilerBuilderOption {
	return func(p *Profiler) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithInterval sets the reporting interval. Values below or equal to zero are ignored.
func WithInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.interval = d
		}
	}
}

// NewProfiler creates a Profiler reporting every second to slog.Default().
//
// Parameters:
//   - options: functional options to configure the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		logger:   slog.Default(),
		interval: time.Second,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// Interval returns the reporting interval.
func (p *Profiler) Interval() time.Duration { return p.interval }

// Last returns the stats of the most recent completed window.
func (p *Profiler) Last() Stats { return p.last }

// Tick counts one frame. When the interval has elapsed it samples the runtime, logs a line at Info
// and starts a new window.
//
// Returns:
//   - bool: true if stats were logged this tick
func (p *Profiler) Tick() bool {
	p.frameCount++
	now := p.now()
	elapsed := now.Sub(p.lastTime)
	if elapsed < p.interval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	s := Stats{
		FPS:         float64(p.frameCount) / elapsed.Seconds(),
		FrameTime:   elapsed / time.Duration(p.frameCount),
		HeapMB:      float64(p.memStats.Alloc) / 1024 / 1024,
		AllocRateMB: float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds(),
		NumGC:       p.memStats.NumGC,
		SysMB:       float64(p.memStats.Sys) / 1024 / 1024,
	}
	if s.NumGC > 0 {
		// PauseNs is a ring of the last 256 pauses
		s.LastPause = time.Duration(p.memStats.PauseNs[(s.NumGC+255)%256])
		start := p.lastGCCount
		if s.NumGC-start > 256 {
			start = s.NumGC - 256
		}
		for i := start; i < s.NumGC; i++ {
			s.MaxPause = max(s.MaxPause, time.Duration(p.memStats.PauseNs[i%256]))
		}
	}

	p.logger.Info("profiler",
		slog.String("fps", formatFloat(s.FPS)),
		slog.Duration("frame_time", s.FrameTime),
		slog.String("heap_mb", formatFloat(s.HeapMB)),
		slog.String("alloc_rate_mb_s", formatFloat(s.AllocRateMB)),
		slog.Group("gc",
			slog.Uint64("count", uint64(s.NumGC)),
			slog.Duration("last_pause", s.LastPause),
			slog.Duration("max_pause", s.MaxPause),
		),
		slog.String("sys_mb", formatFloat(s.SysMB)),
	)

	p.last = s
	p.frameCount = 0
	p.lastTime = now
	p.lastGCCount = s.NumGC
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
