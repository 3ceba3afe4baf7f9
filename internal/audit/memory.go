package audit

import (
	"context"
	"runtime"
	"time"
)

// Snapshot reads current process memory statistics.
func Snapshot() Memory {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Memory{
		HeapAlloc:  ms.HeapAlloc,
		HeapSys:    ms.HeapSys,
		Sys:        ms.Sys,
		NumGC:      ms.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
}

// WatcherConfig tunes leak detection.
type WatcherConfig struct {
	Interval time.Duration
	// Samples is the number of consecutive growing samples that trigger.
	Samples int
	// MinGrowth is the smallest heap increase counted as growth.
	MinGrowth uint64
}

// Watcher samples memory and reports sustained heap growth.
type Watcher struct {
	cfg    WatcherConfig
	sample func() Memory
	onLeak func(Memory)

	last    uint64
	growing int
}

// NewWatcher returns a Watcher calling onLeak when growth persists.
func NewWatcher(cfg WatcherConfig, onLeak func(Memory)) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Samples <= 0 {
		cfg.Samples = 5
	}
	if cfg.MinGrowth == 0 {
		cfg.MinGrowth = 8 << 20
	}
	return &Watcher{cfg: cfg, sample: Snapshot, onLeak: onLeak}
}

// Observe feeds one sample and reports whether it triggered.
func (w *Watcher) Observe(m Memory) bool {
	defer func() { w.last = m.HeapAlloc }()

	if w.last == 0 || m.HeapAlloc < w.last+w.cfg.MinGrowth {
		w.growing = 0
		return false
	}
	w.growing++
	if w.growing < w.cfg.Samples {
		return false
	}
	w.growing = 0
	if w.onLeak != nil {
		w.onLeak(m)
	}
	return true
}

// Run samples until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.Observe(w.sample())
		case <-ctx.Done():
			return
		}
	}
}
