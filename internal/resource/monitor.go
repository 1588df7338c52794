// Package resource samples host memory and disk usage and classifies them into
// pressure levels used to gate new generation jobs.
package resource

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// Level is a pressure classification.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelElevated Level = "elevated"
	LevelCritical Level = "critical"
)

// Thresholds configure when pressure becomes elevated or critical. Memory is measured as
// used percent, disk as free bytes remaining.
type Thresholds struct {
	MemoryElevatedPercent float64
	MemoryCriticalPercent float64
	DiskElevatedFreeBytes uint64
	DiskCriticalFreeBytes uint64
}

// DefaultThresholds returns 75%/90% memory and 5 GiB/1 GiB free disk.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MemoryElevatedPercent: 75,
		MemoryCriticalPercent: 90,
		DiskElevatedFreeBytes: 5 << 30,
		DiskCriticalFreeBytes: 1 << 30,
	}
}

// MemoryLevel classifies a used-memory percentage.
func (t Thresholds) MemoryLevel(percent float64) Level {
	switch {
	case percent >= t.MemoryCriticalPercent:
		return LevelCritical
	case percent >= t.MemoryElevatedPercent:
		return LevelElevated
	default:
		return LevelNormal
	}
}

// DiskLevel classifies free disk space. An unknown total (0) is normal.
func (t Thresholds) DiskLevel(total, free uint64) Level {
	if total == 0 {
		return LevelNormal
	}
	switch {
	case free <= t.DiskCriticalFreeBytes:
		return LevelCritical
	case free <= t.DiskElevatedFreeBytes:
		return LevelElevated
	default:
		return LevelNormal
	}
}

// Snapshot is a classified resource reading.
type Snapshot struct {
	MemoryTotal    uint64    `json:"memoryTotal"`
	MemoryUsed     uint64    `json:"memoryUsed"`
	MemoryPercent  float64   `json:"memoryPercent"`
	DiskPath       string    `json:"diskPath"`
	DiskTotal      uint64    `json:"diskTotal"`
	DiskFree       uint64    `json:"diskFree"`
	MemoryPressure Level     `json:"memoryPressure"`
	DiskPressure   Level     `json:"diskPressure"`
	TakenAt        time.Time `json:"takenAt"`
}

// Critical reports whether either resource is under critical pressure.
func (s Snapshot) Critical() bool {
	return s.MemoryPressure == LevelCritical || s.DiskPressure == LevelCritical
}

// CleanupHook frees resources before a job starts, e.g. removes stale temp files.
type CleanupHook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   CleanupHook
}

// Monitor samples resources on demand and caches the result for a short TTL.
type Monitor struct {
	sampler    Sampler
	diskPath   string
	thresholds Thresholds
	ttl        time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	last    Snapshot
	hasLast bool
	hooks   []namedHook
}

// NewMonitor creates a Monitor that measures the filesystem holding diskPath.
func NewMonitor(sampler Sampler, diskPath string, thresholds Thresholds, ttl time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		sampler:    sampler,
		diskPath:   diskPath,
		thresholds: thresholds,
		ttl:        ttl,
		logger:     logger,
		now:        time.Now,
	}
}

// Snapshot returns the cached snapshot if it is younger than the TTL, otherwise samples anew.
func (m *Monitor) Snapshot(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.hasLast && m.now().Sub(m.last.TakenAt) < m.ttl {
		snap := m.last
		m.mu.Unlock()
		return snap, nil
	}
	m.mu.Unlock()
	return m.Refresh(ctx)
}

// Refresh samples resources now and updates the cache.
func (m *Monitor) Refresh(ctx context.Context) (Snapshot, error) {
	sample, err := m.sampler.Sample(ctx, m.diskPath)
	if err != nil {
		return Snapshot{}, fmt.Errorf("sample resources: %w", err)
	}

	snap := Snapshot{
		MemoryTotal: sample.MemoryTotal,
		MemoryUsed:  sample.MemoryUsed,
		DiskPath:    m.diskPath,
		DiskTotal:   sample.DiskTotal,
		DiskFree:    sample.DiskFree,
		TakenAt:     m.now(),
	}
	if sample.MemoryTotal > 0 {
		snap.MemoryPercent = float64(sample.MemoryUsed) / float64(sample.MemoryTotal) * 100
	}
	snap.MemoryPressure = m.thresholds.MemoryLevel(snap.MemoryPercent)
	snap.DiskPressure = m.thresholds.DiskLevel(sample.DiskTotal, sample.DiskFree)

	m.mu.Lock()
	prev := m.last
	hadLast := m.hasLast
	m.last = snap
	m.hasLast = true
	m.mu.Unlock()

	if hadLast && (prev.MemoryPressure != snap.MemoryPressure || prev.DiskPressure != snap.DiskPressure) {
		m.logger.Info("resource pressure changed",
			"memory_pressure", snap.MemoryPressure,
			"disk_pressure", snap.DiskPressure,
			"memory_percent", snap.MemoryPercent,
			"disk_free_bytes", snap.DiskFree,
		)
	}
	return snap, nil
}

// Last returns the most recent snapshot without sampling.
func (m *Monitor) Last() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.hasLast
}

// MemoryPressure returns the memory level of the last snapshot, normal if none was taken.
func (m *Monitor) MemoryPressure() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasLast {
		return LevelNormal
	}
	return m.last.MemoryPressure
}

// DiskPressure returns the disk level of the last snapshot, normal if none was taken.
func (m *Monitor) DiskPressure() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasLast {
		return LevelNormal
	}
	return m.last.DiskPressure
}

// AddCleanupHook registers a hook run by PreflightOptimize.
func (m *Monitor) AddCleanupHook(name string, fn CleanupHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, fn: fn})
}

// PreflightOptimize frees what it can before a job starts: it forces a GC, returns
// freed heap to the OS and runs every cleanup hook. Hook failures are logged only.
func (m *Monitor) PreflightOptimize(ctx context.Context) {
	runtime.GC()
	debug.FreeOSMemory()

	m.mu.Lock()
	hooks := append([]namedHook(nil), m.hooks...)
	m.mu.Unlock()

	for _, h := range hooks {
		if ctx.Err() != nil {
			return
		}
		if err := h.fn(ctx); err != nil {
			m.logger.Warn("preflight cleanup failed", "hook", h.name, "error", err)
		}
	}

	if _, err := m.Refresh(ctx); err != nil {
		m.logger.Warn("preflight resource sample failed", "error", err)
	}
}
