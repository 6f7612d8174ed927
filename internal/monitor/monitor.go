// Package monitor logs process resource usage.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"
)

// Saturation levels derived from CPU utilization.
const (
	SaturationNormal    = "normal"
	SaturationHigh      = "high"
	SaturationSaturated = "saturated"
)

// Snapshot is one reading of process resource usage.
type Snapshot struct {
	CPUPercent  float64
	Utilization float64
	Cores       int
	Goroutines  int
	RSS         uint64
	HeapAlloc   uint64
	HeapSys     uint64
	StackInuse  uint64
	NumGC       uint32
	GCCPU       float64
	Saturation  string
}

// Monitor reads resource usage of the current process.
type Monitor struct {
	logger *slog.Logger
	proc   *process.Process
}

// New creates a monitor for the current process.
func New(logger *slog.Logger) (*Monitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to get process handle: %w", err)
	}

	return &Monitor{
		logger: logger,
		proc:   proc,
	}, nil
}

// Collect reads current resource usage.
func (m *Monitor) Collect(ctx context.Context) Snapshot {
	// ---- CPU ----
	processCPU, err := m.proc.PercentWithContext(ctx, 0)
	if err != nil {
		m.logger.Warn("failed to get CPU percent", "error", err)
		processCPU = 0
	}

	cores := runtime.GOMAXPROCS(-1)

	var rss uint64
	if mem, err := m.proc.MemoryInfoWithContext(ctx); err == nil {
		rss = mem.RSS
	} else {
		m.logger.Warn("failed to get memory info", "error", err)
	}

	// ---- Runtime / Memory ----
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := Snapshot{
		CPUPercent: processCPU,
		Cores:      cores,
		Goroutines: runtime.NumGoroutine(),
		RSS:        rss,
		HeapAlloc:  ms.HeapAlloc,
		HeapSys:    ms.HeapSys,
		StackInuse: ms.StackInuse,
		NumGC:      ms.NumGC,
		GCCPU:      ms.GCCPUFraction,
	}
	if maxCPU := float64(cores * 100); maxCPU > 0 {
		s.Utilization = processCPU / maxCPU
	}
	s.Saturation = saturation(s.Utilization)
	return s
}

// Log collects a snapshot and writes it as one compact line.
func (m *Monitor) Log(ctx context.Context) Snapshot {
	s := m.Collect(ctx)

	mb := func(b uint64) float64 {
		return float64(b) / (1024 * 1024)
	}
	kb := func(b uint64) float64 {
		return float64(b) / 1024
	}

	m.logger.LogAttrs(
		ctx,
		slog.LevelInfo,
		"resource",
		slog.String("cpu", fmt.Sprintf("%.4f%%", s.CPUPercent)),
		slog.String("util", fmt.Sprintf("%.4f%%", s.Utilization*100)),
		slog.Int("cores", s.Cores),
		slog.Int("gor", s.Goroutines),
		slog.String(
			"mem",
			fmt.Sprintf(
				"rss:%.2fMB alloc:%.2fMB sys:%.2fMB stack:%.0fKB",
				mb(s.RSS),
				mb(s.HeapAlloc),
				mb(s.HeapSys),
				kb(s.StackInuse),
			),
		),
		slog.Uint64("gc", uint64(s.NumGC)),
		slog.String("gc_cpu", fmt.Sprintf("%.3f", s.GCCPU)),
		slog.String("sat", s.Saturation),
	)

	if s.Saturation == SaturationSaturated {
		m.logger.Warn(
			"cpu saturation detected",
			"cpu", s.CPUPercent,
			"util_pct", s.Utilization*100,
			"action", "lower settings.concurrency or increase GOMAXPROCS",
		)
	}

	return s
}

func saturation(utilization float64) string {
	switch {
	case utilization > 0.95:
		return SaturationSaturated
	case utilization > 0.80:
		return SaturationHigh
	default:
		return SaturationNormal
	}
}
