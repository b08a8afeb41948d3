// Package monitor reports live host and accelerator utilization.
// Readings are injected into session snapshots under the monitor_metrics key
// and are never persisted into session records.
package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shirou/gopsutil/v4/cpu"
)

// Metrics is the utilization payload attached to snapshots.
// Values are pre-formatted percentage strings to match the status wire format.
type Metrics struct {
	CPUPercent       string `json:"cpu_percentage"`
	AccelPercent     string `json:"gpu_percentage,omitempty"`
	AccelMemoryUsage string `json:"memory_allocated_percentage,omitempty"`
}

// Source produces a point-in-time utilization reading.
type Source interface {
	Metrics(ctx context.Context) Metrics
}

// AccelStats holds accelerator utilization numbers.
type AccelStats struct {
	UtilizationPercent     float64
	MemoryAllocatedPercent float64
}

// Accelerator reports utilization of an attached accelerator (GPU).
// Implementations are optional; a host without one passes nil to NewHost.
type Accelerator interface {
	Stats(ctx context.Context) (AccelStats, error)
}

// Host reads CPU utilization via gopsutil plus an optional accelerator.
type Host struct {
	accel  Accelerator
	logger *slog.Logger
}

// NewHost creates a host monitor. accel may be nil.
// The first cpu.Percent call primes the delta-based sampling so later
// readings reflect utilization since the previous snapshot.
func NewHost(accel Accelerator) *Host {
	_, _ = cpu.Percent(0, false)
	return &Host{
		accel:  accel,
		logger: slog.With("component", "monitor"),
	}
}

// Metrics returns the current utilization reading.
// Read failures degrade to missing fields rather than errors: status polling
// must not fail because a counter was unavailable.
func (h *Host) Metrics(ctx context.Context) Metrics {
	var m Metrics

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil || len(percents) == 0 {
		h.logger.Warn("CPU utilization read failed", "error", err)
	} else {
		m.CPUPercent = fmt.Sprintf("%.1f%%", percents[0])
	}

	if h.accel != nil {
		stats, err := h.accel.Stats(ctx)
		if err != nil {
			h.logger.Warn("Accelerator utilization read failed", "error", err)
			return m
		}
		m.AccelPercent = fmt.Sprintf("%.0f%%", stats.UtilizationPercent)
		m.AccelMemoryUsage = fmt.Sprintf("%.2f%%", stats.MemoryAllocatedPercent)
	}

	return m
}
