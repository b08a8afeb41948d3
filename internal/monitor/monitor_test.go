package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeAccel struct {
	stats AccelStats
	err   error
}

func (f *fakeAccel) Stats(ctx context.Context) (AccelStats, error) {
	return f.stats, f.err
}

func TestHost_Metrics_NoAccelerator(t *testing.T) {
	t.Parallel()
	h := NewHost(nil)

	m := h.Metrics(context.Background())

	if m.AccelPercent != "" || m.AccelMemoryUsage != "" {
		t.Errorf("Expected no accelerator fields, got %+v", m)
	}
	if m.CPUPercent != "" && !strings.HasSuffix(m.CPUPercent, "%") {
		t.Errorf("Expected percentage-formatted CPU value, got %q", m.CPUPercent)
	}
}

func TestHost_Metrics_WithAccelerator(t *testing.T) {
	t.Parallel()
	h := NewHost(&fakeAccel{stats: AccelStats{UtilizationPercent: 83, MemoryAllocatedPercent: 41.25}})

	m := h.Metrics(context.Background())

	if m.AccelPercent != "83%" {
		t.Errorf("Expected 83%%, got %q", m.AccelPercent)
	}
	if m.AccelMemoryUsage != "41.25%" {
		t.Errorf("Expected 41.25%%, got %q", m.AccelMemoryUsage)
	}
}

func TestHost_Metrics_AcceleratorFailure(t *testing.T) {
	t.Parallel()
	h := NewHost(&fakeAccel{err: errors.New("driver unavailable")})

	m := h.Metrics(context.Background())

	if m.AccelPercent != "" || m.AccelMemoryUsage != "" {
		t.Errorf("Expected accelerator fields omitted on failure, got %+v", m)
	}
}
