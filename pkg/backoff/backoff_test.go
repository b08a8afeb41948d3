package backoff

import (
	"testing"
	"time"
)

func TestPolicy_Delay_Growth(t *testing.T) {
	t.Parallel()
	p := Policy{Initial: 100 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.0001}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 5; attempt++ {
		d := p.Delay(attempt)
		if d <= prev {
			t.Errorf("Attempt %d: expected growth, got %v after %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestPolicy_Delay_Ceiling(t *testing.T) {
	t.Parallel()
	p := Policy{Initial: 100 * time.Millisecond, Max: time.Second, Jitter: 0.0001}

	d := p.Delay(30)
	// Ceiling plus at most the jitter fraction.
	if d > time.Second+time.Second/100 {
		t.Errorf("Expected delay capped near 1s, got %v", d)
	}
}

func TestPolicy_Delay_Defaults(t *testing.T) {
	t.Parallel()
	var p Policy

	d := p.Delay(1)
	if d < Default.Initial {
		t.Errorf("Expected at least the default initial delay, got %v", d)
	}
	if d > 2*Default.Initial {
		t.Errorf("Expected first delay near the default initial, got %v", d)
	}

	if got := p.Delay(0); got < Default.Initial {
		t.Errorf("Expected attempt 0 to clamp to attempt 1, got %v", got)
	}
}
