// Package backoff provides exponential retry delays with jitter.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Policy controls delay growth. Zero values use defaults.
type Policy struct {
	Initial time.Duration // first delay (default: 100ms)
	Max     time.Duration // delay ceiling (default: 5s)
	Jitter  float64       // random fraction added to each delay, 0..1 (default: 0.2)
}

// Default is the policy used by package-level Delay.
var Default = Policy{
	Initial: 100 * time.Millisecond,
	Max:     5 * time.Second,
	Jitter:  0.2,
}

// Delay returns the delay before retry attempt n using the default policy.
func Delay(attempt int) time.Duration {
	return Default.Delay(attempt)
}

// Delay returns the delay before retry attempt n. Attempt 1 waits Initial,
// attempt 2 waits twice that, and so on up to Max, plus up to Jitter extra
// to spread out synchronized retries.
func (p Policy) Delay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = Default.Initial
	}
	ceiling := p.Max
	if ceiling <= 0 {
		ceiling = Default.Max
	}
	jitter := p.Jitter
	if jitter <= 0 {
		jitter = Default.Jitter
	}

	if attempt < 1 {
		attempt = 1
	}
	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if d > float64(ceiling) {
		d = float64(ceiling)
	}
	d += d * jitter * rand.Float64()
	return time.Duration(d)
}
