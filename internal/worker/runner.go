package worker

import (
	"context"
	"math"
	"time"

	"sessiond/internal/progress"
	"sessiond/internal/session"
)

// Runner simulates a training run, emitting one loss sample per step and a
// final response when done. Cancellation stops the run between steps without
// a final response; the service records the stop outcome itself.
type Runner struct {
	params  *Params
	emitter *progress.Emitter
}

// NewRunner creates a worker runner emitting through em.
func NewRunner(params *Params, em *progress.Emitter) *Runner {
	return &Runner{params: params, emitter: em}
}

// Run executes the simulated session until completion or cancellation.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.params.Extra) > 0 {
		if err := r.emitter.Update(r.params.Extra); err != nil {
			return err
		}
	}
	if err := r.emitter.Update(map[string]any{"stage": "running", "total_steps": r.params.Steps}); err != nil {
		return err
	}

	var last float64
	for step := 1; step <= r.params.Steps; step++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		last = lossAt(step)
		if err := r.emitter.Loss(session.LossSample{Step: step, Value: last}); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.params.Interval):
		}
	}

	return r.emitter.Complete("training finished", map[string]any{
		"final_loss": last,
		"steps":      r.params.Steps,
	})
}

// lossAt produces a plausible decaying loss curve.
func lossAt(step int) float64 {
	return math.Round(math.Exp(-float64(step)/10)*1000) / 1000
}
