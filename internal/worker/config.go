// Package worker implements the reference worker process: it reads its
// parameters from the file the service hands it, simulates a stepped
// training run, and streams progress messages on stdout. It also provides
// the readiness check the service runs against its worker environment.
package worker

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Params are the session parameters a worker receives through its -c file.
// Unknown keys are preserved and echoed back as auxiliary state.
type Params struct {
	Steps    int            `json:"steps"`
	Interval time.Duration  `json:"-"`
	Extra    map[string]any `json:"-"`
}

// Defaults applied when the params file omits a value.
const (
	defaultSteps    = 10
	defaultInterval = 100 * time.Millisecond
)

// LoadParams reads and decodes the worker's parameter file.
func LoadParams(path string) (*Params, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read params file: %w", err)
	}

	var all map[string]any
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("failed to parse params file: %w", err)
	}

	p := &Params{
		Steps:    defaultSteps,
		Interval: defaultInterval,
		Extra:    make(map[string]any),
	}
	for k, v := range all {
		switch k {
		case "steps":
			if f, ok := v.(float64); ok && f > 0 {
				p.Steps = int(f)
			}
		case "interval_ms":
			if f, ok := v.(float64); ok && f > 0 {
				p.Interval = time.Duration(f) * time.Millisecond
			}
		default:
			p.Extra[k] = v
		}
	}
	return p, nil
}
