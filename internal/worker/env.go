package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"sessiond/internal/config"
)

// Environment verifies that worker sessions can be launched: the interpreter
// must be resolvable and the script directory must exist. It backs the
// service's readiness probe.
type Environment struct {
	cfg *config.WorkerConfig
}

// NewEnvironment creates an environment check for cfg.
func NewEnvironment(cfg *config.WorkerConfig) *Environment {
	return &Environment{cfg: cfg}
}

// Ready reports whether workers can be spawned.
func (e *Environment) Ready(ctx context.Context) error {
	if _, err := exec.LookPath(e.cfg.Interpreter); err != nil {
		return fmt.Errorf("worker interpreter %q not found: %w", e.cfg.Interpreter, err)
	}

	info, err := os.Stat(e.cfg.ScriptDir)
	if err != nil {
		return fmt.Errorf("worker script directory %q: %w", e.cfg.ScriptDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("worker script path %q is not a directory", e.cfg.ScriptDir)
	}
	return nil
}
