// Package proc spawns external worker processes and force-terminates their
// process trees.
package proc

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"
)

// Spec describes an external worker process to launch.
type Spec struct {
	Path string   // executable
	Args []string // arguments, excluding the executable itself
	Dir  string   // working directory ("" = inherit)
}

// Process is a running worker with its standard streams captured.
// Stdout carries the progress message stream; Stderr is free-form log output.
type Process struct {
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	cmd *exec.Cmd
}

// PID returns the worker's operating-system process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the worker exits and releases its resources.
func (p *Process) Wait() error {
	return p.cmd.Wait()
}

// Supervisor launches workers and performs best-effort tree termination.
type Supervisor struct {
	logger *slog.Logger
}

// NewSupervisor creates a supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{logger: slog.With("component", "proc")}
}

// Spawn starts the worker described by spec with stdout and stderr piped.
func (s *Supervisor) Spawn(spec Spec) (*Process, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to pipe stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to pipe stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker %s: %w", spec.Path, err)
	}

	s.logger.Info("Worker started", "path", spec.Path, "pid", cmd.Process.Pid)
	return &Process{Stdout: stdout, Stderr: stderr, cmd: cmd}, nil
}

// TerminateTree sends SIGTERM to every descendant of pid, deepest last,
// then to pid itself. Termination is best effort: a process that already
// exited is not an error, and individual signal failures are logged and
// swallowed.
func (s *Supervisor) TerminateTree(pid int) {
	parent, err := process.NewProcess(int32(pid))
	if err != nil {
		// Already gone.
		return
	}

	for _, child := range descendants(parent) {
		if err := child.SendSignal(syscall.SIGTERM); err != nil {
			s.logger.Warn("Failed to signal worker child", "pid", child.Pid, "error", err)
		}
	}
	if err := parent.SendSignal(syscall.SIGTERM); err != nil {
		s.logger.Warn("Failed to signal worker", "pid", pid, "error", err)
	}
}

// descendants walks the process tree breadth-first and returns every live
// descendant of p.
func descendants(p *process.Process) []*process.Process {
	var all []*process.Process
	queue := []*process.Process{p}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		children, err := next.Children()
		if err != nil {
			continue
		}
		all = append(all, children...)
		queue = append(queue, children...)
	}
	return all
}
