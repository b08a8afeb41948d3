// Package runner executes sessions: it admits them through the registry,
// supervises the in-process task or external worker, feeds the progress
// stream into the registry, and guarantees every admitted session reaches a
// terminal state exactly once.
package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"sessiond/internal/apperrors"
	"sessiond/internal/notify"
	"sessiond/internal/observability"
	"sessiond/internal/proc"
	"sessiond/internal/progress"
	"sessiond/internal/session"
)

// Task is a long-running in-process unit of work. It reports progress through
// the reporter and returns once finished; a nil return without a final
// reporter message is treated as an abnormal exit. The context is cancelled
// when the session is stopped.
type Task func(ctx context.Context, rep *progress.Reporter) error

// stoppedMessage is recorded when a session is finalized by a stop request.
const stoppedMessage = "Task stopped by user"

// handle tracks how to interrupt a running session: a context cancel for
// in-process tasks, a process id for external workers.
type handle struct {
	cancel  context.CancelFunc
	pid     int
	stopped bool
}

// Runner drives session execution end to end.
type Runner struct {
	store      *session.Store
	supervisor *proc.Supervisor
	ingestor   *progress.Ingestor
	notifier   *notify.Notifier
	metrics    *observability.Metrics
	logger     *slog.Logger

	mu      sync.Mutex
	handles map[string]*handle
}

// New creates a runner. notifier and metrics may be nil.
func New(store *session.Store, supervisor *proc.Supervisor, notifier *notify.Notifier, metrics *observability.Metrics) *Runner {
	return &Runner{
		store:      store,
		supervisor: supervisor,
		ingestor:   progress.NewIngestor(store),
		notifier:   notifier,
		metrics:    metrics,
		logger:     slog.With("component", "runner"),
	}
}

// Run admits the session and starts task in a background goroutine. It
// returns once admission is decided; rejected sessions leave no trace.
func (r *Runner) Run(ctx context.Context, id, kind string, params map[string]any, task Task) error {
	if err := r.admit(ctx, id, kind, params); err != nil {
		return err
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	r.register(id, &handle{cancel: cancel})

	go func() {
		defer cancel()
		start := time.Now()
		logger := r.logger.With("sessionId", id, "kind", kind)
		logger.Info("Session started")

		rep := progress.NewReporter()
		taskErr := make(chan error, 1)
		go func() {
			taskErr <- task(taskCtx, rep)
			rep.Close()
		}()

		final := r.ingestor.Consume(id, rep.Messages())
		err := <-taskErr

		r.finish(id, kind, final, err, start)
	}()

	return nil
}

// RunProcess admits the session and launches an external worker process for
// it. Parameters are handed to the worker through a temporary JSON file
// appended to the argument list as "-c <path>". The worker's stdout is the
// progress stream; stderr is logged line by line.
func (r *Runner) RunProcess(ctx context.Context, id, kind string, params map[string]any, spec proc.Spec) error {
	if err := r.admit(ctx, id, kind, params); err != nil {
		return err
	}

	paramsPath, err := writeParamsFile(id, params)
	if err != nil {
		r.store.Finalize(id, session.StateFailed, "", err.Error(), nil)
		r.recordFinalized(id, kind, session.StateFailed, 0)
		return apperrors.Internal("runner.params", err)
	}
	spec.Args = append(spec.Args, "-c", paramsPath)

	process, err := r.supervisor.Spawn(spec)
	if err != nil {
		os.Remove(paramsPath)
		r.store.Finalize(id, session.StateFailed, "", err.Error(), nil)
		r.recordFinalized(id, kind, session.StateFailed, 0)
		return apperrors.Internal("runner.spawn", err)
	}

	r.register(id, &handle{pid: process.PID()})

	go func() {
		defer os.Remove(paramsPath)
		start := time.Now()
		logger := r.logger.With("sessionId", id, "kind", kind, "pid", process.PID())
		logger.Info("Worker session started")

		go logLines(process.Stderr, logger)
		final := r.ingestor.Consume(id, progress.Decode(process.Stdout, logger))
		err := process.Wait()

		r.finish(id, kind, final, err, start)
	}()

	return nil
}

// RequestStop stops the named session. The request must name the running
// session by both ID and kind; anything else finalizes whatever record the ID
// points at (so a stuck record cannot wedge the running slot) and returns an
// error describing the mismatch.
func (r *Runner) RequestStop(ctx context.Context, id, kind string) error {
	logger := r.logger.With("sessionId", id, "kind", kind)

	rec, ok := r.store.Get(id)
	if !ok {
		logger.Warn("Stop requested for unknown session")
		return apperrors.NotFound(id)
	}
	if rec.State != session.StateRunning || rec.Kind != kind {
		// Defensive finalize: release the slot if this record somehow still
		// holds it, interrupt any execution unit still attached, then report
		// why the stop did not match.
		r.store.Finalize(id, session.StateFailed, "", "stopped with mismatched request", nil)
		r.interrupt(id)
		reason := fmt.Sprintf("session %s is not running", id)
		if rec.Kind != kind {
			reason = fmt.Sprintf("session %s has kind %q, not %q", id, rec.Kind, kind)
		}
		logger.Warn("Stop request mismatch", "reason", reason)
		return apperrors.Mismatch(id, reason)
	}

	h := r.markStopped(id)
	if h == nil {
		// Admitted in the registry but no execution handle: nothing to
		// interrupt, finalize directly.
		r.store.Finalize(id, session.StateCompleted, stoppedMessage, "", nil)
		return nil
	}

	if h.pid != 0 {
		r.supervisor.TerminateTree(h.pid)
	}
	if h.cancel != nil {
		h.cancel()
	}

	// Finalize now rather than when the interrupted task unwinds; the
	// execution goroutine's own finalize becomes a no-op.
	r.store.Finalize(id, session.StateCompleted, stoppedMessage, "", nil)
	logger.Info("Session stopped")
	return nil
}

// IsRunning reports whether a session currently occupies the running slot.
func (r *Runner) IsRunning() bool {
	return r.store.IsRunning()
}

// SnapshotAll returns every retained record with live metrics.
func (r *Runner) SnapshotAll(ctx context.Context) session.Overview {
	return r.store.SnapshotAll(ctx)
}

// SnapshotCurrent returns the running (or last finalized) record with live metrics.
func (r *Runner) SnapshotCurrent(ctx context.Context) (session.Current, bool) {
	return r.store.SnapshotCurrent(ctx)
}

func (r *Runner) admit(ctx context.Context, id, kind string, params map[string]any) error {
	if err := r.store.Admit(id, kind, params); err != nil {
		if r.metrics != nil {
			r.metrics.RecordSessionRejected(ctx, kind)
		}
		return err
	}
	if r.metrics != nil {
		r.metrics.RecordSessionAdmitted(ctx, kind)
	}
	return nil
}

// finish guarantees the session is terminal, then emits the lifecycle event
// and metrics. The registry's first-writer-wins finalize makes this safe to
// race against the stop path and the worker's own final response.
func (r *Runner) finish(id, kind string, final bool, runErr error, start time.Time) {
	stopped := r.remove(id)

	switch {
	case stopped:
		// A stop interrupts the task before its final response; completion by
		// stop is the intended outcome, not a failure.
		r.store.Finalize(id, session.StateCompleted, stoppedMessage, "", nil)
	case final:
		// The worker's final response already finalized the record.
	case runErr != nil:
		r.store.Finalize(id, session.StateFailed, "", runErr.Error(), nil)
	default:
		r.store.Finalize(id, session.StateFailed, "", "worker exited without a final response", nil)
	}

	rec, _ := r.store.Get(id)
	r.recordFinalized(id, kind, rec.State, time.Since(start).Seconds())
	r.publish(rec, stopped)

	r.logger.Info("Session finished",
		"sessionId", id,
		"kind", kind,
		"status", rec.State,
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

// publish emits the lifecycle event for a finalized session. The record may
// be zero if it was evicted between finalize and here.
func (r *Runner) publish(rec session.Record, stopped bool) {
	if r.notifier == nil || rec.ID == "" {
		return
	}

	eventType := notify.EventSessionCompleted
	switch {
	case stopped:
		eventType = notify.EventSessionStopped
	case rec.State == session.StateFailed:
		eventType = notify.EventSessionFailed
	}

	if err := r.notifier.Publish(notify.NewEvent(eventType, rec.ID, rec.Kind, rec.Message, rec.Error, rec.Result)); err != nil {
		r.logger.Warn("Lifecycle event not queued", "sessionId", rec.ID, "error", err)
	}
}

func (r *Runner) recordFinalized(id, kind string, state session.State, seconds float64) {
	if r.metrics == nil {
		return
	}
	outcome := "completed"
	if state == session.StateFailed {
		outcome = "failed"
	}
	r.metrics.RecordSessionFinalized(context.Background(), kind, outcome, seconds)
}

func (r *Runner) register(id string, h *handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handles == nil {
		r.handles = make(map[string]*handle)
	}
	r.handles[id] = h
}

// interrupt signals whatever execution unit the session still has, leaving
// handle removal to the execution goroutine's cleanup.
func (r *Runner) interrupt(id string) {
	r.mu.Lock()
	h := r.handles[id]
	r.mu.Unlock()
	if h == nil {
		return
	}
	if h.pid != 0 {
		r.supervisor.TerminateTree(h.pid)
	}
	if h.cancel != nil {
		h.cancel()
	}
}

// markStopped flags the handle so the execution goroutine finalizes the
// session as stopped rather than failed when the interrupted task returns.
func (r *Runner) markStopped(id string) *handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	if !ok {
		return nil
	}
	h.stopped = true
	return h
}

// remove drops the handle and reports whether a stop was requested.
func (r *Runner) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	if !ok {
		return false
	}
	delete(r.handles, id)
	return h.stopped
}

// writeParamsFile persists the session parameters to a temporary JSON file
// for the worker to read.
func writeParamsFile(id string, params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	f, err := os.CreateTemp("", "session-"+id+"-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create params file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(params); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write params file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close params file: %w", err)
	}
	return f.Name(), nil
}

// logLines copies a worker's stderr into the service log.
func logLines(r io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			logger.Info("Worker stderr", "line", line)
		}
	}
}
