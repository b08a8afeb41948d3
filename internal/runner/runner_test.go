package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"sessiond/internal/apperrors"
	"sessiond/internal/proc"
	"sessiond/internal/progress"
	"sessiond/internal/session"
	"sessiond/internal/testutil"
)

func newTestRunner() (*Runner, *session.Store) {
	store := session.NewStore(nil)
	return New(store, proc.NewSupervisor(), nil, nil), store
}

func waitForState(t *testing.T, store *session.Store, id string, want session.State) session.Record {
	t.Helper()
	testutil.MustWaitFor(t, func() bool {
		rec, ok := store.Get(id)
		return ok && rec.State == want
	}, testutil.WithTimeout(5*time.Second))
	rec, _ := store.Get(id)
	return rec
}

func TestRunner_Run_Completes(t *testing.T) {
	t.Parallel()
	r, store := newTestRunner()

	err := r.Run(context.Background(), "s1", "train", map[string]any{"epochs": 3}, func(ctx context.Context, rep *progress.Reporter) error {
		rep.Loss(session.LossSample{Step: 1, Value: 0.9})
		rep.Update(map[string]any{"stage": "fitting"})
		rep.Complete("training finished", map[string]any{"model": "m1"})
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rec := waitForState(t, store, "s1", session.StateCompleted)
	if rec.Message != "training finished" {
		t.Errorf("Expected final message, got %q", rec.Message)
	}
	if rec.Result["model"] != "m1" {
		t.Errorf("Expected result data, got %v", rec.Result)
	}
	if len(rec.Losses) != 1 || rec.Losses[0].Value != 0.9 {
		t.Errorf("Expected one loss sample, got %v", rec.Losses)
	}
	if rec.Extra["stage"] != "fitting" {
		t.Errorf("Expected stage field, got %v", rec.Extra)
	}

	testutil.MustWaitFor(t, func() bool { return !r.IsRunning() })
}

func TestRunner_Run_TaskErrorFails(t *testing.T) {
	t.Parallel()
	r, store := newTestRunner()

	err := r.Run(context.Background(), "s1", "train", nil, func(ctx context.Context, rep *progress.Reporter) error {
		return errors.New("weights diverged")
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rec := waitForState(t, store, "s1", session.StateFailed)
	if rec.Error != "weights diverged" {
		t.Errorf("Expected task error recorded, got %q", rec.Error)
	}
}

func TestRunner_Run_SilentExitFails(t *testing.T) {
	t.Parallel()
	r, store := newTestRunner()

	err := r.Run(context.Background(), "s1", "train", nil, func(ctx context.Context, rep *progress.Reporter) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rec := waitForState(t, store, "s1", session.StateFailed)
	if rec.Error == "" {
		t.Error("Expected an error explaining the silent exit")
	}
}

func TestRunner_Run_WorkerOutcomeWinsOverTaskError(t *testing.T) {
	t.Parallel()
	r, store := newTestRunner()

	// The final response arrives before the task returns an error; the
	// response outcome must stand.
	err := r.Run(context.Background(), "s1", "train", nil, func(ctx context.Context, rep *progress.Reporter) error {
		rep.Complete("done", nil)
		return errors.New("late cleanup error")
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rec := waitForState(t, store, "s1", session.StateCompleted)
	if rec.Error != "" {
		t.Errorf("Expected clean completion, got error %q", rec.Error)
	}
}

func TestRunner_Run_SingleFlight(t *testing.T) {
	t.Parallel()
	r, store := newTestRunner()

	release := make(chan struct{})
	err := r.Run(context.Background(), "s1", "train", nil, func(ctx context.Context, rep *progress.Reporter) error {
		<-release
		rep.Complete("done", nil)
		return nil
	})
	if err != nil {
		t.Fatalf("First Run failed: %v", err)
	}

	err = r.Run(context.Background(), "s2", "train", nil, func(ctx context.Context, rep *progress.Reporter) error {
		t.Error("Second task must not run")
		return nil
	})
	if !errors.Is(err, apperrors.ErrAlreadyRunning) {
		t.Fatalf("Expected AlreadyRunning, got %v", err)
	}
	if _, ok := store.Get("s2"); ok {
		t.Error("Rejected session must leave no record")
	}

	close(release)
	waitForState(t, store, "s1", session.StateCompleted)
}

func TestRunner_RequestStop_CancelsTask(t *testing.T) {
	t.Parallel()
	r, store := newTestRunner()

	started := make(chan struct{})
	err := r.Run(context.Background(), "s1", "train", nil, func(ctx context.Context, rep *progress.Reporter) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	<-started

	if err := r.RequestStop(context.Background(), "s1", "train"); err != nil {
		t.Fatalf("RequestStop failed: %v", err)
	}

	rec := waitForState(t, store, "s1", session.StateCompleted)
	if rec.Message != "Task stopped by user" {
		t.Errorf("Expected stop message, got %q", rec.Message)
	}
	if rec.Error != "" {
		t.Errorf("Stopped session must not carry an error, got %q", rec.Error)
	}
}

func TestRunner_RequestStop_UnknownSession(t *testing.T) {
	t.Parallel()
	r, _ := newTestRunner()

	err := r.RequestStop(context.Background(), "ghost", "train")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("Expected NotFound, got %v", err)
	}
}

func TestRunner_RequestStop_KindMismatch(t *testing.T) {
	t.Parallel()
	r, store := newTestRunner()

	started := make(chan struct{})
	stop := make(chan struct{})
	err := r.Run(context.Background(), "s1", "train", nil, func(ctx context.Context, rep *progress.Reporter) error {
		close(started)
		select {
		case <-ctx.Done():
		case <-stop:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	<-started
	defer close(stop)

	err = r.RequestStop(context.Background(), "s1", "evaluate")
	if !errors.Is(err, apperrors.ErrMismatch) {
		t.Fatalf("Expected Mismatch, got %v", err)
	}

	// The mismatched stop finalizes defensively, releasing the slot.
	rec := waitForState(t, store, "s1", session.StateFailed)
	if rec.Error == "" {
		t.Error("Expected defensive finalize to record an error")
	}
	testutil.MustWaitFor(t, func() bool { return !r.IsRunning() })
}

func TestRunner_RequestStop_AlreadyFinalized(t *testing.T) {
	t.Parallel()
	r, store := newTestRunner()

	err := r.Run(context.Background(), "s1", "train", nil, func(ctx context.Context, rep *progress.Reporter) error {
		rep.Complete("done", nil)
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	waitForState(t, store, "s1", session.StateCompleted)

	err = r.RequestStop(context.Background(), "s1", "train")
	if !errors.Is(err, apperrors.ErrMismatch) {
		t.Fatalf("Expected Mismatch for a finished session, got %v", err)
	}

	// First writer wins: the completed outcome is untouched.
	rec, _ := store.Get("s1")
	if rec.State != session.StateCompleted || rec.Message != "done" {
		t.Errorf("Finalized record must stay frozen, got %+v", rec)
	}
}

func TestRunner_RunProcess_Completes(t *testing.T) {
	t.Parallel()
	r, store := newTestRunner()

	script := `cat "$2" >/dev/null
echo '{"type":"loss","loss":{"step":1,"value":0.5}}'
echo 'plain worker output'
echo '{"type":"response","response":{"status":"success","message":"done"}}'`
	err := r.RunProcess(context.Background(), "p1", "train", map[string]any{"epochs": 1}, proc.Spec{
		Path: "/bin/sh",
		Args: []string{"-c", script, "worker"},
	})
	if err != nil {
		t.Fatalf("RunProcess failed: %v", err)
	}

	rec := waitForState(t, store, "p1", session.StateCompleted)
	if rec.Message != "done" {
		t.Errorf("Expected final message, got %q", rec.Message)
	}
	if len(rec.Losses) != 1 {
		t.Errorf("Expected one loss sample, got %v", rec.Losses)
	}
	testutil.MustWaitFor(t, func() bool { return !r.IsRunning() })
}

func TestRunner_RunProcess_AbnormalExitFails(t *testing.T) {
	t.Parallel()
	r, store := newTestRunner()

	err := r.RunProcess(context.Background(), "p1", "train", nil, proc.Spec{
		Path: "/bin/sh",
		Args: []string{"-c", "exit 3", "worker"},
	})
	if err != nil {
		t.Fatalf("RunProcess failed: %v", err)
	}

	rec := waitForState(t, store, "p1", session.StateFailed)
	if rec.Error == "" {
		t.Error("Expected exit error recorded")
	}
}

func TestRunner_RunProcess_SpawnFailure(t *testing.T) {
	t.Parallel()
	r, store := newTestRunner()

	err := r.RunProcess(context.Background(), "p1", "train", nil, proc.Spec{
		Path: "/nonexistent/worker-binary",
	})
	if !errors.Is(err, apperrors.ErrInternal) {
		t.Fatalf("Expected Internal error, got %v", err)
	}

	// The admitted record is finalized and the slot released.
	rec, ok := store.Get("p1")
	if !ok || rec.State != session.StateFailed {
		t.Errorf("Expected failed record after spawn failure, got %+v (ok=%v)", rec, ok)
	}
	if r.IsRunning() {
		t.Error("Running slot must be released after spawn failure")
	}
}

func TestRunner_RequestStop_TerminatesProcess(t *testing.T) {
	t.Parallel()
	r, store := newTestRunner()

	err := r.RunProcess(context.Background(), "p1", "train", nil, proc.Spec{
		Path: "/bin/sh",
		Args: []string{"-c", "sleep 30", "worker"},
	})
	if err != nil {
		t.Fatalf("RunProcess failed: %v", err)
	}

	if err := r.RequestStop(context.Background(), "p1", "train"); err != nil {
		t.Fatalf("RequestStop failed: %v", err)
	}

	rec := waitForState(t, store, "p1", session.StateCompleted)
	if rec.Message != "Task stopped by user" {
		t.Errorf("Expected stop message, got %q", rec.Message)
	}
}
