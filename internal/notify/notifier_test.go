package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"sessiond/internal/testutil"
)

func TestNotifier_DeliversSignedEvent(t *testing.T) {
	t.Parallel()

	var gotSignature atomic.Value
	var gotType atomic.Value
	var received atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSignature.Store(r.Header.Get("X-Signature-256"))
		var ev Event
		if err := json.Unmarshal(body, &ev); err != nil {
			t.Errorf("Invalid event body: %v", err)
		}
		gotType.Store(ev.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := New(Config{URL: server.URL, SigningKey: "secret"}, nil)
	defer n.Close(context.Background())

	if err := n.Publish(NewEvent(EventSessionCompleted, "s1", "train", "done", "", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	testutil.MustWaitForCount(t, &received, 1, testutil.WithTimeout(5*time.Second))
	if sig, _ := gotSignature.Load().(string); len(sig) == 0 || sig[:7] != "sha256=" {
		t.Errorf("Expected sha256= signature header, got %q", sig)
	}
	if typ, _ := gotType.Load().(string); typ != EventSessionCompleted {
		t.Errorf("Expected event type %q, got %q", EventSessionCompleted, typ)
	}
	if n.Stats().Delivered != 1 {
		t.Errorf("Expected 1 delivered, got %+v", n.Stats())
	}
}

func TestNotifier_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := New(Config{URL: server.URL}, nil)
	defer n.Close(context.Background())

	if err := n.Publish(NewEvent(EventSessionFailed, "s1", "train", "", "boom", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	testutil.MustWaitFor(t, func() bool { return n.Stats().Delivered == 1 }, testutil.WithTimeout(5*time.Second))
	if calls.Load() < 2 {
		t.Errorf("Expected a retry after 500, got %d calls", calls.Load())
	}
}

func TestNotifier_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	n := New(Config{URL: server.URL}, nil)
	defer n.Close(context.Background())

	if err := n.Publish(NewEvent(EventSessionStopped, "s1", "train", "stopped", "", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	testutil.MustWaitFor(t, func() bool { return n.Stats().Failed == 1 }, testutil.WithTimeout(5*time.Second))
	if calls.Load() != 1 {
		t.Errorf("Expected exactly 1 call for a 4xx, got %d", calls.Load())
	}
}

func TestNotifier_DropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(block)

	n := New(Config{URL: server.URL, BufferSize: 1, Workers: 1}, nil)
	defer n.Close(context.Background())

	// First event occupies the worker, second fills the buffer; eventually
	// publishing must report a drop.
	var dropped bool
	for range 5 {
		if err := n.Publish(NewEvent(EventSessionCompleted, "s", "train", "", "", nil)); err == ErrBufferFull {
			dropped = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !dropped {
		t.Error("Expected ErrBufferFull once buffer and worker are saturated")
	}
}

func TestBreaker(t *testing.T) {
	t.Parallel()
	b := newBreaker(2, 50*time.Millisecond)

	if !b.allow() {
		t.Error("Fresh breaker must allow")
	}
	b.failure()
	b.failure()
	if b.allow() {
		t.Error("Breaker must block after threshold failures")
	}
	if !b.open() {
		t.Error("Expected breaker to report open")
	}

	time.Sleep(60 * time.Millisecond)
	if !b.allow() {
		t.Error("Breaker must allow a probe after cooldown")
	}
	b.success()
	if !b.allow() || b.open() {
		t.Error("Breaker must close after a successful probe")
	}
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()
	cfg := Config{}.withDefaults()

	if cfg.BufferSize != 1000 || cfg.Workers != 2 || cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
}
