package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"sessiond/pkg/backoff"
)

// ErrBufferFull is returned when the notifier's buffer is full and the event is dropped.
var ErrBufferFull = errors.New("notifier buffer full, event dropped")

// MetricsRecorder is an optional interface for recording delivery metrics.
type MetricsRecorder interface {
	RecordNotifyDelivered(ctx context.Context, durationSeconds float64)
	RecordNotifyFailed(ctx context.Context)
	RecordNotifyDropped(ctx context.Context)
}

// Stats holds notifier statistics.
type Stats struct {
	QueueDepth  int   // current queue size
	Queued      int64 // total events queued
	Delivered   int64 // successful deliveries
	Failed      int64 // failed after retries
	Dropped     int64 // dropped due to full buffer
	BreakerOpen bool  // circuit currently open
}

// Notifier delivers session lifecycle events asynchronously. Events are
// queued in a bounded channel and delivered by a small worker pool; when the
// buffer is full events are dropped (logged + metric incremented).
type Notifier struct {
	queue   chan *Event
	client  *http.Client
	config  Config
	brk     *breaker
	logger  *slog.Logger
	metrics MetricsRecorder

	queued    atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// New creates a notifier and starts its delivery workers.
// metrics may be nil.
func New(cfg Config, metrics MetricsRecorder) *Notifier {
	cfg = cfg.withDefaults()

	n := &Notifier{
		queue: make(chan *Event, cfg.BufferSize),
		client: &http.Client{
			Timeout: cfg.HTTPTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config:   cfg,
		brk:      newBreaker(defaultBreakerThreshold, defaultBreakerCooldown),
		logger:   slog.With("component", "notify"),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}

	n.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go n.worker()
	}

	n.logger.Info("Notifier started", "workers", cfg.Workers, "buffer", cfg.BufferSize, "destination", cfg.URL)
	return n
}

// Publish queues an event for async delivery. Non-blocking.
func (n *Notifier) Publish(event *Event) error {
	if n.closed.Load() {
		return fmt.Errorf("notifier is closed")
	}

	select {
	case n.queue <- event:
		n.queued.Add(1)
		return nil
	default:
		n.dropped.Add(1)
		if n.metrics != nil {
			n.metrics.RecordNotifyDropped(context.Background())
		}
		n.logger.Warn("Event dropped, buffer full", "type", event.Type, "sessionId", event.SessionID)
		return ErrBufferFull
	}
}

// Stats returns current notifier statistics.
func (n *Notifier) Stats() Stats {
	return Stats{
		QueueDepth:  len(n.queue),
		Queued:      n.queued.Load(),
		Delivered:   n.delivered.Load(),
		Failed:      n.failed.Load(),
		Dropped:     n.dropped.Load(),
		BreakerOpen: n.brk.open(),
	}
}

// Close gracefully shuts down, attempting to deliver queued events.
// The context deadline controls how long to wait for drain.
func (n *Notifier) Close(ctx context.Context) error {
	if n.closed.Swap(true) {
		return nil // already closed
	}

	n.logger.Info("Notifier shutting down", "queued", len(n.queue))
	close(n.shutdown)

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.logger.Info("Notifier shutdown complete",
			"delivered", n.delivered.Load(),
			"failed", n.failed.Load(),
			"dropped", n.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		n.logger.Warn("Notifier shutdown timed out", "remaining", len(n.queue))
		return ctx.Err()
	}
}

// worker processes events from the queue.
func (n *Notifier) worker() {
	defer n.wg.Done()

	for {
		select {
		case <-n.shutdown:
			// Drain remaining events before exiting.
			for {
				select {
				case event := <-n.queue:
					n.deliver(event)
				default:
					return
				}
			}
		case event := <-n.queue:
			n.deliver(event)
		}
	}
}

// deliver attempts to deliver an event with retry and circuit breaker.
func (n *Notifier) deliver(event *Event) {
	if !n.brk.allow() {
		n.failed.Add(1)
		if n.metrics != nil {
			n.metrics.RecordNotifyFailed(context.Background())
		}
		n.logger.Warn("Delivery skipped, circuit open", "type", event.Type, "sessionId", event.SessionID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := n.sendWithRetry(ctx, event); err != nil {
		n.brk.failure()
		n.failed.Add(1)
		if n.metrics != nil {
			n.metrics.RecordNotifyFailed(ctx)
		}
		n.logger.Warn("Delivery failed", "type", event.Type, "sessionId", event.SessionID, "error", err)
		return
	}

	n.brk.success()
	n.delivered.Add(1)
	if n.metrics != nil {
		n.metrics.RecordNotifyDelivered(ctx, time.Since(start).Seconds())
	}
}

func (n *Notifier) sendWithRetry(ctx context.Context, event *Event) error {
	var lastErr error
	for attempt := 0; attempt <= defaultMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff.Delay(attempt)):
			}
		}

		lastErr = n.send(ctx, event)
		if lastErr == nil {
			return nil
		}
		var httpErr *httpError
		if errors.As(lastErr, &httpErr) && httpErr.clientError() {
			return lastErr
		}
	}
	return lastErr
}

// send delivers one event via HTTP POST, signing the body when configured.
func (n *Notifier) send(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", event.Type)
	req.Header.Set("X-Event-Id", event.ID)
	if n.config.SigningKey != "" {
		req.Header.Set("X-Signature-256", Sign(body, n.config.SigningKey))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &httpError{statusCode: resp.StatusCode}
}

// Sign computes the HMAC-SHA256 signature header value for a payload.
func Sign(payload []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

type httpError struct {
	statusCode int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d", e.statusCode)
}

// clientError reports a 4xx response, which should not be retried.
func (e *httpError) clientError() bool {
	return e.statusCode >= 400 && e.statusCode < 500
}
