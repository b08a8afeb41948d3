package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sessiond/internal/apperrors"
	"sessiond/internal/monitor"
)

// Registry capacity limits.
const (
	MaxRecords     = 10 // retained session records; oldest non-running evicted first
	MaxLossSamples = 50 // loss history per record, FIFO
)

// Store is the concurrency-safe session registry and admission gate.
//
// Every mutation happens under one mutex; readers get copies, never references
// into the guarded structures. At most one record is Running at any instant.
type Store struct {
	monitor monitor.Source
	logger  *slog.Logger

	mu      sync.Mutex
	records map[string]*Record
	order   []string // insertion order, drives eviction
	current string   // ID of the running session, "" when none
	last    string   // ID of the most recently finalized session, "" until one finishes
}

// NewStore creates an empty store. src may be nil (snapshots then carry zero metrics).
func NewStore(src monitor.Source) *Store {
	return &Store{
		monitor: src,
		logger:  slog.With("component", "session-store"),
		records: make(map[string]*Record),
	}
}

// Admit creates a Running record for the session, or rejects the attempt.
// Exactly one caller among concurrent attempts succeeds; the rest get an
// AlreadyRunning error and leave no trace in the registry.
func (s *Store) Admit(id, kind string, params map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != "" {
		return apperrors.AlreadyRunning(s.current)
	}
	if _, exists := s.records[id]; exists {
		return apperrors.Validation("id", "session id was already used")
	}

	s.records[id] = &Record{
		ID:        id,
		Kind:      kind,
		Params:    params,
		State:     StateRunning,
		CreatedAt: time.Now(),
	}
	s.order = append(s.order, id)
	s.evictLocked()
	s.current = id
	return nil
}

// evictLocked drops the oldest records above capacity, skipping the running one.
func (s *Store) evictLocked() {
	for len(s.order) > MaxRecords {
		idx := 0
		if s.current != "" && s.order[0] == s.current {
			idx = 1
		}
		evicted := s.order[idx]
		s.order = append(s.order[:idx], s.order[idx+1:]...)
		delete(s.records, evicted)
		s.logger.Debug("Evicted session record", "sessionId", evicted)
	}
}

// Finalize sets the terminal fields of a record and releases the running slot.
//
// Unknown IDs are a no-op. A second finalize on an already-terminal record is
// a no-op as well: the first writer's outcome wins. Either way, if the session
// still holds the current pointer it is cleared and becomes the last pointer.
func (s *Store) Finalize(id string, state State, message, errText string, result map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[id]; ok && rec.State == StateRunning {
		rec.State = state
		rec.Message = message
		rec.Error = errText
		if result != nil {
			rec.Result = result
		}
	}

	if s.current == id {
		s.current = ""
		s.last = id
	}
}

// UpdateFields merges worker-supplied auxiliary status into the record.
// Terminal records are frozen; late updates are dropped.
func (s *Store) UpdateFields(id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return apperrors.NotFound(id)
	}
	if rec.State != StateRunning {
		return nil
	}
	if rec.Extra == nil {
		rec.Extra = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		rec.Extra[k] = v
	}
	return nil
}

// AppendLoss appends one loss sample, evicting the oldest beyond capacity.
func (s *Store) AppendLoss(id string, sample LossSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return apperrors.NotFound(id)
	}
	if rec.State != StateRunning {
		return nil
	}
	rec.Losses = append(rec.Losses, sample)
	if len(rec.Losses) > MaxLossSamples {
		rec.Losses = rec.Losses[len(rec.Losses)-MaxLossSamples:]
	}
	return nil
}

// IsRunning reports whether a session currently holds the running slot.
func (s *Store) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != ""
}

// Get returns a copy of the named record.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// SnapshotAll returns a read-consistent copy of every retained record plus
// live utilization metrics. The metrics read happens outside the lock.
func (s *Store) SnapshotAll(ctx context.Context) Overview {
	s.mu.Lock()
	records := make(map[string]Record, len(s.records))
	for id, rec := range s.records {
		records[id] = rec.clone()
	}
	s.mu.Unlock()

	return Overview{
		Records: records,
		Metrics: s.liveMetrics(ctx),
	}
}

// SnapshotCurrent returns the running record if one exists, else the most
// recently finalized record, else reports false.
func (s *Store) SnapshotCurrent(ctx context.Context) (Current, bool) {
	s.mu.Lock()
	id := s.current
	if id == "" {
		id = s.last
	}
	rec, ok := s.records[id]
	var copied Record
	if ok {
		copied = rec.clone()
	}
	s.mu.Unlock()

	if !ok {
		return Current{}, false
	}
	return Current{
		Record:  copied,
		Metrics: s.liveMetrics(ctx),
	}, true
}

func (s *Store) liveMetrics(ctx context.Context) monitor.Metrics {
	if s.monitor == nil {
		return monitor.Metrics{}
	}
	return s.monitor.Metrics(ctx)
}
