// Package session implements the single-flight session registry: a bounded,
// mutex-guarded store of session records with an admission gate, history
// eviction, and copy-out snapshots augmented with live host metrics.
package session

import (
	"encoding/json"
	"maps"
	"slices"
	"time"

	"sessiond/internal/monitor"
)

// State is the lifecycle state of a session record.
// A record is monotonic: once Completed or Failed it never transitions again.
type State string

const (
	StateRunning   State = "Running"
	StateCompleted State = "Completed"
	StateFailed    State = "Failed"
)

// createdAtLayout matches the status wire format of the original service.
const createdAtLayout = "2006-01-02 15:04:05"

// LossSample is one training-loss reading reported by a worker.
type LossSample struct {
	Step  int     `json:"step,omitempty"`
	Value float64 `json:"value"`
}

// Record is one session attempt. ID, Kind, Params, and CreatedAt are immutable
// after admission; Message, Error, and Result are set once at finalization;
// Losses and Extra are mutated only while the record is Running.
type Record struct {
	ID        string
	Kind      string
	Params    map[string]any
	State     State
	CreatedAt time.Time
	Message   string
	Error     string
	Result    map[string]any
	Losses    []LossSample
	Extra     map[string]any
}

// reservedKeys are record fields that worker-supplied extra fields may not shadow.
var reservedKeys = map[string]struct{}{
	"uuid":            {},
	"task_name":       {},
	"request":         {},
	"status":          {},
	"created_at":      {},
	"message":         {},
	"error":           {},
	"data":            {},
	"losses":          {},
	"monitor_metrics": {},
}

// marshalMap flattens the record into its wire shape: fixed fields plus
// worker-supplied extra fields at the top level.
func (r Record) marshalMap() map[string]any {
	m := map[string]any{
		"uuid":       r.ID,
		"task_name":  r.Kind,
		"status":     string(r.State),
		"created_at": r.CreatedAt.Format(createdAtLayout),
	}
	if r.Params != nil {
		m["request"] = r.Params
	}
	if r.Message != "" {
		m["message"] = r.Message
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.Result != nil {
		m["data"] = r.Result
	}
	if len(r.Losses) > 0 {
		m["losses"] = r.Losses
	}
	for k, v := range r.Extra {
		if _, reserved := reservedKeys[k]; !reserved {
			m[k] = v
		}
	}
	return m
}

// MarshalJSON renders the record in its wire shape.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.marshalMap())
}

// clone returns a deep-enough copy for snapshot readers: all mutable
// containers are copied; Params is shared because it is immutable once set.
func (r Record) clone() Record {
	r.Losses = slices.Clone(r.Losses)
	r.Extra = maps.Clone(r.Extra)
	r.Result = maps.Clone(r.Result)
	return r
}

// Overview is a point-in-time copy of every retained record keyed by session
// ID, with live utilization under the reserved monitor_metrics key.
type Overview struct {
	Records map[string]Record
	Metrics monitor.Metrics
}

// MarshalJSON renders records keyed by ID alongside monitor_metrics.
func (o Overview) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(o.Records)+1)
	for id, rec := range o.Records {
		m[id] = rec
	}
	m["monitor_metrics"] = o.Metrics
	return json.Marshal(m)
}

// Current is the currently running record (or the last finalized one) with
// live utilization merged in.
type Current struct {
	Record
	Metrics monitor.Metrics
}

// MarshalJSON renders the record fields flattened next to monitor_metrics.
func (c Current) MarshalJSON() ([]byte, error) {
	m := c.Record.marshalMap()
	m["monitor_metrics"] = c.Metrics
	return json.Marshal(m)
}
