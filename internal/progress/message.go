// Package progress defines the typed progress stream between a running
// worker and the session registry: the message format, the stdout line
// decoder for external workers, the reporter for in-process tasks, and the
// ingestor that routes messages to store mutations.
package progress

import (
	"sessiond/internal/session"
)

// Kind discriminates progress message types.
type Kind string

const (
	KindResponse Kind = "response" // final outcome, at most one per session
	KindState    Kind = "state"    // auxiliary status fields
	KindLoss     Kind = "loss"     // one training-loss sample
)

// Outcome statuses carried by a final response message.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Outcome is the final result a worker reports for its session.
type Outcome struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Message is one unit of streamed worker status. Exactly one of Response,
// Fields, or Loss is set, according to Kind.
type Message struct {
	Kind     Kind                `json:"type"`
	Response *Outcome            `json:"response,omitempty"`
	Fields   map[string]any      `json:"fields,omitempty"`
	Loss     *session.LossSample `json:"loss,omitempty"`
}

// valid reports whether the message carries the payload its kind requires.
func (m Message) valid() bool {
	switch m.Kind {
	case KindResponse:
		return m.Response != nil
	case KindState:
		return m.Fields != nil
	case KindLoss:
		return m.Loss != nil
	default:
		return false
	}
}
