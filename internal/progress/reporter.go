package progress

import (
	"encoding/json"
	"io"

	"sessiond/internal/session"
)

// Reporter is the producer side of an in-process progress stream. Tasks use
// it to emit loss samples, auxiliary state, and exactly one final outcome.
// Close releases the consumer; the runner closes it after the task returns.
type Reporter struct {
	ch chan Message
}

// NewReporter creates a reporter with a small send buffer so short bursts
// from the task do not block on the ingestor.
func NewReporter() *Reporter {
	return &Reporter{ch: make(chan Message, 16)}
}

// Messages returns the consumer side of the stream.
func (r *Reporter) Messages() <-chan Message {
	return r.ch
}

// Close ends the stream. Must be called exactly once, after the task returns.
func (r *Reporter) Close() {
	close(r.ch)
}

// Loss emits one training-loss sample.
func (r *Reporter) Loss(sample session.LossSample) {
	r.ch <- Message{Kind: KindLoss, Loss: &sample}
}

// Update emits auxiliary status fields.
func (r *Reporter) Update(fields map[string]any) {
	r.ch <- Message{Kind: KindState, Fields: fields}
}

// Complete emits a successful final response.
func (r *Reporter) Complete(message string, data map[string]any) {
	r.ch <- Message{Kind: KindResponse, Response: &Outcome{Status: StatusSuccess, Message: message, Data: data}}
}

// Fail emits a failed final response.
func (r *Reporter) Fail(message string) {
	r.ch <- Message{Kind: KindResponse, Response: &Outcome{Status: StatusFailed, Message: message}}
}

// Emitter writes progress messages as JSON lines, one per message. It is the
// wire-format counterpart of Reporter, used by worker processes writing to
// stdout.
type Emitter struct {
	enc *json.Encoder
}

// NewEmitter creates an emitter writing to w.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{enc: json.NewEncoder(w)}
}

// Loss writes one training-loss sample.
func (e *Emitter) Loss(sample session.LossSample) error {
	return e.enc.Encode(Message{Kind: KindLoss, Loss: &sample})
}

// Update writes auxiliary status fields.
func (e *Emitter) Update(fields map[string]any) error {
	return e.enc.Encode(Message{Kind: KindState, Fields: fields})
}

// Complete writes a successful final response.
func (e *Emitter) Complete(message string, data map[string]any) error {
	return e.enc.Encode(Message{Kind: KindResponse, Response: &Outcome{Status: StatusSuccess, Message: message, Data: data}})
}

// Fail writes a failed final response.
func (e *Emitter) Fail(message string) error {
	return e.enc.Encode(Message{Kind: KindResponse, Response: &Outcome{Status: StatusFailed, Message: message}})
}
