package progress

import (
	"log/slog"

	"sessiond/internal/session"
)

// Sink receives routed progress mutations. Implemented by *session.Store.
type Sink interface {
	Finalize(id string, state session.State, message, errText string, result map[string]any)
	UpdateFields(id string, fields map[string]any) error
	AppendLoss(id string, sample session.LossSample) error
}

// Ingestor consumes a session's progress stream and applies each message to
// the sink in arrival order.
type Ingestor struct {
	sink   Sink
	logger *slog.Logger
}

// NewIngestor creates an ingestor writing to sink.
func NewIngestor(sink Sink) *Ingestor {
	return &Ingestor{
		sink:   sink,
		logger: slog.With("component", "progress"),
	}
}

// Consume routes messages until the stream closes or a final response
// arrives, whichever comes first. It reports whether a final response was
// seen; a stream that ends without one triggers no finalize here, that is
// the runner's cleanup responsibility.
func (i *Ingestor) Consume(sessionID string, msgs <-chan Message) bool {
	logger := i.logger.With("sessionId", sessionID)

	for msg := range msgs {
		switch msg.Kind {
		case KindResponse:
			state := session.StateCompleted
			errText := ""
			if msg.Response.Status != StatusSuccess {
				state = session.StateFailed
				errText = msg.Response.Message
			}
			i.sink.Finalize(sessionID, state, msg.Response.Message, errText, msg.Response.Data)

			// Release the producer if it keeps writing after its final
			// response; those messages have nowhere to go.
			go func() {
				for range msgs {
				}
			}()
			return true

		case KindState:
			if err := i.sink.UpdateFields(sessionID, msg.Fields); err != nil {
				logger.Warn("Dropping state update", "error", err)
			}

		case KindLoss:
			if err := i.sink.AppendLoss(sessionID, *msg.Loss); err != nil {
				logger.Warn("Dropping loss sample", "error", err)
			}
		}
	}
	return false
}
