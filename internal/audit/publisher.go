package audit

import (
	"context"
	"log/slog"
	"time"
)

// Publisher hands events to the background worker through a bounded channel.
// Emitting never blocks the decision path; overflow drops the event with a
// warning.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

func NewPublisher(buffer int, logger *slog.Logger) *Publisher {
	return &Publisher{inbox: make(chan Event, buffer), logger: logger}
}

func (p *Publisher) Emit(ctx context.Context, base Event) {
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now().UTC()
	}
	select {
	case p.inbox <- base:
	default:
		p.logger.WarnContext(ctx, "audit inbox full, event dropped",
			"action", base.Action, "request_id", base.RequestID)
	}
}

// Inbox exposes the channel for the worker.
func (p *Publisher) Inbox() <-chan Event {
	return p.inbox
}
