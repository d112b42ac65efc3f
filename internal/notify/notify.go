// Package notify fans lifecycle events out to delivery sinks: producer
// webhooks, the operator websocket hub, and the Redis event channel. Delivery
// is best-effort; resolving a request never blocks on a slow consumer.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a lifecycle event.
type Kind string

const (
	KindCreated   Kind = "approval.created"
	KindDecided   Kind = "approval.decided"
	KindEscalated Kind = "approval.escalated"
	KindExpired   Kind = "approval.expired"
)

// Event is one lifecycle change on an approval request.
type Event struct {
	Kind         Kind       `json:"kind"`
	RequestID    uuid.UUID  `json:"request_id"`
	ApprovalType string     `json:"approval_type"`
	ResourceID   string     `json:"resource_id"`
	Status       string     `json:"status"`
	RuleID       *uuid.UUID `json:"rule_id,omitempty"`
	DecidedBy    string     `json:"decided_by,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	CallbackURL  string     `json:"-"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// Sink receives events. Implementations must not block; queue internally and
// drop on overflow.
type Sink interface {
	Deliver(ctx context.Context, ev Event)
}

// Dispatcher fans one event out to every registered sink.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, logger: logger}
}

func (d *Dispatcher) Publish(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	for _, sink := range d.sinks {
		sink.Deliver(ctx, ev)
	}
	d.logger.DebugContext(ctx, "event dispatched",
		"kind", ev.Kind, "request_id", ev.RequestID, "sinks", len(d.sinks))
}
