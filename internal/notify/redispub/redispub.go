// Package redispub publishes lifecycle events on a Redis pub/sub channel so
// other CRM services can react without polling the API.
package redispub

import (
	"context"
	"encoding/json"
	"log/slog"

	"leadgate/internal/notify"
	platformredis "leadgate/internal/platform/redis"
)

type Publisher struct {
	client  *platformredis.Client
	channel string
	logger  *slog.Logger
}

func New(client *platformredis.Client, channel string, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, channel: channel, logger: logger}
}

// Deliver publishes the event. Publish failures are logged and swallowed;
// pub/sub is a convenience stream, not a ledger.
func (p *Publisher) Deliver(ctx context.Context, ev notify.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.ErrorContext(ctx, "event marshal failed", "error", err)
		return
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.WarnContext(ctx, "redis publish failed",
			"channel", p.channel, "request_id", ev.RequestID, "error", err)
	}
}
