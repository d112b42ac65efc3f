// Package webhook delivers lifecycle events to producer callback URLs. A
// bounded queue decouples delivery from the decision path: enqueue never
// blocks, and overflow drops the event and counts it.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"leadgate/internal/notify"
	"leadgate/internal/platform/config"
	"leadgate/pkg/platform/circuit"
)

type Worker struct {
	client      *http.Client
	queue       chan notify.Event
	maxAttempts int
	baseBackoff time.Duration
	breaker     *circuit.Breaker
	logger      *slog.Logger
	dropped     atomic.Int64
	wg          sync.WaitGroup

	delivered prometheus.Counter
	failed    prometheus.Counter
}

func New(cfg config.Webhook, logger *slog.Logger, reg prometheus.Registerer) *Worker {
	w := &Worker{
		client:      &http.Client{Timeout: cfg.Timeout},
		queue:       make(chan notify.Event, cfg.QueueSize),
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
		breaker:     circuit.New("webhook"),
		logger:      logger,
	}
	if reg != nil {
		factory := promauto.With(reg)
		w.delivered = factory.NewCounter(prometheus.CounterOpts{
			Name: "leadgate_webhook_deliveries_total",
			Help: "Webhook deliveries that eventually succeeded.",
		})
		w.failed = factory.NewCounter(prometheus.CounterOpts{
			Name: "leadgate_webhook_failures_total",
			Help: "Webhook deliveries that exhausted all attempts.",
		})
	}
	return w
}

// Deliver enqueues the event for the given callback URL. Events without a
// callback are ignored. A full queue drops the event rather than blocking
// the caller.
func (w *Worker) Deliver(ctx context.Context, ev notify.Event) {
	if ev.CallbackURL == "" {
		return
	}
	select {
	case w.queue <- ev:
	default:
		w.dropped.Add(1)
		w.logger.WarnContext(ctx, "webhook queue full, event dropped",
			"request_id", ev.RequestID, "kind", ev.Kind)
	}
}

// Start launches the delivery loop. On cancellation the loop counts any
// still-queued events as dropped before exiting, so the stats endpoint
// reflects deliveries lost to shutdown.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			if ctx.Err() != nil {
				w.abandon(ctx)
				return
			}
			select {
			case <-ctx.Done():
				w.abandon(ctx)
				return
			case ev := <-w.queue:
				w.send(ctx, ev)
			}
		}
	}()
}

func (w *Worker) abandon(ctx context.Context) {
	for {
		select {
		case ev := <-w.queue:
			w.dropped.Add(1)
			w.logger.WarnContext(ctx, "webhook abandoned at shutdown",
				"request_id", ev.RequestID, "kind", ev.Kind)
		default:
			return
		}
	}
}

// Wait blocks until the delivery loop has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Dropped reports events lost without delivery, whether to queue overflow or
// to shutdown abandonment.
func (w *Worker) Dropped() int {
	return int(w.dropped.Load())
}

func (w *Worker) send(ctx context.Context, ev notify.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		w.logger.ErrorContext(ctx, "webhook payload marshal failed", "error", err)
		return
	}

	// An open breaker degrades to a single probe per event so a recovered
	// consumer can close it again without the full retry ladder.
	maxAttempts := w.maxAttempts
	if w.breaker.IsOpen() {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if w.post(ctx, ev.CallbackURL, body) {
			if _, change := w.breaker.RecordSuccess(); change.Closed {
				w.logger.InfoContext(ctx, "webhook circuit closed")
			}
			if w.delivered != nil {
				w.delivered.Inc()
			}
			w.logger.DebugContext(ctx, "webhook delivered",
				"request_id", ev.RequestID, "kind", ev.Kind, "attempt", attempt)
			return
		}
		if attempt == maxAttempts {
			break
		}
		backoff := w.baseBackoff << (attempt - 1)
		select {
		case <-ctx.Done():
			w.dropped.Add(1)
			w.logger.WarnContext(ctx, "webhook abandoned at shutdown",
				"request_id", ev.RequestID, "kind", ev.Kind)
			return
		case <-time.After(backoff):
		}
	}

	if _, change := w.breaker.RecordFailure(); change.Opened {
		w.logger.WarnContext(ctx, "webhook circuit opened")
	}
	if w.failed != nil {
		w.failed.Inc()
	}
	w.logger.WarnContext(ctx, "webhook delivery exhausted",
		"request_id", ev.RequestID, "kind", ev.Kind, "url", ev.CallbackURL, "attempts", maxAttempts)
}

func (w *Worker) post(ctx context.Context, url string, body []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
