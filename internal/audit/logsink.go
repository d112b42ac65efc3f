package audit

import (
	"context"
	"log/slog"
)

// LogSink writes the audit trail into the structured log stream, tagged so
// log pipelines can split it from operational logging.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Append(ctx context.Context, event Event) error {
	s.logger.InfoContext(ctx, "audit event",
		"log_type", "audit",
		"event", event.Action,
		"actor", event.Actor,
		"request_id", event.RequestID,
		"approval_type", event.ApprovalType,
		"decision", event.Decision,
		"reason", event.Reason,
	)
	return nil
}
