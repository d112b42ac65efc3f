package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"leadgate/internal/approval/models"
	"leadgate/internal/audit"
	"leadgate/internal/notify"
	"leadgate/pkg/requestcontext"
)

// SweepResult reports what one sweep pass did.
type SweepResult struct {
	Escalated int
	Expired   int
	Skipped   int
}

// Sweep resolves requests whose deadline has passed. Pending requests
// escalate first when escalation is enabled; escalated requests, and pending
// ones when it is not, expire. The sweep is idempotent: a request another
// decider resolved mid-pass is skipped, not an error.
func (s *Service) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	ctx, span := s.tracer.Start(ctx, "approval.Sweep")
	defer span.End()
	ctx = requestcontext.WithTime(ctx, now)

	var result SweepResult
	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		return result, err
	}

	for _, r := range due {
		if r.Status == models.StatusPending && s.lifecycle.EscalationEnabled {
			if s.sweepEscalate(ctx, r, now) {
				result.Escalated++
			} else {
				result.Skipped++
			}
			continue
		}
		if s.sweepExpire(ctx, r, now) {
			result.Expired++
		} else {
			result.Skipped++
		}
	}

	if result.Escalated+result.Expired > 0 {
		s.logger.InfoContext(ctx, "sla sweep completed",
			"escalated", result.Escalated, "expired", result.Expired, "skipped", result.Skipped)
	}
	return result, nil
}

func (s *Service) sweepEscalate(ctx context.Context, r *models.ApprovalRequest, now time.Time) bool {
	escalationDeadline := now.Add(s.lifecycle.EscalationDeadline)
	updated, err := s.store.Transition(ctx, r.ID,
		[]models.Status{models.StatusPending}, models.StatusEscalated,
		models.TransitionStamp{
			EscalatedAt: &now,
			TimeoutAt:   &escalationDeadline,
			Actor:       ActorSweeper,
			Reason:      "sla deadline reached",
		})
	if err != nil {
		return false
	}
	s.metrics.IncEscalation()
	s.emitAudit(ctx, audit.Event{
		Actor: ActorSweeper, Action: audit.ActionEscalated,
		RequestID: r.ID, ApprovalType: r.ApprovalType, Reason: "sla deadline reached",
	})
	s.publish(ctx, updated, notify.KindEscalated)
	return true
}

func (s *Service) sweepExpire(ctx context.Context, r *models.ApprovalRequest, now time.Time) bool {
	updated, err := s.store.Transition(ctx, r.ID,
		[]models.Status{models.StatusPending, models.StatusEscalated}, models.StatusExpired,
		models.TransitionStamp{
			ClearTimeout: true,
			Actor:        ActorSweeper,
			Reason:       "sla deadline reached",
		})
	if err != nil {
		return false
	}
	s.metrics.IncExpiration()
	s.metrics.ObserveResolution(updated.CreatedAt, now)
	s.emitAudit(ctx, audit.Event{
		Actor: ActorSweeper, Action: audit.ActionExpired,
		RequestID: r.ID, ApprovalType: r.ApprovalType,
	})
	s.publish(ctx, updated, notify.KindExpired)
	return true
}

// Sweeper runs Sweep on a cron schedule.
type Sweeper struct {
	cron   *cron.Cron
	logger *slog.Logger
}

func NewSweeper(svc *Service, schedule string, logger *slog.Logger) (*Sweeper, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := svc.Sweep(context.Background(), time.Now().UTC()); err != nil {
			logger.Error("sla sweep failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return &Sweeper{cron: c, logger: logger}, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
