// Package service owns the approval request lifecycle: creation with
// synchronous rule evaluation, human decisions, escalation, SLA sweeps, and
// queue statistics. All status changes go through the store's guarded
// transition, so a request is resolved at most once no matter how many
// deciders race.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"leadgate/internal/approval/metrics"
	"leadgate/internal/approval/models"
	"leadgate/internal/approval/store/request"
	"leadgate/internal/audit"
	"leadgate/internal/notify"
	"leadgate/internal/platform/config"
	"leadgate/internal/rules/engine"
	rulesmodels "leadgate/internal/rules/models"
	dErrors "leadgate/pkg/domain-errors"
	"leadgate/pkg/requestcontext"
)

// Actors recorded on system-driven transitions.
const (
	ActorEngine  = "auto-approval-engine"
	ActorSweeper = "sla-sweeper"
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, r *models.ApprovalRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error)
	Transition(ctx context.Context, id uuid.UUID, from []models.Status, to models.Status, stamp models.TransitionStamp) (*models.ApprovalRequest, error)
	ListPending(ctx context.Context, approvalType string, limit int) ([]*models.ApprovalRequest, error)
	ListDue(ctx context.Context, now time.Time) ([]*models.ApprovalRequest, error)
	CountByStatus(ctx context.Context) (map[models.Status]int, error)
	CountOverdue(ctx context.Context, now time.Time) (int, error)
	ListTransitions(ctx context.Context, requestID uuid.UUID) ([]models.Transition, error)
}

// RuleSource supplies the rule set evaluated at creation time.
type RuleSource interface {
	List(ctx context.Context) ([]*rulesmodels.Rule, error)
}

// Notifier publishes lifecycle events to delivery sinks.
type Notifier interface {
	Publish(ctx context.Context, ev notify.Event)
}

// AuditPublisher records the audit trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// DropCounter reports delivery-queue overflow for the stats endpoint.
type DropCounter interface {
	Dropped() int
}

type Service struct {
	store       Store
	rules       RuleSource
	lifecycle   config.Lifecycle
	parallelism int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	notifier    Notifier
	auditor     AuditPublisher
	webhooks    DropCounter
	tracer      trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

func WithWebhookStats(c DropCounter) Option {
	return func(s *Service) { s.webhooks = c }
}

func WithBulkParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

func New(store Store, rules RuleSource, lifecycle config.Lifecycle, opts ...Option) *Service {
	s := &Service{
		store:       store,
		rules:       rules,
		lifecycle:   lifecycle,
		parallelism: 8,
		logger:      slog.Default(),
		tracer:      otel.Tracer("leadgate/approval"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new approval request and evaluates the active rule set
// against it synchronously. The response already carries the final status for
// auto-resolved requests, so producers never poll for rule outcomes.
//
// A failure to load the rule set is not fatal: the request stays pending and
// lands in the manual queue, which is the safe direction to fail.
func (s *Service) Create(ctx context.Context, req *models.ApprovalRequest) (*models.ApprovalRequest, error) {
	ctx, span := s.tracer.Start(ctx, "approval.Create",
		trace.WithAttributes(attribute.String("approval_type", req.ApprovalType)))
	defer span.End()

	if req.ApprovalType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "approval_type is required")
	}
	if req.ResourceID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "resource_id is required")
	}

	now := requestcontext.Now(ctx).UTC()
	req.ID = uuid.New()
	req.Status = models.StatusPending
	req.CreatedAt = now
	sla := s.lifecycle.SLAFor(req.ApprovalType)
	if req.SLAOverride > 0 {
		sla = req.SLAOverride
	}
	deadline := now.Add(sla)
	req.TimeoutAt = &deadline

	if err := s.store.Create(ctx, req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create approval request")
	}
	s.emitAudit(ctx, audit.Event{
		Actor: callerActor(ctx), Action: audit.ActionCreated,
		RequestID: req.ID, ApprovalType: req.ApprovalType,
	})
	s.publish(ctx, req, notify.KindCreated)

	resolved, err := s.applyRules(ctx, req, now)
	if err != nil {
		s.logger.WarnContext(ctx, "rule evaluation skipped, request queued for manual review",
			"request_id", req.ID, "error", err)
		s.metrics.IncCreated(string(models.StatusPending))
		return req, nil
	}
	return resolved, nil
}

// applyRules evaluates the rule set and applies the first matching outcome.
// The returned request reflects the post-evaluation state.
func (s *Service) applyRules(ctx context.Context, req *models.ApprovalRequest, now time.Time) (*models.ApprovalRequest, error) {
	ruleSet, err := s.rules.List(ctx)
	if err != nil {
		return nil, err
	}

	decision, matched := engine.SelectOutcome(req.ApprovalType, req.Metadata, ruleSet)
	if !matched {
		s.metrics.IncCreated(string(models.StatusPending))
		s.logger.InfoContext(ctx, "no rule matched, request queued",
			"request_id", req.ID, "approval_type", req.ApprovalType)
		return req, nil
	}

	ruleID := decision.MatchedRuleID
	switch decision.Outcome {
	case rulesmodels.OutcomeAutoApprove:
		return s.autoResolve(ctx, req, models.StatusAutoApproved, &ruleID, now, notify.KindDecided)
	case rulesmodels.OutcomeAutoReject:
		return s.autoResolve(ctx, req, models.StatusRejected, &ruleID, now, notify.KindDecided)
	case rulesmodels.OutcomeEscalate:
		// An escalate outcome does not change status: the request stays
		// pending in the manual queue with its original SLA armed. Only the
		// timeout sweep or an operator moves it to escalated. The matched
		// rule is still recorded so the performance report and the optimizer
		// can attribute the eventual human verdict to it.
		updated, err := s.store.Transition(ctx, req.ID,
			[]models.Status{models.StatusPending}, models.StatusPending,
			models.TransitionStamp{
				MatchedRuleID: &ruleID,
				Actor:         ActorEngine,
				Reason:        "flagged for manual review",
			})
		if err != nil {
			return nil, err
		}
		s.metrics.IncCreated(string(models.StatusPending))
		s.logger.InfoContext(ctx, "rule flagged request for manual review",
			"request_id", req.ID, "rule_id", ruleID)
		return updated, nil
	default:
		return req, nil
	}
}

func (s *Service) autoResolve(ctx context.Context, req *models.ApprovalRequest, to models.Status, ruleID *uuid.UUID, now time.Time, kind notify.Kind) (*models.ApprovalRequest, error) {
	updated, err := s.store.Transition(ctx, req.ID,
		[]models.Status{models.StatusPending}, to,
		models.TransitionStamp{
			DecidedAt:      &now,
			DecidedBy:      ActorEngine,
			DecisionReason: "matched rule",
			MatchedRuleID:  ruleID,
			ClearTimeout:   true,
		})
	if err != nil {
		return nil, err
	}
	s.metrics.IncCreated(string(to))
	s.metrics.ObserveResolution(updated.CreatedAt, now)
	s.emitAudit(ctx, audit.Event{
		Actor: ActorEngine, Action: audit.ActionAutoRuled,
		RequestID: req.ID, ApprovalType: req.ApprovalType,
		RuleID: ruleID, Decision: string(to),
	})
	s.publish(ctx, updated, kind)
	s.logger.InfoContext(ctx, "request auto-resolved",
		"request_id", req.ID, "status", to, "rule_id", ruleID)
	return updated, nil
}

// Decide applies a human decision. The operator identity comes from the
// request context set by the auth middleware.
func (s *Service) Decide(ctx context.Context, id uuid.UUID, approve bool, reason string) (*models.ApprovalRequest, error) {
	ctx, span := s.tracer.Start(ctx, "approval.Decide",
		trace.WithAttributes(attribute.String("request_id", id.String()), attribute.Bool("approve", approve)))
	defer span.End()

	operator := requestcontext.OperatorID(ctx)
	if operator == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "operator identity required")
	}

	to := models.StatusRejected
	if approve {
		to = models.StatusApproved
	}
	now := requestcontext.Now(ctx).UTC()

	updated, err := s.store.Transition(ctx, id,
		[]models.Status{models.StatusPending, models.StatusEscalated}, to,
		models.TransitionStamp{
			DecidedAt:      &now,
			DecidedBy:      operator,
			DecisionReason: reason,
			ClearTimeout:   true,
		})
	if err != nil {
		return nil, s.mapTransitionErr(ctx, id, err)
	}

	s.metrics.IncDecision(string(to))
	s.metrics.ObserveResolution(updated.CreatedAt, now)
	s.emitAudit(ctx, audit.Event{
		Actor: operator, Action: audit.ActionDecided,
		RequestID: id, ApprovalType: updated.ApprovalType,
		Decision: string(to), Reason: reason,
	})
	s.publish(ctx, updated, notify.KindDecided)
	s.logger.InfoContext(ctx, "request decided",
		"request_id", id, "status", to, "decided_by", operator)
	return updated, nil
}

// BulkDecide applies one decision across many requests with bounded
// parallelism. The batch is not transactional: each entry succeeds or fails
// on its own, and the result slice preserves input order.
func (s *Service) BulkDecide(ctx context.Context, ids []uuid.UUID, approve bool, reason string) []models.BulkDecisionResult {
	ctx, span := s.tracer.Start(ctx, "approval.BulkDecide",
		trace.WithAttributes(attribute.Int("batch_size", len(ids))))
	defer span.End()

	results := make([]models.BulkDecisionResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, id := range ids {
		g.Go(func() error {
			if _, err := s.Decide(gctx, id, approve, reason); err != nil {
				results[i] = models.BulkDecisionResult{ID: id, Error: dErrors.MessageOf(err)}
				return nil
			}
			results[i] = models.BulkDecisionResult{ID: id, OK: true}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Escalate flags a pending request for senior review without deciding it.
// The escalation deadline replaces the original SLA.
func (s *Service) Escalate(ctx context.Context, id uuid.UUID, reason string) (*models.ApprovalRequest, error) {
	operator := requestcontext.OperatorID(ctx)
	if operator == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "operator identity required")
	}

	now := requestcontext.Now(ctx).UTC()
	escalationDeadline := now.Add(s.lifecycle.EscalationDeadline)
	updated, err := s.store.Transition(ctx, id,
		[]models.Status{models.StatusPending}, models.StatusEscalated,
		models.TransitionStamp{
			EscalatedAt: &now,
			TimeoutAt:   &escalationDeadline,
			Actor:       operator,
			Reason:      reason,
		})
	if err != nil {
		return nil, s.mapTransitionErr(ctx, id, err)
	}

	s.metrics.IncEscalation()
	s.emitAudit(ctx, audit.Event{
		Actor: operator, Action: audit.ActionEscalated,
		RequestID: id, ApprovalType: updated.ApprovalType, Reason: reason,
	})
	s.publish(ctx, updated, notify.KindEscalated)
	s.logger.InfoContext(ctx, "request escalated",
		"request_id", id, "escalated_by", operator)
	return updated, nil
}

// Get returns one request by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	r, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapTransitionErr(ctx, id, err)
	}
	return r, nil
}

// History returns the request's transition log, oldest first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]models.Transition, error) {
	if _, err := s.store.FindByID(ctx, id); err != nil {
		return nil, s.mapTransitionErr(ctx, id, err)
	}
	transitions, err := s.store.ListTransitions(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load transitions")
	}
	return transitions, nil
}

// Pending lists requests awaiting a human, oldest first.
func (s *Service) Pending(ctx context.Context, approvalType string, limit int) ([]*models.ApprovalRequest, error) {
	requests, err := s.store.ListPending(ctx, approvalType, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending requests")
	}
	return requests, nil
}

// Stats summarizes the queue. Every status appears in the counts even when
// zero, so dashboards get a stable shape.
func (s *Service) Stats(ctx context.Context) (*models.Stats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count requests")
	}
	now := requestcontext.Now(ctx).UTC()
	overdue, err := s.store.CountOverdue(ctx, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count overdue requests")
	}

	stats := &models.Stats{Counts: make(map[models.Status]int), PendingOverdue: overdue}
	for _, status := range models.Statuses() {
		stats.Counts[status] = counts[status]
	}
	if s.webhooks != nil {
		stats.WebhookFailuresDropped = s.webhooks.Dropped()
	}
	return stats, nil
}

// mapTransitionErr converts store errors into domain errors. A stale
// transition reads the current status so the caller learns why the decision
// was refused.
func (s *Service) mapTransitionErr(ctx context.Context, id uuid.UUID, err error) error {
	switch {
	case errors.Is(err, request.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "approval request not found")
	case errors.Is(err, request.ErrStale):
		current, findErr := s.store.FindByID(ctx, id)
		if findErr != nil {
			return dErrors.New(dErrors.CodeInvalidState, "request already resolved")
		}
		return dErrors.Newf(dErrors.CodeInvalidState, "request is %s, no further transitions permitted", current.Status)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "storage failure")
	}
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	s.auditor.Emit(ctx, event)
}

func (s *Service) publish(ctx context.Context, r *models.ApprovalRequest, kind notify.Kind) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ctx, notify.Event{
		Kind:         kind,
		RequestID:    r.ID,
		ApprovalType: r.ApprovalType,
		ResourceID:   r.ResourceID,
		Status:       string(r.Status),
		RuleID:       r.MatchedRuleID,
		DecidedBy:    r.DecidedBy,
		Reason:       r.DecisionReason,
		CallbackURL:  r.CallbackURL,
		OccurredAt:   requestcontext.Now(ctx).UTC(),
	})
}

func callerActor(ctx context.Context) string {
	if operator := requestcontext.OperatorID(ctx); operator != "" {
		return operator
	}
	return "service"
}
