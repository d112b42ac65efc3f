// Package service owns auto-approval rule management: CRUD with validation
// against the field registry, rule performance reporting, and threshold
// recommendations from decision history.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"leadgate/internal/rules/metrics"
	"leadgate/internal/rules/models"
	"leadgate/internal/rules/optimizer"
	"leadgate/internal/rules/store/rule"
	dErrors "leadgate/pkg/domain-errors"
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, r *models.Rule) error
	Update(ctx context.Context, r *models.Rule) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Rule, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*models.Rule, error)
}

// RuleOutcome is one resolved request the rule matched, reduced to what the
// performance report and the optimizer need.
type RuleOutcome struct {
	Resolution string
	Confidence *float64
}

const (
	ResolutionAutoApproved = "auto_approved"
	ResolutionApproved     = "approved"
	ResolutionRejected     = "rejected"
	ResolutionExpired      = "expired"
)

// History supplies resolved outcomes for requests a rule matched.
type History interface {
	OutcomesForRule(ctx context.Context, ruleID uuid.UUID) ([]RuleOutcome, error)
}

// Performance summarizes how a rule's matches were ultimately resolved.
type Performance struct {
	RuleID       uuid.UUID `json:"rule_id"`
	Matched      int       `json:"matched"`
	AutoApproved int       `json:"auto_approved"`
	Approved     int       `json:"approved"`
	Rejected     int       `json:"rejected"`
	Expired      int       `json:"expired"`
	ApprovalRate float64   `json:"approval_rate"`
}

type Service struct {
	store     Store
	history   History
	registry  models.FieldRegistry
	optimizer optimizer.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithOptimizerConfig(cfg optimizer.Config) Option {
	return func(s *Service) { s.optimizer = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, history History, registry models.FieldRegistry, opts ...Option) *Service {
	s := &Service{
		store:     store,
		history:   history,
		registry:  registry,
		optimizer: optimizer.DefaultConfig(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateRule(ctx context.Context, r *models.Rule) (*models.Rule, error) {
	if err := r.Validate(s.registry); err != nil {
		return nil, err
	}
	r.ID = uuid.New()
	now := s.now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if err := s.store.Create(ctx, r); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create rule")
	}
	s.metrics.IncRuleChange("create")
	s.logger.InfoContext(ctx, "rule created",
		"rule_id", r.ID, "name", r.Name, "outcome", r.Outcome, "priority", r.Priority)
	return r, nil
}

func (s *Service) UpdateRule(ctx context.Context, r *models.Rule) (*models.Rule, error) {
	if err := r.Validate(s.registry); err != nil {
		return nil, err
	}
	existing, err := s.store.FindByID(ctx, r.ID)
	if err != nil {
		return nil, mapStoreErr(err, "rule")
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, r); err != nil {
		return nil, mapStoreErr(err, "rule")
	}
	s.metrics.IncRuleChange("update")
	s.logger.InfoContext(ctx, "rule updated", "rule_id", r.ID, "name", r.Name, "enabled", r.Enabled)
	return r, nil
}

func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	r, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, "rule")
	}
	return r, nil
}

func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return mapStoreErr(err, "rule")
	}
	s.metrics.IncRuleChange("delete")
	s.logger.InfoContext(ctx, "rule deleted", "rule_id", id)
	return nil
}

func (s *Service) ListRules(ctx context.Context) ([]*models.Rule, error) {
	rules, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list rules")
	}
	return rules, nil
}

// Performance reports resolution counts for requests the rule matched.
// ApprovalRate counts both automatic and human approvals over all matches.
func (s *Service) Performance(ctx context.Context, id uuid.UUID) (*Performance, error) {
	if _, err := s.store.FindByID(ctx, id); err != nil {
		return nil, mapStoreErr(err, "rule")
	}
	outcomes, err := s.history.OutcomesForRule(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load rule history")
	}

	p := &Performance{RuleID: id, Matched: len(outcomes)}
	for _, o := range outcomes {
		switch o.Resolution {
		case ResolutionAutoApproved:
			p.AutoApproved++
		case ResolutionApproved:
			p.Approved++
		case ResolutionRejected:
			p.Rejected++
		case ResolutionExpired:
			p.Expired++
		}
	}
	if p.Matched > 0 {
		p.ApprovalRate = float64(p.AutoApproved+p.Approved) / float64(p.Matched)
	}
	return p, nil
}

// OptimizeResult is the outcome of a threshold optimization run. A thin
// history is not an error: Recommendation is nil, Reason says why, and
// SamplesNeeded tells the operator how much history the optimizer wants.
type OptimizeResult struct {
	RuleID         uuid.UUID                 `json:"rule_id"`
	Recommendation *optimizer.Recommendation `json:"recommendation"`
	Reason         string                    `json:"reason,omitempty"`
	SamplesNeeded  int                       `json:"samples_needed,omitempty"`
}

// Optimize recommends a confidence threshold from history. Only outcomes a
// human actually decided feed the optimizer; auto-approvals and expiries
// carry no verdict to learn from.
func (s *Service) Optimize(ctx context.Context, id uuid.UUID) (*OptimizeResult, error) {
	if _, err := s.store.FindByID(ctx, id); err != nil {
		return nil, mapStoreErr(err, "rule")
	}
	outcomes, err := s.history.OutcomesForRule(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load rule history")
	}

	records := make([]optimizer.OutcomeRecord, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Confidence == nil {
			continue
		}
		switch o.Resolution {
		case ResolutionApproved:
			records = append(records, optimizer.OutcomeRecord{Confidence: *o.Confidence, HumanApproved: true})
		case ResolutionRejected:
			records = append(records, optimizer.OutcomeRecord{Confidence: *o.Confidence, HumanApproved: false})
		}
	}

	rec, ok := optimizer.Recommend(id, records, s.optimizer)
	if !ok {
		s.logger.InfoContext(ctx, "threshold recommendation skipped",
			"rule_id", id, "samples", len(records), "needed", s.optimizer.MinSamples)
		return &OptimizeResult{
			RuleID:        id,
			Reason:        fmt.Sprintf("insufficient history: %d human-decided samples, need %d", len(records), s.optimizer.MinSamples),
			SamplesNeeded: s.optimizer.MinSamples,
		}, nil
	}
	s.metrics.IncRecommendation()
	s.logger.InfoContext(ctx, "threshold recommended",
		"rule_id", id, "threshold", rec.Threshold, "sample_size", rec.SampleSize, "cost", rec.Cost)
	return &OptimizeResult{RuleID: id, Recommendation: rec}, nil
}

func mapStoreErr(err error, entity string) error {
	if errors.Is(err, rule.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, entity+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "storage failure")
}
