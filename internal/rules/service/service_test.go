package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"leadgate/internal/rules/models"
	"leadgate/internal/rules/optimizer"
	"leadgate/internal/rules/store/rule"
	dErrors "leadgate/pkg/domain-errors"
)

type stubHistory struct {
	outcomes map[uuid.UUID][]RuleOutcome
}

func (h *stubHistory) OutcomesForRule(ctx context.Context, ruleID uuid.UUID) ([]RuleOutcome, error) {
	return h.outcomes[ruleID], nil
}

type RulesServiceSuite struct {
	suite.Suite
	store   *rule.InMemoryStore
	history *stubHistory
	svc     *Service
	ctx     context.Context
}

func (s *RulesServiceSuite) SetupTest() {
	s.store = rule.NewInMemory()
	s.history = &stubHistory{outcomes: make(map[uuid.UUID][]RuleOutcome)}
	s.svc = New(s.store, s.history, models.DefaultFieldRegistry(),
		WithOptimizerConfig(optimizer.Config{MinSamples: 4, FalseApproveWeight: 5, FalseEscalateWeight: 1}),
		WithClock(func() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) }),
	)
	s.ctx = context.Background()
}

func TestRulesServiceSuite(t *testing.T) {
	suite.Run(t, new(RulesServiceSuite))
}

func (s *RulesServiceSuite) validRule() *models.Rule {
	return &models.Rule{
		Name:         "approve high rating",
		Priority:     10,
		Enabled:      true,
		ResourceType: "demo_site",
		Conditions: []models.Condition{
			{Field: "lead.rating", Operator: models.OpGreaterThan, Value: "4"},
		},
		Outcome: models.OutcomeAutoApprove,
	}
}

func (s *RulesServiceSuite) TestCreateRule() {
	s.Run("assigns id and timestamps", func() {
		created, err := s.svc.CreateRule(s.ctx, s.validRule())
		s.Require().NoError(err)
		s.NotEqual(uuid.Nil, created.ID)
		s.False(created.CreatedAt.IsZero())
		s.Equal(created.CreatedAt, created.UpdatedAt)
	})

	s.Run("rejects invalid conditions at save time", func() {
		bad := s.validRule()
		bad.Conditions[0].Operator = models.OpContains
		_, err := s.svc.CreateRule(s.ctx, bad)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *RulesServiceSuite) TestUpdateRule() {
	created, err := s.svc.CreateRule(s.ctx, s.validRule())
	s.Require().NoError(err)

	s.Run("preserves created_at and bumps updated_at", func() {
		created.Name = "renamed"
		updated, err := s.svc.UpdateRule(s.ctx, created)
		s.Require().NoError(err)
		s.Equal("renamed", updated.Name)
		s.Equal(created.CreatedAt, updated.CreatedAt)
	})

	s.Run("unknown rule reports not_found", func() {
		ghost := s.validRule()
		ghost.ID = uuid.New()
		_, err := s.svc.UpdateRule(s.ctx, ghost)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *RulesServiceSuite) TestDeleteRule() {
	created, err := s.svc.CreateRule(s.ctx, s.validRule())
	s.Require().NoError(err)

	s.Require().NoError(s.svc.DeleteRule(s.ctx, created.ID))
	_, err = s.svc.GetRule(s.ctx, created.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RulesServiceSuite) TestPerformance() {
	created, err := s.svc.CreateRule(s.ctx, s.validRule())
	s.Require().NoError(err)
	c := func(v float64) *float64 { return &v }
	s.history.outcomes[created.ID] = []RuleOutcome{
		{Resolution: ResolutionAutoApproved, Confidence: c(92)},
		{Resolution: ResolutionApproved, Confidence: c(85)},
		{Resolution: ResolutionRejected, Confidence: c(70)},
		{Resolution: ResolutionExpired},
	}

	perf, err := s.svc.Performance(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(4, perf.Matched)
	s.Equal(1, perf.AutoApproved)
	s.Equal(1, perf.Approved)
	s.Equal(1, perf.Rejected)
	s.Equal(1, perf.Expired)
	s.InDelta(0.5, perf.ApprovalRate, 0.001)
}

func (s *RulesServiceSuite) TestOptimize() {
	created, err := s.svc.CreateRule(s.ctx, s.validRule())
	s.Require().NoError(err)
	c := func(v float64) *float64 { return &v }

	s.Run("thin history yields no recommendation, not an error", func() {
		s.history.outcomes[created.ID] = []RuleOutcome{
			{Resolution: ResolutionApproved, Confidence: c(85)},
		}
		result, err := s.svc.Optimize(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Nil(result.Recommendation)
		s.Equal(4, result.SamplesNeeded)
		s.Contains(result.Reason, "insufficient history")
	})

	s.Run("only human-decided outcomes feed the optimizer", func() {
		s.history.outcomes[created.ID] = []RuleOutcome{
			{Resolution: ResolutionApproved, Confidence: c(90)},
			{Resolution: ResolutionApproved, Confidence: c(88)},
			{Resolution: ResolutionRejected, Confidence: c(60)},
			{Resolution: ResolutionRejected, Confidence: c(55)},
			{Resolution: ResolutionAutoApproved, Confidence: c(99)},
			{Resolution: ResolutionExpired, Confidence: c(10)},
		}
		result, err := s.svc.Optimize(s.ctx, created.ID)
		s.Require().NoError(err)
		rec := result.Recommendation
		s.Require().NotNil(rec)
		s.Equal(4, rec.SampleSize)
		s.InDelta(88, rec.Threshold, 0.001)
	})

	s.Run("unknown rule reports not_found", func() {
		_, err := s.svc.Optimize(s.ctx, uuid.New())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
