//go:build integration

package request

import (
	"context"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"leadgate/internal/approval/models"
	"leadgate/pkg/testutil/containers"
)

type PostgresRequestStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	ctx   context.Context
	now   time.Time
}

func (s *PostgresRequestStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	m, err := migrate.New("file://../../../../migrations", s.pg.URL)
	s.Require().NoError(err)
	s.Require().NoError(m.Up())

	s.store = NewPostgres(s.pg.DB)
	s.ctx = context.Background()
}

func (s *PostgresRequestStoreSuite) SetupTest() {
	s.now = time.Now().UTC().Truncate(time.Microsecond)
	s.pg.Exec(s.T(), "TRUNCATE approval_requests CASCADE")
}

func TestPostgresRequestStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresRequestStoreSuite))
}

func (s *PostgresRequestStoreSuite) newRequest(approvalType string, timeoutAt *time.Time) *models.ApprovalRequest {
	return &models.ApprovalRequest{
		ID:           uuid.New(),
		ApprovalType: approvalType,
		ResourceID:   "lead-1",
		ResourceData: []byte(`{"domain":"example.com"}`),
		Status:       models.StatusPending,
		CreatedAt:    s.now,
		TimeoutAt:    timeoutAt,
		Metadata:     map[string]string{"quality_score": "88", "lead.source": "referral"},
		CallbackURL:  "https://crm.example.com/callbacks/lead-1",
	}
}

func (s *PostgresRequestStoreSuite) TestRoundTrip() {
	deadline := s.now.Add(time.Hour)
	r := s.newRequest("demo_site", &deadline)
	s.Require().NoError(s.store.Create(s.ctx, r))

	found, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, found.Status)
	s.Equal("88", found.Metadata["quality_score"])
	s.JSONEq(`{"domain":"example.com"}`, string(found.ResourceData))
	s.Require().NotNil(found.TimeoutAt)
	s.WithinDuration(deadline, *found.TimeoutAt, time.Millisecond)
}

func (s *PostgresRequestStoreSuite) TestNotFound() {
	_, err := s.store.FindByID(s.ctx, uuid.New())
	s.ErrorIs(err, ErrNotFound)
}

func (s *PostgresRequestStoreSuite) TestTransition() {
	s.Run("applies the stamp and records history", func() {
		deadline := s.now.Add(time.Hour)
		r := s.newRequest("demo_site", &deadline)
		s.Require().NoError(s.store.Create(s.ctx, r))

		decidedAt := s.now.Add(time.Minute)
		updated, err := s.store.Transition(s.ctx, r.ID,
			[]models.Status{models.StatusPending, models.StatusEscalated}, models.StatusApproved,
			models.TransitionStamp{
				DecidedAt:      &decidedAt,
				DecidedBy:      "op-1",
				DecisionReason: "verified manually",
				ClearTimeout:   true,
			})
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, updated.Status)
		s.Equal("op-1", updated.DecidedBy)
		s.Nil(updated.TimeoutAt)

		history, err := s.store.ListTransitions(s.ctx, r.ID)
		s.Require().NoError(err)
		s.Require().Len(history, 1)
		s.Equal(models.StatusPending, history[0].From)
		s.Equal(models.StatusApproved, history[0].To)
		s.Equal("op-1", history[0].DecidedBy)
		s.Equal("verified manually", history[0].Reason)
	})

	s.Run("stale from-state leaves the row untouched", func() {
		r := s.newRequest("demo_site", nil)
		s.Require().NoError(s.store.Create(s.ctx, r))

		_, err := s.store.Transition(s.ctx, r.ID,
			[]models.Status{models.StatusEscalated}, models.StatusApproved, models.TransitionStamp{})
		s.Require().ErrorIs(err, ErrStale)

		found, err := s.store.FindByID(s.ctx, r.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, found.Status)

		history, err := s.store.ListTransitions(s.ctx, r.ID)
		s.Require().NoError(err)
		s.Empty(history)
	})

	s.Run("unknown id reports ErrNotFound", func() {
		_, err := s.store.Transition(s.ctx, uuid.New(),
			[]models.Status{models.StatusPending}, models.StatusApproved, models.TransitionStamp{})
		s.Require().ErrorIs(err, ErrNotFound)
	})

	s.Run("escalation stamp arms a new deadline", func() {
		r := s.newRequest("demo_site", nil)
		s.Require().NoError(s.store.Create(s.ctx, r))

		escalatedAt := s.now.Add(time.Minute)
		newDeadline := s.now.Add(4 * time.Hour)
		updated, err := s.store.Transition(s.ctx, r.ID,
			[]models.Status{models.StatusPending}, models.StatusEscalated,
			models.TransitionStamp{
				EscalatedAt: &escalatedAt,
				TimeoutAt:   &newDeadline,
				Actor:       "sla-sweeper",
				Reason:      "deadline elapsed",
			})
		s.Require().NoError(err)
		s.Equal(models.StatusEscalated, updated.Status)
		s.Empty(updated.DecidedBy)
		s.Require().NotNil(updated.TimeoutAt)
		s.WithinDuration(newDeadline, *updated.TimeoutAt, time.Millisecond)

		history, err := s.store.ListTransitions(s.ctx, r.ID)
		s.Require().NoError(err)
		s.Require().Len(history, 1)
		s.Equal("sla-sweeper", history[0].DecidedBy)
	})

	s.Run("a rule flag persists the matched rule without changing status", func() {
		deadline := s.now.Add(time.Hour)
		r := s.newRequest("demo_site", &deadline)
		s.Require().NoError(s.store.Create(s.ctx, r))

		ruleID := uuid.New()
		updated, err := s.store.Transition(s.ctx, r.ID,
			[]models.Status{models.StatusPending}, models.StatusPending,
			models.TransitionStamp{
				MatchedRuleID: &ruleID,
				Actor:         "auto-approval-engine",
				Reason:        "flagged for manual review",
			})
		s.Require().NoError(err)
		s.Equal(models.StatusPending, updated.Status)
		s.Require().NotNil(updated.MatchedRuleID)
		s.Equal(ruleID, *updated.MatchedRuleID)
		s.Require().NotNil(updated.TimeoutAt)
		s.WithinDuration(deadline, *updated.TimeoutAt, time.Millisecond)
	})

	s.Run("racing deciders produce exactly one transition with an exact from-status", func() {
		r := s.newRequest("demo_site", nil)
		s.Require().NoError(s.store.Create(s.ctx, r))

		decidedAt := s.now.Add(time.Minute)
		errs := make(chan error, 2)
		for _, to := range []models.Status{models.StatusApproved, models.StatusRejected} {
			go func() {
				_, err := s.store.Transition(s.ctx, r.ID,
					[]models.Status{models.StatusPending}, to,
					models.TransitionStamp{DecidedAt: &decidedAt, DecidedBy: "op-race"})
				errs <- err
			}()
		}
		first, second := <-errs, <-errs
		if first == nil {
			s.Require().ErrorIs(second, ErrStale)
		} else {
			s.Require().ErrorIs(first, ErrStale)
			s.Require().NoError(second)
		}

		history, err := s.store.ListTransitions(s.ctx, r.ID)
		s.Require().NoError(err)
		s.Require().Len(history, 1)
		s.Equal(models.StatusPending, history[0].From)
	})
}

func (s *PostgresRequestStoreSuite) TestListPending() {
	deadline := s.now.Add(time.Hour)
	older := s.newRequest("demo_site", &deadline)
	older.CreatedAt = s.now.Add(-time.Hour)
	newer := s.newRequest("demo_site", &deadline)
	other := s.newRequest("email_send", &deadline)
	for _, r := range []*models.ApprovalRequest{older, newer, other} {
		s.Require().NoError(s.store.Create(s.ctx, r))
	}
	_, err := s.store.Transition(s.ctx, other.ID,
		[]models.Status{models.StatusPending}, models.StatusRejected,
		models.TransitionStamp{DecidedBy: "op-1"})
	s.Require().NoError(err)

	pending, err := s.store.ListPending(s.ctx, "", 0)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(older.ID, pending[0].ID)

	filtered, err := s.store.ListPending(s.ctx, "demo_site", 1)
	s.Require().NoError(err)
	s.Require().Len(filtered, 1)
	s.Equal(older.ID, filtered[0].ID)
}

func (s *PostgresRequestStoreSuite) TestListDueAndCounts() {
	overdue := s.now.Add(-time.Minute)
	future := s.now.Add(time.Hour)
	due := s.newRequest("demo_site", &overdue)
	fresh := s.newRequest("demo_site", &future)
	untimed := s.newRequest("demo_site", nil)
	for _, r := range []*models.ApprovalRequest{due, fresh, untimed} {
		s.Require().NoError(s.store.Create(s.ctx, r))
	}

	got, err := s.store.ListDue(s.ctx, s.now)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(due.ID, got[0].ID)

	counts, err := s.store.CountByStatus(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, counts[models.StatusPending])

	overdueCount, err := s.store.CountOverdue(s.ctx, s.now)
	s.Require().NoError(err)
	s.Equal(1, overdueCount)
}

func (s *PostgresRequestStoreSuite) TestListByMatchedRule() {
	ruleID := uuid.New()
	decidedAt := s.now.Add(time.Minute)

	resolved := s.newRequest("demo_site", nil)
	s.Require().NoError(s.store.Create(s.ctx, resolved))
	_, err := s.store.Transition(s.ctx, resolved.ID,
		[]models.Status{models.StatusPending}, models.StatusAutoApproved,
		models.TransitionStamp{DecidedAt: &decidedAt, DecidedBy: "auto-approval-engine", MatchedRuleID: &ruleID})
	s.Require().NoError(err)

	open := s.newRequest("demo_site", nil)
	s.Require().NoError(s.store.Create(s.ctx, open))
	_, err = s.store.Transition(s.ctx, open.ID,
		[]models.Status{models.StatusPending}, models.StatusEscalated,
		models.TransitionStamp{EscalatedAt: &decidedAt, MatchedRuleID: &ruleID, Actor: "auto-approval-engine"})
	s.Require().NoError(err)

	got, err := s.store.ListByMatchedRule(s.ctx, ruleID)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(resolved.ID, got[0].ID)
}
