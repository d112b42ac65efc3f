//go:build integration

package rule

import (
	"context"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"leadgate/internal/rules/models"
	"leadgate/pkg/testutil/containers"
)

type PostgresRuleStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	ctx   context.Context
}

func (s *PostgresRuleStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	m, err := migrate.New("file://../../../../migrations", s.pg.URL)
	s.Require().NoError(err)
	s.Require().NoError(m.Up())

	s.store = NewPostgres(s.pg.DB)
	s.ctx = context.Background()
}

func (s *PostgresRuleStoreSuite) SetupTest() {
	s.pg.Exec(s.T(), "TRUNCATE auto_approval_rules CASCADE")
}

func TestPostgresRuleStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresRuleStoreSuite))
}

func (s *PostgresRuleStoreSuite) newRule(name string, priority int) *models.Rule {
	threshold := 85.0
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Rule{
		ID:           uuid.New(),
		Name:         name,
		Priority:     priority,
		Enabled:      true,
		ResourceType: "demo_site",
		Conditions: []models.Condition{
			{Field: "lead.rating", Operator: models.OpGreaterThan, Value: "4"},
			{Field: "lead.source", Operator: models.OpIn, Values: []string{"referral", "organic"}, Logic: models.LogicAnd},
		},
		Outcome:             models.OutcomeAutoApprove,
		ConfidenceThreshold: &threshold,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func (s *PostgresRuleStoreSuite) TestRoundTrip() {
	r := s.newRule("high rating referral", 10)
	s.Require().NoError(s.store.Create(s.ctx, r))

	found, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(r.Name, found.Name)
	s.Require().Len(found.Conditions, 2)
	s.Equal(models.OpIn, found.Conditions[1].Operator)
	s.Require().NotNil(found.ConfidenceThreshold)
	s.InDelta(85.0, *found.ConfidenceThreshold, 0.001)
	s.WithinDuration(r.CreatedAt, found.CreatedAt, time.Millisecond)
}

func (s *PostgresRuleStoreSuite) TestNullThreshold() {
	r := s.newRule("no threshold", 5)
	r.ConfidenceThreshold = nil
	s.Require().NoError(s.store.Create(s.ctx, r))

	found, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Nil(found.ConfidenceThreshold)
}

func (s *PostgresRuleStoreSuite) TestUpdate() {
	r := s.newRule("before", 10)
	s.Require().NoError(s.store.Create(s.ctx, r))

	r.Name = "after"
	r.Enabled = false
	r.Conditions = r.Conditions[:1]
	s.Require().NoError(s.store.Update(s.ctx, r))

	found, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal("after", found.Name)
	s.False(found.Enabled)
	s.Len(found.Conditions, 1)
}

func (s *PostgresRuleStoreSuite) TestNotFound() {
	_, err := s.store.FindByID(s.ctx, uuid.New())
	s.ErrorIs(err, ErrNotFound)

	s.ErrorIs(s.store.Update(s.ctx, s.newRule("ghost", 1)), ErrNotFound)
	s.ErrorIs(s.store.Delete(s.ctx, uuid.New()), ErrNotFound)
}

func (s *PostgresRuleStoreSuite) TestDelete() {
	r := s.newRule("doomed", 10)
	s.Require().NoError(s.store.Create(s.ctx, r))
	s.Require().NoError(s.store.Delete(s.ctx, r.ID))

	_, err := s.store.FindByID(s.ctx, r.ID)
	s.ErrorIs(err, ErrNotFound)
}

func (s *PostgresRuleStoreSuite) TestListOrdering() {
	s.Require().NoError(s.store.Create(s.ctx, s.newRule("bravo", 20)))
	s.Require().NoError(s.store.Create(s.ctx, s.newRule("alpha", 20)))
	s.Require().NoError(s.store.Create(s.ctx, s.newRule("zulu", 5)))

	rules, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(rules, 3)
	s.Equal("zulu", rules[0].Name)
	s.Equal("alpha", rules[1].Name)
	s.Equal("bravo", rules[2].Name)
}
