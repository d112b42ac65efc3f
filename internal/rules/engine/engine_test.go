package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"leadgate/internal/rules/models"
)

type EngineSuite struct {
	suite.Suite
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func attrs(pairs ...string) map[string]string {
	m := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i]] = pairs[i+1]
	}
	return m
}

func (s *EngineSuite) TestEvaluateCondition() {
	s.Run("missing attribute never matches", func() {
		cond := models.Condition{Field: "business_name", Operator: models.OpEquals, Value: "Acme"}
		s.False(EvaluateCondition(cond, attrs()))
	})

	s.Run("equals compares numerically when both sides parse", func() {
		cond := models.Condition{Field: "lead.price", Operator: models.OpEquals, Value: "90.0"}
		s.True(EvaluateCondition(cond, attrs("lead.price", "90")))
	})

	s.Run("equals falls back to string comparison", func() {
		cond := models.Condition{Field: "business_name", Operator: models.OpEquals, Value: "Acme"}
		s.True(EvaluateCondition(cond, attrs("business_name", "Acme")))
		s.False(EvaluateCondition(cond, attrs("business_name", "acme")))
	})

	s.Run("contains, starts_with, ends_with", func() {
		a := attrs("business_name", "Acme Plumbing LLC")
		s.True(EvaluateCondition(models.Condition{Field: "business_name", Operator: models.OpContains, Value: "Plumbing"}, a))
		s.True(EvaluateCondition(models.Condition{Field: "business_name", Operator: models.OpStartsWith, Value: "Acme"}, a))
		s.True(EvaluateCondition(models.Condition{Field: "business_name", Operator: models.OpEndsWith, Value: "LLC"}, a))
		s.False(EvaluateCondition(models.Condition{Field: "business_name", Operator: models.OpContains, Value: "Roofing"}, a))
	})

	s.Run("in and not_in honor numeric equivalence", func() {
		a := attrs("lead.rating", "4.0")
		in := models.Condition{Field: "lead.rating", Operator: models.OpIn, Values: []string{"4", "5"}}
		s.True(EvaluateCondition(in, a))
		notIn := models.Condition{Field: "lead.rating", Operator: models.OpNotIn, Values: []string{"4", "5"}}
		s.False(EvaluateCondition(notIn, a))
	})

	s.Run("greater_than and less_than compare numbers", func() {
		a := attrs("lead.review_count", "25")
		s.True(EvaluateCondition(models.Condition{Field: "lead.review_count", Operator: models.OpGreaterThan, Value: "10"}, a))
		s.False(EvaluateCondition(models.Condition{Field: "lead.review_count", Operator: models.OpLessThan, Value: "10"}, a))
	})

	s.Run("ordered operators compare dates", func() {
		a := attrs("lead.created_at", "2026-08-01")
		s.True(EvaluateCondition(models.Condition{Field: "lead.created_at", Operator: models.OpGreaterThan, Value: "2026-07-01"}, a))
		s.False(EvaluateCondition(models.Condition{Field: "lead.created_at", Operator: models.OpGreaterThan, Value: "2026-09-01"}, a))
	})

	s.Run("unparsable comparand is a non-match, not an error", func() {
		a := attrs("lead.review_count", "not-a-number")
		s.False(EvaluateCondition(models.Condition{Field: "lead.review_count", Operator: models.OpGreaterThan, Value: "10"}, a))
	})
}

func (s *EngineSuite) TestEvaluateConditions() {
	ratingHigh := models.Condition{Field: "lead.rating", Operator: models.OpGreaterThan, Value: "4"}
	sourceGoogle := models.Condition{Field: "lead.source", Operator: models.OpEquals, Value: "google", Logic: models.LogicAnd}
	sourceYelp := models.Condition{Field: "lead.source", Operator: models.OpEquals, Value: "yelp", Logic: models.LogicOr}
	cheap := models.Condition{Field: "lead.price", Operator: models.OpLessThan, Value: "10", Logic: models.LogicNot}

	s.Run("empty condition list matches everything", func() {
		s.True(EvaluateConditions(nil, attrs()))
	})

	s.Run("AND requires both", func() {
		conds := []models.Condition{ratingHigh, sourceGoogle}
		s.True(EvaluateConditions(conds, attrs("lead.rating", "4.5", "lead.source", "google")))
		s.False(EvaluateConditions(conds, attrs("lead.rating", "4.5", "lead.source", "yelp")))
	})

	s.Run("OR accepts either", func() {
		conds := []models.Condition{sourceGoogleFirst(), sourceYelp}
		s.True(EvaluateConditions(conds, attrs("lead.source", "yelp")))
		s.True(EvaluateConditions(conds, attrs("lead.source", "google")))
		s.False(EvaluateConditions(conds, attrs("lead.source", "facebook")))
	})

	s.Run("NOT negates its condition and combines conjunctively", func() {
		conds := []models.Condition{ratingHigh, cheap}
		s.True(EvaluateConditions(conds, attrs("lead.rating", "4.5", "lead.price", "50")))
		s.False(EvaluateConditions(conds, attrs("lead.rating", "4.5", "lead.price", "5")))
	})

	s.Run("fold is left to right", func() {
		// (false OR true) AND true = true
		conds := []models.Condition{
			{Field: "lead.source", Operator: models.OpEquals, Value: "facebook"},
			sourceYelp,
			{Field: "lead.rating", Operator: models.OpGreaterThan, Value: "3", Logic: models.LogicAnd},
		}
		s.True(EvaluateConditions(conds, attrs("lead.source", "yelp", "lead.rating", "4")))
	})
}

func sourceGoogleFirst() models.Condition {
	return models.Condition{Field: "lead.source", Operator: models.OpEquals, Value: "google"}
}

func (s *EngineSuite) TestSelectOutcome() {
	threshold := func(v float64) *float64 { return &v }
	ruleA := &models.Rule{
		ID: uuid.New(), Name: "approve high rating", Priority: 10, Enabled: true,
		ResourceType: "demo_site",
		Conditions:   []models.Condition{{Field: "lead.rating", Operator: models.OpGreaterThan, Value: "4"}},
		Outcome:      models.OutcomeAutoApprove,
	}
	ruleB := &models.Rule{
		ID: uuid.New(), Name: "reject cheap", Priority: 20, Enabled: true,
		ResourceType: "demo_site",
		Conditions:   []models.Condition{{Field: "lead.price", Operator: models.OpLessThan, Value: "10"}},
		Outcome:      models.OutcomeAutoReject,
	}

	s.Run("first matching rule by priority wins", func() {
		a := attrs("lead.rating", "4.5", "lead.price", "5")
		decision, ok := SelectOutcome("demo_site", a, []*models.Rule{ruleB, ruleA})
		s.Require().True(ok)
		s.Equal(models.OutcomeAutoApprove, decision.Outcome)
		s.Equal(ruleA.ID, decision.MatchedRuleID)
	})

	s.Run("evaluation is deterministic across input order", func() {
		a := attrs("lead.rating", "4.5", "lead.price", "5")
		d1, ok1 := SelectOutcome("demo_site", a, []*models.Rule{ruleA, ruleB})
		d2, ok2 := SelectOutcome("demo_site", a, []*models.Rule{ruleB, ruleA})
		s.Require().True(ok1)
		s.Require().True(ok2)
		s.Equal(d1.MatchedRuleID, d2.MatchedRuleID)
	})

	s.Run("disabled rules and other resource types are skipped", func() {
		disabled := *ruleA
		disabled.Enabled = false
		a := attrs("lead.rating", "4.5")
		_, ok := SelectOutcome("demo_site", a, []*models.Rule{&disabled})
		s.False(ok)
		_, ok = SelectOutcome("email_send", a, []*models.Rule{ruleA})
		s.False(ok)
	})

	s.Run("confidence threshold gates auto_approve", func() {
		gated := *ruleA
		gated.ConfidenceThreshold = threshold(80)
		low := attrs("lead.rating", "4.5", "quality_score", "70")
		_, ok := SelectOutcome("demo_site", low, []*models.Rule{&gated})
		s.False(ok)

		high := attrs("lead.rating", "4.5", "quality_score", "90")
		decision, ok := SelectOutcome("demo_site", high, []*models.Rule{&gated})
		s.Require().True(ok)
		s.Require().NotNil(decision.ConfidenceUsed)
		s.InDelta(90, *decision.ConfidenceUsed, 0.001)
	})

	s.Run("missing confidence fails the gate", func() {
		gated := *ruleA
		gated.ConfidenceThreshold = threshold(80)
		a := attrs("lead.rating", "4.5")
		_, ok := SelectOutcome("demo_site", a, []*models.Rule{&gated})
		s.False(ok)
	})

	s.Run("threshold on escalate rules is informational only", func() {
		escalate := *ruleA
		escalate.Outcome = models.OutcomeEscalate
		escalate.ConfidenceThreshold = threshold(80)
		a := attrs("lead.rating", "4.5", "quality_score", "10")
		decision, ok := SelectOutcome("demo_site", a, []*models.Rule{&escalate})
		s.Require().True(ok)
		s.Equal(models.OutcomeEscalate, decision.Outcome)
	})

	s.Run("no rules means manual queue", func() {
		_, ok := SelectOutcome("demo_site", attrs("lead.rating", "4.5"), nil)
		s.False(ok)
	})
}
