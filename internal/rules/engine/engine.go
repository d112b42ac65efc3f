// Package engine evaluates the active rule set against a request's attribute
// snapshot. Everything here is a pure function of its inputs: the rule set is
// passed in explicitly, and evaluation never errors, so historical decisions
// can be replayed during threshold optimization.
package engine

import (
	"sort"
	"strconv"
	"strings"

	"leadgate/internal/rules/models"
)

// EvaluateCondition applies one condition to the attribute snapshot. A missing
// attribute never matches, and unparsable numbers or dates are non-matches
// rather than errors, so evaluation stays total.
func EvaluateCondition(cond models.Condition, attrs map[string]string) bool {
	actual, ok := attrs[cond.Field]
	if !ok {
		return false
	}

	switch cond.Operator {
	case models.OpEquals:
		if an, aok := parseNumber(actual); aok {
			if en, eok := parseNumber(cond.Value); eok {
				return an == en
			}
		}
		return actual == cond.Value
	case models.OpContains:
		return strings.Contains(actual, cond.Value)
	case models.OpStartsWith:
		return strings.HasPrefix(actual, cond.Value)
	case models.OpEndsWith:
		return strings.HasSuffix(actual, cond.Value)
	case models.OpIn:
		return inSet(actual, cond.Values)
	case models.OpNotIn:
		return !inSet(actual, cond.Values)
	case models.OpGreaterThan:
		return compareOrdered(actual, cond.Value, func(a, b float64) bool { return a > b })
	case models.OpLessThan:
		return compareOrdered(actual, cond.Value, func(a, b float64) bool { return a < b })
	default:
		return false
	}
}

// EvaluateConditions folds the condition list left-to-right. AND and OR
// combine as usual; NOT negates the condition it precedes and combines the
// negated result conjunctively.
func EvaluateConditions(conds []models.Condition, attrs map[string]string) bool {
	if len(conds) == 0 {
		return true
	}

	result := EvaluateCondition(conds[0], attrs)
	for _, cond := range conds[1:] {
		value := EvaluateCondition(cond, attrs)
		switch cond.Logic {
		case models.LogicOr:
			result = result || value
		case models.LogicNot:
			result = result && !value
		default:
			result = result && value
		}
	}
	return result
}

// SelectOutcome returns the decision of the first enabled rule for the given
// resource type whose conditions fully match, or false when no rule matches
// and the request belongs in the manual queue.
//
// A confidence threshold on an auto-approve rule acts as an implicit
// "quality_score >= threshold" condition. On reject and escalate rules the
// threshold is informational only; those outcomes never depend on confidence.
func SelectOutcome(resourceType string, attrs map[string]string, rules []*models.Rule) (*models.Decision, bool) {
	applicable := make([]*models.Rule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled && r.ResourceType == resourceType {
			applicable = append(applicable, r)
		}
	}
	sort.SliceStable(applicable, func(i, j int) bool {
		return applicable[i].Priority < applicable[j].Priority
	})

	confidence, hasConfidence := parseNumber(attrs[models.ConfidenceField])

	for _, r := range applicable {
		if !EvaluateConditions(r.Conditions, attrs) {
			continue
		}
		if r.Outcome == models.OutcomeAutoApprove && r.ConfidenceThreshold != nil {
			if !hasConfidence || confidence < *r.ConfidenceThreshold {
				continue
			}
		}

		decision := &models.Decision{Outcome: r.Outcome, MatchedRuleID: r.ID}
		if hasConfidence {
			c := confidence
			decision.ConfidenceUsed = &c
		}
		return decision, true
	}
	return nil, false
}

func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// compareOrdered compares numerically when both sides parse as numbers,
// falling back to date comparison. Anything else is a non-match.
func compareOrdered(actual, expected string, cmp func(a, b float64) bool) bool {
	if a, aok := parseNumber(actual); aok {
		if e, eok := parseNumber(expected); eok {
			return cmp(a, e)
		}
		return false
	}
	at, aok := models.ParseDate(actual)
	et, eok := models.ParseDate(expected)
	if !aok || !eok {
		return false
	}
	return cmp(float64(at.UnixNano()), float64(et.UnixNano()))
}

func inSet(actual string, values []string) bool {
	for _, v := range values {
		if v == actual {
			return true
		}
		// Numeric fields may carry "90" vs "90.0" formatting differences.
		if an, aok := parseNumber(actual); aok {
			if vn, vok := parseNumber(v); vok && an == vn {
				return true
			}
		}
	}
	return false
}
