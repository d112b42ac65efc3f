// Package models defines the auto-approval rule domain: typed condition
// fields, the operator compatibility table, and the rule aggregate. All
// operator/type checking happens at rule-save time so evaluation stays total.
package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	dErrors "leadgate/pkg/domain-errors"
)

// FieldType declares how a condition field's values are compared.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldDate   FieldType = "date"
)

// Operator is a comparison applied to a single attribute.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// LogicOperator chains a condition with the previous one in the same rule.
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
	LogicNot LogicOperator = "NOT"
)

// Outcome is what a matching rule resolves a request to.
type Outcome string

const (
	OutcomeAutoApprove Outcome = "auto_approve"
	OutcomeAutoReject  Outcome = "auto_reject"
	OutcomeEscalate    Outcome = "escalate"
)

// ConfidenceField is the attribute a rule's confidence threshold compares
// against. Producers put the resource's quality score there.
const ConfidenceField = "quality_score"

// operatorTypes is the closed compatibility table: which field types each
// operator may be applied to.
var operatorTypes = map[Operator][]FieldType{
	OpEquals:      {FieldString, FieldNumber, FieldDate},
	OpContains:    {FieldString},
	OpStartsWith:  {FieldString},
	OpEndsWith:    {FieldString},
	OpIn:          {FieldString, FieldNumber},
	OpNotIn:       {FieldString, FieldNumber},
	OpGreaterThan: {FieldNumber, FieldDate},
	OpLessThan:    {FieldNumber, FieldDate},
}

// OperatorAllowed reports whether op may be applied to a field of type ft.
func OperatorAllowed(op Operator, ft FieldType) bool {
	for _, allowed := range operatorTypes[op] {
		if allowed == ft {
			return true
		}
	}
	return false
}

// Operators returns the full operator set, for API discovery responses.
func Operators() []Operator {
	return []Operator{
		OpEquals, OpContains, OpStartsWith, OpEndsWith,
		OpIn, OpNotIn, OpGreaterThan, OpLessThan,
	}
}

// FieldRegistry declares the type of every attribute conditions may refer to.
// Unknown fields are rejected at rule-save time.
type FieldRegistry map[string]FieldType

// DefaultFieldRegistry covers the attributes the CRM's producers attach to
// approval requests today.
func DefaultFieldRegistry() FieldRegistry {
	return FieldRegistry{
		ConfidenceField:     FieldNumber,
		"business_name":     FieldString,
		"business_type":     FieldString,
		"lead.id":           FieldString,
		"lead.source":       FieldString,
		"lead.price":        FieldNumber,
		"lead.rating":       FieldNumber,
		"lead.review_count": FieldNumber,
		"lead.created_at":   FieldDate,
		"template":          FieldString,
		"recipient_domain":  FieldString,
	}
}

// Register adds or overrides a field declaration.
func (r FieldRegistry) Register(field string, ft FieldType) {
	r[field] = ft
}

// Lookup returns the declared type of a field.
func (r FieldRegistry) Lookup(field string) (FieldType, bool) {
	ft, ok := r[field]
	return ft, ok
}

// Condition is a typed predicate over one attribute. For in/not_in, Values
// carries the set; otherwise Value carries the scalar.
type Condition struct {
	Field    string        `json:"field"`
	Operator Operator      `json:"operator"`
	Value    string        `json:"value,omitempty"`
	Values   []string      `json:"values,omitempty"`
	Logic    LogicOperator `json:"logic_operator,omitempty"`
}

// Validate enforces the operator/type table against the registry. first marks
// the first condition in a rule, which must not carry a logic operator.
func (c Condition) Validate(registry FieldRegistry, first bool) error {
	if c.Field == "" {
		return dErrors.New(dErrors.CodeValidation, "condition field is required")
	}
	ft, ok := registry.Lookup(c.Field)
	if !ok {
		return dErrors.Newf(dErrors.CodeValidation, "unknown condition field %q", c.Field)
	}
	if _, known := operatorTypes[c.Operator]; !known {
		return dErrors.Newf(dErrors.CodeValidation, "unknown operator %q", c.Operator)
	}
	if !OperatorAllowed(c.Operator, ft) {
		return dErrors.Newf(dErrors.CodeValidation, "operator %q is not valid for %s field %q", c.Operator, ft, c.Field)
	}

	if c.Operator == OpIn || c.Operator == OpNotIn {
		if len(c.Values) == 0 {
			return dErrors.Newf(dErrors.CodeValidation, "operator %q requires a non-empty value list", c.Operator)
		}
	} else if c.Value == "" {
		return dErrors.Newf(dErrors.CodeValidation, "operator %q requires a value", c.Operator)
	}

	if ft == FieldNumber {
		for _, v := range c.comparands() {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return dErrors.Newf(dErrors.CodeValidation, "value %q is not numeric for field %q", v, c.Field)
			}
		}
	}
	if ft == FieldDate && c.Operator != OpIn && c.Operator != OpNotIn {
		if _, ok := ParseDate(c.Value); !ok {
			return dErrors.Newf(dErrors.CodeValidation, "value %q is not a date for field %q", c.Value, c.Field)
		}
	}

	if first {
		if c.Logic != "" {
			return dErrors.New(dErrors.CodeValidation, "first condition must not carry a logic operator")
		}
		return nil
	}
	switch c.Logic {
	case LogicAnd, LogicOr, LogicNot:
		return nil
	default:
		return dErrors.Newf(dErrors.CodeValidation, "invalid logic operator %q", c.Logic)
	}
}

func (c Condition) comparands() []string {
	if len(c.Values) > 0 {
		return c.Values
	}
	return []string{c.Value}
}

// ParseDate accepts RFC3339 timestamps and plain dates, the two formats the
// CRM writes into metadata.
func ParseDate(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Rule is an operator-managed auto-approval policy. Lower priority evaluates
// first. Disabling removes a rule from evaluation without deleting history.
type Rule struct {
	ID                  uuid.UUID   `json:"id"`
	Name                string      `json:"name"`
	Priority            int         `json:"priority"`
	Enabled             bool        `json:"enabled"`
	ResourceType        string      `json:"resource_type"`
	Conditions          []Condition `json:"conditions"`
	Outcome             Outcome     `json:"outcome"`
	ConfidenceThreshold *float64    `json:"confidence_threshold,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// Validate enforces rule invariants at save time.
func (r *Rule) Validate(registry FieldRegistry) error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "rule name is required")
	}
	if r.ResourceType == "" {
		return dErrors.New(dErrors.CodeValidation, "rule resource_type is required")
	}
	switch r.Outcome {
	case OutcomeAutoApprove, OutcomeAutoReject, OutcomeEscalate:
	default:
		return dErrors.Newf(dErrors.CodeValidation, "invalid outcome %q", r.Outcome)
	}
	if len(r.Conditions) == 0 && r.ConfidenceThreshold == nil {
		return dErrors.New(dErrors.CodeValidation, "rule requires at least one condition or a confidence threshold")
	}
	for i, cond := range r.Conditions {
		if err := cond.Validate(registry, i == 0); err != nil {
			return err
		}
	}
	if r.ConfidenceThreshold != nil {
		if *r.ConfidenceThreshold < 0 || *r.ConfidenceThreshold > 100 {
			return dErrors.New(dErrors.CodeValidation, "confidence_threshold must be between 0 and 100")
		}
	}
	return nil
}

// Decision is the outcome of evaluating the active rule set against one
// request's attributes.
type Decision struct {
	Outcome        Outcome
	MatchedRuleID  uuid.UUID
	ConfidenceUsed *float64
}
