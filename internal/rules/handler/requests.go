package handler

import (
	"leadgate/internal/rules/models"
)

// RuleRequest is the HTTP request body for rule create and update. Semantic
// validation happens in the service against the field registry.
type RuleRequest struct {
	Name                string             `json:"name"`
	Priority            int                `json:"priority"`
	Enabled             bool               `json:"enabled"`
	ResourceType        string             `json:"resource_type"`
	Conditions          []models.Condition `json:"conditions"`
	Outcome             string             `json:"outcome"`
	ConfidenceThreshold *float64           `json:"confidence_threshold,omitempty"`
}

func (r *RuleRequest) ToModel() *models.Rule {
	return &models.Rule{
		Name:                r.Name,
		Priority:            r.Priority,
		Enabled:             r.Enabled,
		ResourceType:        r.ResourceType,
		Conditions:          r.Conditions,
		Outcome:             models.Outcome(r.Outcome),
		ConfidenceThreshold: r.ConfidenceThreshold,
	}
}

// RulesResponse wraps a rule collection.
type RulesResponse struct {
	Rules []*models.Rule `json:"rules"`
	Count int            `json:"count"`
}

// FieldsResponse describes the condition vocabulary for API discovery.
type FieldsResponse struct {
	Fields    models.FieldRegistry `json:"fields"`
	Operators []models.Operator    `json:"operators"`
}
