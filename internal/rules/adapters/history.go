// Package adapters bridges the approval request store into the shapes the
// rules domain consumes, keeping the two domains free of direct imports.
package adapters

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	approvalmodels "leadgate/internal/approval/models"
	rulesmodels "leadgate/internal/rules/models"
	"leadgate/internal/rules/service"
)

// ResolvedLister is the slice of the approval request store the adapter needs.
type ResolvedLister interface {
	ListByMatchedRule(ctx context.Context, ruleID uuid.UUID) ([]*approvalmodels.ApprovalRequest, error)
}

// History adapts resolved approval requests into rule outcomes. The
// confidence a rule saw at evaluation time is recovered from the request's
// metadata snapshot, which is immutable after creation.
type History struct {
	store ResolvedLister
}

func NewHistory(store ResolvedLister) *History {
	return &History{store: store}
}

func (h *History) OutcomesForRule(ctx context.Context, ruleID uuid.UUID) ([]service.RuleOutcome, error) {
	requests, err := h.store.ListByMatchedRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	out := make([]service.RuleOutcome, 0, len(requests))
	for _, r := range requests {
		o := service.RuleOutcome{Resolution: string(r.Status)}
		if raw, ok := r.Metadata[rulesmodels.ConfidenceField]; ok {
			if c, err := strconv.ParseFloat(raw, 64); err == nil {
				o.Confidence = &c
			}
		}
		out = append(out, o)
	}
	return out, nil
}
