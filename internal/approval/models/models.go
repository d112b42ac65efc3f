// Package models defines the approval request lifecycle entity and its state
// machine. The transition table is the single source of truth; every store
// and service guard re-checks it before mutating.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an approval request.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAutoApproved Status = "auto_approved"
	StatusApproved     Status = "approved"
	StatusRejected     Status = "rejected"
	StatusEscalated    Status = "escalated"
	StatusExpired      Status = "expired"
)

// Terminal reports whether no further transition is permitted out of s.
// Escalated is the one non-pending state that can still be decided.
func (s Status) Terminal() bool {
	switch s {
	case StatusAutoApproved, StatusApproved, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// Decidable reports whether a human decision may still be applied.
func (s Status) Decidable() bool {
	return s == StatusPending || s == StatusEscalated
}

// transitions is the closed transition table.
var transitions = map[Status][]Status{
	StatusPending:   {StatusAutoApproved, StatusApproved, StatusRejected, StatusEscalated, StatusExpired},
	StatusEscalated: {StatusApproved, StatusRejected, StatusExpired},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Statuses returns every lifecycle state, for stats aggregation.
func Statuses() []Status {
	return []Status{
		StatusPending, StatusAutoApproved, StatusApproved,
		StatusRejected, StatusEscalated, StatusExpired,
	}
}

// ApprovalRequest is one decision gate for one produced resource. The service
// owns it exclusively for its lifetime; producers keep only the ID.
type ApprovalRequest struct {
	ID           uuid.UUID         `json:"id"`
	ApprovalType string            `json:"approval_type"`
	ResourceID   string            `json:"resource_id"`
	ResourceData json.RawMessage   `json:"resource_data,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CallbackURL  string            `json:"callback_url,omitempty"`

	// SLAOverride replaces the per-type SLA for this request when positive.
	// Supplied by the producer at creation and consumed there; the armed
	// deadline lives in TimeoutAt.
	SLAOverride time.Duration `json:"-"`

	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	TimeoutAt      *time.Time `json:"timeout_at,omitempty"`
	EscalatedAt    *time.Time `json:"escalated_at,omitempty"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	DecidedBy      string     `json:"decided_by,omitempty"`
	DecisionReason string     `json:"decision_reason,omitempty"`
	MatchedRuleID  *uuid.UUID `json:"matched_rule_id,omitempty"`
}

// Clone returns a deep copy so in-memory stores never leak shared state.
func (r *ApprovalRequest) Clone() *ApprovalRequest {
	cp := *r
	if r.Metadata != nil {
		cp.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	if r.ResourceData != nil {
		cp.ResourceData = append(json.RawMessage(nil), r.ResourceData...)
	}
	if r.TimeoutAt != nil {
		t := *r.TimeoutAt
		cp.TimeoutAt = &t
	}
	if r.EscalatedAt != nil {
		t := *r.EscalatedAt
		cp.EscalatedAt = &t
	}
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		cp.DecidedAt = &t
	}
	if r.MatchedRuleID != nil {
		id := *r.MatchedRuleID
		cp.MatchedRuleID = &id
	}
	return &cp
}

// Transition is one append-only history record. History is never rewritten;
// the optimizer and the performance endpoint read it as a log.
type Transition struct {
	ID         int64     `json:"id"`
	RequestID  uuid.UUID `json:"request_id"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	DecidedBy  string    `json:"decided_by,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TransitionStamp carries the mutation applied together with a status change.
// The store applies stamp and status in one guarded write. Actor attributes
// the history record when the request itself gains no decider, as with
// escalations and sweeper expiries.
type TransitionStamp struct {
	DecidedAt      *time.Time
	DecidedBy      string
	DecisionReason string
	MatchedRuleID  *uuid.UUID
	TimeoutAt      *time.Time
	ClearTimeout   bool
	EscalatedAt    *time.Time
	Actor          string
	Reason         string
}

// HistoryActor returns who should be recorded on the history row.
func (s TransitionStamp) HistoryActor() string {
	if s.Actor != "" {
		return s.Actor
	}
	return s.DecidedBy
}

// HistoryReason returns the reason recorded on the history row.
func (s TransitionStamp) HistoryReason() string {
	if s.Reason != "" {
		return s.Reason
	}
	return s.DecisionReason
}

// BulkDecisionResult is the per-id outcome of a bulk decision. The batch is
// not transactional; each entry stands alone.
type BulkDecisionResult struct {
	ID    uuid.UUID `json:"id"`
	OK    bool      `json:"ok"`
	Error string    `json:"error,omitempty"`
}

// Stats summarizes the queue for the operator dashboard.
type Stats struct {
	Counts                 map[Status]int `json:"counts"`
	PendingOverdue         int            `json:"pending_overdue"`
	WebhookFailuresDropped int            `json:"webhook_failures_dropped"`
}
