package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp    time.Time  `json:"timestamp"`
	Actor        string     `json:"actor"`
	Action       string     `json:"action"`
	RequestID    uuid.UUID  `json:"request_id"`
	ApprovalType string     `json:"approval_type,omitempty"`
	RuleID       *uuid.UUID `json:"rule_id,omitempty"`
	Decision     string     `json:"decision,omitempty"`
	Reason       string     `json:"reason,omitempty"`
}

// Actions emitted by the approval service.
const (
	ActionCreated   = "approval.created"
	ActionAutoRuled = "approval.auto_ruled"
	ActionDecided   = "approval.decided"
	ActionEscalated = "approval.escalated"
	ActionExpired   = "approval.expired"
)
