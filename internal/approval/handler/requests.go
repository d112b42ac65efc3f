package handler

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"leadgate/internal/approval/models"
	dErrors "leadgate/pkg/domain-errors"
	platformstrings "leadgate/pkg/platform/strings"
)

const maxBulkSize = 100

// CreateRequest is the HTTP request body for POST /approvals. SLASeconds
// overrides the per-type SLA for this request; zero means use the configured
// default.
type CreateRequest struct {
	ApprovalType string            `json:"approval_type"`
	ResourceID   string            `json:"resource_id"`
	ResourceData json.RawMessage   `json:"resource_data,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CallbackURL  string            `json:"callback_url,omitempty"`
	SLASeconds   int64             `json:"sla_seconds,omitempty"`
}

func (r *CreateRequest) Validate() error {
	r.ApprovalType = strings.TrimSpace(r.ApprovalType)
	r.ResourceID = strings.TrimSpace(r.ResourceID)
	if r.ApprovalType == "" {
		return dErrors.New(dErrors.CodeValidation, "approval_type is required")
	}
	if r.ResourceID == "" {
		return dErrors.New(dErrors.CodeValidation, "resource_id is required")
	}
	if r.CallbackURL != "" && !strings.HasPrefix(r.CallbackURL, "http://") && !strings.HasPrefix(r.CallbackURL, "https://") {
		return dErrors.New(dErrors.CodeValidation, "callback_url must be an http or https URL")
	}
	if r.SLASeconds < 0 {
		return dErrors.New(dErrors.CodeValidation, "sla_seconds must not be negative")
	}
	return nil
}

func (r *CreateRequest) ToModel() *models.ApprovalRequest {
	return &models.ApprovalRequest{
		ApprovalType: r.ApprovalType,
		ResourceID:   r.ResourceID,
		ResourceData: r.ResourceData,
		Metadata:     r.Metadata,
		CallbackURL:  r.CallbackURL,
		SLAOverride:  time.Duration(r.SLASeconds) * time.Second,
	}
}

// DecideRequest is the HTTP request body for POST /approvals/{id}/decide.
type DecideRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

func (r *DecideRequest) Validate() error {
	switch r.Decision {
	case "approve", "reject":
		return nil
	default:
		return dErrors.New(dErrors.CodeValidation, `decision must be "approve" or "reject"`)
	}
}

func (r *DecideRequest) Approve() bool {
	return r.Decision == "approve"
}

// BulkDecideRequest is the HTTP request body for POST /approvals/bulk-decide.
type BulkDecideRequest struct {
	IDs      []string `json:"ids"`
	Decision string   `json:"decision"`
	Reason   string   `json:"reason,omitempty"`

	parsedIDs []uuid.UUID
}

func (r *BulkDecideRequest) Validate() error {
	ids := platformstrings.DedupeAndTrim(r.IDs)
	if len(ids) == 0 {
		return dErrors.New(dErrors.CodeValidation, "ids must not be empty")
	}
	if len(ids) > maxBulkSize {
		return dErrors.Newf(dErrors.CodeValidation, "at most %d ids per batch", maxBulkSize)
	}
	switch r.Decision {
	case "approve", "reject":
	default:
		return dErrors.New(dErrors.CodeValidation, `decision must be "approve" or "reject"`)
	}

	r.parsedIDs = make([]uuid.UUID, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			return dErrors.Newf(dErrors.CodeValidation, "id %q is not a UUID", raw)
		}
		r.parsedIDs = append(r.parsedIDs, id)
	}
	return nil
}

func (r *BulkDecideRequest) Approve() bool {
	return r.Decision == "approve"
}

// ParsedIDs returns the validated ids.
func (r *BulkDecideRequest) ParsedIDs() []uuid.UUID {
	return r.parsedIDs
}

// EscalateRequest is the HTTP request body for POST /approvals/{id}/escalate.
type EscalateRequest struct {
	Reason string `json:"reason,omitempty"`
}
