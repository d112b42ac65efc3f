package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"leadgate/internal/approval/models"
	dErrors "leadgate/pkg/domain-errors"
	"leadgate/pkg/platform/httputil"
	"leadgate/pkg/platform/middleware/auth"
	"leadgate/pkg/requestcontext"
)

// Service defines the approval operations the handler needs.
type Service interface {
	Create(ctx context.Context, req *models.ApprovalRequest) (*models.ApprovalRequest, error)
	Decide(ctx context.Context, id uuid.UUID, approve bool, reason string) (*models.ApprovalRequest, error)
	BulkDecide(ctx context.Context, ids []uuid.UUID, approve bool, reason string) []models.BulkDecisionResult
	Escalate(ctx context.Context, id uuid.UUID, reason string) (*models.ApprovalRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error)
	History(ctx context.Context, id uuid.UUID) ([]models.Transition, error)
	Pending(ctx context.Context, approvalType string, limit int) ([]*models.ApprovalRequest, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

// Handler wires approval endpoints to the approval service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts approval endpoints on the router. Decision endpoints are
// additionally gated on the operator role; service tokens may only create
// and read.
func (h *Handler) Register(r chi.Router) {
	r.Post("/approvals", h.HandleCreate)
	r.Get("/approvals/pending", h.HandlePending)
	r.Get("/approvals/stats", h.HandleStats)
	r.Get("/approvals/{id}", h.HandleGet)
	r.Get("/approvals/{id}/history", h.HandleHistory)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireOperator(h.logger))
		r.Post("/approvals/{id}/decide", h.HandleDecide)
		r.Post("/approvals/{id}/escalate", h.HandleEscalate)
		r.Post("/approvals/bulk-decide", h.HandleBulkDecide)
	})
}

// HandleCreate handles POST /approvals.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	created, err := h.service.Create(ctx, req.ToModel())
	if err != nil {
		h.logger.ErrorContext(ctx, "approval creation failed",
			"request_id", requestID,
			"approval_type", req.ApprovalType,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "approval request created",
		"request_id", requestID,
		"approval_id", created.ID,
		"approval_type", created.ApprovalType,
		"status", created.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromRequest(created))
}

// HandleDecide handles POST /approvals/{id}/decide.
func (h *Handler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[DecideRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	updated, err := h.service.Decide(ctx, id, req.Approve(), req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "decision rejected",
			"request_id", requestID,
			"approval_id", id,
			"decision", req.Decision,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequest(updated))
}

// HandleBulkDecide handles POST /approvals/bulk-decide.
func (h *Handler) HandleBulkDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BulkDecideRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	results := h.service.BulkDecide(ctx, req.ParsedIDs(), req.Approve(), req.Reason)
	succeeded := 0
	for _, res := range results {
		if res.OK {
			succeeded++
		}
	}
	h.logger.InfoContext(ctx, "bulk decision applied",
		"request_id", requestID,
		"batch_size", len(results),
		"succeeded", succeeded,
	)
	httputil.WriteJSON(w, http.StatusOK, BulkDecideResponse{Results: results, Succeeded: succeeded})
}

// HandleEscalate handles POST /approvals/{id}/escalate.
func (h *Handler) HandleEscalate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[EscalateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	updated, err := h.service.Escalate(ctx, id, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "escalation rejected",
			"request_id", requestID,
			"approval_id", id,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequest(updated))
}

// HandleGet handles GET /approvals/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequest(req))
}

// HandleHistory handles GET /approvals/{id}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	transitions, err := h.service.History(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTransitions(transitions))
}

// HandlePending handles GET /approvals/pending.
func (h *Handler) HandlePending(w http.ResponseWriter, r *http.Request) {
	approvalType := r.URL.Query().Get("type")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	requests, err := h.service.Pending(r.Context(), approvalType, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequests(requests))
}

// HandleStats handles GET /approvals/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "id must be a UUID")
	}
	return id, nil
}
