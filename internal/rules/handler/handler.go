package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"leadgate/internal/rules/models"
	"leadgate/internal/rules/service"
	dErrors "leadgate/pkg/domain-errors"
	"leadgate/pkg/platform/httputil"
	"leadgate/pkg/platform/middleware/auth"
	"leadgate/pkg/requestcontext"
)

// Service defines the rule operations the handler needs.
type Service interface {
	CreateRule(ctx context.Context, r *models.Rule) (*models.Rule, error)
	UpdateRule(ctx context.Context, r *models.Rule) (*models.Rule, error)
	GetRule(ctx context.Context, id uuid.UUID) (*models.Rule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
	ListRules(ctx context.Context) ([]*models.Rule, error)
	Performance(ctx context.Context, id uuid.UUID) (*service.Performance, error)
	Optimize(ctx context.Context, id uuid.UUID) (*service.OptimizeResult, error)
}

// Handler wires rule management endpoints to the rules service.
type Handler struct {
	service  Service
	registry models.FieldRegistry
	logger   *slog.Logger
}

func New(service Service, registry models.FieldRegistry, logger *slog.Logger) *Handler {
	return &Handler{service: service, registry: registry, logger: logger}
}

// Register mounts rule endpoints. Rule management is an operator action; the
// discovery endpoint is open to any authenticated caller so producers can
// inspect the condition vocabulary.
func (h *Handler) Register(r chi.Router) {
	r.Get("/auto-approval/fields", h.HandleFields)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireOperator(h.logger))
		r.Post("/auto-approval/rules", h.HandleCreate)
		r.Get("/auto-approval/rules", h.HandleList)
		r.Get("/auto-approval/rules/{id}", h.HandleGet)
		r.Put("/auto-approval/rules/{id}", h.HandleUpdate)
		r.Delete("/auto-approval/rules/{id}", h.HandleDelete)
		r.Get("/auto-approval/rules/{id}/performance", h.HandlePerformance)
		r.Post("/auto-approval/rules/{id}/optimize", h.HandleOptimize)
	})
}

// HandleCreate handles POST /auto-approval/rules.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RuleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	created, err := h.service.CreateRule(ctx, req.ToModel())
	if err != nil {
		h.logger.WarnContext(ctx, "rule creation rejected",
			"request_id", requestID,
			"name", req.Name,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// HandleUpdate handles PUT /auto-approval/rules/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RuleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rule := req.ToModel()
	rule.ID = id
	updated, err := h.service.UpdateRule(ctx, rule)
	if err != nil {
		h.logger.WarnContext(ctx, "rule update rejected",
			"request_id", requestID,
			"rule_id", id,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

// HandleGet handles GET /auto-approval/rules/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rule, err := h.service.GetRule(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rule)
}

// HandleDelete handles DELETE /auto-approval/rules/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.DeleteRule(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleList handles GET /auto-approval/rules.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListRules(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RulesResponse{Rules: rules, Count: len(rules)})
}

// HandlePerformance handles GET /auto-approval/rules/{id}/performance.
func (h *Handler) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	perf, err := h.service.Performance(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, perf)
}

// HandleOptimize handles POST /auto-approval/rules/{id}/optimize.
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.Optimize(ctx, id)
	if err != nil {
		h.logger.InfoContext(ctx, "optimization unavailable",
			"request_id", requestcontext.RequestID(ctx),
			"rule_id", id,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleFields handles GET /auto-approval/fields.
func (h *Handler) HandleFields(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, FieldsResponse{
		Fields:    h.registry,
		Operators: models.Operators(),
	})
}

func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "id must be a UUID")
	}
	return id, nil
}
