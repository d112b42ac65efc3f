package handler

import (
	"leadgate/internal/approval/models"
)

// RequestResponse is the HTTP shape of an approval request. The model's JSON
// tags already fit the API, so the response embeds it directly.
type RequestResponse struct {
	*models.ApprovalRequest
}

func FromRequest(r *models.ApprovalRequest) RequestResponse {
	return RequestResponse{ApprovalRequest: r}
}

// ListResponse wraps a request collection.
type ListResponse struct {
	Requests []RequestResponse `json:"requests"`
	Count    int               `json:"count"`
}

func FromRequests(requests []*models.ApprovalRequest) ListResponse {
	out := make([]RequestResponse, 0, len(requests))
	for _, r := range requests {
		out = append(out, FromRequest(r))
	}
	return ListResponse{Requests: out, Count: len(out)}
}

// HistoryResponse wraps a request's transition log.
type HistoryResponse struct {
	Transitions []models.Transition `json:"transitions"`
}

func FromTransitions(transitions []models.Transition) HistoryResponse {
	if transitions == nil {
		transitions = []models.Transition{}
	}
	return HistoryResponse{Transitions: transitions}
}

// BulkDecideResponse reports per-id outcomes of a bulk decision.
type BulkDecideResponse struct {
	Results   []models.BulkDecisionResult `json:"results"`
	Succeeded int                         `json:"succeeded"`
}
