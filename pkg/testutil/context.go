package testutil

import (
	"net/http"
	"time"

	"leadgate/pkg/requestcontext"
)

// WithOperator adds an operator identity to the request context, simulating
// what the auth middleware does for an operator token.
func WithOperator(req *http.Request, operatorID string) *http.Request {
	if operatorID == "" {
		return req
	}
	return req.WithContext(requestcontext.WithOperatorID(req.Context(), operatorID))
}

// WithRequestID adds a request ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithFixedTime pins the request-scoped clock, so handlers under test produce
// deterministic timestamps.
func WithFixedTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
