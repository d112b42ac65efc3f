// Package request provides middleware that assigns every inbound request a
// correlation ID and pins the request time, both exposed via requestcontext.
package request

import (
	"net/http"

	"github.com/google/uuid"

	"leadgate/pkg/requestcontext"
)

// HeaderRequestID is the inbound/outbound correlation header. The workflow
// engine echoes it back on callbacks, which makes webhook retries traceable.
const HeaderRequestID = "X-Request-Id"

// RequestID attaches a request ID (incoming header or fresh UUID) and the
// request arrival time to the context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		w.Header().Set(HeaderRequestID, reqID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context. Thin alias kept so
// middleware consumers don't need to import requestcontext directly.
var GetRequestID = requestcontext.RequestID
