package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the correlation ID. An inbound value is
	// reused as-is so the ID survives hops through upstream proxies.
	RequestIDHeader = "X-Request-ID"

	// RequestIDContextKey is the context key for the correlation ID
	RequestIDContextKey contextKey = "request_id"
)

// RequestID tags every request with a correlation ID, minting one when the
// caller did not send its own. The ID is echoed on the response so clients
// can quote it when reporting a failure, and stored in the context for the
// request logger to pick up.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), RequestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the correlation ID from the context, or "" when the
// middleware did not run.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}
