// Package identity lifts caller identity and correlation metadata from
// request headers into the context. Authentication happens upstream; this
// service trusts the gateway-set headers.
package identity

import (
	"net/http"

	"github.com/google/uuid"

	"carematch/pkg/requestcontext"
)

const (
	// HeaderUsername carries the acting username set by the upstream gateway.
	HeaderUsername = "X-Username"
	// HeaderRequestID carries the correlation ID; one is minted when absent.
	HeaderRequestID = "X-Request-Id"
)

// Middleware stores the actor and request ID in the context and echoes the
// request ID back on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		if actor := r.Header.Get(HeaderUsername); actor != "" {
			ctx = requestcontext.WithActor(ctx, actor)
		}

		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
