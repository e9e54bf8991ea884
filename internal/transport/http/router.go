// Package httptransport assembles the public HTTP surface: the chi router,
// shared middleware, health, and metrics endpoints.
package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"carematch/pkg/platform/httputil"
	"carematch/pkg/platform/middleware/identity"
	"carematch/pkg/platform/middleware/requesttime"
)

// Registrar mounts a group of endpoints on the router.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewRouter wires middleware, the API endpoints, and the operational
// endpoints. Nil health checkers are skipped.
func NewRouter(handlers []Registrar, checkers map[string]HealthChecker) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requesttime.Middleware)
	r.Use(identity.Middleware)

	r.Route("/api/v1", func(api chi.Router) {
		for _, h := range handlers {
			h.Register(api)
		}
	})

	r.Get("/healthz", handleHealth(checkers))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func handleHealth(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := http.StatusOK
		deps := make(map[string]string, len(checkers))
		for name, checker := range checkers {
			if checker == nil {
				continue
			}
			if err := checker.Health(ctx); err != nil {
				deps[name] = "unreachable"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}
		httputil.WriteJSON(w, status, map[string]any{
			"status":       httpStatusLabel(status),
			"dependencies": deps,
		})
	}
}

func httpStatusLabel(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}
