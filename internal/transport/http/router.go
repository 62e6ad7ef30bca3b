// Package httptransport exposes the trace pipeline over HTTP: record dispatch,
// schema inspection, and the operator endpoints for migration, audit and diagnostics.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"tracekeeper/internal/platform/metrics"
	"tracekeeper/internal/platform/middleware"
	"tracekeeper/pkg/platform/httputil"
	"tracekeeper/pkg/platform/middleware/admin"
	"tracekeeper/pkg/platform/middleware/request"
	"tracekeeper/pkg/platform/middleware/requesttime"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RouterConfig collects what NewRouter mounts.
type RouterConfig struct {
	Handler    *Handler
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Registry   *prometheus.Registry
	AdminToken string
	Health     map[string]HealthCheck
}

// NewRouter wires middleware, the service endpoints, /healthz and /metrics.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Observe(logger, cfg.Metrics))

	r.Get("/healthz", healthHandler(cfg.Health))
	if cfg.Registry != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Registry))
	}

	if cfg.Handler != nil {
		cfg.Handler.Register(r)
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(cfg.AdminToken, logger))
			cfg.Handler.RegisterAdmin(r)
		})
	}
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
		status := http.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
