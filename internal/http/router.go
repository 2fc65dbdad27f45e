// Package httpapi assembles the chi router for the credential engine.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"racepass/internal/platform/middleware"
	"racepass/internal/vc/handler"
	"racepass/pkg/platform/httputil"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Config carries the router's dependencies.
type Config struct {
	Handler    *handler.Handler
	Logger     *slog.Logger
	AdminToken string

	// Optional backing stores checked by /healthz.
	Checks map[string]HealthChecker
}

// NewRouter mounts all endpoints with the standard middleware stack.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", healthHandler(cfg.Checks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		cfg.Handler.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAdminToken(cfg.AdminToken, cfg.Logger))
		cfg.Handler.RegisterAdmin(r)
	})

	return r
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check.Health(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
			}
		}
		httputil.WriteJSON(w, status, body)
	}
}
