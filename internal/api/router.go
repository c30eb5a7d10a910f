// Package api assembles the HTTP surface of the service.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hszk-dev/countrytube/internal/api/handler"
	"github.com/hszk-dev/countrytube/internal/api/middleware"
)

// RouterConfig holds the handlers served by the router.
type RouterConfig struct {
	Logger    *slog.Logger
	Countries *handler.CountryHandler
	Health    *handler.HealthHandler
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter builds the chi router with the middleware chain and every route.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))

	r.Get("/health", cfg.Health.Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Get("/countries", cfg.Countries.List)
	r.Get("/supported-countries", cfg.Countries.SupportedCountries)

	// Administrative operations accept GET for compatibility with existing clients.
	r.Get("/seed-countries", cfg.Countries.Seed)
	r.Post("/seed-countries", cfg.Countries.Seed)
	r.Get("/clear-cache", cfg.Countries.ClearCache)
	r.Post("/clear-cache", cfg.Countries.ClearCache)

	return r
}
