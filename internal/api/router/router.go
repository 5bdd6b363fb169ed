package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/robo-agendamentos/internal/dispatch"
	"github.com/wolfman30/robo-agendamentos/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/robo-agendamentos/internal/http/middleware"
	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	DispatchHandler *dispatch.Handler
	StatusHandler   *handlers.StatusHandler
	MetricsHandler  http.Handler

	// TriggerSecret enables JWT auth on /api when set.
	TriggerSecret string
	// RateLimiter throttles /api per client IP when set.
	RateLimiter *httpmiddleware.IPRateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", handlers.HealthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.StatusHandler != nil {
			public.Get("/ws/status", cfg.StatusHandler.StreamStatus)
		}
	})

	r.Route("/api", func(api chi.Router) {
		if cfg.RateLimiter != nil {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}
		if cfg.StatusHandler != nil {
			api.Get("/status", cfg.StatusHandler.GetStatus)
		}
		api.Group(func(trigger chi.Router) {
			if cfg.TriggerSecret != "" {
				trigger.Use(httpmiddleware.TriggerJWT(cfg.TriggerSecret, cfg.Logger))
			}
			if cfg.DispatchHandler != nil {
				cfg.DispatchHandler.RegisterRoutes(trigger)
			}
		})
	})

	return r
}
