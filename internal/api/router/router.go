package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Estalvo/GeminiV26-sub001/internal/api/handlers"
	"github.com/Estalvo/GeminiV26-sub001/internal/api/middleware"
)

// Config holds router configuration
type Config struct {
	HealthHandler  *handlers.HealthHandler
	ExitHandler    *handlers.ExitHandler
	EntryHandler   *handlers.EntryHandler // nil disables POST /api/entries
	PolicyHandler  *handlers.PolicyHandler
	PendingHandler *handlers.PendingHandler
	TradesHandler  *handlers.TradesHandler

	CORS         middleware.CORSConfig
	AccessLogger *zerolog.Logger
}

// NewRouter creates a new HTTP router
func NewRouter(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(middleware.LoggingConfig{
		AccessLogger: cfg.AccessLogger,
		SkipPaths:    []string{"/health", "/metrics"},
	}))
	r.Use(middleware.Recovery)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(middleware.CORS(cfg.CORS))

	r.Get("/health", cfg.HealthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", cfg.HealthHandler.Detailed)

		// Exit engines
		r.Route("/exit/{symbol}", func(r chi.Router) {
			r.Get("/contexts", cfg.ExitHandler.ListContexts)
			r.Get("/contexts/{positionId}", cfg.ExitHandler.GetContext)
			r.Get("/profile", cfg.ExitHandler.GetProfile)
			r.Post("/rehydrate", cfg.ExitHandler.Rehydrate)
		})

		// Sizing
		r.Get("/instruments", cfg.PolicyHandler.ListInstruments)
		r.Get("/policy/{symbol}", cfg.PolicyHandler.Evaluate)

		// Entries
		if cfg.EntryHandler != nil {
			r.Post("/entries", cfg.EntryHandler.Open)
		}
		r.Get("/pending", cfg.PendingHandler.List)

		// Closed trades
		r.Get("/trades", cfg.TradesHandler.List)
	})

	return r
}
