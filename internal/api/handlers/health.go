package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Estalvo/GeminiV26-sub001/internal/api/response"
	"github.com/Estalvo/GeminiV26-sub001/internal/infra/database/postgres"
	exitsvc "github.com/Estalvo/GeminiV26-sub001/internal/service/exit"
)

// DatabaseHealth is implemented by *postgres.Pool
type DatabaseHealth interface {
	Health(ctx context.Context) *postgres.HealthStatus
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db        DatabaseHealth // nil when trade records are not persisted
	engines   EngineRegistry
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db DatabaseHealth, engines EngineRegistry, version string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		engines:   engines,
		startTime: time.Now(),
		version:   version,
	}
}

// SimpleHealthResponse represents a simple health check response
type SimpleHealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// DetailedHealthResponse represents detailed health information
type DetailedHealthResponse struct {
	Status        string                     `json:"status"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Timestamp     time.Time                  `json:"timestamp"`
	Components    map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health status of a component
type ComponentHealth struct {
	Status       string         `json:"status"`
	ResponseTime string         `json:"response_time,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Message      string         `json:"message,omitempty"`
}

// Health returns simple liveness check
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, SimpleHealthResponse{
		Status:    postgres.StatusHealthy,
		Timestamp: time.Now(),
	})
}

// Detailed returns engine and database health
// GET /api/health
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]ComponentHealth)
	overall := postgres.StatusHealthy

	contexts := make(map[string]any)
	if h.engines != nil {
		for _, e := range h.engines.Engines() {
			contexts[e.Symbol()] = e.Len()
		}
	}
	components["exit_engines"] = ComponentHealth{
		Status:  postgres.StatusHealthy,
		Details: contexts,
	}

	if h.db != nil {
		db := h.db.Health(r.Context())
		c := ComponentHealth{
			Status:       db.Status,
			ResponseTime: db.ResponseTime,
			Message:      db.Error,
			Details: map[string]any{
				"active_conns": db.ActiveConns,
				"idle_conns":   db.IdleConns,
				"total_conns":  db.TotalConns,
				"max_conns":    db.MaxConns,
			},
		}
		components["database"] = c

		if db.Status == postgres.StatusUnhealthy {
			overall = postgres.StatusUnhealthy
		} else if db.Status == postgres.StatusDegraded {
			overall = postgres.StatusDegraded
		}
	}

	response.Success(w, r, DetailedHealthResponse{
		Status:        overall,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now(),
		Components:    components,
	})
}

// EngineRegistry resolves and lists exit engines; implemented by *entry.Service
type EngineRegistry interface {
	Engine(symbol string) (*exitsvc.Engine, error)
	Engines() []*exitsvc.Engine
}
