package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Pinger is anything with a connectivity check: the pgx pool, the cache and object storage.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlers handles health check and monitoring endpoints
type HealthHandlers struct {
	db        Pinger
	cache     Pinger
	storage   Pinger
	logger    *zap.Logger
	version   string
	startedAt time.Time
	timeout   time.Duration
}

func NewHealthHandlers(db, cache, storage Pinger, logger *zap.Logger, version string) *HealthHandlers {
	return &HealthHandlers{
		db:        db,
		cache:     cache,
		storage:   storage,
		logger:    logger,
		version:   version,
		startedAt: time.Now(),
		timeout:   2 * time.Second,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Services   map[string]string `json:"services"`
	Uptime     string            `json:"uptime"`
	Version    string            `json:"version"`
	Goroutines int               `json:"goroutines"`
}

func (h *HealthHandlers) check(ctx context.Context, name string, p Pinger) bool {
	if p == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
		return false
	}
	return true
}

// HealthCheck reports every dependency. A failing dependency degrades the
// status but the endpoint still answers 200 so load balancers keep routing.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} HealthStatus
// @Router /health [get]
func (h *HealthHandlers) HealthCheck(c echo.Context) error {
	ctx := c.Request().Context()
	health := &HealthStatus{
		Status:     "healthy",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Services:   make(map[string]string, 3),
		Uptime:     time.Since(h.startedAt).Round(time.Second).String(),
		Version:    h.version,
		Goroutines: runtime.NumGoroutine(),
	}

	deps := []struct {
		name string
		p    Pinger
	}{
		{"database", h.db},
		{"redis", h.cache},
		{"storage", h.storage},
	}
	for _, dep := range deps {
		if h.check(ctx, dep.name, dep.p) {
			health.Services[dep.name] = "healthy"
			continue
		}
		health.Services[dep.name] = "unhealthy"
		health.Status = "degraded"
	}
	return c.JSON(http.StatusOK, health)
}

// ReadinessCheck determines if the application is ready to serve traffic.
// Only the database is critical; the cache fails open.
// @Summary Readiness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health/ready [get]
func (h *HealthHandlers) ReadinessCheck(c echo.Context) error {
	if !h.check(c.Request().Context(), "database", h.db) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":  "not_ready",
			"message": "database unavailable",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ready",
		"message": "All systems operational",
	})
}

// LivenessCheck determines if the application is running (basic liveness probe)
func (h *HealthHandlers) LivenessCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
