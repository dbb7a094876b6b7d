package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the subset of pool counters exposed on the health endpoint.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

// HealthHandler reports process and database liveness.
type HealthHandler struct {
	pool *pgxpool.Pool
}

func NewHealthHandler(pool *pgxpool.Pool) *HealthHandler {
	return &HealthHandler{pool: pool}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
}

func (h *HealthHandler) Health(c echo.Context) error {
	resp := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	}

	if h.pool != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		if err := h.pool.Ping(ctx); err != nil {
			resp["status"] = "degraded"
			resp["database"] = "unreachable"
			return c.JSON(http.StatusServiceUnavailable, resp)
		}

		stats := h.pool.Stat()
		resp["database"] = PoolStats{
			TotalConns:    stats.TotalConns(),
			IdleConns:     stats.IdleConns(),
			AcquiredConns: stats.AcquiredConns(),
			MaxConns:      stats.MaxConns(),
		}
	}

	return c.JSON(http.StatusOK, resp)
}
