package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// Check is a named dependency health check, e.g. the summary cache.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler pings the pool and every extra check. Any failure turns the
// response into a 503; the body always lists each dependency.
func HealthHandler(pool *pgxpool.Pool, checks ...Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		all := append([]Check{{Name: "database", Ping: pool.Ping}}, checks...)
		status, deps := RunChecks(ctx, all)

		body := map[string]interface{}{
			"status":       "healthy",
			"dependencies": deps,
			"pool":         GetPoolStats(pool),
		}
		if status != http.StatusOK {
			body["status"] = "unhealthy"
		}
		return c.JSON(status, body)
	}
}

// RunChecks pings each dependency in order and reports "ok" or the error.
func RunChecks(ctx context.Context, checks []Check) (int, map[string]string) {
	status := http.StatusOK
	deps := make(map[string]string, len(checks))
	for _, chk := range checks {
		if err := chk.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			deps[chk.Name] = err.Error()
			continue
		}
		deps[chk.Name] = "ok"
	}
	return status, deps
}
