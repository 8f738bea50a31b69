package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
)

// HealthCheck pings one backing service.
type HealthCheck func(ctx context.Context) error

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health returns GET /health. It answers 503 when any check fails.
func Health(checks map[string]HealthCheck, logger *zap.Logger) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
				resp.Status = "degraded"
				resp.Checks[name] = "down"
				continue
			}
			resp.Checks[name] = "up"
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
