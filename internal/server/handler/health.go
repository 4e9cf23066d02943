package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

// HealthHandler serves the health endpoint. Each registered check exercises
// a dependency (state store, event bus); a failing check degrades the report.
type HealthHandler struct {
	mode   string
	checks map[string]Check
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler running the given checks.
func NewHealthHandler(mode string, checks map[string]Check, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:   mode,
		checks: checks,
		logger: logHandler(logger, "health"),
	}
}

// HealthCheck runs every dependency check under a short timeout and reports
// per-component status. Any failure yields 503 so load balancers stop
// routing to a node with a broken store or bus.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed",
				slog.String("component", name),
				slog.String("error", err.Error()),
			)
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"mode":       h.mode,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
