package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/onnwee/citypulse/internal/middleware"
)

// HealthChecker defines the interface for components that can be health checked.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandlers provides health and readiness check endpoints for Kubernetes probes.
type HealthHandlers struct {
	// critical checks fail readiness; advisory checks are only reported.
	critical map[string]HealthChecker
	advisory map[string]HealthChecker
	timeout  time.Duration
}

// HealthHandlersConfig configures the health check handlers.
type HealthHandlersConfig struct {
	// DBChecker is nil when the service runs on in-memory stores.
	DBChecker HealthChecker
	// RedisChecker is nil when Redis is not configured.
	RedisChecker HealthChecker
	// BreakerChecker reports open circuits. An open circuit degrades the
	// feed instead of failing it, so it never fails readiness.
	BreakerChecker HealthChecker
	Timeout        time.Duration
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	h := &HealthHandlers{
		critical: make(map[string]HealthChecker),
		advisory: make(map[string]HealthChecker),
		timeout:  config.Timeout,
	}
	if h.timeout <= 0 {
		h.timeout = 5 * time.Second
	}
	if config.DBChecker != nil {
		h.critical["database"] = config.DBChecker
	}
	if config.RedisChecker != nil {
		h.critical["redis"] = config.RedisChecker
	}
	if config.BreakerChecker != nil {
		h.advisory["circuits"] = config.BreakerChecker
	}
	return h
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe).
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready (readiness probe). Returns 503 when a critical
// dependency fails.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"metrics": "ok"}
	healthy := true
	for _, name := range sortedNames(h.critical) {
		if err := h.critical[name].HealthCheck(ctx); err != nil {
			checks[name] = "error"
			healthy = false
			slog.WarnContext(ctx, "health check failed", "check", name, "error", err)
			continue
		}
		checks[name] = "ok"
	}
	for _, name := range sortedNames(h.advisory) {
		if err := h.advisory[name].HealthCheck(ctx); err != nil {
			checks[name] = "degraded"
			slog.InfoContext(ctx, "advisory health check failed", "check", name, "error", err)
			continue
		}
		checks[name] = "ok"
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, r.Context(), statusCode, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func sortedNames(m map[string]HealthChecker) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
