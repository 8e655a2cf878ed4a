package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/citypulse/internal/middleware"
)

// InternalTokenHeader carries the token that guards internal endpoints.
const InternalTokenHeader = "X-Internal-Token"

// MetricsHandler serves the registry in the Prometheus text format.
func MetricsHandler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// InternalAuth restricts access to requests carrying token in
// X-Internal-Token. An empty token disables the check.
func InternalAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Constant-time comparison
			headerToken := r.Header.Get(InternalTokenHeader)
			if subtle.ConstantTimeCompare([]byte(headerToken), []byte(token)) != 1 {
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
				WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
