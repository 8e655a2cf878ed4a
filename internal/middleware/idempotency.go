package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/citypulse/internal/idempotency"
)

// IdempotencyKeyHeader is the HTTP header name for idempotency keys.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotentReplayHeader is set on responses served from the store.
const IdempotentReplayHeader = "Idempotent-Replayed"

// idempotencyKeyContextKey is the context key for storing the idempotency key.
type idempotencyKeyContextKey struct{}

// idempotencyResponseWriter passes the response through while keeping a copy.
type idempotencyResponseWriter struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
	written    bool
}

func newIdempotencyResponseWriter(w http.ResponseWriter) *idempotencyResponseWriter {
	return &idempotencyResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		body:           &bytes.Buffer{},
	}
}

// WriteHeader captures the status code.
func (w *idempotencyResponseWriter) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write captures the response body.
func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.body.Write(b[:n])
	return n, err
}

// Unwrap returns the underlying writer.
func (w *idempotencyResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// SetIdempotencyKey stores the idempotency key in the context.
func SetIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyContextKey{}, key)
}

// GetIdempotencyKey retrieves the idempotency key from context. Returns empty string if not present.
func GetIdempotencyKey(ctx context.Context) string {
	if key, ok := ctx.Value(idempotencyKeyContextKey{}).(string); ok {
		return key
	}
	return ""
}

// Idempotency replays stored responses for POST requests to the given
// routes that carry an Idempotency-Key header. The header is optional;
// requests without it pass straight through. Keys are scoped to the
// authenticated user, so Idempotency must run inside RequireAuth.
// Only 2xx responses are stored.
func Idempotency(repo idempotency.Repository, routes map[string]bool, metrics *Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || !routes[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if err := idempotency.ValidateKey(key); err != nil {
				code, message := "invalid_idempotency_key", "Invalid Idempotency-Key format"
				if errors.Is(err, idempotency.ErrKeyTooLong) {
					code = "idempotency_key_too_long"
					message = "Idempotency-Key exceeds maximum length of 64 characters"
				}
				writeError(w, r.Context(), http.StatusBadRequest, code, message)
				return
			}

			ctx := SetIdempotencyKey(r.Context(), key)
			r = r.WithContext(ctx)
			userID := GetUserID(ctx)
			scoped := idempotency.ScopedKey(userID, key)

			existing, err := repo.Get(ctx, scoped)
			switch {
			case err == nil:
				if existing.Method != r.Method || existing.Route != r.URL.Path {
					writeError(w, ctx, http.StatusConflict, "conflict", "Idempotency-Key was used for a different request")
					return
				}
				logger.DebugContext(ctx, "replaying stored response",
					slog.String("key", key),
					slog.Int("status", existing.ResponseStatusCode),
				)
				metrics.IncIdempotentReplay()
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(IdempotentReplayHeader, "true")
				w.WriteHeader(existing.ResponseStatusCode)
				_, _ = w.Write([]byte(existing.ResponseBody))
				return
			case !errors.Is(err, idempotency.ErrKeyNotFound):
				// Store unavailable: serve the request without replay protection.
				logger.WarnContext(ctx, "failed to check idempotency key",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			capture := newIdempotencyResponseWriter(w)
			next.ServeHTTP(capture, r)

			if capture.statusCode < 200 || capture.statusCode >= 300 {
				return
			}

			body := capture.body.String()
			record := &idempotency.Record{
				Key:                scoped,
				UserID:             userID,
				Method:             r.Method,
				Route:              r.URL.Path,
				CreatedAt:          time.Now().UTC(),
				ResponseHash:       idempotency.ComputeResponseHash(body),
				Status:             idempotency.StatusCompleted,
				ResponseBody:       body,
				ResponseStatusCode: capture.statusCode,
			}
			if err := repo.Store(ctx, record); err != nil && !errors.Is(err, idempotency.ErrKeyExists) {
				logger.WarnContext(ctx, "failed to store idempotency key",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
		})
	}
}
