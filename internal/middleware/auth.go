package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/onnwee/citypulse/internal/auth"
)

// TokenVerifier validates bearer access tokens.
type TokenVerifier interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// homeCityKey is the context key for the home city claim.
type homeCityKey struct{}

// GetHomeCity returns the home city claim from context. Returns empty string if not present.
func GetHomeCity(ctx context.Context) string {
	if city, ok := ctx.Value(homeCityKey{}).(string); ok {
		return city
	}
	return ""
}

// RequireAuth rejects requests without a valid bearer access token and
// stores the token subject as the user ID.
func RequireAuth(verifier TokenVerifier, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				metrics.IncAuthFailure("missing")
				writeError(w, r.Context(), http.StatusUnauthorized, "auth_failed", "Missing bearer token")
				return
			}

			claims, err := verifier.ValidateAccessToken(token)
			if err != nil {
				message := "Invalid token"
				reason := "invalid"
				if errors.Is(err, auth.ErrExpiredToken) {
					message = "Token has expired"
					reason = "expired"
				}
				metrics.IncAuthFailure(reason)
				writeError(w, r.Context(), http.StatusUnauthorized, "auth_failed", message)
				return
			}

			ctx := SetUserID(r.Context(), claims.Subject)
			if claims.HomeCity != "" {
				ctx = context.WithValue(ctx, homeCityKey{}, claims.HomeCity)
			}
			UpdateResponseContext(w, ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// errorEnvelope mirrors the API error body so middleware rejections look
// the same as handler errors.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	UpdateResponseContext(w, SetErrorCode(ctx, code))

	var body errorEnvelope
	body.Error.Code = code
	body.Error.Message = message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
