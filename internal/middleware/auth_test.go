package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/onnwee/citypulse/internal/auth"
)

const testSecret = "test-secret-key-for-middleware-tests"

func TestRequireAuth(t *testing.T) {
	svc := auth.NewJWTService(testSecret)

	access, err := svc.GenerateAccessToken("user-1", "seattle")
	if err != nil {
		t.Fatalf("GenerateAccessToken() failed: %v", err)
	}
	refresh, err := svc.GenerateRefreshToken("user-1")
	if err != nil {
		t.Fatalf("GenerateRefreshToken() failed: %v", err)
	}
	other, err := auth.NewJWTService("some-other-secret").GenerateAccessToken("user-1", "")
	if err != nil {
		t.Fatalf("GenerateAccessToken() failed: %v", err)
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"valid access token", "Bearer " + access, http.StatusOK, "user-1"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + access, http.StatusUnauthorized, ""},
		{"refresh token", "Bearer " + refresh, http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + other, http.StatusUnauthorized, ""},
		{"garbage", "Bearer not.a.jwt", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser, gotCity string
			handler := RequireAuth(svc, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = GetUserID(r.Context())
				gotCity = GetHomeCity(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/feed", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if gotUser != tt.wantUser {
				t.Errorf("user = %q, want %q", gotUser, tt.wantUser)
			}
			if tt.wantStatus == http.StatusOK && gotCity != "seattle" {
				t.Errorf("home city = %q, want seattle", gotCity)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				var body errorEnvelope
				if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
					t.Fatalf("failed to decode error body: %v", err)
				}
				if body.Error.Code != "auth_failed" {
					t.Errorf("error code = %q, want auth_failed", body.Error.Code)
				}
			}
		})
	}
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	past := auth.NewJWTService(testSecret)
	token, err := past.GenerateAccessToken("user-1", "")
	if err != nil {
		t.Fatalf("GenerateAccessToken() failed: %v", err)
	}

	// Validate two hours later.
	future := auth.NewJWTService(testSecret).WithClock(func() time.Time {
		return time.Now().Add(2 * time.Hour)
	})

	m := NewMetrics()
	handler := RequireAuth(future, m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "expired") {
		t.Errorf("expected expiry message, got %s", rr.Body.String())
	}
}
