package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/onnwee/citypulse/internal/idempotency"
)

var feedbackRoutes = map[string]bool{"/feed/feedback": true}

// withUser simulates RequireAuth running outside the idempotency middleware.
func withUser(userID string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(SetUserID(r.Context(), userID)))
	})
}

func newIdempotentHandler(repo idempotency.Repository, calls *int32, status int) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"call":` + strconv.Itoa(int(n)) + `}`))
	})
	return Idempotency(repo, feedbackRoutes, nil, nil)(inner)
}

func postFeedback(h http.Handler, userID, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/feed/feedback", strings.NewReader(`{"item_id":"evt-1","type":"MORE"}`))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	rr := httptest.NewRecorder()
	withUser(userID, h).ServeHTTP(rr, req)
	return rr
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	repo := idempotency.NewInMemoryRepository(0)
	var calls int32
	h := newIdempotentHandler(repo, &calls, http.StatusCreated)

	postFeedback(h, "user-1", "")
	postFeedback(h, "user-1", "")

	if calls != 2 {
		t.Errorf("handler calls = %d, want 2", calls)
	}
	if repo.Len() != 0 {
		t.Errorf("expected nothing stored, got %d", repo.Len())
	}
}

func TestIdempotency_InvalidKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		wantCode string
	}{
		{"too long", strings.Repeat("a", idempotency.MaxKeyLength+1), "idempotency_key_too_long"},
		{"control characters", "abc\tdef", "invalid_idempotency_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			h := newIdempotentHandler(idempotency.NewInMemoryRepository(0), &calls, http.StatusCreated)

			rr := postFeedback(h, "user-1", tt.key)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.wantCode) {
				t.Errorf("expected %s in body, got %s", tt.wantCode, rr.Body.String())
			}
			if calls != 0 {
				t.Errorf("handler should not run, ran %d times", calls)
			}
		})
	}
}

func TestIdempotency_Replay(t *testing.T) {
	repo := idempotency.NewInMemoryRepository(0)
	var calls int32
	h := newIdempotentHandler(repo, &calls, http.StatusCreated)

	first := postFeedback(h, "user-1", "key-1")
	second := postFeedback(h, "user-1", "key-1")

	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
	if second.Code != http.StatusCreated {
		t.Errorf("replayed status = %d, want 201", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Errorf("replayed body %q, want %q", second.Body.String(), first.Body.String())
	}
	if second.Header().Get(IdempotentReplayHeader) != "true" {
		t.Error("expected replay header on second response")
	}
	if first.Header().Get(IdempotentReplayHeader) != "" {
		t.Error("first response must not carry the replay header")
	}
}

func TestIdempotency_ScopedPerUser(t *testing.T) {
	repo := idempotency.NewInMemoryRepository(0)
	var calls int32
	h := newIdempotentHandler(repo, &calls, http.StatusCreated)

	postFeedback(h, "user-1", "shared-key")
	postFeedback(h, "user-2", "shared-key")

	if calls != 2 {
		t.Errorf("handler calls = %d, want 2", calls)
	}
	if _, err := repo.Get(context.Background(), idempotency.ScopedKey("user-2", "shared-key")); err != nil {
		t.Errorf("expected record for user-2: %v", err)
	}
}

func TestIdempotency_ErrorResponsesNotStored(t *testing.T) {
	repo := idempotency.NewInMemoryRepository(0)
	var calls int32
	h := newIdempotentHandler(repo, &calls, http.StatusServiceUnavailable)

	postFeedback(h, "user-1", "key-err")
	postFeedback(h, "user-1", "key-err")

	if calls != 2 {
		t.Errorf("handler calls = %d, want 2", calls)
	}
}

func TestIdempotency_OnlyConfiguredPostRoutes(t *testing.T) {
	repo := idempotency.NewInMemoryRepository(0)
	var calls int32
	h := newIdempotentHandler(repo, &calls, http.StatusOK)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/feed", nil)
		req.Header.Set(IdempotencyKeyHeader, "key-get")
		withUser("user-1", h).ServeHTTP(httptest.NewRecorder(), req)
	}

	if calls != 2 {
		t.Errorf("handler calls = %d, want 2", calls)
	}
}

func TestIdempotency_KeyInContext(t *testing.T) {
	var got string
	h := Idempotency(idempotency.NewInMemoryRepository(0), feedbackRoutes, nil, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = GetIdempotencyKey(r.Context())
		}))

	postFeedback(h, "user-1", "ctx-key")

	if got != "ctx-key" {
		t.Errorf("GetIdempotencyKey() = %q, want ctx-key", got)
	}
}

type failingIdempotencyRepo struct{}

func (failingIdempotencyRepo) Get(context.Context, string) (*idempotency.Record, error) {
	return nil, errors.New("connection refused")
}

func (failingIdempotencyRepo) Store(context.Context, *idempotency.Record) error {
	return errors.New("connection refused")
}

func TestIdempotency_StoreUnavailable(t *testing.T) {
	var calls int32
	h := newIdempotentHandler(failingIdempotencyRepo{}, &calls, http.StatusCreated)

	rr := postFeedback(h, "user-1", "key-1")

	if rr.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rr.Code)
	}
	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
}

func TestIdempotency_Concurrent(t *testing.T) {
	repo := idempotency.NewInMemoryRepository(0)
	var calls int32
	h := newIdempotentHandler(repo, &calls, http.StatusCreated)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rr := postFeedback(h, "user-1", "concurrent")
			if rr.Code != http.StatusCreated {
				t.Errorf("status = %d, want 201", rr.Code)
			}
		}()
	}
	wg.Wait()

	if repo.Len() != 1 {
		t.Errorf("stored records = %d, want 1", repo.Len())
	}
}
