package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/onnwee/citypulse/internal/auth"
	"github.com/onnwee/citypulse/internal/feed"
	"github.com/onnwee/citypulse/internal/history"
	"github.com/onnwee/citypulse/internal/item"
	"github.com/onnwee/citypulse/internal/middleware"
	"github.com/onnwee/citypulse/internal/profile"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type handlerFixture struct {
	candidates *item.InMemoryRepository
	history    *history.InMemoryStore
	views      *history.InMemoryViewStore
	handlers   *FeedHandlers
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := &handlerFixture{
		candidates: item.NewInMemoryRepository(),
		history:    history.NewInMemoryStore(),
		views:      history.NewInMemoryViewStore(),
	}
	svc := feed.NewService(feed.Dependencies{
		Candidates: f.candidates,
		Profiles:   profile.NewInMemoryStore(),
		History:    f.history,
		Views:      f.views,
	}, feed.Options{Now: func() time.Time { return testNow }})
	f.handlers = NewFeedHandlers(svc, nil)

	for i, cat := range []item.Category{item.CategoryLiveMusic, item.CategoryArt, item.CategoryFood, item.CategoryCoffee} {
		c := item.Candidate{
			ID:        "item-" + string(rune('a'+i)),
			CityID:    "seattle",
			Title:     string(cat),
			Category:  cat,
			CreatedAt: testNow.Add(-time.Hour),
		}
		if err := f.candidates.Upsert(context.Background(), &c); err != nil {
			t.Fatalf("failed to seed candidate: %v", err)
		}
	}
	return f
}

func authed(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.SetUserID(req.Context(), userID))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error body: %v, body: %s", err, w.Body.String())
	}
	return resp.Error
}

func TestGetFeed(t *testing.T) {
	f := newHandlerFixture(t)

	req := authed(httptest.NewRequest(http.MethodGet, "/feed?city=seattle&page_size=3", nil), "user-1")
	w := httptest.NewRecorder()
	f.handlers.GetFeed(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var page feed.Page
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to parse page: %v", err)
	}
	if len(page.Items) != 3 {
		t.Errorf("expected 3 items, got %d", len(page.Items))
	}
	if page.NextCursor == "" {
		t.Error("expected a next cursor with a fourth item remaining")
	}

	req = authed(httptest.NewRequest(http.MethodGet, "/feed?city=seattle&page_size=3&cursor="+page.NextCursor, nil), "user-1")
	w = httptest.NewRecorder()
	f.handlers.GetFeed(w, req)

	var next feed.Page
	if err := json.Unmarshal(w.Body.Bytes(), &next); err != nil {
		t.Fatalf("failed to parse page: %v", err)
	}
	if len(next.Items) != 1 {
		t.Errorf("expected 1 item on the second page, got %d", len(next.Items))
	}
}

func TestGetFeed_HomeCityFallback(t *testing.T) {
	var captured feed.RankRequest
	h := NewFeedHandlers(stubService{rank: func(req feed.RankRequest) (*feed.Page, error) {
		captured = req
		return &feed.Page{}, nil
	}}, nil)

	// Home city comes from the token; RequireAuth puts it on the context.
	token, err := testJWT().GenerateAccessToken("user-1", "portland")
	if err != nil {
		t.Fatalf("GenerateAccessToken() failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/feed?lat=45.5&lng=-122.6&radius=2000&companion=date", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	middleware.RequireAuth(testJWT(), nil)(http.HandlerFunc(h.GetFeed)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if captured.CityID != "portland" {
		t.Errorf("expected city portland, got %q", captured.CityID)
	}
	if captured.Center == nil || captured.Center.Lat != 45.5 || captured.Center.Lng != -122.6 {
		t.Errorf("unexpected center %+v", captured.Center)
	}
	if captured.RadiusMeters != 2000 || captured.Companion != "date" {
		t.Errorf("unexpected request %+v", captured)
	}
}

func TestGetFeed_Errors(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name       string
		url        string
		userID     string
		wantStatus int
		wantCode   string
	}{
		{"no user", "/feed?city=seattle", "", http.StatusUnauthorized, ErrCodeAuthFailed},
		{"no city", "/feed", "user-1", http.StatusBadRequest, ErrCodeValidation},
		{"page size not a number", "/feed?city=seattle&page_size=ten", "user-1", http.StatusBadRequest, ErrCodeValidation},
		{"page size too large", "/feed?city=seattle&page_size=500", "user-1", http.StatusBadRequest, ErrCodeValidation},
		{"lat without lng", "/feed?city=seattle&lat=47.6", "user-1", http.StatusBadRequest, ErrCodeValidation},
		{"latitude off the globe", "/feed?city=seattle&lat=91&lng=0&radius=100", "user-1", http.StatusBadRequest, ErrCodeValidation},
		{"radius without center", "/feed?city=seattle&radius=500", "user-1", http.StatusBadRequest, ErrCodeValidation},
		{"bad cursor", "/feed?city=seattle&cursor=%21%21", "user-1", http.StatusBadRequest, ErrCodeValidation},
		{"bad companion", "/feed?city=seattle&companion=coworkers", "user-1", http.StatusBadRequest, ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.userID != "" {
				req = authed(req, tt.userID)
			}
			w := httptest.NewRecorder()
			f.handlers.GetFeed(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if got := decodeError(t, w).Code; got != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, got)
			}
		})
	}
}

func TestPostFeedback(t *testing.T) {
	f := newHandlerFixture(t)

	req := authed(httptest.NewRequest(http.MethodPost, "/feed/feedback", strings.NewReader(`{"item_id":"item-a","type":"MORE"}`)), "user-1")
	w := httptest.NewRecorder()
	f.handlers.PostFeedback(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var sig history.FeedbackSignal
	if err := json.Unmarshal(w.Body.Bytes(), &sig); err != nil {
		t.Fatalf("failed to parse signal: %v", err)
	}
	if sig.Type != history.FeedbackMore || sig.Category != item.CategoryLiveMusic {
		t.Errorf("unexpected signal %+v", sig)
	}

	signals, err := f.history.GetFeedbackSince(context.Background(), "user-1", testNow.Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetFeedbackSince() failed: %v", err)
	}
	if len(signals) != 1 {
		t.Errorf("expected 1 stored signal, got %d", len(signals))
	}
}

func TestPostFeedback_Errors(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed, ErrCodeBadRequest},
		{"malformed json", http.MethodPost, `{"item_id":`, http.StatusBadRequest, ErrCodeBadRequest},
		{"unknown field", http.MethodPost, `{"item_id":"item-a","type":"MORE","user_id":"someone-else"}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"bad type", http.MethodPost, `{"item_id":"item-a","type":"LOVE"}`, http.StatusBadRequest, ErrCodeValidation},
		{"unknown item", http.MethodPost, `{"item_id":"missing","type":"HIDE"}`, http.StatusNotFound, ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authed(httptest.NewRequest(tt.method, "/feed/feedback", strings.NewReader(tt.body)), "user-1")
			w := httptest.NewRecorder()
			f.handlers.PostFeedback(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if got := decodeError(t, w).Code; got != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, got)
			}
		})
	}
}

func TestPostView(t *testing.T) {
	f := newHandlerFixture(t)

	for i := 0; i < 2; i++ {
		req := authed(httptest.NewRequest(http.MethodPost, "/feed/views", strings.NewReader(`{"item_id":"item-b"}`)), "user-1")
		w := httptest.NewRecorder()
		f.handlers.PostView(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected status 204, got %d: %s", w.Code, w.Body.String())
		}
	}

	views, err := f.views.Get(context.Background(), "user-1", []string{"item-b"})
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if views["item-b"].SeenCount != 2 {
		t.Errorf("expected seen count 2, got %d", views["item-b"].SeenCount)
	}
}

func TestPostInteraction(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"item_id":"item-c","status":"SAVED","rating":4,"note":"<b>great</b> tacos"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/feed/interactions", strings.NewReader(body)), "user-1")
	w := httptest.NewRecorder()
	f.handlers.PostInteraction(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var rec history.InteractionRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("failed to parse record: %v", err)
	}
	if rec.Status != history.StatusSaved {
		t.Errorf("expected SAVED, got %s", rec.Status)
	}
	if strings.Contains(rec.Note, "<b>") {
		t.Errorf("expected escaped note, got %q", rec.Note)
	}

	req = authed(httptest.NewRequest(http.MethodPost, "/feed/interactions", strings.NewReader(`{"item_id":"item-c","rating":9}`)), "user-1")
	w = httptest.NewRecorder()
	f.handlers.PostInteraction(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for rating 9, got %d", w.Code)
	}
}

func TestServiceError_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid", feed.ErrInvalidInput, http.StatusBadRequest, ErrCodeValidation},
		{"not found", item.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"unavailable", feed.ErrRepositoryUnavailable, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewFeedHandlers(stubService{err: tt.err}, nil)
			req := authed(httptest.NewRequest(http.MethodPost, "/feed/views", strings.NewReader(`{"item_id":"x"}`)), "user-1")
			w := httptest.NewRecorder()
			h.PostView(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			detail := decodeError(t, w)
			if detail.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, detail.Code)
			}
			if tt.wantStatus >= 500 && strings.Contains(detail.Message, "boom") {
				t.Error("internal error text leaked to the client")
			}
		})
	}
}

func TestCategories(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/categories", nil)
	w := httptest.NewRecorder()
	Categories(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		Categories []item.CategoryInfo `json:"categories"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Categories) != len(item.Categories()) {
		t.Errorf("expected %d categories, got %d", len(item.Categories()), len(resp.Categories))
	}
	for _, c := range resp.Categories {
		if c.Label == "" || c.Color == "" || c.TextColor == "" {
			t.Errorf("incomplete category %+v", c)
		}
	}
}

func testJWT() *auth.JWTService {
	return auth.NewJWTService("handler-test-secret")
}

type stubService struct {
	rank func(feed.RankRequest) (*feed.Page, error)
	err  error
}

func (s stubService) RankFeed(_ context.Context, req feed.RankRequest) (*feed.Page, error) {
	if s.rank != nil {
		return s.rank(req)
	}
	return nil, s.err
}

func (s stubService) RecordFeedback(context.Context, feed.FeedbackRequest) (*history.FeedbackSignal, error) {
	return nil, s.err
}

func (s stubService) RecordView(context.Context, feed.ViewRequest) error {
	return s.err
}

func (s stubService) RecordInteraction(context.Context, feed.InteractionRequest) (*history.InteractionRecord, error) {
	return nil, s.err
}
