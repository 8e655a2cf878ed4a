package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/onnwee/citypulse/internal/feed"
	"github.com/onnwee/citypulse/internal/geo"
	"github.com/onnwee/citypulse/internal/history"
	"github.com/onnwee/citypulse/internal/item"
	"github.com/onnwee/citypulse/internal/middleware"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// FeedService is the subset of feed.Service the handlers call.
type FeedService interface {
	RankFeed(ctx context.Context, req feed.RankRequest) (*feed.Page, error)
	RecordFeedback(ctx context.Context, req feed.FeedbackRequest) (*history.FeedbackSignal, error)
	RecordView(ctx context.Context, req feed.ViewRequest) error
	RecordInteraction(ctx context.Context, req feed.InteractionRequest) (*history.InteractionRecord, error)
}

// FeedHandlers serves the feed endpoints. Every handler expects the user
// ID on the context, as set by middleware.RequireAuth.
type FeedHandlers struct {
	service FeedService
	logger  *slog.Logger
}

// NewFeedHandlers creates FeedHandlers.
func NewFeedHandlers(service FeedService, logger *slog.Logger) *FeedHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedHandlers{service: service, logger: logger}
}

// FeedbackBody is the POST /feed/feedback request body.
type FeedbackBody struct {
	ItemID string `json:"item_id"`
	Type   string `json:"type"`
}

// ViewBody is the POST /feed/views request body.
type ViewBody struct {
	ItemID     string `json:"item_id"`
	Interacted bool   `json:"interacted"`
}

// InteractionBody is the POST /feed/interactions request body.
type InteractionBody struct {
	ItemID string `json:"item_id"`
	Status string `json:"status"`
	Rating *int   `json:"rating,omitempty"`
	Note   string `json:"note,omitempty"`
}

// GetFeed handles GET /feed.
//
// Query parameters: city (defaults to the token's home city), page_size,
// cursor, lat and lng with radius (meters) for nearby results, companion.
func (h *FeedHandlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	req := feed.RankRequest{
		UserID:    userID,
		CityID:    q.Get("city"),
		Cursor:    q.Get("cursor"),
		Companion: q.Get("companion"),
	}
	if req.CityID == "" {
		req.CityID = middleware.GetHomeCity(r.Context())
	}

	var err error
	if v := q.Get("page_size"); v != "" {
		if req.PageSize, err = strconv.Atoi(v); err != nil {
			h.validationError(w, r, "page_size must be an integer")
			return
		}
	}
	if v := q.Get("radius"); v != "" {
		if req.RadiusMeters, err = strconv.ParseFloat(v, 64); err != nil {
			h.validationError(w, r, "radius must be a number")
			return
		}
	}
	lat, lng := q.Get("lat"), q.Get("lng")
	if lat != "" || lng != "" {
		var p geo.Point
		p.Lat, err = strconv.ParseFloat(lat, 64)
		if err == nil {
			p.Lng, err = strconv.ParseFloat(lng, 64)
		}
		if err != nil {
			h.validationError(w, r, "lat and lng must both be numbers")
			return
		}
		req.Center = &p
	}

	page, err := h.service.RankFeed(r.Context(), req)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, page)
}

// PostFeedback handles POST /feed/feedback.
func (h *FeedHandlers) PostFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requirePost(w, r)
	if !ok {
		return
	}
	var body FeedbackBody
	if !h.decode(w, r, &body) {
		return
	}

	sig, err := h.service.RecordFeedback(r.Context(), feed.FeedbackRequest{
		UserID: userID,
		ItemID: body.ItemID,
		Type:   body.Type,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, r.Context(), http.StatusCreated, sig)
}

// PostView handles POST /feed/views.
func (h *FeedHandlers) PostView(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requirePost(w, r)
	if !ok {
		return
	}
	var body ViewBody
	if !h.decode(w, r, &body) {
		return
	}

	if err := h.service.RecordView(r.Context(), feed.ViewRequest{
		UserID:     userID,
		ItemID:     body.ItemID,
		Interacted: body.Interacted,
	}); err != nil {
		h.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostInteraction handles POST /feed/interactions.
func (h *FeedHandlers) PostInteraction(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requirePost(w, r)
	if !ok {
		return
	}
	var body InteractionBody
	if !h.decode(w, r, &body) {
		return
	}

	rec, err := h.service.RecordInteraction(r.Context(), feed.InteractionRequest{
		UserID: userID,
		ItemID: body.ItemID,
		Status: body.Status,
		Rating: body.Rating,
		Note:   body.Note,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, rec)
}

// Categories handles GET /categories. It needs no authentication.
func Categories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, r.Context(), http.StatusOK, map[string]any{"categories": item.Categories()})
}

func (h *FeedHandlers) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return "", false
	}
	return userID, true
}

func (h *FeedHandlers) requirePost(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return "", false
	}
	return h.requireUser(w, r)
}

func (h *FeedHandlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return false
	}
	return true
}

func (h *FeedHandlers) validationError(w http.ResponseWriter, r *http.Request, message string) {
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
	WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, message)
}

// serviceError maps feed errors onto the error envelope. Validation
// messages are returned to the client; store errors are not.
func (h *FeedHandlers) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var code, message string
	switch {
	case errors.Is(err, feed.ErrInvalidInput):
		status, code, message = http.StatusBadRequest, ErrCodeValidation, err.Error()
	case errors.Is(err, item.ErrNotFound):
		status, code, message = http.StatusNotFound, ErrCodeNotFound, "Item not found"
	case errors.Is(err, feed.ErrRepositoryUnavailable):
		status, code, message = http.StatusServiceUnavailable, ErrCodeUnavailable, "Service temporarily unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, code, message = http.StatusServiceUnavailable, ErrCodeUnavailable, "Request cancelled"
	default:
		status, code, message = http.StatusInternalServerError, ErrCodeInternal, "Internal server error"
	}

	if status >= 500 {
		h.logger.ErrorContext(r.Context(), "feed request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	ctx := middleware.SetErrorCode(r.Context(), code)
	WriteError(w, ctx, status, code, message)
}
