// Package history records what a user did with feed items: lifecycle
// interactions, explicit MORE/LESS/HIDE feedback, and per-item view counts
// used for decay.
package history

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/citypulse/internal/item"
	"github.com/onnwee/citypulse/internal/validate"
)

var (
	ErrInvalidStatus       = errors.New("invalid interaction status")
	ErrInvalidRating       = errors.New("rating must be between 1 and 5")
	ErrInvalidFeedbackType = errors.New("feedback type must be MORE, LESS or HIDE")
)

// MaxFeedbackTags is how many item tags a feedback signal captures.
const MaxFeedbackTags = 3

// Status is the lifecycle state of a (user, item) pair.
type Status string

const (
	StatusNone  Status = ""
	StatusWant  Status = "WANT"
	StatusSaved Status = "SAVED"
	StatusDone  Status = "DONE"
	StatusPass  Status = "PASS"
)

// ParseStatus reads a status case-insensitively. "none" and "" clear it.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case "NONE", StatusNone:
		return StatusNone, nil
	case StatusWant, StatusSaved, StatusDone, StatusPass:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Engaged reports whether the status counts as the user engaging with the
// item.
func (s Status) Engaged() bool {
	return s == StatusWant || s == StatusSaved || s == StatusDone
}

// InteractionRecord is the single active status for a (user, item) pair.
type InteractionRecord struct {
	UserID    string    `json:"user_id"`
	ItemID    string    `json:"item_id"`
	Status    Status    `json:"status"`
	Rating    *int      `json:"rating,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the status and rating bounds.
func (r *InteractionRecord) Validate() error {
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return err
	}
	if r.Rating != nil && (*r.Rating < 1 || *r.Rating > 5) {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, *r.Rating)
	}
	return nil
}

// FeedbackType is an explicit signal on a feed item.
type FeedbackType string

const (
	FeedbackMore FeedbackType = "MORE"
	FeedbackLess FeedbackType = "LESS"
	FeedbackHide FeedbackType = "HIDE"
)

// ParseFeedbackType reads a feedback type case-insensitively.
func ParseFeedbackType(s string) (FeedbackType, error) {
	switch ft := FeedbackType(strings.ToUpper(strings.TrimSpace(s))); ft {
	case FeedbackMore, FeedbackLess, FeedbackHide:
		return ft, nil
	}
	return "", fmt.Errorf("%w: got %q", ErrInvalidFeedbackType, s)
}

// FeedbackSignal is one append-only feedback event. Category and Tags are
// captured from the item when the feedback is given.
type FeedbackSignal struct {
	ID        uuid.UUID     `json:"id"`
	UserID    string        `json:"user_id"`
	ItemID    string        `json:"item_id"`
	Type      FeedbackType  `json:"type"`
	Category  item.Category `json:"category"`
	Tags      []string      `json:"tags,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewFeedbackSignal captures feedback on c. At most MaxFeedbackTags
// canonical tags are kept, in the item's tag order.
func NewFeedbackSignal(userID string, c *item.Candidate, ft FeedbackType, now time.Time) (*FeedbackSignal, error) {
	if _, err := ParseFeedbackType(string(ft)); err != nil {
		return nil, err
	}
	tags, err := validate.Tags(c.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to capture tags: %w", err)
	}
	if len(tags) > MaxFeedbackTags {
		tags = tags[:MaxFeedbackTags]
	}
	return &FeedbackSignal{
		ID:        uuid.New(),
		UserID:    userID,
		ItemID:    c.ID,
		Type:      ft,
		Category:  c.Category,
		Tags:      tags,
		CreatedAt: now,
	}, nil
}

func (s *FeedbackSignal) clone() FeedbackSignal {
	out := *s
	out.Tags = append([]string(nil), s.Tags...)
	return out
}

// ViewRecord tracks how often an item was shown to a user.
type ViewRecord struct {
	UserID      string     `json:"user_id"`
	ItemID      string     `json:"item_id"`
	SeenCount   int        `json:"seen_count"`
	LastShownAt *time.Time `json:"last_shown_at,omitempty"`
	Interacted  bool       `json:"interacted"`
}
