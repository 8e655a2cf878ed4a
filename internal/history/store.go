package history

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists interactions and feedback.
type Store interface {
	GetInteractions(ctx context.Context, userID string) ([]InteractionRecord, error)

	// UpsertInteraction overwrites the (user, item) record; it never creates
	// a second one.
	UpsertInteraction(ctx context.Context, rec *InteractionRecord) error

	// AppendFeedback adds to the feedback log. Signals are never updated.
	AppendFeedback(ctx context.Context, sig *FeedbackSignal) error

	// GetFeedbackSince returns signals created at or after since, oldest first.
	GetFeedbackSince(ctx context.Context, userID string, since time.Time) ([]FeedbackSignal, error)

	// HiddenItemIDs returns every item the user has ever hidden.
	HiddenItemIDs(ctx context.Context, userID string) ([]string, error)
}

// ViewStore persists feed view records. Increment must be safe to apply
// concurrently and out of order for the same user.
type ViewStore interface {
	// Get returns records for the requested items that have any; missing
	// items are absent from the map.
	Get(ctx context.Context, userID string, itemIDs []string) (map[string]ViewRecord, error)
	Increment(ctx context.Context, userID, itemID string, at time.Time) error
	MarkInteracted(ctx context.Context, userID, itemID string) error
}

type interactionKey struct{ userID, itemID string }

// InMemoryStore implements Store with in-memory storage.
type InMemoryStore struct {
	mu           sync.RWMutex
	interactions map[interactionKey]InteractionRecord
	feedback     map[string][]FeedbackSignal
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		interactions: make(map[interactionKey]InteractionRecord),
		feedback:     make(map[string][]FeedbackSignal),
	}
}

func (s *InMemoryStore) GetInteractions(ctx context.Context, userID string) ([]InteractionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []InteractionRecord
	for k, rec := range s.interactions {
		if k.userID == userID {
			out = append(out, copyInteraction(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (s *InMemoryStore) UpsertInteraction(ctx context.Context, rec *InteractionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := interactionKey{rec.UserID, rec.ItemID}
	stored := copyInteraction(*rec)
	if existing, ok := s.interactions[k]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	s.interactions[k] = stored
	return nil
}

func (s *InMemoryStore) AppendFeedback(ctx context.Context, sig *FeedbackSignal) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.feedback[sig.UserID] = append(s.feedback[sig.UserID], sig.clone())
	return nil
}

func (s *InMemoryStore) GetFeedbackSince(ctx context.Context, userID string, since time.Time) ([]FeedbackSignal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []FeedbackSignal
	for i := range s.feedback[userID] {
		sig := &s.feedback[userID][i]
		if !sig.CreatedAt.Before(since) {
			out = append(out, sig.clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) HiddenItemIDs(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, sig := range s.feedback[userID] {
		if sig.Type == FeedbackHide && !seen[sig.ItemID] {
			seen[sig.ItemID] = true
			out = append(out, sig.ItemID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func copyInteraction(rec InteractionRecord) InteractionRecord {
	if rec.Rating != nil {
		r := *rec.Rating
		rec.Rating = &r
	}
	return rec
}

// InMemoryViewStore implements ViewStore with in-memory storage.
type InMemoryViewStore struct {
	mu    sync.Mutex
	views map[interactionKey]ViewRecord
}

// NewInMemoryViewStore creates an empty view store.
func NewInMemoryViewStore() *InMemoryViewStore {
	return &InMemoryViewStore{views: make(map[interactionKey]ViewRecord)}
}

func (s *InMemoryViewStore) Get(ctx context.Context, userID string, itemIDs []string) (map[string]ViewRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]ViewRecord, len(itemIDs))
	for _, id := range itemIDs {
		if v, ok := s.views[interactionKey{userID, id}]; ok {
			if v.LastShownAt != nil {
				t := *v.LastShownAt
				v.LastShownAt = &t
			}
			out[id] = v
		}
	}
	return out, nil
}

// Increment bumps the seen count and keeps the latest shown time.
func (s *InMemoryViewStore) Increment(ctx context.Context, userID, itemID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := interactionKey{userID, itemID}
	v := s.views[k]
	v.UserID, v.ItemID = userID, itemID
	v.SeenCount++
	if v.LastShownAt == nil || at.After(*v.LastShownAt) {
		t := at
		v.LastShownAt = &t
	}
	s.views[k] = v
	return nil
}

func (s *InMemoryViewStore) MarkInteracted(ctx context.Context, userID, itemID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := interactionKey{userID, itemID}
	v := s.views[k]
	v.UserID, v.ItemID = userID, itemID
	v.Interacted = true
	s.views[k] = v
	return nil
}
