package item

import (
	"context"
	"sort"
	"sync"
)

// Repository supplies candidates.
type Repository interface {
	// FetchActive returns the city's candidates. When window is non-nil only
	// places and events overlapping it are returned.
	FetchActive(ctx context.Context, cityID string, window *Window) ([]Candidate, error)

	// GetByID returns a single candidate or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Candidate, error)

	// Upsert inserts or replaces a candidate by ID.
	Upsert(ctx context.Context, c *Candidate) error
}

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]Candidate
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[string]Candidate)}
}

// FetchActive returns matching candidates ordered by ID.
func (r *InMemoryRepository) FetchActive(ctx context.Context, cityID string, window *Window) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Candidate
	for _, c := range r.items {
		if c.CityID != cityID {
			continue
		}
		if window != nil && !c.Overlaps(*window) {
			continue
		}
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetByID returns a copy of the stored candidate.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := c.Clone()
	return &cp, nil
}

// Upsert stores a copy of c.
func (r *InMemoryRepository) Upsert(ctx context.Context, c *Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[c.ID] = c.Clone()
	return nil
}
