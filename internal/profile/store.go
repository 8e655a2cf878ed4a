package profile

import (
	"context"
	"sync"
	"time"
)

// Store persists preferences and constraints.
type Store interface {
	// GetPreferences returns the user's preferences; users who never set any
	// get an empty profile, not an error.
	GetPreferences(ctx context.Context, userID string) (*Preferences, error)

	// GetConstraints returns the user's constraints, creating the default
	// record on first access.
	GetConstraints(ctx context.Context, userID string) (*Constraints, error)

	SavePreferences(ctx context.Context, p *Preferences) error
	SaveConstraints(ctx context.Context, c *Constraints) error
}

// InMemoryStore implements Store with in-memory storage.
type InMemoryStore struct {
	mu          sync.RWMutex
	preferences map[string]*Preferences
	constraints map[string]*Constraints
	now         func() time.Time
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		preferences: make(map[string]*Preferences),
		constraints: make(map[string]*Constraints),
		now:         time.Now,
	}
}

func (s *InMemoryStore) GetPreferences(ctx context.Context, userID string) (*Preferences, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.preferences[userID]; ok {
		return p.Clone(), nil
	}
	return &Preferences{UserID: userID}, nil
}

func (s *InMemoryStore) GetConstraints(ctx context.Context, userID string) (*Constraints, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.constraints[userID]
	if !ok {
		c = DefaultConstraints(userID, s.now())
		s.constraints[userID] = c
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) SavePreferences(ctx context.Context, p *Preferences) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.preferences[p.UserID] = p.Clone()
	return nil
}

func (s *InMemoryStore) SaveConstraints(ctx context.Context, c *Constraints) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := c.Clone()
	stored.UpdatedAt = s.now()
	if existing, ok := s.constraints[c.UserID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = stored.UpdatedAt
	}
	s.constraints[c.UserID] = stored
	return nil
}
