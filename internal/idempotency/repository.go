package idempotency

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository implements Repository with in-memory storage. Expired
// records are dropped lazily on access.
type InMemoryRepository struct {
	mu     sync.Mutex
	keys   map[string]*Record
	expiry time.Duration
	now    func() time.Time
}

// NewInMemoryRepository creates a repository whose records expire after
// expiry. A non-positive expiry uses DefaultExpiry.
func NewInMemoryRepository(expiry time.Duration) *InMemoryRepository {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &InMemoryRepository{
		keys:   make(map[string]*Record),
		expiry: expiry,
		now:    time.Now,
	}
}

// Get retrieves a record by key.
func (r *InMemoryRepository) Get(ctx context.Context, key string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.keys[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	if r.expired(record) {
		delete(r.keys, key)
		return nil, ErrKeyNotFound
	}
	cp := *record
	return &cp, nil
}

// Store saves a record unless a live one exists under the same key.
func (r *InMemoryRepository) Store(ctx context.Context, record *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.keys[record.Key]; ok && !r.expired(existing) {
		return ErrKeyExists
	}
	cp := *record
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = r.now()
	}
	r.keys[record.Key] = &cp
	return nil
}

// Len returns the number of stored records, expired ones included.
func (r *InMemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

func (r *InMemoryRepository) expired(record *Record) bool {
	return r.now().Sub(record.CreatedAt) > r.expiry
}

// Sweep drops every expired record and returns how many were removed.
func (r *InMemoryRepository) Sweep(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, record := range r.keys {
		if r.expired(record) {
			delete(r.keys, key)
			removed++
		}
	}
	return removed, nil
}
