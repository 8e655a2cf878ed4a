package item

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryRepository_FetchActive(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	seed := []Candidate{
		{ID: "b", CityID: "nyc", Category: CategoryArt},
		{ID: "a", CityID: "nyc", Category: CategoryFood, StartsAt: timePtr(now.Add(24 * time.Hour))},
		{ID: "c", CityID: "nyc", Category: CategoryBars, StartsAt: timePtr(now.Add(30 * 24 * time.Hour))},
		{ID: "d", CityID: "sf", Category: CategoryArt},
	}
	for i := range seed {
		if err := repo.Upsert(ctx, &seed[i]); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	all, err := repo.FetchActive(ctx, "nyc", nil)
	if err != nil {
		t.Fatalf("FetchActive() error = %v", err)
	}
	if len(all) != 3 || all[0].ID != "a" || all[1].ID != "b" || all[2].ID != "c" {
		t.Errorf("FetchActive(nil window) = %v, want a,b,c", ids(all))
	}

	week := &Window{From: now, To: now.Add(7 * 24 * time.Hour)}
	got, err := repo.FetchActive(ctx, "nyc", week)
	if err != nil {
		t.Fatalf("FetchActive() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("FetchActive(week) = %v, want a,b", ids(got))
	}
}

func TestInMemoryRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}

	c := &Candidate{ID: "x", CityID: "nyc", Category: CategoryArt, Tags: []string{"gallery"}}
	if err := repo.Upsert(ctx, c); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	c.Tags[0] = "mutated"

	got, err := repo.GetByID(ctx, "x")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Tags[0] != "gallery" {
		t.Errorf("stored candidate was mutated through caller's pointer")
	}
}

func TestInMemoryRepository_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewInMemoryRepository().FetchActive(ctx, "nyc", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("FetchActive() error = %v, want context.Canceled", err)
	}
}

func ids(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}
