//go:build integration

package history

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/onnwee/citypulse/internal/db/dbtest"
	"github.com/onnwee/citypulse/internal/item"
)

func TestPostgresStore(t *testing.T) {
	conn := dbtest.NewPostgres(t)
	store := NewPostgresStore(conn, nil)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	rating := 5
	for _, rec := range []*InteractionRecord{
		{UserID: "u1", ItemID: "a", Status: StatusSaved, UpdatedAt: now},
		{UserID: "u1", ItemID: "a", Status: StatusDone, Rating: &rating, Note: "great", UpdatedAt: now.Add(time.Hour)},
	} {
		if err := store.UpsertInteraction(ctx, rec); err != nil {
			t.Fatalf("UpsertInteraction() error = %v", err)
		}
	}
	recs, err := store.GetInteractions(ctx, "u1")
	if err != nil {
		t.Fatalf("GetInteractions() error = %v", err)
	}
	if len(recs) != 1 || recs[0].Status != StatusDone || *recs[0].Rating != 5 || recs[0].Note != "great" {
		t.Errorf("GetInteractions() = %+v", recs)
	}

	c := &item.Candidate{ID: "b", Category: item.CategoryArt, Tags: []string{"gallery", "free"}}
	for _, ft := range []FeedbackType{FeedbackMore, FeedbackHide} {
		sig, err := NewFeedbackSignal("u1", c, ft, now)
		if err != nil {
			t.Fatalf("NewFeedbackSignal() error = %v", err)
		}
		if err := store.AppendFeedback(ctx, sig); err != nil {
			t.Fatalf("AppendFeedback() error = %v", err)
		}
	}

	sigs, err := store.GetFeedbackSince(ctx, "u1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetFeedbackSince() error = %v", err)
	}
	if len(sigs) != 2 || !reflect.DeepEqual(sigs[0].Tags, []string{"gallery", "free"}) {
		t.Errorf("GetFeedbackSince() = %+v", sigs)
	}

	hidden, err := store.HiddenItemIDs(ctx, "u1")
	if err != nil {
		t.Fatalf("HiddenItemIDs() error = %v", err)
	}
	if !reflect.DeepEqual(hidden, []string{"b"}) {
		t.Errorf("HiddenItemIDs() = %v", hidden)
	}
}

func TestPostgresViewStore(t *testing.T) {
	store := NewPostgresViewStore(dbtest.NewPostgres(t))
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{t0.Add(time.Hour), t0, t0.Add(30 * time.Minute)} {
		if err := store.Increment(ctx, "u1", "a", at); err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
	}
	if err := store.MarkInteracted(ctx, "u1", "a"); err != nil {
		t.Fatalf("MarkInteracted() error = %v", err)
	}

	got, err := store.Get(ctx, "u1", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	a, ok := got["a"]
	if !ok || a.SeenCount != 3 || !a.Interacted || !a.LastShownAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("a = %+v", a)
	}
	if _, ok := got["b"]; ok {
		t.Error("unseen item returned")
	}
}
