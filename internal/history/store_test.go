package history

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/citypulse/internal/item"
)

func TestInMemoryStore_UpsertInteractionOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := store.UpsertInteraction(ctx, &InteractionRecord{UserID: "u1", ItemID: "a", Status: StatusWant, CreatedAt: t0, UpdatedAt: t0}); err != nil {
		t.Fatalf("UpsertInteraction() error = %v", err)
	}
	rating := 4
	t1 := t0.Add(time.Hour)
	if err := store.UpsertInteraction(ctx, &InteractionRecord{UserID: "u1", ItemID: "a", Status: StatusDone, Rating: &rating, CreatedAt: t1, UpdatedAt: t1}); err != nil {
		t.Fatalf("UpsertInteraction() error = %v", err)
	}

	got, err := store.GetInteractions(ctx, "u1")
	if err != nil {
		t.Fatalf("GetInteractions() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(got))
	}
	if got[0].Status != StatusDone || *got[0].Rating != 4 {
		t.Errorf("record = %+v", got[0])
	}
	if !got[0].CreatedAt.Equal(t0) || !got[0].UpdatedAt.Equal(t1) {
		t.Errorf("timestamps = %v / %v, want created %v updated %v", got[0].CreatedAt, got[0].UpdatedAt, t0, t1)
	}
}

func TestInMemoryStore_Feedback(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	add := func(itemID string, ft FeedbackType, at time.Time) {
		t.Helper()
		sig := &FeedbackSignal{ID: uuid.New(), UserID: "u1", ItemID: itemID, Type: ft, Category: item.CategoryArt, CreatedAt: at}
		if err := store.AppendFeedback(ctx, sig); err != nil {
			t.Fatalf("AppendFeedback() error = %v", err)
		}
	}
	add("old-hide", FeedbackHide, now.Add(-400*24*time.Hour))
	add("a", FeedbackMore, now.Add(-2*time.Hour))
	add("b", FeedbackLess, now.Add(-time.Hour))
	add("a", FeedbackMore, now.Add(-3*time.Hour))
	add("c", FeedbackHide, now)
	add("c", FeedbackHide, now)

	recent, err := store.GetFeedbackSince(ctx, "u1", now.Add(-90*24*time.Hour))
	if err != nil {
		t.Fatalf("GetFeedbackSince() error = %v", err)
	}
	if len(recent) != 5 {
		t.Fatalf("GetFeedbackSince() returned %d signals, want 5", len(recent))
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].CreatedAt.Before(recent[i-1].CreatedAt) {
			t.Errorf("signals not oldest-first at %d", i)
		}
	}

	hidden, err := store.HiddenItemIDs(ctx, "u1")
	if err != nil {
		t.Fatalf("HiddenItemIDs() error = %v", err)
	}
	if want := []string{"c", "old-hide"}; !reflect.DeepEqual(hidden, want) {
		t.Errorf("HiddenItemIDs() = %v, want %v", hidden, want)
	}

	other, _ := store.HiddenItemIDs(ctx, "u2")
	if len(other) != 0 {
		t.Errorf("other user sees hides: %v", other)
	}
}

func TestInMemoryViewStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryViewStore()
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Increment(ctx, "u1", "a", t0.Add(time.Hour)); err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	// Applied out of order: the later timestamp must win.
	if err := store.Increment(ctx, "u1", "a", t0); err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if err := store.MarkInteracted(ctx, "u1", "b"); err != nil {
		t.Fatalf("MarkInteracted() error = %v", err)
	}

	got, err := store.Get(ctx, "u1", []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Get() returned %d records, want 2", len(got))
	}
	if a := got["a"]; a.SeenCount != 2 || !a.LastShownAt.Equal(t0.Add(time.Hour)) || a.Interacted {
		t.Errorf("a = %+v", a)
	}
	if b := got["b"]; b.SeenCount != 0 || !b.Interacted {
		t.Errorf("b = %+v", b)
	}
}

func TestInMemoryViewStore_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryViewStore()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Increment(ctx, "u1", "a", now)
		}()
	}
	wg.Wait()

	got, _ := store.Get(ctx, "u1", []string{"a"})
	if got["a"].SeenCount != 50 {
		t.Errorf("SeenCount = %d, want 50", got["a"].SeenCount)
	}
}
