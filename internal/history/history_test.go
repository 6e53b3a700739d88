package history_test

import (
	"context"
	"testing"

	"emp/internal/history"
	"emp/internal/testsupport"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func TestAppendAndRecent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Append(ctx, "ev1", "tick", "timer", i); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := store.Append(ctx, "ev2", "file-changed", "filewatch", 1); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].EventID != "ev2" {
		t.Fatalf("newest entry should come first, got %q", entries[0].EventID)
	}
	if entries[0].FiredAt.IsZero() {
		t.Fatal("fired_at should round-trip")
	}

	counts, err := store.CountByEvent(ctx)
	if err != nil {
		t.Fatalf("CountByEvent: %v", err)
	}
	if counts["ev1"] != 3 || counts["ev2"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestPrune(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := store.Append(ctx, "ev1", "tick", "timer", 0); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	removed, err := store.Prune(ctx, 4)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 6 {
		t.Fatalf("expected 6 removed, got %d", removed)
	}
	entries, err := store.Recent(ctx, 100)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 remaining, got %d", len(entries))
	}
}

func TestOpenIsIdempotentOnSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := first.Append(context.Background(), "ev1", "tick", "timer", 0); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer second.Close()
	entries, err := second.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected persisted entry, got %d", len(entries))
	}
}
