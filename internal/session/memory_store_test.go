package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	if _, err := store.Get(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	want := &State{Stage: StageCaptionPending, MessageID: 7}
	if err := store.Put(ctx, 42, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Stage != StageCaptionPending || got.MessageID != 7 {
		t.Fatalf("unexpected state: %+v", got)
	}

	if err := store.Delete(ctx, 42); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(-time.Second)

	if err := store.Put(ctx, 1, &State{Stage: StageSummaryPending}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := store.Get(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired entry to be gone, got %v", err)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(-time.Second)

	_ = store.Put(ctx, 1, &State{Stage: StageApplicationName})
	_ = store.Put(ctx, 2, &State{Stage: StageApplicationName})

	if removed := store.Sweep(); removed != 2 {
		t.Fatalf("Sweep removed %d, want 2", removed)
	}
}
