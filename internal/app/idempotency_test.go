package app

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestIdempotencyGuard_ReplaysSavedResponse(t *testing.T) {
	mem := newMemoryStore()
	guard := NewIdempotencyGuard(mem)

	saved := OpenAccountResult{
		AccountID:     uuid.New(),
		AccountNumber: "000012345678",
		JournalID:     "jrn_abc",
		Status:        "opened",
	}
	if err := guard.Save(context.Background(), "key-1", "accounts.open", 201, saved); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	var got OpenAccountResult
	hit, err := guard.TryGet(context.Background(), "key-1", "accounts.open", &got)
	if err != nil {
		t.Fatalf("TryGet returned error: %v", err)
	}
	if !hit {
		t.Fatal("expected a cache hit for the saved key")
	}
	if got != saved {
		t.Fatalf("expected the saved response replayed, got %+v", got)
	}
}

func TestIdempotencyGuard_ScopesKeysByOperation(t *testing.T) {
	mem := newMemoryStore()
	guard := NewIdempotencyGuard(mem)

	if err := guard.Save(context.Background(), "shared-key", "accounts.open", 201, OpenAccountResult{Status: "opened"}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	// The same key under a different operation must not replay.
	var got OpenAccountResult
	hit, err := guard.TryGet(context.Background(), "shared-key", "registrations.activate", &got)
	if err != nil {
		t.Fatalf("TryGet returned error: %v", err)
	}
	if hit {
		t.Fatal("expected a miss for a different operation under the same key")
	}
}

func TestIdempotencyGuard_BlankKeyNeverCaches(t *testing.T) {
	mem := newMemoryStore()
	guard := NewIdempotencyGuard(mem)

	if err := guard.Save(context.Background(), "", "accounts.open", 201, OpenAccountResult{Status: "opened"}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	var got OpenAccountResult
	hit, err := guard.TryGet(context.Background(), "", "accounts.open", &got)
	if err != nil {
		t.Fatalf("TryGet returned error: %v", err)
	}
	if hit {
		t.Fatal("expected a miss for a blank key")
	}
}

func TestIdempotencyGuard_ConcurrentSaveIsConflictAsSuccess(t *testing.T) {
	mem := newMemoryStore()
	guard := NewIdempotencyGuard(mem)

	first := OpenAccountResult{JournalID: "jrn_first", Status: "opened"}
	second := OpenAccountResult{JournalID: "jrn_second", Status: "opened"}

	if err := guard.Save(context.Background(), "dup-key", "accounts.open", 201, first); err != nil {
		t.Fatalf("first Save returned error: %v", err)
	}
	// A losing duplicate save must not error and must not overwrite.
	if err := guard.Save(context.Background(), "dup-key", "accounts.open", 201, second); err != nil {
		t.Fatalf("second Save returned error: %v", err)
	}

	var got OpenAccountResult
	hit, err := guard.TryGet(context.Background(), "dup-key", "accounts.open", &got)
	if err != nil || !hit {
		t.Fatalf("expected a hit, got hit=%t err=%v", hit, err)
	}
	if got.JournalID != "jrn_first" {
		t.Fatalf("expected the first write to win, got %q", got.JournalID)
	}
}
