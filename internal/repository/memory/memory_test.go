package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/tripmatch/internal/domain"
)

func TestInMemoryRoundTrip(t *testing.T) {
	repo := NewInMemory()
	ctx := context.Background()

	if _, err := repo.Get(ctx, "c1"); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}

	state := domain.NewConversationState("c1")
	state.Preferences[domain.PrefDestination] = "Japan"
	state.AppendTurn(domain.RoleUser, "I want to go to Japan", 10)

	if err := repo.Put(ctx, state); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := repo.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Preferences[domain.PrefDestination] != "Japan" {
		t.Errorf("destination = %q", got.Preferences[domain.PrefDestination])
	}
	if len(got.History) != 1 {
		t.Errorf("history length = %d", len(got.History))
	}

	// Repository hands out copies, not shared state.
	got.Preferences[domain.PrefDestination] = "Peru"
	again, _ := repo.Get(ctx, "c1")
	if again.Preferences[domain.PrefDestination] != "Japan" {
		t.Error("Get returned shared mutable state")
	}
}

func TestInMemoryDelete(t *testing.T) {
	repo := NewInMemory()
	ctx := context.Background()

	state := domain.NewConversationState("c1")
	if err := repo.Put(ctx, state); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := repo.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, "c1"); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound after delete, got %v", err)
	}

	// Deleting an absent conversation is not an error.
	if err := repo.Delete(ctx, "ghost"); err != nil {
		t.Fatalf("Delete(ghost): %v", err)
	}
}
