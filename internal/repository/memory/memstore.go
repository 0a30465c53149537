package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kailas-cloud/tripmatch/internal/domain"
)

// InMemoryRepository keeps conversation state in process memory. Used
// for tests and single-node deployments without a database.
type InMemoryRepository struct {
	mu     sync.RWMutex
	states map[string][]byte
}

// NewInMemory creates an in-process conversation repository.
func NewInMemory() *InMemoryRepository {
	return &InMemoryRepository{states: make(map[string][]byte)}
}

// Get loads a conversation state, returning
// domain.ErrConversationNotFound when absent.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*domain.ConversationState, error) {
	r.mu.RLock()
	data, ok := r.states[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrConversationNotFound
	}

	var state domain.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.Preferences == nil {
		state.Preferences = make(domain.PreferenceSet)
	}
	return &state, nil
}

// Put replaces a conversation state wholesale. State is stored
// serialized so callers never share mutable memory with the repository.
func (r *InMemoryRepository) Put(_ context.Context, state *domain.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.states[state.ID] = data
	r.mu.Unlock()
	return nil
}

// Delete removes a conversation state.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	delete(r.states, id)
	r.mu.Unlock()
	return nil
}
