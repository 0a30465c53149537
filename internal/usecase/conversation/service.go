// Package conversation manages per-conversation state: load, persist,
// clear, and the per-conversation serialization of concurrent turns.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kailas-cloud/tripmatch/internal/domain"
)

// Repository persists conversation state.
type Repository interface {
	Get(ctx context.Context, id string) (*domain.ConversationState, error)
	Put(ctx context.Context, state *domain.ConversationState) error
	Delete(ctx context.Context, id string) error
}

// Service is the conversation memory facade used by the turn pipeline
// and the management endpoints.
type Service struct {
	repo       Repository
	maxHistory int

	mu    sync.Mutex
	locks map[string]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a conversation service with the given history bound.
func New(repo Repository, maxHistory int) *Service {
	return &Service{repo: repo, maxHistory: maxHistory, locks: make(map[string]*convLock)}
}

// Get loads a conversation, returning a fresh empty state when none
// exists yet. Clearing then getting a conversation therefore yields an
// empty state, never an error.
func (s *Service) Get(ctx context.Context, id string) (*domain.ConversationState, error) {
	state, err := s.repo.Get(ctx, id)
	if errors.Is(err, domain.ErrConversationNotFound) {
		return domain.NewConversationState(id), nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Put persists a conversation state, enforcing the history bound.
func (s *Service) Put(ctx context.Context, state *domain.ConversationState) error {
	state.TrimHistory(s.maxHistory)
	if err := s.repo.Put(ctx, state); err != nil {
		return fmt.Errorf("persist conversation: %w", err)
	}
	return nil
}

// Clear removes all remembered state for a conversation. Clearing an
// unknown conversation succeeds.
func (s *Service) Clear(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// MaxHistory returns the configured history bound.
func (s *Service) MaxHistory() int { return s.maxHistory }

// Lock serializes turns for one conversation. It blocks until the
// conversation is free and returns the unlock function. Locks are
// reference counted so idle conversations hold no memory.
func (s *Service) Lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &convLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}
