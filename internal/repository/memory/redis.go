// Package memory persists conversation state keyed by conversation
// identifier.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/tripmatch/internal/db"
	"github.com/kailas-cloud/tripmatch/internal/domain"
)

// RedisRepository stores conversation state as JSON values in a
// key-value store, one key per conversation, last-writer-wins.
type RedisRepository struct {
	kv        db.KVStore
	keyPrefix string
	ttl       time.Duration // 0 = no expiry
}

// NewRedis creates a conversation repository over a key-value store.
// ttl of zero disables expiry; expiry policy belongs to the operator.
func NewRedis(kv db.KVStore, keyPrefix string, ttl time.Duration) *RedisRepository {
	return &RedisRepository{kv: kv, keyPrefix: keyPrefix + "conv:", ttl: ttl}
}

// Get loads a conversation state. Missing conversations return
// domain.ErrConversationNotFound.
func (r *RedisRepository) Get(ctx context.Context, id string) (*domain.ConversationState, error) {
	data, err := r.kv.Get(ctx, r.keyPrefix+id)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}

	var state domain.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal conversation %s: %w", id, err)
	}
	if state.Preferences == nil {
		state.Preferences = make(domain.PreferenceSet)
	}
	return &state, nil
}

// Put replaces a conversation state wholesale.
func (r *RedisRepository) Put(ctx context.Context, state *domain.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal conversation %s: %w", state.ID, err)
	}

	key := r.keyPrefix + state.ID
	if r.ttl > 0 {
		if err := r.kv.SetWithTTL(ctx, key, data, r.ttl); err != nil {
			return fmt.Errorf("put conversation %s: %w", state.ID, err)
		}
		return nil
	}
	if err := r.kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("put conversation %s: %w", state.ID, err)
	}
	return nil
}

// Delete removes a conversation state. Deleting an absent conversation
// is not an error.
func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	if err := r.kv.Del(ctx, r.keyPrefix+id); err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return nil
}
