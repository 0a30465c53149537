package domain

import "time"

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one utterance in a conversation's recent history.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// ConversationState is everything the pipeline remembers about one
// conversation: accumulated preferences, bounded recent history, and
// the identifiers of the offers last presented (for reference
// resolution like "tell me more about the second one").
//
// State is owned exclusively by its conversation; concurrent turns for
// the same identifier are serialized by the conversation service.
type ConversationState struct {
	ID          string        `json:"id"`
	Preferences PreferenceSet `json:"preferences"`
	History     []Turn        `json:"history,omitempty"`
	LastRanked  []string      `json:"last_ranked,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NewConversationState creates an empty state for the given identifier.
func NewConversationState(id string) *ConversationState {
	return &ConversationState{
		ID:          id,
		Preferences: make(PreferenceSet),
	}
}

// AppendTurn records a turn, dropping oldest turns beyond maxHistory.
func (s *ConversationState) AppendTurn(role, content string, maxHistory int) {
	s.History = append(s.History, Turn{Role: role, Content: content, At: time.Now().UTC()})
	s.TrimHistory(maxHistory)
}

// TrimHistory enforces the bounded history length, oldest turns first.
func (s *ConversationState) TrimHistory(maxHistory int) {
	if maxHistory > 0 && len(s.History) > maxHistory {
		s.History = append([]Turn(nil), s.History[len(s.History)-maxHistory:]...)
	}
}
