// Package capability wraps every call to an external reasoning,
// generation, ranking, or embedding service in a priority-ordered
// fallback chain with per-attempt timeouts and status events.
package capability

import (
	"context"
	"time"

	"github.com/kailas-cloud/tripmatch/internal/domain"
)

// Task identifies the capability being invoked.
type Task string

// Capability tasks.
const (
	TaskExtract Task = "extract"
	TaskRank    Task = "rank"
	TaskCompose Task = "compose"
	TaskEmbed   Task = "embed"
)

// Provider is one attempt in a fallback chain: which endpoint, which
// model, and the per-attempt limits.
type Provider struct {
	Name        string
	Model       string
	Temperature float32
	MaxTokens   int
	Dimensions  int // embed task only
	Timeout     time.Duration
}

// ChatRequest is a single reasoning/generation/ranking call.
type ChatRequest struct {
	Task     Task
	System   string
	User     string
	JSONMode bool
}

// ChatCaller executes one chat completion against one provider.
type ChatCaller interface {
	Chat(ctx context.Context, p Provider, req ChatRequest) (string, error)
}

// StreamCaller executes one streaming chat completion against one
// provider, emitting content fragments as they arrive.
type StreamCaller interface {
	ChatStream(ctx context.Context, p Provider, req ChatRequest, emit func(fragment string) error) error
}

// EmbedCaller executes one embedding call against one provider.
type EmbedCaller interface {
	Embed(ctx context.Context, p Provider, text string) (domain.EmbeddingResult, error)
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Outcome classifies one provider attempt.
type Outcome string

// Attempt outcomes.
const (
	OutcomeSuccess   Outcome = "success"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeError     Outcome = "error"
	OutcomeMalformed Outcome = "malformed"
)

// StatusEvent describes one provider attempt for operational visibility.
type StatusEvent struct {
	Task     Task
	Provider string
	Model    string
	Outcome  Outcome
	Latency  time.Duration
}

// Observer receives status events. Observers must not block.
type Observer func(ev StatusEvent)
