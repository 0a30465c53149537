package capability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tripmatch/internal/domain"
	"github.com/kailas-cloud/tripmatch/internal/metrics"
)

// defaultAttemptTimeout bounds providers configured without a timeout.
const defaultAttemptTimeout = 15 * time.Second

// ChatChain tries chat providers in priority order until one returns a
// schema-valid response. At most one attempt is in flight at a time.
type ChatChain struct {
	task      Task
	providers []Provider
	caller    ChatCaller
	streamer  StreamCaller
	observer  Observer
	logger    *zap.Logger
}

// NewChatChain creates a fallback chain for a chat-style task.
// streamer may be nil for tasks that never stream.
func NewChatChain(task Task, providers []Provider, caller ChatCaller, streamer StreamCaller, logger *zap.Logger) *ChatChain {
	c := &ChatChain{
		task:      task,
		providers: providers,
		caller:    caller,
		streamer:  streamer,
		logger:    logger,
	}
	c.observer = c.defaultObserver
	return c
}

// WithObserver replaces the status-event observer (tests).
func (c *ChatChain) WithObserver(obs Observer) *ChatChain {
	c.observer = obs
	return c
}

// Complete attempts providers in order. validate (optional) checks the
// response against the task schema; a validation failure counts as a
// malformed response and advances to the next provider. Returns
// domain.ErrCapabilityUnavailable once every provider has failed.
func (c *ChatChain) Complete(ctx context.Context, req ChatRequest, validate func(string) error) (string, error) {
	if len(c.providers) == 0 {
		return "", fmt.Errorf("%s: no providers configured: %w", c.task, domain.ErrCapabilityUnavailable)
	}

	var lastErr error
	for _, p := range c.providers {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s: %w", c.task, ctx.Err())
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeoutFor(p))
		start := time.Now()
		resp, err := c.caller.Chat(attemptCtx, p, req)
		latency := time.Since(start)
		cancel()

		if err == nil && validate != nil {
			if verr := validate(resp); verr != nil {
				err = fmt.Errorf("%w: %v", domain.ErrMalformedCapabilityResponse, verr)
			}
		}

		c.observe(p, err, latency)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}

	return "", fmt.Errorf("%s: all providers failed: %w: %w", c.task, domain.ErrCapabilityUnavailable, lastErr)
}

// Stream attempts providers in order for a streaming completion. Once a
// provider has emitted at least one fragment the chain does not advance
// to the next provider: a mid-stream failure is returned to the caller,
// which already holds partial output.
func (c *ChatChain) Stream(ctx context.Context, req ChatRequest, emit func(fragment string) error) error {
	if c.streamer == nil || len(c.providers) == 0 {
		return fmt.Errorf("%s: no streaming providers configured: %w", c.task, domain.ErrCapabilityUnavailable)
	}

	var lastErr error
	for _, p := range c.providers {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", c.task, ctx.Err())
		}

		started := false
		wrapped := func(fragment string) error {
			started = true
			return emit(fragment)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeoutFor(p))
		start := time.Now()
		err := c.streamer.ChatStream(attemptCtx, p, req, wrapped)
		latency := time.Since(start)
		cancel()

		c.observe(p, err, latency)
		if err == nil {
			return nil
		}
		if started {
			return fmt.Errorf("%s: stream interrupted: %w", c.task, err)
		}
		lastErr = err
	}

	return fmt.Errorf("%s: all providers failed: %w: %w", c.task, domain.ErrCapabilityUnavailable, lastErr)
}

func (c *ChatChain) timeoutFor(p Provider) time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return defaultAttemptTimeout
}

func (c *ChatChain) observe(p Provider, err error, latency time.Duration) {
	c.observer(StatusEvent{
		Task:     c.task,
		Provider: p.Name,
		Model:    p.Model,
		Outcome:  classify(err),
		Latency:  latency,
	})
}

func (c *ChatChain) defaultObserver(ev StatusEvent) {
	recordEvent(ev, c.logger)
}

// EmbedChain tries embedding providers in priority order. It implements
// domain-level embedding so cache decorators can wrap it.
type EmbedChain struct {
	providers []Provider
	caller    EmbedCaller
	observer  Observer
	logger    *zap.Logger
}

// NewEmbedChain creates a fallback chain for the embedding capability.
func NewEmbedChain(providers []Provider, caller EmbedCaller, logger *zap.Logger) *EmbedChain {
	c := &EmbedChain{providers: providers, caller: caller, logger: logger}
	c.observer = func(ev StatusEvent) { recordEvent(ev, logger) }
	return c
}

// WithObserver replaces the status-event observer (tests).
func (c *EmbedChain) WithObserver(obs Observer) *EmbedChain {
	c.observer = obs
	return c
}

// Embed attempts providers in order and returns the first vector.
func (c *EmbedChain) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if len(c.providers) == 0 {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: no providers configured: %w", domain.ErrCapabilityUnavailable)
	}

	var lastErr error
	for _, p := range c.providers {
		if ctx.Err() != nil {
			return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", ctx.Err())
		}

		timeout := p.Timeout
		if timeout <= 0 {
			timeout = defaultAttemptTimeout
		}
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		res, err := c.caller.Embed(attemptCtx, p, text)
		latency := time.Since(start)
		cancel()

		c.observer(StatusEvent{
			Task:     TaskEmbed,
			Provider: p.Name,
			Model:    p.Model,
			Outcome:  classify(err),
			Latency:  latency,
		})
		if err == nil {
			return res, nil
		}
		lastErr = err
	}

	return domain.EmbeddingResult{}, fmt.Errorf("embed: all providers failed: %w: %w", domain.ErrCapabilityUnavailable, lastErr)
}

// classify maps an attempt error to a status outcome.
func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, domain.ErrMalformedCapabilityResponse):
		return OutcomeMalformed
	default:
		return OutcomeError
	}
}

// recordEvent publishes one status event to the log and metrics.
func recordEvent(ev StatusEvent, logger *zap.Logger) {
	metrics.CapabilityAttemptsTotal.WithLabelValues(string(ev.Task), ev.Provider, string(ev.Outcome)).Inc()
	metrics.CapabilityAttemptDuration.WithLabelValues(string(ev.Task), ev.Provider).Observe(ev.Latency.Seconds())

	fields := []zap.Field{
		zap.String("task", string(ev.Task)),
		zap.String("provider", ev.Provider),
		zap.String("model", ev.Model),
		zap.String("outcome", string(ev.Outcome)),
		zap.Duration("latency", ev.Latency),
	}
	if ev.Outcome == OutcomeSuccess {
		logger.Debug("capability_attempt", fields...)
	} else {
		logger.Warn("capability_attempt", fields...)
	}
}
