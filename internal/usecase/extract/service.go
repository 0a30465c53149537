// Package extract turns a user utterance plus prior preference state
// into an updated preference set.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tripmatch/internal/capability"
	"github.com/kailas-cloud/tripmatch/internal/domain"
	"github.com/kailas-cloud/tripmatch/internal/metrics"
)

const systemPrompt = `You extract travel preferences from a user message.
Return ONLY a JSON object of this shape:
{"preferences": {"<key>": {"value": "<string>", "confidence": "high|medium|low"}}}
Valid keys: destination, budget_tier, duration_days, travel_style, party_size, dates, notes.
Rules:
- Include a key only when the message states or clearly implies it.
- duration_days is a number of days ("two weeks" -> "14").
- budget_tier is one of: budget, mid, luxury.
- Never guess: omit keys you are not confident about.`

// Service extracts preferences with the reasoning capability and falls
// back to keyword matching, never failing the turn.
type Service struct {
	completer Completer
	dests     DestinationSource
	logger    *zap.Logger
}

// New creates a preference extraction service.
func New(completer Completer, dests DestinationSource, logger *zap.Logger) *Service {
	return &Service{completer: completer, dests: dests, logger: logger}
}

// extractedPrefs is the capability response schema.
type extractedPrefs struct {
	Preferences map[string]struct {
		Value      string `json:"value"`
		Confidence string `json:"confidence"`
	} `json:"preferences"`
}

// Extract merges preferences recognized in the utterance into the prior
// set. A recognized key replaces the prior value only when this turn's
// extraction carries non-null confidence for it. On total failure the
// prior set is returned unmodified; the extractor never invents values
// and never fails the turn.
func (s *Service) Extract(ctx context.Context, utterance string, prior domain.PreferenceSet, history []domain.Turn) domain.PreferenceSet {
	if prior == nil {
		prior = make(domain.PreferenceSet)
	}

	update, err := s.extractWithCapability(ctx, utterance, prior, history)
	if err != nil {
		s.logger.Warn("Preference extraction capability failed, using keyword fallback", zap.Error(err))
		metrics.CapabilityFallbacksTotal.WithLabelValues("extract").Inc()
		update = KeywordExtract(utterance, s.knownDestinations())
	}

	return prior.Merge(update)
}

func (s *Service) extractWithCapability(
	ctx context.Context, utterance string, prior domain.PreferenceSet, history []domain.Turn,
) (domain.PreferenceSet, error) {
	var parsed extractedPrefs
	validate := func(resp string) error {
		parsed = extractedPrefs{}
		if err := json.Unmarshal([]byte(capability.ExtractJSON(resp)), &parsed); err != nil {
			return fmt.Errorf("parse preferences: %w", err)
		}
		if parsed.Preferences == nil {
			return fmt.Errorf("missing preferences object")
		}
		return nil
	}

	_, err := s.completer.Complete(ctx, capability.ChatRequest{
		Task:     capability.TaskExtract,
		System:   systemPrompt,
		User:     s.buildPrompt(utterance, prior, history),
		JSONMode: true,
	}, validate)
	if err != nil {
		return nil, err
	}

	update := make(domain.PreferenceSet)
	for rawKey, v := range parsed.Preferences {
		key, err := domain.ParsePreferenceKey(rawKey)
		if err != nil {
			// Unknown keys are rejected, never stored.
			s.logger.Warn("Extractor returned unknown preference key", zap.String("key", rawKey))
			continue
		}
		if v.Value == "" || !confident(v.Confidence) {
			continue
		}
		update[key] = strings.TrimSpace(v.Value)
	}
	return update, nil
}

// buildPrompt includes prior preferences and recent turns so the model
// can resolve references ("make it luxury", "the second one") without
// re-asking answered questions.
func (s *Service) buildPrompt(utterance string, prior domain.PreferenceSet, history []domain.Turn) string {
	var b strings.Builder

	if !prior.Empty() {
		b.WriteString("Known preferences so far:\n")
		b.WriteString(prior.Summary())
		b.WriteString("\n\n")
	}

	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, t := range history {
			b.WriteString(t.Role)
			b.WriteString(": ")
			b.WriteString(t.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("User message:\n")
	b.WriteString(utterance)
	return b.String()
}

func (s *Service) knownDestinations() []string {
	if s.dests == nil {
		return nil
	}
	return s.dests.Destinations()
}

// confident reports whether the capability expressed usable confidence.
func confident(c string) bool {
	switch strings.ToLower(c) {
	case "high", "medium", "low":
		return true
	}
	return false
}
