// Package compose turns a ranking into the streamed conversational
// reply.
package compose

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tripmatch/internal/capability"
	"github.com/kailas-cloud/tripmatch/internal/domain"
	"github.com/kailas-cloud/tripmatch/internal/metrics"
)

const systemPrompt = `You are a friendly travel assistant presenting matched offers.
Write a short conversational reply that introduces each offer by name with
one reason it fits the user's stated preferences. Do not invent offers or
details that are not in the provided summaries. If no offers are provided,
ask one concise clarifying question instead.`

// Streamer executes a streaming completion through the fallback chain.
type Streamer interface {
	Stream(ctx context.Context, req capability.ChatRequest, emit func(fragment string) error) error
}

// OfferSource resolves ranked IDs to offers for prompts and fallback
// replies.
type OfferSource interface {
	Get(id string) (domain.Offer, bool)
}

// Service composes replies.
type Service struct {
	streamer Streamer
	logger   *zap.Logger
}

// New creates a response composer.
func New(streamer Streamer, logger *zap.Logger) *Service {
	return &Service{streamer: streamer, logger: logger}
}

// Compose streams the reply for a ranking through emit and returns the
// full text for conversation history. When the composition capability
// is exhausted before any fragment was emitted, a deterministic
// template reply is emitted instead. A mid-stream failure returns an
// error alongside the partial text already delivered; the structured
// offers were sent separately and are unaffected.
func (s *Service) Compose(ctx context.Context, prefs domain.PreferenceSet, ranking domain.RankingResult, offers OfferSource, emit func(fragment string) error) (string, error) {
	var full strings.Builder
	collect := func(fragment string) error {
		full.WriteString(fragment)
		return emit(fragment)
	}

	err := s.streamer.Stream(ctx, capability.ChatRequest{
		Task:   capability.TaskCompose,
		System: systemPrompt,
		User:   buildPrompt(prefs, ranking, offers),
	}, collect)
	if err == nil {
		return full.String(), nil
	}
	if full.Len() > 0 {
		// Partial reply already reached the client. Do not restart with
		// another provider or the template, the text would contradict
		// itself.
		return full.String(), fmt.Errorf("compose stream interrupted: %w", err)
	}

	s.logger.Warn("Composition capability failed, using template reply", zap.Error(err))
	metrics.CapabilityFallbacksTotal.WithLabelValues("compose").Inc()

	text := Template(prefs, ranking, offers)
	if err := emit(text); err != nil {
		return "", err
	}
	return text, nil
}

// buildPrompt gives the model the preferences and the ranked offer
// summaries it is allowed to talk about.
func buildPrompt(prefs domain.PreferenceSet, ranking domain.RankingResult, offers OfferSource) string {
	var b strings.Builder
	b.WriteString("User preferences:\n")
	if summary := prefs.Summary(); summary != "" {
		b.WriteString(summary)
	} else {
		b.WriteString("(none stated yet)")
	}
	b.WriteString("\n\nMatched offers, best first:\n")
	if len(ranking) == 0 {
		b.WriteString("(none)\n")
		return b.String()
	}
	for _, r := range ranking {
		o, ok := offers.Get(r.OfferID)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s", o.Name)
		if len(o.Destinations) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(o.Destinations, ", "))
		}
		if o.Description != "" {
			fmt.Fprintf(&b, ": %s", o.Description)
		}
		for _, h := range o.Highlights {
			fmt.Fprintf(&b, "; %s", h.Text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Template is the deterministic reply used when no composition provider
// is reachable. It presents the ranked offers from catalog data alone.
func Template(prefs domain.PreferenceSet, ranking domain.RankingResult, offers OfferSource) string {
	if len(ranking) == 0 {
		return clarifyingQuestion(prefs)
	}

	var b strings.Builder
	b.WriteString("Here is what I found for you:\n")
	for i, r := range ranking {
		o, ok := offers.Get(r.OfferID)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%d. %s", i+1, o.Name)
		var details []string
		if len(o.Destinations) > 0 {
			details = append(details, strings.Join(o.Destinations, ", "))
		}
		if o.DurationDays > 0 {
			details = append(details, fmt.Sprintf("%d days", o.DurationDays))
		}
		if len(o.Highlights) > 0 {
			details = append(details, o.Highlights[0].Text)
		}
		if len(details) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(details, "; "))
		}
		b.WriteString("\n")
	}
	b.WriteString("Would you like more detail on any of these?")
	return b.String()
}

// clarifyingQuestion asks for the most useful missing preference.
func clarifyingQuestion(prefs domain.PreferenceSet) string {
	switch {
	case prefs[domain.PrefDestination] == "":
		return "I could not find a matching trip yet. Where would you like to travel?"
	case prefs[domain.PrefDurationDays] == "":
		return "I could not find a matching trip yet. How long would you like to be away?"
	default:
		return "I could not find a trip matching all of that. Would you like to relax the budget or try a different destination?"
	}
}
