// Package rank picks the final offer shortlist from a packed candidate
// batch, via the ranking capability when available and by selection
// score otherwise.
package rank

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tripmatch/internal/capability"
	"github.com/kailas-cloud/tripmatch/internal/domain"
	"github.com/kailas-cloud/tripmatch/internal/metrics"
	"github.com/kailas-cloud/tripmatch/internal/usecase/pack"
)

const systemPrompt = `You rank travel offers for a user.
Given the user's preferences and a batch of offers, pick the best matches.
Return ONLY a JSON object:
{"selections": [{"id": "<offer id from the batch>", "score": <0..1>, "confidence": "high|medium|low"}]}
Rules:
- Use only offer ids that appear in the batch.
- List at most %d selections, best first.
- score reflects how well the offer matches the stated preferences.`

// Completer executes a schema-validated chat completion.
type Completer interface {
	Complete(ctx context.Context, req capability.ChatRequest, validate func(string) error) (string, error)
}

// Service ranks packed batches.
type Service struct {
	completer Completer
	maxOffers int
	logger    *zap.Logger
}

// New creates a ranker that returns at most maxOffers results.
func New(completer Completer, maxOffers int, logger *zap.Logger) *Service {
	return &Service{completer: completer, maxOffers: maxOffers, logger: logger}
}

type rankResponse struct {
	Selections []struct {
		ID         string  `json:"id"`
		Score      float64 `json:"score"`
		Confidence string  `json:"confidence"`
	} `json:"selections"`
}

// Rank returns the final shortlist for a batch. The result references
// only IDs from the batch, carries no duplicates, and holds at most the
// configured maximum. When the capability chain is exhausted the
// candidates' own selection scores decide, flagged as fallback with low
// confidence. An empty batch yields an empty result.
func (s *Service) Rank(ctx context.Context, batch pack.Batch, candidates domain.CandidateSet, prefs domain.PreferenceSet) domain.RankingResult {
	if len(batch.OfferIDs) == 0 {
		return nil
	}

	result, err := s.rankWithCapability(ctx, batch, prefs)
	if err != nil {
		s.logger.Warn("Ranking capability failed, using selection-score fallback", zap.Error(err))
		metrics.CapabilityFallbacksTotal.WithLabelValues("rank").Inc()
		return s.fallback(batch, candidates)
	}
	return result
}

func (s *Service) rankWithCapability(ctx context.Context, batch pack.Batch, prefs domain.PreferenceSet) (domain.RankingResult, error) {
	allowed := make(map[string]struct{}, len(batch.OfferIDs))
	for _, id := range batch.OfferIDs {
		allowed[id] = struct{}{}
	}

	var parsed rankResponse
	validate := func(resp string) error {
		parsed = rankResponse{}
		if err := json.Unmarshal([]byte(capability.ExtractJSON(resp)), &parsed); err != nil {
			return fmt.Errorf("parse selections: %w", err)
		}
		if len(parsed.Selections) == 0 {
			return fmt.Errorf("empty selections")
		}
		valid := 0
		for _, sel := range parsed.Selections {
			if _, ok := allowed[sel.ID]; ok {
				valid++
			}
		}
		if valid == 0 {
			return fmt.Errorf("no selection references the batch")
		}
		return nil
	}

	_, err := s.completer.Complete(ctx, capability.ChatRequest{
		Task:     capability.TaskRank,
		System:   fmt.Sprintf(systemPrompt, s.maxOffers),
		User:     buildPrompt(batch, prefs),
		JSONMode: true,
	}, validate)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(parsed.Selections))
	result := make(domain.RankingResult, 0, s.maxOffers)
	for _, sel := range parsed.Selections {
		if _, ok := allowed[sel.ID]; !ok {
			s.logger.Warn("Ranker selected an offer outside the batch", zap.String("offer_id", sel.ID))
			continue
		}
		if _, dup := seen[sel.ID]; dup {
			continue
		}
		seen[sel.ID] = struct{}{}
		result = append(result, domain.RankedOffer{
			OfferID:    sel.ID,
			Score:      clamp01(sel.Score),
			Confidence: parseConfidence(sel.Confidence),
			Source:     domain.RankedByCapability,
		})
	}

	result.Sort()
	if len(result) > s.maxOffers {
		result = result[:s.maxOffers]
	}
	return result, nil
}

// fallback ranks by the selector's own scores, restricted to the packed
// batch so the reply never mentions an offer the ranker prompt omitted.
func (s *Service) fallback(batch pack.Batch, candidates domain.CandidateSet) domain.RankingResult {
	inBatch := make(map[string]struct{}, len(batch.OfferIDs))
	for _, id := range batch.OfferIDs {
		inBatch[id] = struct{}{}
	}

	result := make(domain.RankingResult, 0, s.maxOffers)
	for _, c := range candidates {
		if _, ok := inBatch[c.OfferID]; !ok {
			continue
		}
		result = append(result, domain.RankedOffer{
			OfferID:    c.OfferID,
			Score:      c.Score,
			Confidence: domain.ConfidenceLow,
			Source:     domain.RankedByFallback,
		})
	}

	result.Sort()
	if len(result) > s.maxOffers {
		result = result[:s.maxOffers]
	}
	return result
}

func buildPrompt(batch pack.Batch, prefs domain.PreferenceSet) string {
	summary := prefs.Summary()
	if summary == "" {
		summary = "(none stated yet)"
	}
	return fmt.Sprintf("User preferences:\n%s\n\nOffers:\n%s", summary, batch.Text)
}

func parseConfidence(c string) domain.Confidence {
	switch domain.Confidence(c) {
	case domain.ConfidenceHigh, domain.ConfidenceMedium, domain.ConfidenceLow:
		return domain.Confidence(c)
	}
	return domain.ConfidenceLow
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
