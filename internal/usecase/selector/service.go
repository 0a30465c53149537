// Package selector narrows the offer catalog to a bounded candidate
// shortlist using a strategy picked by catalog scale.
package selector

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tripmatch/internal/config"
	"github.com/kailas-cloud/tripmatch/internal/domain"
	"github.com/kailas-cloud/tripmatch/internal/metrics"
	"github.com/kailas-cloud/tripmatch/internal/repository/catalog"
)

// Service selects candidate offers for a preference set. Small catalogs
// are filtered structurally, medium catalogs go through the vector
// index, large catalogs are prefiltered before an in-process
// nearest-neighbor pass. Degraded embedding availability falls back to
// keyword matching rather than failing the turn.
type Service struct {
	catalog  Catalog
	embedder domain.Embedder
	cfg      config.SelectorConfig
	logger   *zap.Logger
}

// New creates a candidate selector.
func New(cat Catalog, embedder domain.Embedder, cfg config.SelectorConfig, logger *zap.Logger) *Service {
	return &Service{catalog: cat, embedder: embedder, cfg: cfg, logger: logger}
}

// Select returns at most MaxCandidates candidates ordered by descending
// score with ties broken by offer ID. An empty catalog yields an empty
// set, never an error.
func (s *Service) Select(ctx context.Context, prefs domain.PreferenceSet) (domain.CandidateSet, error) {
	snap := s.catalog.Snapshot()
	if snap == nil || snap.Size() == 0 {
		return nil, nil
	}

	if prefs.Empty() {
		return s.sample(snap), nil
	}

	var cands domain.CandidateSet
	switch {
	case snap.Size() <= s.cfg.SmallMaxCatalog:
		cands = s.selectSmall(snap, prefs)
	case snap.Size() >= s.cfg.LargeMinCatalog:
		cands = s.selectLarge(ctx, snap, prefs)
	default:
		cands = s.selectMedium(ctx, snap, prefs)
	}

	cands.Sort()
	return cands.Cap(s.cfg.MaxCandidates), nil
}

// sample returns the first TopK offers by ID when the conversation has
// not yet produced any usable preference signal. Deterministic so the
// opening turn is reproducible.
func (s *Service) sample(snap *catalog.Snapshot) domain.CandidateSet {
	offers := snap.Offers()
	n := s.cfg.TopK
	if n > len(offers) {
		n = len(offers)
	}
	cands := make(domain.CandidateSet, 0, n)
	for _, o := range offers[:n] {
		cands = append(cands, domain.Candidate{OfferID: o.ID, Score: 0.5, Source: domain.SourceSample})
	}
	return cands
}

// selectSmall filters structurally. At this scale every offer can be
// inspected per turn, so vector search is never used.
func (s *Service) selectSmall(snap *catalog.Snapshot, prefs domain.PreferenceSet) domain.CandidateSet {
	matched := filterOffers(snap.Offers(), prefs)
	if len(matched) == 0 {
		// No structural match: score the whole catalog by keyword
		// instead of returning nothing to rank.
		return keywordMatch(snap.Offers(), prefs)
	}
	cands := make(domain.CandidateSet, 0, len(matched))
	for _, o := range matched {
		cands = append(cands, domain.Candidate{OfferID: o.ID, Score: 1, Source: domain.SourceFilter})
	}
	return cands
}

// selectMedium embeds the preference query and searches the vector
// index, pushing the destination preference into the index as a tag
// prefilter. Embedding or index failure degrades to keyword matching.
func (s *Service) selectMedium(ctx context.Context, snap *catalog.Snapshot, prefs domain.PreferenceSet) domain.CandidateSet {
	res, err := s.embedder.Embed(ctx, prefs.QueryText())
	if err != nil {
		s.logger.Warn("Query embedding failed, using keyword selection", zap.Error(err))
		metrics.CapabilityFallbacksTotal.WithLabelValues("selector").Inc()
		return keywordMatch(snap.Offers(), prefs)
	}

	filter := catalog.SearchFilter{Destination: prefs[domain.PrefDestination]}
	cands, err := s.catalog.SearchKNN(ctx, res.Embedding, s.cfg.TopK, filter)
	if err != nil {
		s.logger.Warn("Vector search failed, using keyword selection", zap.Error(err))
		metrics.CapabilityFallbacksTotal.WithLabelValues("selector").Inc()
		return keywordMatch(snap.Offers(), prefs)
	}
	return cands
}

// selectLarge prefilters the snapshot structurally and runs the
// nearest-neighbor pass over the reduced slice only, so one turn never
// scores the full catalog.
func (s *Service) selectLarge(ctx context.Context, snap *catalog.Snapshot, prefs domain.PreferenceSet) domain.CandidateSet {
	subset := filterOffers(snap.Offers(), prefs)
	if len(subset) == 0 {
		subset = snap.Offers()
	}

	res, err := s.embedder.Embed(ctx, prefs.QueryText())
	if err != nil {
		s.logger.Warn("Query embedding failed, using keyword selection", zap.Error(err))
		metrics.CapabilityFallbacksTotal.WithLabelValues("selector").Inc()
		return keywordMatch(subset, prefs)
	}

	return snap.Nearest(res.Embedding, s.cfg.TopK, subset)
}

// filterOffers applies the structured preference filters (destination,
// category via travel style, price tier) to a slice of offers.
func filterOffers(offers []domain.Offer, prefs domain.PreferenceSet) []domain.Offer {
	dest := prefs[domain.PrefDestination]
	style := prefs[domain.PrefTravelStyle]
	tier, tierErr := domain.ParsePriceTier(prefs[domain.PrefBudgetTier])

	var out []domain.Offer
	for _, o := range offers {
		if dest != "" && !o.MatchesDestination(dest) {
			continue
		}
		if style != "" && !containsFold(o.Category, style) && !containsFold(style, o.Category) {
			continue
		}
		if tierErr == nil && o.PriceTier != "" && o.PriceTier != tier {
			continue
		}
		out = append(out, o)
	}
	return out
}
