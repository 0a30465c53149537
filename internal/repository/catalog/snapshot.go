package catalog

import (
	"math"
	"sort"
	"strings"

	"github.com/kailas-cloud/tripmatch/internal/domain"
)

// Snapshot is an immutable view of the offer catalog. Refreshes swap the
// whole snapshot atomically so in-flight requests never observe a
// half-updated catalog.
type Snapshot struct {
	offers       []domain.Offer
	byID         map[string]int
	destinations []string
	dim          int
}

// NewSnapshot builds a snapshot from offer records. Offers are kept in
// ascending identifier order for deterministic sampling.
func NewSnapshot(offers []domain.Offer, dim int) *Snapshot {
	sorted := append([]domain.Offer(nil), offers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byID := make(map[string]int, len(sorted))
	destSet := make(map[string]struct{})
	for i, o := range sorted {
		byID[o.ID] = i
		for _, d := range o.Destinations {
			destSet[strings.ToLower(d)] = struct{}{}
		}
	}

	destinations := make([]string, 0, len(destSet))
	for d := range destSet {
		destinations = append(destinations, d)
	}
	sort.Strings(destinations)

	return &Snapshot{offers: sorted, byID: byID, destinations: destinations, dim: dim}
}

// Size returns the number of offers.
func (s *Snapshot) Size() int { return len(s.offers) }

// Dim returns the catalog's fixed embedding dimensionality.
func (s *Snapshot) Dim() int { return s.dim }

// Offers returns all offers in ascending identifier order. The slice is
// shared; callers must not mutate it.
func (s *Snapshot) Offers() []domain.Offer { return s.offers }

// Get returns an offer by identifier.
func (s *Snapshot) Get(id string) (domain.Offer, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.Offer{}, false
	}
	return s.offers[i], true
}

// Destinations returns the unique lowercase destination names across the
// catalog, used by the keyword preference extractor.
func (s *Snapshot) Destinations() []string { return s.destinations }

// Nearest returns the k offers most similar to the query vector, scored
// by cosine similarity mapped to [0,1]. subset restricts the search
// space; nil searches the whole snapshot. Ties break by offer identifier.
func (s *Snapshot) Nearest(vector []float32, k int, subset []domain.Offer) domain.CandidateSet {
	if subset == nil {
		subset = s.offers
	}

	out := make(domain.CandidateSet, 0, len(subset))
	for _, o := range subset {
		if len(o.Embedding) != len(vector) {
			continue
		}
		out = append(out, domain.Candidate{
			OfferID: o.ID,
			Score:   SimilarityScore(Cosine(vector, o.Embedding)),
			Source:  domain.SourceVector,
		})
	}

	out.Sort()
	return out.Cap(k)
}

// Cosine computes the cosine similarity of two vectors, in [-1,1].
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SimilarityScore maps a cosine similarity in [-1,1] to a score in [0,1].
// The same normalization is applied to backend cosine distances
// (score = 1 - distance/2), so scores are comparable across paths.
func SimilarityScore(cosine float64) float64 {
	score := (cosine + 1) / 2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// DistanceScore maps a backend cosine distance in [0,2] to a score in [0,1].
func DistanceScore(distance float64) float64 {
	score := 1 - distance/2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
