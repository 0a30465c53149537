package domain

import "sort"

// Confidence is the ranking capability's self-reported match confidence.
type Confidence string

// Confidence labels. Fallback-ranked offers always carry ConfidenceLow.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// RankSource flags whether an offer was selected by the ranking
// capability or by the deterministic fallback order.
type RankSource string

// Ranking sources.
const (
	RankedByCapability RankSource = "capability"
	RankedByFallback   RankSource = "fallback"
)

// RankedOffer is one entry of the final shortlist presented to the user.
type RankedOffer struct {
	OfferID    string     `json:"offer_id"`
	Score      float64    `json:"score"`
	Confidence Confidence `json:"confidence"`
	Source     RankSource `json:"source"`
}

// RankingResult is the ordered final shortlist. Its length never exceeds
// the configured maximum offers to present and it never contains
// duplicate identifiers.
type RankingResult []RankedOffer

// Sort orders by descending score with ascending offer identifier as the
// deterministic tie-break.
func (r RankingResult) Sort() {
	sort.Slice(r, func(i, j int) bool {
		if r[i].Score != r[j].Score {
			return r[i].Score > r[j].Score
		}
		return r[i].OfferID < r[j].OfferID
	})
}

// IDs returns the offer identifiers in result order.
func (r RankingResult) IDs() []string {
	ids := make([]string, len(r))
	for i, o := range r {
		ids[i] = o.OfferID
	}
	return ids
}
