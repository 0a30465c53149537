package domain

import "sort"

// CandidateSource records which selection strategy produced a candidate.
type CandidateSource string

// Candidate sources.
const (
	SourceFilter  CandidateSource = "filter"
	SourceVector  CandidateSource = "vector"
	SourceKeyword CandidateSource = "keyword"
	SourceSample  CandidateSource = "sample"
)

// Candidate is one shortlisted offer with its selection score.
type Candidate struct {
	OfferID string
	Score   float64
	Source  CandidateSource
}

// CandidateSet is the ephemeral per-request shortlist produced by the
// candidate selector. It is consumed by the packer and discarded after
// the request completes.
type CandidateSet []Candidate

// Sort orders candidates by descending score, breaking equal scores by
// ascending offer identifier for determinism.
func (cs CandidateSet) Sort() {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		return cs[i].OfferID < cs[j].OfferID
	})
}

// Cap truncates the set to at most max candidates. max <= 0 is a no-op.
func (cs CandidateSet) Cap(max int) CandidateSet {
	if max > 0 && len(cs) > max {
		return cs[:max]
	}
	return cs
}

// IDs returns the offer identifiers in set order.
func (cs CandidateSet) IDs() []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.OfferID
	}
	return ids
}
