package selector

import (
	"sort"
	"strings"

	"github.com/kailas-cloud/tripmatch/internal/domain"
)

// keywordMatch scores offers by how many preference terms appear in
// their free text. It is the degraded path when neither vector search
// nor embedding is available; ordering is match count then offer ID.
func keywordMatch(offers []domain.Offer, prefs domain.PreferenceSet) domain.CandidateSet {
	terms := queryTerms(prefs)
	if len(terms) == 0 {
		return nil
	}

	cands := make(domain.CandidateSet, 0, len(offers))
	for _, o := range offers {
		text := strings.ToLower(o.SearchText())
		hits := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		cands = append(cands, domain.Candidate{
			OfferID: o.ID,
			Score:   float64(hits) / float64(len(terms)),
			Source:  domain.SourceKeyword,
		})
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].OfferID < cands[j].OfferID
	})
	return cands
}

// queryTerms splits the preference values into lowercase match terms,
// dropping short stopword-like fragments.
func queryTerms(prefs domain.PreferenceSet) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, word := range strings.Fields(strings.ToLower(prefs.QueryText())) {
		word = strings.Trim(word, ".,!?")
		if len(word) < 3 {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		terms = append(terms, word)
	}
	return terms
}

// containsFold is a case-insensitive substring check.
func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
