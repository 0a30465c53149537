package catalog

import (
	"strings"

	"github.com/kailas-cloud/tripmatch/internal/domain"
)

// SearchFilter narrows a vector search to offers matching structured
// preferences before the KNN pass. Empty fields are not applied.
type SearchFilter struct {
	Destination string
}

// Empty reports whether the filter applies no constraint.
func (f SearchFilter) Empty() bool {
	return f.Destination == ""
}

// Expression renders the filter as an FT query prefilter. Returns the
// empty string for an empty filter.
func (f SearchFilter) Expression() string {
	if f.Destination == "" {
		return ""
	}
	return "@" + fieldDestinations + ":{" + escapeTag(strings.ToLower(f.Destination)) + "}"
}

// Matches reports whether an offer satisfies the filter. Used by the
// in-process catalog, which has no index to push the expression into.
func (f SearchFilter) Matches(o domain.Offer) bool {
	return f.Destination == "" || o.MatchesDestination(f.Destination)
}

// escapeTag backslash-escapes FT tag syntax characters so destination
// names with spaces or punctuation stay literal.
func escapeTag(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}
