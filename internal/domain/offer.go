package domain

import (
	"fmt"
	"strings"
)

// PriceTier is the coarse price indicator of an offer.
type PriceTier string

// Price tiers, from cheapest to most expensive.
const (
	PriceBudget PriceTier = "budget"
	PriceMid    PriceTier = "mid"
	PriceLuxury PriceTier = "luxury"
)

// ParsePriceTier validates a price tier string.
func ParsePriceTier(s string) (PriceTier, error) {
	switch PriceTier(s) {
	case PriceBudget, PriceMid, PriceLuxury:
		return PriceTier(s), nil
	}
	return "", fmt.Errorf("unknown price tier %q", s)
}

// Highlight is one structured title/text pair attached to an offer.
type Highlight struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Offer is one catalog entry representing a bookable travel package.
// Offers are produced by the external data pipeline and read-only here;
// the embedding is computed once at catalog load or refresh.
type Offer struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Highlights   []Highlight `json:"highlights,omitempty"`
	Destinations []string    `json:"destinations"`
	DurationDays int         `json:"duration_days"`
	Category     string      `json:"category"`
	PriceTier    PriceTier   `json:"price_tier"`
	URL          string      `json:"url"`
	Embedding    []float32   `json:"-"`
}

// Validate checks the catalog invariants: non-empty identifier and an
// embedding of the catalog's fixed dimensionality (dim <= 0 skips the
// dimension check, for offers not yet embedded).
func (o *Offer) Validate(dim int) error {
	if o.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidOffer)
	}
	if o.Name == "" {
		return fmt.Errorf("%w: offer %s has no name", ErrInvalidOffer, o.ID)
	}
	if dim > 0 && len(o.Embedding) != dim {
		return fmt.Errorf("%w: offer %s has %d dimensions, want %d",
			ErrVectorDimMismatch, o.ID, len(o.Embedding), dim)
	}
	return nil
}

// MatchesDestination reports whether any of the offer's destinations
// contains the given destination, case-insensitively.
func (o *Offer) MatchesDestination(dest string) bool {
	if dest == "" {
		return false
	}
	dest = strings.ToLower(dest)
	for _, d := range o.Destinations {
		d = strings.ToLower(d)
		if strings.Contains(d, dest) || strings.Contains(dest, d) {
			return true
		}
	}
	return false
}

// SearchText returns the concatenated free-text fields used for keyword
// matching and for computing the offer embedding.
func (o *Offer) SearchText() string {
	var b strings.Builder
	b.WriteString(o.Name)
	b.WriteString("\n")
	b.WriteString(o.Description)
	for _, h := range o.Highlights {
		b.WriteString("\n")
		b.WriteString(h.Title)
		b.WriteString(": ")
		b.WriteString(h.Text)
	}
	if len(o.Destinations) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(o.Destinations, ", "))
	}
	return b.String()
}
