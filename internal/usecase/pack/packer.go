// Package pack fits candidate offer summaries into a model token budget.
package pack

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tripmatch/internal/domain"
)

// TokenCounter estimates how many tokens a text consumes.
type TokenCounter interface {
	Count(text string) int
}

// OfferSource resolves candidate IDs to full offers.
type OfferSource interface {
	Get(id string) (domain.Offer, bool)
}

// Batch is the packed ranking payload: the prompt text, the offer IDs
// it covers in order, and the estimated token cost.
type Batch struct {
	Text     string
	OfferIDs []string
	Tokens   int
}

// separator joins offer summaries in the serialized batch text. Its
// token cost is charged to each candidate so the final text stays
// within budget.
const separator = "\n\n"

// Packer builds ranking batches under a fixed token budget using a
// greedy prefix over the candidate order. Packing never fails: a
// non-empty candidate set always yields a non-empty batch, truncating
// the first summary when even one offer exceeds the budget.
type Packer struct {
	counter TokenCounter
	budget  int
	logger  *zap.Logger
}

// New creates a packer with the given token budget.
func New(counter TokenCounter, budget int, logger *zap.Logger) *Packer {
	return &Packer{counter: counter, budget: budget, logger: logger}
}

// Pack selects the greedy prefix of candidates whose summaries fit the
// budget. Candidates must already be in descending similarity order.
func (p *Packer) Pack(candidates domain.CandidateSet, offers OfferSource) Batch {
	var (
		b      strings.Builder
		ids    []string
		tokens int
	)

	for _, c := range candidates {
		offer, ok := offers.Get(c.OfferID)
		if !ok {
			// Candidate from a stale index entry; the snapshot has
			// moved on. Skip rather than rank a ghost.
			p.logger.Debug("Candidate missing from snapshot", zap.String("offer_id", c.OfferID))
			continue
		}

		summary := Summary(offer)
		cost := p.counter.Count(summary + separator)

		if tokens+cost > p.budget {
			if len(ids) > 0 {
				break
			}
			// Even the best candidate alone exceeds the budget.
			// Truncate its summary so the ranker still sees one offer.
			summary = p.truncate(summary)
			cost = p.counter.Count(summary + separator)
		}

		b.WriteString(summary)
		b.WriteString(separator)
		ids = append(ids, offer.ID)
		tokens += cost
	}

	return Batch{Text: strings.TrimRight(b.String(), "\n"), OfferIDs: ids, Tokens: tokens}
}

// truncate shortens a summary so that it fits the token budget with its
// trailing separator, binary-searching the cut point on the byte length.
func (p *Packer) truncate(summary string) string {
	lo, hi := 0, len(summary)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if p.counter.Count(summary[:mid]+separator) <= p.budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return summary[:lo]
}

// Summary renders one offer as the compact block the ranker sees.
func Summary(o domain.Offer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", o.ID, o.Name)
	if len(o.Destinations) > 0 {
		fmt.Fprintf(&b, "Destinations: %s\n", strings.Join(o.Destinations, ", "))
	}
	if o.DurationDays > 0 {
		fmt.Fprintf(&b, "Duration: %d days\n", o.DurationDays)
	}
	if o.PriceTier != "" {
		fmt.Fprintf(&b, "Price tier: %s\n", o.PriceTier)
	}
	if o.Description != "" {
		b.WriteString(o.Description)
		b.WriteString("\n")
	}
	for _, h := range o.Highlights {
		fmt.Fprintf(&b, "- %s: %s\n", h.Title, h.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}
