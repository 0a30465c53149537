package pack

import (
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tripmatch/internal/domain"
)

type offerMap map[string]domain.Offer

func (m offerMap) Get(id string) (domain.Offer, bool) {
	o, ok := m[id]
	return o, ok
}

func fixtures(n int, descWords int) (domain.CandidateSet, offerMap) {
	cands := make(domain.CandidateSet, 0, n)
	offers := make(offerMap, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("offer-%03d", i)
		cands = append(cands, domain.Candidate{OfferID: id, Score: 1 - float64(i)/100})
		offers[id] = domain.Offer{
			ID:           id,
			Name:         fmt.Sprintf("Trip %d", i),
			Destinations: []string{"Lisbon"},
			DurationDays: 7,
			PriceTier:    domain.PriceMid,
			Description:  strings.Repeat("wonderful coastline ", descWords),
		}
	}
	return cands, offers
}

func TestPackRespectsBudget(t *testing.T) {
	counter := HeuristicCounter{}
	cands, offers := fixtures(20, 30)

	perOffer := counter.Count(Summary(offers["offer-000"]) + separator)
	budget := perOffer*3 + 1
	batch := New(counter, budget, zap.NewNop()).Pack(cands, offers)

	if batch.Tokens > budget {
		t.Errorf("tokens = %d, exceeds budget %d", batch.Tokens, budget)
	}
	if got := counter.Count(batch.Text); got > budget {
		t.Errorf("serialized text counts %d tokens, exceeds budget %d", got, budget)
	}
	if len(batch.OfferIDs) != 3 {
		t.Errorf("packed %d offers, want 3", len(batch.OfferIDs))
	}
	// Greedy prefix: highest-similarity candidates survive.
	for i, id := range batch.OfferIDs {
		if want := fmt.Sprintf("offer-%03d", i); id != want {
			t.Errorf("OfferIDs[%d] = %s, want %s", i, id, want)
		}
	}
}

func TestPackSerializedTextWithinBudget(t *testing.T) {
	// The budget admits every summary on its own but not the separators
	// between them, so packing must charge the separators too.
	counter := HeuristicCounter{}
	cands, offers := fixtures(10, 30)

	perSummary := counter.Count(Summary(offers["offer-000"]))
	budget := perSummary * 10
	batch := New(counter, budget, zap.NewNop()).Pack(cands, offers)

	if got := counter.Count(batch.Text); got > budget {
		t.Errorf("serialized text counts %d tokens, exceeds budget %d", got, budget)
	}
	if batch.Tokens > budget {
		t.Errorf("tokens = %d, exceeds budget %d", batch.Tokens, budget)
	}
	if len(batch.OfferIDs) == 0 {
		t.Error("packed no offers")
	}
}

func TestPackNonEmptyInputNonEmptyOutput(t *testing.T) {
	// A single candidate far over budget is truncated, not dropped.
	counter := HeuristicCounter{}
	cands, offers := fixtures(1, 2000)

	batch := New(counter, 50, zap.NewNop()).Pack(cands, offers)

	if len(batch.OfferIDs) != 1 {
		t.Fatalf("packed %d offers, want truncated single offer", len(batch.OfferIDs))
	}
	if batch.Tokens > 50 {
		t.Errorf("tokens = %d, exceeds budget 50", batch.Tokens)
	}
	if got := counter.Count(batch.Text); got > 50 {
		t.Errorf("serialized text counts %d tokens, exceeds budget 50", got)
	}
	if !strings.Contains(batch.Text, "[offer-000]") {
		t.Error("truncated summary lost the offer identifier")
	}
}

func TestPackSkipsStaleCandidates(t *testing.T) {
	cands, offers := fixtures(3, 5)
	delete(offers, "offer-001")

	batch := New(HeuristicCounter{}, 10000, zap.NewNop()).Pack(cands, offers)

	if len(batch.OfferIDs) != 2 {
		t.Fatalf("packed %v, want stale candidate skipped", batch.OfferIDs)
	}
	for _, id := range batch.OfferIDs {
		if id == "offer-001" {
			t.Error("stale candidate packed")
		}
	}
}

func TestPackEmptyCandidates(t *testing.T) {
	batch := New(HeuristicCounter{}, 100, zap.NewNop()).Pack(nil, offerMap{})
	if len(batch.OfferIDs) != 0 || batch.Tokens != 0 {
		t.Errorf("got %+v, want empty batch", batch)
	}
}

func TestSummaryContainsRankingFields(t *testing.T) {
	s := Summary(domain.Offer{
		ID:           "o1",
		Name:         "Alpine Escape",
		Destinations: []string{"Innsbruck"},
		DurationDays: 5,
		PriceTier:    domain.PriceLuxury,
		Description:  "mountain views",
		Highlights:   []domain.Highlight{{Title: "Spa", Text: "on-site wellness"}},
	})
	for _, want := range []string{"[o1]", "Alpine Escape", "Innsbruck", "5 days", "luxury", "mountain views", "Spa"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}

func TestHeuristicCounter(t *testing.T) {
	if got := (HeuristicCounter{}).Count("abcdefgh"); got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}
	if got := (HeuristicCounter{}).Count("abc"); got != 1 {
		t.Errorf("Count = %d, want 1", got)
	}
}
