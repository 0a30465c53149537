package selector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tripmatch/internal/config"
	"github.com/kailas-cloud/tripmatch/internal/domain"
	"github.com/kailas-cloud/tripmatch/internal/repository/catalog"
)

type mockCatalog struct {
	snap       *catalog.Snapshot
	knnResult  domain.CandidateSet
	knnErr     error
	knnCalled  bool
	lastVector []float32
	lastFilter catalog.SearchFilter
}

func (m *mockCatalog) Snapshot() *catalog.Snapshot { return m.snap }

func (m *mockCatalog) SearchKNN(_ context.Context, vector []float32, _ int, filter catalog.SearchFilter) (domain.CandidateSet, error) {
	m.knnCalled = true
	m.lastVector = vector
	m.lastFilter = filter
	return m.knnResult, m.knnErr
}

type mockEmbedder struct {
	vector []float32
	err    error
	called bool
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.called = true
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vector}, nil
}

func testConfig() config.SelectorConfig {
	return config.SelectorConfig{
		SmallMaxCatalog: 5,
		LargeMinCatalog: 20,
		TopK:            10,
		MaxCandidates:   15,
	}
}

func makeOffers(n int, embed []float32) []domain.Offer {
	offers := make([]domain.Offer, 0, n)
	for i := 0; i < n; i++ {
		offers = append(offers, domain.Offer{
			ID:           fmt.Sprintf("offer-%03d", i),
			Name:         fmt.Sprintf("Trip %d", i),
			Description:  "a pleasant getaway",
			Destinations: []string{"Lisbon"},
			Category:     "beach",
			PriceTier:    domain.PriceMid,
			Embedding:    embed,
		})
	}
	return offers
}

func newService(cat Catalog, emb domain.Embedder) *Service {
	return New(cat, emb, testConfig(), zap.NewNop())
}

func TestSelectEmptyCatalog(t *testing.T) {
	cat := &mockCatalog{snap: catalog.NewSnapshot(nil, 0)}
	got, err := newService(cat, &mockEmbedder{}).Select(context.Background(), domain.PreferenceSet{domain.PrefDestination: "Lisbon"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d candidates, want 0", len(got))
	}
}

func TestSelectNoPreferencesSamples(t *testing.T) {
	cat := &mockCatalog{snap: catalog.NewSnapshot(makeOffers(30, nil), 0)}
	emb := &mockEmbedder{}

	got, err := newService(cat, emb).Select(context.Background(), nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != testConfig().TopK {
		t.Fatalf("got %d candidates, want %d", len(got), testConfig().TopK)
	}
	if got[0].OfferID != "offer-000" || got[0].Source != domain.SourceSample {
		t.Errorf("first candidate = %+v, want deterministic sample of offer-000", got[0])
	}
	if emb.called {
		t.Error("embedder called for preference-free turn")
	}
}

func TestSelectSmallTierFiltersWithoutVectors(t *testing.T) {
	offers := makeOffers(4, nil)
	offers[2].Destinations = []string{"Kyoto"}
	cat := &mockCatalog{snap: catalog.NewSnapshot(offers, 0)}
	emb := &mockEmbedder{}

	got, err := newService(cat, emb).Select(context.Background(), domain.PreferenceSet{domain.PrefDestination: "Kyoto"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 1 || got[0].OfferID != "offer-002" {
		t.Fatalf("got %v, want exactly offer-002", got.IDs())
	}
	if got[0].Source != domain.SourceFilter {
		t.Errorf("source = %s, want filter", got[0].Source)
	}
	if emb.called || cat.knnCalled {
		t.Error("small tier must never touch embedding or vector search")
	}
}

func TestSelectSmallTierKeywordWhenNoStructuralMatch(t *testing.T) {
	offers := makeOffers(3, nil)
	offers[1].Description = "snorkeling over the coral reef"
	cat := &mockCatalog{snap: catalog.NewSnapshot(offers, 0)}

	got, err := newService(cat, &mockEmbedder{}).Select(context.Background(),
		domain.PreferenceSet{domain.PrefNotes: "snorkeling"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 1 || got[0].OfferID != "offer-001" || got[0].Source != domain.SourceKeyword {
		t.Errorf("got %+v, want keyword match on offer-001", got)
	}
}

func TestSelectMediumTierUsesVectorIndex(t *testing.T) {
	cat := &mockCatalog{
		snap: catalog.NewSnapshot(makeOffers(10, nil), 0),
		knnResult: domain.CandidateSet{
			{OfferID: "offer-003", Score: 0.9, Source: domain.SourceVector},
			{OfferID: "offer-001", Score: 0.7, Source: domain.SourceVector},
		},
	}
	emb := &mockEmbedder{vector: []float32{1, 0}}

	got, err := newService(cat, emb).Select(context.Background(), domain.PreferenceSet{domain.PrefDestination: "Lisbon"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !cat.knnCalled {
		t.Fatal("vector search not invoked for medium catalog")
	}
	if cat.lastFilter.Destination != "Lisbon" {
		t.Errorf("filter destination = %q, want stated preference pushed into the index query", cat.lastFilter.Destination)
	}
	if len(got) != 2 || got[0].OfferID != "offer-003" {
		t.Errorf("got %v, want vector results sorted by score", got.IDs())
	}
}

func TestSelectMediumTierFallsBackToKeyword(t *testing.T) {
	tests := []struct {
		name string
		emb  *mockEmbedder
		cat  *mockCatalog
	}{
		{
			name: "embedding unavailable",
			emb:  &mockEmbedder{err: domain.ErrCapabilityUnavailable},
			cat:  &mockCatalog{snap: catalog.NewSnapshot(makeOffers(10, nil), 0)},
		},
		{
			name: "index unavailable",
			emb:  &mockEmbedder{vector: []float32{1, 0}},
			cat: &mockCatalog{
				snap:   catalog.NewSnapshot(makeOffers(10, nil), 0),
				knnErr: errors.New("index gone"),
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := newService(tc.cat, tc.emb).Select(context.Background(),
				domain.PreferenceSet{domain.PrefDestination: "Lisbon"})
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			if len(got) == 0 {
				t.Fatal("keyword fallback returned nothing")
			}
			for _, c := range got {
				if c.Source != domain.SourceKeyword {
					t.Errorf("candidate %s source = %s, want keyword", c.OfferID, c.Source)
				}
			}
		})
	}
}

func TestSelectLargeTierPrefiltersBeforeKNN(t *testing.T) {
	offers := makeOffers(25, []float32{1, 0})
	// One Kyoto offer, closest to the query among the prefiltered subset.
	offers[7].Destinations = []string{"Kyoto"}
	offers[7].Embedding = []float32{0.9, 0.1}
	offers[12].Destinations = []string{"Kyoto"}
	offers[12].Embedding = []float32{0, 1}
	cat := &mockCatalog{snap: catalog.NewSnapshot(offers, 2)}
	emb := &mockEmbedder{vector: []float32{1, 0}}

	got, err := newService(cat, emb).Select(context.Background(), domain.PreferenceSet{domain.PrefDestination: "Kyoto"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if cat.knnCalled {
		t.Error("large tier must not hit the remote vector index")
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want the 2 prefiltered offers: %v", len(got), got.IDs())
	}
	if got[0].OfferID != "offer-007" {
		t.Errorf("first = %s, want offer-007 (nearest to query)", got[0].OfferID)
	}
}

func TestSelectCapsCandidates(t *testing.T) {
	offers := makeOffers(4, nil)
	cfg := testConfig()
	cfg.MaxCandidates = 2
	cat := &mockCatalog{snap: catalog.NewSnapshot(offers, 0)}

	got, err := New(cat, &mockEmbedder{}, cfg, zap.NewNop()).Select(context.Background(),
		domain.PreferenceSet{domain.PrefDestination: "Lisbon"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d candidates, want cap of 2", len(got))
	}
}

func TestQueryTermsDedupes(t *testing.T) {
	terms := queryTerms(domain.PreferenceSet{
		domain.PrefDestination: "Lisbon",
		domain.PrefNotes:       "lisbon food and food tours",
	})
	counts := make(map[string]int)
	for _, term := range terms {
		counts[term]++
	}
	for term, n := range counts {
		if n > 1 {
			t.Errorf("term %q appears %d times", term, n)
		}
	}
}
