package turn

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/tripmatch/internal/domain"
	"github.com/kailas-cloud/tripmatch/internal/repository/catalog"
	"github.com/kailas-cloud/tripmatch/internal/repository/memory"
	"github.com/kailas-cloud/tripmatch/internal/usecase/compose"
	"github.com/kailas-cloud/tripmatch/internal/usecase/conversation"
	"github.com/kailas-cloud/tripmatch/internal/usecase/pack"
)

type fakeExtractor struct {
	prefs domain.PreferenceSet
	prior domain.PreferenceSet
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, prior domain.PreferenceSet, _ []domain.Turn) domain.PreferenceSet {
	f.prior = prior.Clone()
	return prior.Merge(f.prefs)
}

type fakeSelector struct {
	cands domain.CandidateSet
	err   error
}

func (f *fakeSelector) Select(_ context.Context, _ domain.PreferenceSet) (domain.CandidateSet, error) {
	return f.cands, f.err
}

type fakePacker struct{}

func (fakePacker) Pack(cands domain.CandidateSet, _ pack.OfferSource) pack.Batch {
	return pack.Batch{Text: "batch", OfferIDs: cands.IDs()}
}

type fakeRanker struct {
	result domain.RankingResult
}

func (f *fakeRanker) Rank(_ context.Context, _ pack.Batch, _ domain.CandidateSet, _ domain.PreferenceSet) domain.RankingResult {
	return f.result
}

type fakeComposer struct {
	fragments []string
	err       error
}

func (f *fakeComposer) Compose(_ context.Context, _ domain.PreferenceSet, _ domain.RankingResult, _ compose.OfferSource, emit func(string) error) (string, error) {
	var full string
	for _, fr := range f.fragments {
		if err := emit(fr); err != nil {
			return full, err
		}
		full += fr
	}
	return full, f.err
}

type fakeCatalog struct{ snap *catalog.Snapshot }

func (f *fakeCatalog) Snapshot() *catalog.Snapshot { return f.snap }

type recordingSink struct {
	offers      []OfferView
	fragments   []string
	offersFirst bool
	offersErr   error
}

func (s *recordingSink) Offers(offers []OfferView) error {
	s.offers = offers
	s.offersFirst = len(s.fragments) == 0
	return s.offersErr
}

func (s *recordingSink) Content(fragment string) error {
	s.fragments = append(s.fragments, fragment)
	return nil
}

type failingRepo struct{}

func (failingRepo) Get(context.Context, string) (*domain.ConversationState, error) {
	return nil, errors.New("store down")
}
func (failingRepo) Put(context.Context, *domain.ConversationState) error {
	return errors.New("store down")
}
func (failingRepo) Delete(context.Context, string) error { return errors.New("store down") }

func testPipeline(repo conversation.Repository, composer Composer) (*Service, *conversation.Service) {
	if repo == nil {
		repo = memory.NewInMemory()
	}
	mem := conversation.New(repo, 20)
	snap := catalog.NewSnapshot([]domain.Offer{
		{ID: "o1", Name: "Lisbon Coast Week", Destinations: []string{"Lisbon"}, DurationDays: 7, PriceTier: domain.PriceMid},
		{ID: "o2", Name: "Kyoto Temples", Destinations: []string{"Kyoto"}, DurationDays: 5, PriceTier: domain.PriceLuxury},
	}, 0)

	svc := New(
		mem,
		&fakeExtractor{prefs: domain.PreferenceSet{domain.PrefDestination: "Lisbon"}},
		&fakeSelector{cands: domain.CandidateSet{{OfferID: "o1", Score: 0.9, Source: domain.SourceVector}}},
		fakePacker{},
		&fakeRanker{result: domain.RankingResult{
			{OfferID: "o1", Score: 0.9, Confidence: domain.ConfidenceHigh, Source: domain.RankedByCapability},
		}},
		composer,
		&fakeCatalog{snap: snap},
	)
	return svc, mem
}

func TestRunFullTurn(t *testing.T) {
	composer := &fakeComposer{fragments: []string{"I found ", "a great trip."}}
	svc, mem := testPipeline(nil, composer)
	sink := &recordingSink{}

	res, err := svc.Run(context.Background(), Request{ConversationID: "conv-1", Message: "beach week in Lisbon"}, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Reply != "I found a great trip." {
		t.Errorf("reply = %q", res.Reply)
	}
	if len(sink.offers) != 1 || sink.offers[0].ID != "o1" || sink.offers[0].Name != "Lisbon Coast Week" {
		t.Errorf("offers = %+v, want o1 with catalog details", sink.offers)
	}
	if !sink.offersFirst {
		t.Error("offers must be delivered before the reply stream starts")
	}

	state, err := mem.Get(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.Preferences[domain.PrefDestination] != "Lisbon" {
		t.Errorf("preferences not persisted: %v", state.Preferences)
	}
	if len(state.History) != 2 || state.History[0].Role != domain.RoleUser || state.History[1].Role != domain.RoleAssistant {
		t.Errorf("history = %+v, want user and assistant turns", state.History)
	}
	if len(state.LastRanked) != 1 || state.LastRanked[0] != "o1" {
		t.Errorf("last ranked = %v", state.LastRanked)
	}
}

func TestRunGeneratesConversationID(t *testing.T) {
	svc, _ := testPipeline(nil, &fakeComposer{fragments: []string{"hi"}})

	res, err := svc.Run(context.Background(), Request{Message: "hello"}, &recordingSink{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ConversationID == "" {
		t.Error("no conversation id generated")
	}
}

func TestRunSecondTurnSeesFirstTurnPreferences(t *testing.T) {
	extractor := &fakeExtractor{prefs: domain.PreferenceSet{domain.PrefDurationDays: "7"}}
	mem := conversation.New(memory.NewInMemory(), 20)
	prior := domain.NewConversationState("conv-1")
	prior.Preferences[domain.PrefDestination] = "Kyoto"
	if err := mem.Put(context.Background(), prior); err != nil {
		t.Fatalf("Put: %v", err)
	}

	snap := catalog.NewSnapshot(nil, 0)
	svc := New(mem, extractor, &fakeSelector{}, fakePacker{}, &fakeRanker{},
		&fakeComposer{fragments: []string{"ok"}}, &fakeCatalog{snap: snap})

	res, err := svc.Run(context.Background(), Request{ConversationID: "conv-1", Message: "one week"}, &recordingSink{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if extractor.prior[domain.PrefDestination] != "Kyoto" {
		t.Error("extractor did not receive the persisted preferences")
	}
	if res.Preferences[domain.PrefDestination] != "Kyoto" || res.Preferences[domain.PrefDurationDays] != "7" {
		t.Errorf("merged preferences = %v", res.Preferences)
	}
}

func TestRunInterruptedStreamStillPersists(t *testing.T) {
	composer := &fakeComposer{fragments: []string{"partial "}, err: errors.New("stream interrupted")}
	svc, mem := testPipeline(nil, composer)
	sink := &recordingSink{}

	res, err := svc.Run(context.Background(), Request{ConversationID: "conv-1", Message: "beach"}, sink)
	if err == nil {
		t.Fatal("want interrupted-stream error")
	}
	if len(sink.offers) != 1 {
		t.Error("structured offers not delivered before interruption")
	}
	if res.Reply != "partial " {
		t.Errorf("reply = %q, want partial text", res.Reply)
	}

	state, gerr := mem.Get(context.Background(), "conv-1")
	if gerr != nil {
		t.Fatalf("Get: %v", gerr)
	}
	if state.Preferences[domain.PrefDestination] != "Lisbon" {
		t.Error("preferences lost on interrupted stream")
	}
	if len(state.LastRanked) != 1 {
		t.Error("ranking lost on interrupted stream")
	}
}

func TestRunClientDisconnectPersistsComputedState(t *testing.T) {
	svc, mem := testPipeline(nil, &fakeComposer{fragments: []string{"never sent"}})
	sink := &recordingSink{offersErr: errors.New("client gone")}

	_, err := svc.Run(context.Background(), Request{ConversationID: "conv-1", Message: "beach"}, sink)
	if err == nil {
		t.Fatal("want disconnect error")
	}
	if len(sink.fragments) != 0 {
		t.Error("reply streamed to a disconnected client")
	}

	state, gerr := mem.Get(context.Background(), "conv-1")
	if gerr != nil {
		t.Fatalf("Get: %v", gerr)
	}
	if state.Preferences[domain.PrefDestination] != "Lisbon" {
		t.Error("preferences not persisted after disconnect")
	}
}

func TestRunDegradedMemoryRunsStateless(t *testing.T) {
	svc, _ := testPipeline(failingRepo{}, &fakeComposer{fragments: []string{"ok"}})
	sink := &recordingSink{}

	res, err := svc.Run(context.Background(), Request{ConversationID: "conv-1", Message: "beach"}, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reply != "ok" {
		t.Errorf("reply = %q, want turn to complete statelessly", res.Reply)
	}
}
