package extract

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tripmatch/internal/capability"
	"github.com/kailas-cloud/tripmatch/internal/domain"
)

type mockCompleter struct {
	response string
	err      error
	called   bool
}

func (m *mockCompleter) Complete(_ context.Context, _ capability.ChatRequest, validate func(string) error) (string, error) {
	m.called = true
	if m.err != nil {
		return "", m.err
	}
	if err := validate(m.response); err != nil {
		return "", err
	}
	return m.response, nil
}

type staticDests []string

func (d staticDests) Destinations() []string { return d }

func TestExtractMergesConfidentKeys(t *testing.T) {
	completer := &mockCompleter{response: `{"preferences": {
		"destination": {"value": "Lisbon", "confidence": "high"},
		"duration_days": {"value": "7", "confidence": "medium"}
	}}`}
	svc := New(completer, staticDests(nil), zap.NewNop())

	prior := domain.PreferenceSet{domain.PrefBudgetTier: "mid"}
	got := svc.Extract(context.Background(), "a week in Lisbon", prior, nil)

	if got[domain.PrefDestination] != "Lisbon" {
		t.Errorf("destination = %q, want Lisbon", got[domain.PrefDestination])
	}
	if got[domain.PrefDurationDays] != "7" {
		t.Errorf("duration_days = %q, want 7", got[domain.PrefDurationDays])
	}
	if got[domain.PrefBudgetTier] != "mid" {
		t.Errorf("prior budget_tier lost: %q", got[domain.PrefBudgetTier])
	}
	if prior[domain.PrefDestination] != "" {
		t.Error("Extract mutated the prior set")
	}
}

func TestExtractLaterTurnKeepsEarlierKeys(t *testing.T) {
	// Scenario: turn one sets a destination, turn two only mentions a
	// duration. The destination must survive the second merge.
	completer := &mockCompleter{response: `{"preferences": {
		"duration_days": {"value": "10", "confidence": "high"}
	}}`}
	svc := New(completer, staticDests(nil), zap.NewNop())

	prior := domain.PreferenceSet{domain.PrefDestination: "Kyoto"}
	got := svc.Extract(context.Background(), "about ten days", prior, nil)

	if got[domain.PrefDestination] != "Kyoto" {
		t.Errorf("destination = %q, want Kyoto", got[domain.PrefDestination])
	}
	if got[domain.PrefDurationDays] != "10" {
		t.Errorf("duration_days = %q, want 10", got[domain.PrefDurationDays])
	}
}

func TestExtractSkipsUnknownAndUnconfidentKeys(t *testing.T) {
	completer := &mockCompleter{response: `{"preferences": {
		"mood": {"value": "happy", "confidence": "high"},
		"destination": {"value": "Oslo", "confidence": ""},
		"travel_style": {"value": "", "confidence": "high"},
		"budget_tier": {"value": "luxury", "confidence": "low"}
	}}`}
	svc := New(completer, staticDests(nil), zap.NewNop())

	got := svc.Extract(context.Background(), "anything", nil, nil)

	if len(got) != 1 {
		t.Fatalf("got %d keys, want 1: %v", len(got), got)
	}
	if got[domain.PrefBudgetTier] != "luxury" {
		t.Errorf("budget_tier = %q, want luxury", got[domain.PrefBudgetTier])
	}
}

func TestExtractFallsBackOnCapabilityFailure(t *testing.T) {
	completer := &mockCompleter{err: domain.ErrCapabilityUnavailable}
	svc := New(completer, staticDests{"Lisbon", "Kyoto"}, zap.NewNop())

	got := svc.Extract(context.Background(), "5 days in kyoto, keep it cheap", nil, nil)

	if got[domain.PrefDestination] != "Kyoto" {
		t.Errorf("destination = %q, want Kyoto", got[domain.PrefDestination])
	}
	if got[domain.PrefDurationDays] != "5" {
		t.Errorf("duration_days = %q, want 5", got[domain.PrefDurationDays])
	}
	if got[domain.PrefBudgetTier] != string(domain.PriceBudget) {
		t.Errorf("budget_tier = %q, want budget", got[domain.PrefBudgetTier])
	}
}

func TestExtractMalformedResponseFallsBack(t *testing.T) {
	completer := &mockCompleter{response: "sure! here are your preferences"}
	svc := New(completer, staticDests{"Lisbon"}, zap.NewNop())

	got := svc.Extract(context.Background(), "somewhere in Lisbon", nil, nil)

	if got[domain.PrefDestination] != "Lisbon" {
		t.Errorf("destination = %q, want Lisbon", got[domain.PrefDestination])
	}
}

func TestExtractTotalFailureReturnsPriorUnchanged(t *testing.T) {
	completer := &mockCompleter{err: errors.New("boom")}
	svc := New(completer, staticDests(nil), zap.NewNop())

	prior := domain.PreferenceSet{domain.PrefDestination: "Lisbon"}
	got := svc.Extract(context.Background(), "mmm not sure yet", prior, nil)

	if len(got) != 1 || got[domain.PrefDestination] != "Lisbon" {
		t.Errorf("got %v, want prior unchanged", got)
	}
}

func TestKeywordExtract(t *testing.T) {
	dests := []string{"Lisbon", "Bali"}
	tests := []struct {
		name      string
		utterance string
		want      domain.PreferenceSet
	}{
		{
			name:      "destination and weeks",
			utterance: "Two weeks would be great, maybe Bali? make that 2 weeks",
			want: domain.PreferenceSet{
				domain.PrefDestination:  "Bali",
				domain.PrefDurationDays: "14",
			},
		},
		{
			name:      "weekend and luxury",
			utterance: "a luxury weekend getaway",
			want: domain.PreferenceSet{
				domain.PrefDurationDays: "3",
				domain.PrefBudgetTier:   "luxury",
			},
		},
		{
			name:      "days literal",
			utterance: "about 10 days somewhere warm",
			want: domain.PreferenceSet{
				domain.PrefDurationDays: "10",
			},
		},
		{
			name:      "nothing recognized",
			utterance: "hello there",
			want:      domain.PreferenceSet{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := KeywordExtract(tc.utterance, dests)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
