package domain

import (
	"errors"
	"testing"
)

func TestOfferValidate(t *testing.T) {
	tests := []struct {
		name    string
		offer   Offer
		dim     int
		wantErr error
	}{
		{
			name:  "valid offer",
			offer: Offer{ID: "o1", Name: "Kyoto Classic", Embedding: make([]float32, 4)},
			dim:   4,
		},
		{
			name:    "empty id",
			offer:   Offer{Name: "Nameless"},
			wantErr: ErrInvalidOffer,
		},
		{
			name:    "dimension mismatch",
			offer:   Offer{ID: "o2", Name: "Andes Trek", Embedding: make([]float32, 3)},
			dim:     4,
			wantErr: ErrVectorDimMismatch,
		},
		{
			name:  "dim zero skips embedding check",
			offer: Offer{ID: "o3", Name: "Unembedded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.offer.Validate(tt.dim)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestOfferMatchesDestination(t *testing.T) {
	o := Offer{ID: "o1", Destinations: []string{"Tokyo", "Kyoto, Japan"}}

	if !o.MatchesDestination("japan") {
		t.Error("expected case-insensitive substring match on japan")
	}
	if !o.MatchesDestination("Tokyo") {
		t.Error("expected exact match on Tokyo")
	}
	if o.MatchesDestination("Brazil") {
		t.Error("unexpected match on Brazil")
	}
	if o.MatchesDestination("") {
		t.Error("empty destination must not match")
	}
}

func TestCandidateSetSortAndCap(t *testing.T) {
	cs := CandidateSet{
		{OfferID: "b", Score: 0.5},
		{OfferID: "a", Score: 0.5},
		{OfferID: "c", Score: 0.9},
	}
	cs.Sort()

	wantOrder := []string{"c", "a", "b"}
	for i, id := range wantOrder {
		if cs[i].OfferID != id {
			t.Fatalf("position %d = %s, want %s", i, cs[i].OfferID, id)
		}
	}

	capped := cs.Cap(2)
	if len(capped) != 2 {
		t.Fatalf("Cap(2) left %d candidates", len(capped))
	}
	if got := cs.Cap(0); len(got) != 3 {
		t.Errorf("Cap(0) should be a no-op, got %d", len(got))
	}
}

func TestConversationStateTrimHistory(t *testing.T) {
	s := NewConversationState("c1")
	for i := 0; i < 5; i++ {
		s.AppendTurn(RoleUser, "msg", 3)
	}
	if len(s.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(s.History))
	}
}
