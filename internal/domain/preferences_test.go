package domain

import (
	"errors"
	"testing"
)

func TestParsePreferenceKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "destination", key: "destination"},
		{name: "budget tier", key: "budget_tier"},
		{name: "duration", key: "duration_days"},
		{name: "unknown key rejected", key: "favorite_color", wantErr: true},
		{name: "empty key rejected", key: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePreferenceKey(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPreferenceKey) {
					t.Fatalf("expected ErrInvalidPreferenceKey, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestPreferenceSetSet(t *testing.T) {
	p := make(PreferenceSet)

	if err := p.Set("destination", "Japan"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p[PrefDestination] != "Japan" {
		t.Errorf("destination = %q, want Japan", p[PrefDestination])
	}

	if err := p.Set("nonsense", "x"); !errors.Is(err, ErrInvalidPreferenceKey) {
		t.Errorf("expected ErrInvalidPreferenceKey, got %v", err)
	}

	// Empty value deletes the key.
	if err := p.Set("destination", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p[PrefDestination]; ok {
		t.Error("empty value should delete the key")
	}
}

func TestPreferenceSetMerge(t *testing.T) {
	prior := PreferenceSet{PrefDestination: "Thailand"}

	// A turn mentioning only duration must not erase the destination.
	merged := prior.Merge(PreferenceSet{PrefDurationDays: "14"})
	if merged[PrefDestination] != "Thailand" {
		t.Errorf("destination erased by unrelated merge: %q", merged[PrefDestination])
	}
	if merged[PrefDurationDays] != "14" {
		t.Errorf("duration = %q, want 14", merged[PrefDurationDays])
	}

	// A later destination overrides the prior one.
	merged = merged.Merge(PreferenceSet{PrefDestination: "Japan"})
	if merged[PrefDestination] != "Japan" {
		t.Errorf("destination = %q, want Japan", merged[PrefDestination])
	}

	// Prior set is never mutated.
	if prior[PrefDurationDays] != "" {
		t.Error("Merge mutated the prior set")
	}
}

func TestPreferenceSetEmpty(t *testing.T) {
	if !(PreferenceSet{}).Empty() {
		t.Error("empty set should report Empty")
	}
	if !(PreferenceSet{PrefNotes: ""}).Empty() {
		t.Error("set with only blank values should report Empty")
	}
	if (PreferenceSet{PrefDestination: "Peru"}).Empty() {
		t.Error("set with a value should not report Empty")
	}
}

func TestPreferenceSetSummaryStableOrder(t *testing.T) {
	p := PreferenceSet{
		PrefDurationDays: "7",
		PrefDestination:  "Iceland",
	}
	want := "destination: Iceland\nduration_days: 7"
	if got := p.Summary(); got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}
