package domain

import (
	"fmt"
	"sort"
	"strings"
)

// PreferenceKey identifies one slot of accumulated user intent.
// The set of keys is fixed; unknown keys are rejected at the boundary,
// never silently stored.
type PreferenceKey string

// The fixed preference key set.
const (
	PrefDestination  PreferenceKey = "destination"
	PrefBudgetTier   PreferenceKey = "budget_tier"
	PrefDurationDays PreferenceKey = "duration_days"
	PrefTravelStyle  PreferenceKey = "travel_style"
	PrefPartySize    PreferenceKey = "party_size"
	PrefDates        PreferenceKey = "dates"
	PrefNotes        PreferenceKey = "notes"
)

// PreferenceKeys lists all valid keys in a stable order.
var PreferenceKeys = []PreferenceKey{
	PrefDestination,
	PrefBudgetTier,
	PrefDurationDays,
	PrefTravelStyle,
	PrefPartySize,
	PrefDates,
	PrefNotes,
}

// ParsePreferenceKey validates a preference key string.
func ParsePreferenceKey(s string) (PreferenceKey, error) {
	for _, k := range PreferenceKeys {
		if PreferenceKey(s) == k {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPreferenceKey, s)
}

// PreferenceSet is the accumulated structured intent of one conversation.
// It is partially filled and accumulates monotonically unless a later
// turn explicitly overrides a key.
type PreferenceSet map[PreferenceKey]string

// Clone returns a deep copy.
func (p PreferenceSet) Clone() PreferenceSet {
	out := make(PreferenceSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Set stores a value after validating the key. Empty values delete the key.
func (p PreferenceSet) Set(key, value string) error {
	k, err := ParsePreferenceKey(key)
	if err != nil {
		return err
	}
	if value == "" {
		delete(p, k)
		return nil
	}
	p[k] = value
	return nil
}

// Merge returns a new set where every non-empty key of update replaces
// the prior value; keys absent from update keep their prior value.
// Callers are expected to have already dropped low-confidence keys
// from update.
func (p PreferenceSet) Merge(update PreferenceSet) PreferenceSet {
	out := p.Clone()
	for k, v := range update {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Empty reports whether the set carries no usable signal.
func (p PreferenceSet) Empty() bool {
	for _, v := range p {
		if v != "" {
			return false
		}
	}
	return true
}

// Summary renders the set as "key: value" lines in stable key order,
// for capability prompts and fallback replies.
func (p PreferenceSet) Summary() string {
	keys := make([]string, 0, len(p))
	for k, v := range p {
		if v != "" {
			keys = append(keys, string(k))
		}
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, p[PreferenceKey(k)]))
	}
	return strings.Join(lines, "\n")
}

// QueryText renders the set as a single search query string for embedding.
func (p PreferenceSet) QueryText() string {
	parts := make([]string, 0, len(PreferenceKeys))
	for _, k := range PreferenceKeys {
		if v := p[k]; v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}
