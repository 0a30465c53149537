package catalog

import (
	"context"
	"sync/atomic"

	"github.com/kailas-cloud/tripmatch/internal/domain"
)

// Memory is an in-process catalog without a database backend: the
// snapshot is the store. Used for tests and file-backed deployments
// where the whole catalog fits in memory.
type Memory struct {
	snap atomic.Pointer[Snapshot]
}

// NewMemory creates an in-memory catalog from offer records.
func NewMemory(offers []domain.Offer, dim int) *Memory {
	m := &Memory{}
	m.snap.Store(NewSnapshot(offers, dim))
	return m
}

// Replace swaps the snapshot atomically.
func (m *Memory) Replace(offers []domain.Offer, dim int) {
	m.snap.Store(NewSnapshot(offers, dim))
}

// Snapshot returns the current immutable catalog view.
func (m *Memory) Snapshot() *Snapshot {
	return m.snap.Load()
}

// SearchKNN scans the snapshot with cosine similarity, restricted to
// offers matching the filter.
func (m *Memory) SearchKNN(_ context.Context, vector []float32, k int, filter SearchFilter) (domain.CandidateSet, error) {
	snap := m.Snapshot()
	if filter.Empty() {
		return snap.Nearest(vector, k, nil), nil
	}
	// Non-nil even when nothing matches: a nil subset would widen
	// Nearest to the whole snapshot.
	subset := make([]domain.Offer, 0)
	for _, o := range snap.Offers() {
		if filter.Matches(o) {
			subset = append(subset, o)
		}
	}
	return snap.Nearest(vector, k, subset), nil
}
