package selector

import (
	"context"

	"github.com/kailas-cloud/tripmatch/internal/domain"
	"github.com/kailas-cloud/tripmatch/internal/repository/catalog"
)

// Catalog is the offer source the selector reads from: an atomic
// in-process snapshot plus a vector index for nearest-neighbor search.
type Catalog interface {
	Snapshot() *catalog.Snapshot
	SearchKNN(ctx context.Context, vector []float32, k int, filter catalog.SearchFilter) (domain.CandidateSet, error)
}
