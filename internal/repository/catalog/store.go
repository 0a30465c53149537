// Package catalog stores offer records with their precomputed embeddings
// and serves an atomically swapped in-memory snapshot to the pipeline.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tripmatch/internal/db"
	dbRedis "github.com/kailas-cloud/tripmatch/internal/db/redis"
	"github.com/kailas-cloud/tripmatch/internal/domain"
	"github.com/kailas-cloud/tripmatch/internal/metrics"
)

// Hash field names for offer records.
const (
	fieldData         = "data"
	fieldVector       = "vector"
	fieldDestinations = "destinations"
	fieldCategory     = "category"
)

const tagSeparator = "|"

// Store keeps offer records in Redis hashes with an FT vector index and
// serves reads from an in-memory snapshot. The snapshot is replaced
// wholesale on Refresh; it is never mutated in place.
type Store struct {
	db        db.Store
	keyPrefix string
	indexName string
	dim       int
	snap      atomic.Pointer[Snapshot]
	logger    *zap.Logger
}

// New creates a catalog store. keyPrefix is the deployment-wide storage
// prefix (e.g. "tripmatch:"); dim is the catalog's fixed embedding
// dimensionality.
func New(store db.Store, keyPrefix string, dim int, logger *zap.Logger) *Store {
	s := &Store{
		db:        store,
		keyPrefix: keyPrefix + "offer:",
		indexName: keyPrefix + "idx:offers",
		dim:       dim,
		logger:    logger,
	}
	s.snap.Store(NewSnapshot(nil, dim))
	return s
}

// EnsureIndex creates the offer vector index if it does not exist yet.
func (s *Store) EnsureIndex(ctx context.Context) error {
	err := s.db.CreateIndex(ctx, &db.IndexDefinition{
		Name:     s.indexName,
		Prefixes: []string{s.keyPrefix},
		Fields: []db.IndexField{
			{Name: fieldDestinations, Type: db.IndexFieldTag, TagSeparator: tagSeparator},
			{Name: fieldCategory, Type: db.IndexFieldTag},
			{Name: fieldVector, Type: db.IndexFieldVector, VectorDim: s.dim, VectorAlgo: db.VectorHNSW},
		},
	})
	if err != nil && err != db.ErrIndexExists {
		return fmt.Errorf("create offer index: %w", err)
	}
	return nil
}

// PutOffers writes offer records with their vectors. Used by the catalog
// seeding pipeline; the running service only reads.
func (s *Store) PutOffers(ctx context.Context, offers []domain.Offer) error {
	items := make([]db.HashSetItem, 0, len(offers))
	for i := range offers {
		o := &offers[i]
		if err := o.Validate(s.dim); err != nil {
			return err
		}

		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal offer %s: %w", o.ID, err)
		}

		items = append(items, db.HashSetItem{
			Key: s.keyPrefix + o.ID,
			Fields: map[string]string{
				fieldData:         string(data),
				fieldVector:       dbRedis.VectorToBytes(o.Embedding),
				fieldDestinations: strings.ToLower(strings.Join(o.Destinations, tagSeparator)),
				fieldCategory:     strings.ToLower(o.Category),
			},
		})
	}

	if err := s.db.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("store offers: %w", err)
	}
	return nil
}

// Refresh reloads every offer record from the store and swaps the
// snapshot atomically. Called at startup and on refresh notifications.
func (s *Store) Refresh(ctx context.Context) error {
	keys, err := s.db.Scan(ctx, s.keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("%w: scan offers: %w", domain.ErrCatalogUnavailable, err)
	}

	offers := make([]domain.Offer, 0, len(keys))
	if len(keys) > 0 {
		records, err := s.db.HGetAllMulti(ctx, keys)
		if err != nil {
			return fmt.Errorf("%w: load offers: %w", domain.ErrCatalogUnavailable, err)
		}
		for i, fields := range records {
			offer, err := offerFromFields(fields)
			if err != nil {
				s.logger.Warn("Skipping unreadable offer record",
					zap.String("key", keys[i]), zap.Error(err))
				continue
			}
			offers = append(offers, offer)
		}
	}

	s.snap.Store(NewSnapshot(offers, s.dim))
	metrics.CatalogOffers.Set(float64(len(offers)))
	s.logger.Info("Catalog snapshot refreshed", zap.Int("offers", len(offers)))
	return nil
}

// Snapshot returns the current immutable catalog view.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// SearchKNN retrieves the k nearest offers by vector similarity via the
// backend index, restricted to offers matching the filter. Scores are
// cosine distances normalized to [0,1].
func (s *Store) SearchKNN(ctx context.Context, vector []float32, k int, filter SearchFilter) (domain.CandidateSet, error) {
	res, err := s.db.SearchKNN(ctx, &db.KNNQuery{
		IndexName: s.indexName,
		Vector:    vector,
		Filter:    filter.Expression(),
		K:         k,
	})
	if err != nil {
		return nil, fmt.Errorf("search knn: %w", err)
	}

	out := make(domain.CandidateSet, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, domain.Candidate{
			OfferID: strings.TrimPrefix(hit.ID, s.keyPrefix),
			Score:   DistanceScore(hit.Distance),
			Source:  domain.SourceVector,
		})
	}
	out.Sort()
	return out, nil
}

func offerFromFields(fields map[string]string) (domain.Offer, error) {
	data, ok := fields[fieldData]
	if !ok {
		return domain.Offer{}, fmt.Errorf("missing %s field", fieldData)
	}

	var offer domain.Offer
	if err := json.Unmarshal([]byte(data), &offer); err != nil {
		return domain.Offer{}, fmt.Errorf("unmarshal offer: %w", err)
	}

	if raw, ok := fields[fieldVector]; ok && raw != "" {
		vec, err := dbRedis.BytesToVector([]byte(raw))
		if err != nil {
			return domain.Offer{}, fmt.Errorf("decode vector: %w", err)
		}
		offer.Embedding = vec
	}

	return offer, nil
}
