package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/tripmatch/internal/db"
)

// scoreField is the alias under which the KNN distance is returned.
const scoreField = "__score"

// SearchKNN runs a KNN vector similarity search via FT.SEARCH.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(buildSearchArgs(q)...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseKNNResult(raw)
}

// buildSearchArgs renders the FT.SEARCH argument list for a KNN query.
// A non-empty Filter becomes the query prefilter; otherwise the KNN
// runs over the whole index.
func buildSearchArgs(q *db.KNNQuery) []string {
	knnPart := fmt.Sprintf("[KNN %d @vector $BLOB AS %s]", q.K, scoreField)
	queryStr := "*=>" + knnPart
	if q.Filter != "" {
		queryStr = fmt.Sprintf("(%s)=>%s", q.Filter, knnPart)
	}

	returnFields := append([]string{scoreField}, q.ReturnFields...)

	args := []string{q.IndexName, queryStr}
	args = append(args, "RETURN", strconv.Itoa(len(returnFields)))
	args = append(args, returnFields...)
	args = append(args,
		"SORTBY", scoreField,
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", VectorToBytes(q.Vector),
		"DIALECT", "2",
	)
	return args
}

// parseKNNResult parses the RESP2 FT.SEARCH reply:
// [total, key1, [field, value, ...], key2, [...], ...].
func parseKNNResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	result := &db.SearchResult{Total: int(total)}

	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			return nil, fmt.Errorf("parse document key: %w", err)
		}

		fields, err := raw[i+1].AsStrMap()
		if err != nil {
			return nil, fmt.Errorf("parse document fields for %s: %w", key, err)
		}

		hit := db.SearchHit{ID: key, Fields: fields}
		if scoreStr, ok := fields[scoreField]; ok {
			dist, err := strconv.ParseFloat(scoreStr, 64)
			if err != nil {
				return nil, fmt.Errorf("parse score for %s: %w", key, err)
			}
			hit.Distance = dist
			delete(fields, scoreField)
		}

		result.Hits = append(result.Hits, hit)
	}

	return result, nil
}

// VectorToBytes encodes a float32 vector as little-endian bytes for the
// FT.SEARCH BLOB parameter and the hash vector field.
func VectorToBytes(vec []float32) string {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return string(buf)
}

// BytesToVector decodes a little-endian float32 vector.
func BytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vector bytes length %d is not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
