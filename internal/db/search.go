package db

// KNNQuery describes a vector similarity search.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	Filter       string // raw FT filter expression, empty for none
	K            int
	ReturnFields []string
}

// SearchHit is one result row from a search query.
type SearchHit struct {
	// ID is the document key with the storage prefix intact.
	ID string
	// Distance is the raw vector distance reported by the backend
	// (cosine distance: 0 = identical, 2 = opposite).
	Distance float64
	// Fields holds the requested return fields.
	Fields map[string]string
}

// SearchResult carries search hits with the backend's total count.
type SearchResult struct {
	Total int
	Hits  []SearchHit
}

// Index field types.
type IndexFieldType string

// Field types supported by the search index.
const (
	IndexFieldTag    IndexFieldType = "tag"
	IndexFieldText   IndexFieldType = "text"
	IndexFieldVector IndexFieldType = "vector"
)

// VectorAlgo selects the ANN algorithm for vector fields.
type VectorAlgo string

// Vector index algorithms.
const (
	VectorFlat VectorAlgo = "FLAT"
	VectorHNSW VectorAlgo = "HNSW"
)

// IndexField describes one schema field of a search index.
type IndexField struct {
	Name         string
	Type         IndexFieldType
	TagSeparator string
	VectorDim    int
	VectorAlgo   VectorAlgo
}

// IndexDefinition describes a hash-backed search index.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}
