package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	Category     string // optional TAG pre-filter on the category field
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// IndexFieldType enumerates supported FT field types.
type IndexFieldType string

const (
	IndexFieldTag    IndexFieldType = "TAG"
	IndexFieldText   IndexFieldType = "TEXT"
	IndexFieldVector IndexFieldType = "VECTOR"
)

// IndexField describes one field of an FT index schema.
type IndexField struct {
	Name string
	Type IndexFieldType

	// Vector options (HNSW, cosine distance).
	Dimensions      int
	HNSWM           int
	HNSWEFConstruct int
}

// IndexDefinition describes an FT index over HASH documents.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}
