// Package catalog implements the persistent course catalog: HASH documents
// plus an HNSW cosine vector index, addressable by category and by vector
// similarity.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/classnav/classnav/internal/db"
	"github.com/classnav/classnav/internal/domain"
	"github.com/classnav/classnav/internal/domain/course"
	"github.com/classnav/classnav/internal/domain/search"
)

// store is the consumer interface for catalog operations (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	DelMulti(ctx context.Context, keys []string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchTag(ctx context.Context, index, field, value string, limit int, fields []string) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Embedder vectorizes searchable text in batch, preserving input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Config holds catalog storage settings.
type Config struct {
	KeyPrefix       string
	CollectionName  string
	Dimensions      int
	HNSWM           int
	HNSWEFConstruct int
}

// Repo is the catalog store.
type Repo struct {
	store  store
	embed  Embedder
	cfg    Config
	logger *zap.Logger
}

// New creates a catalog repository.
func New(s store, embed Embedder, cfg Config, logger *zap.Logger) *Repo {
	return &Repo{store: s, embed: embed, cfg: cfg, logger: logger}
}

// CollectionName returns the configured collection name.
func (r *Repo) CollectionName() string { return r.cfg.CollectionName }

func (r *Repo) indexName() string {
	return fmt.Sprintf("%s%s:idx", r.cfg.KeyPrefix, r.cfg.CollectionName)
}

func (r *Repo) docPrefix() string {
	return fmt.Sprintf("%s%s:", r.cfg.KeyPrefix, r.cfg.CollectionName)
}

func (r *Repo) docKey(id string) string {
	return r.docPrefix() + id
}

func (r *Repo) indexDefinition() *db.IndexDefinition {
	return &db.IndexDefinition{
		Name:     r.indexName(),
		Prefixes: []string{r.docPrefix()},
		Fields: []db.IndexField{
			{Name: fieldCategory, Type: db.IndexFieldTag},
			{Name: fieldTitle, Type: db.IndexFieldText},
			{
				Name:            fieldVector,
				Type:            db.IndexFieldVector,
				Dimensions:      r.cfg.Dimensions,
				HNSWM:           r.cfg.HNSWM,
				HNSWEFConstruct: r.cfg.HNSWEFConstruct,
			},
		},
	}
}

// EnsureIndex creates the FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	err := r.store.CreateIndex(ctx, r.indexDefinition())
	if err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.indexName(), err)
	}
	return nil
}

// AddRecords embeds each record's searchable text in one batch and stores
// documents plus vectors. All-or-nothing: an embedding failure aborts the
// call before anything is written.
func (r *Repo) AddRecords(ctx context.Context, records []course.Record) error {
	indexable := make([]course.Record, 0, len(records))
	for _, rec := range records {
		if rec.Indexable() {
			indexable = append(indexable, rec)
		}
	}
	if len(indexable) == 0 {
		return nil
	}

	texts := make([]string, len(indexable))
	for i := range indexable {
		texts[i] = indexable[i].SearchableText
	}

	batch, err := r.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d records: %w", len(indexable), err)
	}
	for i, vec := range batch.Embeddings {
		if len(vec) == 0 {
			return fmt.Errorf("empty embedding for record %s: %w",
				indexable[i].ID, domain.ErrEmbeddingProviderError)
		}
	}

	items := make([]db.HashSetItem, len(indexable))
	for i := range indexable {
		items[i] = db.HashSetItem{
			Key:    r.docKey(indexable[i].ID),
			Fields: recordToFields(&indexable[i], batch.Embeddings[i]),
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("store %d records: %w", len(items), err)
	}

	r.logger.Info("catalog records added",
		zap.Int("count", len(items)),
		zap.String("collection", r.cfg.CollectionName),
	)
	return nil
}

// Reset deletes all records and vectors and recreates an empty index.
// Destructive; intended only for a rebuild sequence.
func (r *Repo) Reset(ctx context.Context) error {
	keys, err := r.store.Scan(ctx, r.docPrefix()+"*")
	if err != nil {
		return fmt.Errorf("scan collection keys: %w", err)
	}
	if err := r.store.DelMulti(ctx, keys); err != nil {
		return fmt.Errorf("delete %d records: %w", len(keys), err)
	}

	if err := r.store.DropIndex(ctx, r.indexName()); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index: %w", err)
	}
	if err := r.store.CreateIndex(ctx, r.indexDefinition()); err != nil {
		return fmt.Errorf("recreate index: %w", err)
	}

	r.logger.Info("collection reset", zap.String("collection", r.cfg.CollectionName))
	return nil
}

// Stats reports the record count. Fails soft: an unusable store reports
// zero records, which the caller uses as the rebuild trigger.
func (r *Repo) Stats(ctx context.Context) (int, string) {
	if !r.live(ctx) {
		return 0, r.cfg.CollectionName
	}
	total, err := r.store.SearchCount(ctx, r.indexName(), "*")
	if err != nil {
		r.logger.Warn("collection count failed", zap.Error(err))
		return 0, r.cfg.CollectionName
	}
	return total, r.cfg.CollectionName
}

// Live verifies the catalog is queryable, attempting one index
// re-acquisition before reporting the store unusable.
func (r *Repo) Live(ctx context.Context) bool {
	return r.live(ctx)
}

func (r *Repo) live(ctx context.Context) bool {
	ok, err := r.store.IndexExists(ctx, r.indexName())
	if err == nil && ok {
		return true
	}
	if err != nil {
		r.logger.Warn("index probe failed", zap.Error(err))
	}

	// One re-acquisition attempt: recreate the index handle over whatever
	// documents are still present.
	if err := r.store.CreateIndex(ctx, r.indexDefinition()); err != nil && !errors.Is(err, db.ErrIndexExists) {
		r.logger.Error("index re-acquisition failed", zap.Error(err))
		return false
	}
	ok, err = r.store.IndexExists(ctx, r.indexName())
	return err == nil && ok
}

// QueryByVector returns up to topN nearest neighbors by cosine similarity.
// No threshold is applied; ranking cutoffs are the retriever's job.
func (r *Repo) QueryByVector(ctx context.Context, vector []float32, topN int) ([]search.Result, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		Vector:       vector,
		K:            topN,
		ReturnFields: append([]string{"__vector_score"}, resultFields...),
	})
	if err != nil {
		return nil, fmt.Errorf("knn search %s: %w", r.cfg.CollectionName, err)
	}
	return r.entriesToResults(sr, search.SourceVector), nil
}

// GetByCategory returns records whose category exactly matches. limit <= 0
// returns all matching records.
func (r *Repo) GetByCategory(ctx context.Context, category string, limit int) ([]search.Result, error) {
	if limit <= 0 {
		total, err := r.store.SearchCount(ctx, r.indexName(), "*")
		if err != nil {
			return nil, fmt.Errorf("count collection: %w", err)
		}
		if total == 0 {
			return nil, nil
		}
		limit = total
	}

	sr, err := r.store.SearchTag(ctx, r.indexName(), fieldCategory, category, limit, resultFields)
	if err != nil {
		return nil, fmt.Errorf("category search %q: %w", category, err)
	}
	return r.entriesToResults(sr, search.SourceVector), nil
}

// All returns every stored record, for the keyword-scan stage.
func (r *Repo) All(ctx context.Context) ([]search.Result, error) {
	keys, err := r.store.Scan(ctx, r.docPrefix()+"*")
	if err != nil {
		return nil, fmt.Errorf("scan collection: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch %d records: %w", len(keys), err)
	}

	results := make([]search.Result, 0, len(maps))
	for i, fields := range maps {
		if len(fields) == 0 {
			continue
		}
		id := strings.TrimPrefix(keys[i], r.docPrefix())
		results = append(results, entryToResult(db.SearchEntry{Fields: fields}, id, search.SourceKeyword))
	}
	return results, nil
}

func (r *Repo) entriesToResults(sr *db.SearchResult, source search.Source) []search.Result {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}
	results := make([]search.Result, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		id := strings.TrimPrefix(entry.Key, r.docPrefix())
		results = append(results, entryToResult(entry, id, source))
	}
	return results
}
