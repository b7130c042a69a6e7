// Package retriever implements hybrid course retrieval: dense vector search
// with a keyword fallback, course-code lookup, structured weekday/time
// filtering, and a graceful-degradation chain that keeps recall when filters
// would starve a query.
package retriever

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/classnav/classnav/internal/domain"
	"github.com/classnav/classnav/internal/domain/search"
	"github.com/classnav/classnav/internal/lexicon"
	"github.com/classnav/classnav/internal/metrics"
)

const (
	// codeScoreExact and codeScoreSubstring are the authoritative scores
	// for course-code lookups.
	codeScoreExact     = 1.0
	codeScoreSubstring = 0.95

	// maxVectorFetch caps the raw neighbor fetch regardless of k.
	maxVectorFetch = 20

	// minVectorHits below which the keyword fallback kicks in.
	minVectorHits = 2
)

// catalog is the consumer interface onto the catalog store.
type catalog interface {
	Live(ctx context.Context) bool
	QueryByVector(ctx context.Context, vector []float32, topN int) ([]search.Result, error)
	All(ctx context.Context) ([]search.Result, error)
}

// embedder vectorizes a single query.
type embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Config holds retrieval tuning.
type Config struct {
	TopK                int
	SimilarityThreshold float64
}

// Outcome is a retrieval result set plus how it was produced. Filtered is
// false when the graceful-degradation chain had to drop the structured
// weekday/time filter to return anything.
type Outcome struct {
	Results  []search.Result
	Filtered bool
}

// Retriever orchestrates the hybrid search stages.
type Retriever struct {
	catalog catalog
	embed   embedder
	lex     *lexicon.Lexicon
	cfg     Config
	logger  *zap.Logger
}

// New creates a retriever.
func New(cat catalog, embed embedder, lex *lexicon.Lexicon, cfg Config, logger *zap.Logger) *Retriever {
	return &Retriever{catalog: cat, embed: embed, lex: lex, cfg: cfg, logger: logger}
}

// Search runs the full hybrid retrieval pipeline for one query. It never
// returns an error: embedding or storage failures degrade to an empty
// outcome, which the caller treats as "no match".
func (r *Retriever) Search(ctx context.Context, query string, k int) Outcome {
	if k <= 0 {
		k = r.cfg.TopK
	}

	if !r.catalog.Live(ctx) {
		r.logger.Warn("catalog not queryable, returning empty", zap.String("query", query))
		metrics.RetrievalRequestsTotal.WithLabelValues("empty").Inc()
		return Outcome{Filtered: true}
	}

	filters := search.ParseFilters(query)

	if out, ok := r.searchByCode(ctx, query, filters, k); ok {
		metrics.RetrievalRequestsTotal.WithLabelValues("code").Inc()
		metrics.RetrievalResultCount.Observe(float64(len(out.Results)))
		return out
	}

	vectorHits := r.vectorStage(ctx, query, k)

	var keywordHits []search.Result
	fallback := r.shouldFallBack(query, vectorHits)
	if fallback {
		metrics.KeywordFallbackTotal.Inc()
		keywordHits = r.keywordStage(ctx, query)
	}

	filteredVector := r.applySchedule(filters, vectorHits)
	filteredKeyword := r.applySchedule(filters, keywordHits)

	// Keyword before vector: in the fallback scenario keyword matches are
	// the higher-precision signal.
	merged := mergeResults(filteredKeyword, filteredVector, k)
	if len(merged) > 0 {
		stage := "vector"
		if fallback {
			stage = "hybrid"
		}
		metrics.RetrievalRequestsTotal.WithLabelValues(stage).Inc()
		metrics.RetrievalResultCount.Observe(float64(len(merged)))
		return Outcome{Results: merged, Filtered: true}
	}

	// Graceful degradation: first non-empty candidate set wins. The later
	// stages ignore the structured filter, trading precision for recall,
	// and are reported as unfiltered.
	for _, c := range []struct {
		results  []search.Result
		filtered bool
	}{
		{filteredVector, true},
		{vectorHits, false},
		{filteredKeyword, true},
		{keywordHits, false},
	} {
		if len(c.results) == 0 {
			continue
		}
		results := c.results
		if len(results) > k {
			results = results[:k]
		}
		metrics.RetrievalRequestsTotal.WithLabelValues("fallback").Inc()
		metrics.RetrievalResultCount.Observe(float64(len(results)))
		return Outcome{Results: results, Filtered: c.filtered}
	}

	metrics.RetrievalRequestsTotal.WithLabelValues("empty").Inc()
	metrics.RetrievalResultCount.Observe(0)
	return Outcome{Filtered: true}
}

// searchByCode resolves course-code-like query tokens against stored codes.
// A non-empty hit set is authoritative and bypasses semantic search.
func (r *Retriever) searchByCode(ctx context.Context, query string, filters search.Filters, k int) (Outcome, bool) {
	if len(filters.Codes) == 0 {
		return Outcome{}, false
	}

	all, err := r.catalog.All(ctx)
	if err != nil {
		r.logger.Warn("code lookup scan failed", zap.Error(err))
		return Outcome{}, false
	}

	var hits []search.Result
	for _, rec := range all {
		code := strings.ToUpper(strings.TrimSpace(rec.Meta.Code))
		if code == "" {
			continue
		}
		for _, token := range filters.Codes {
			if code == token {
				rec.Score = codeScoreExact
			} else if strings.Contains(code, token) || strings.Contains(token, code) {
				rec.Score = codeScoreSubstring
			} else {
				continue
			}
			rec.Source = search.SourceCode
			hits = append(hits, rec)
			break
		}
	}
	if len(hits) == 0 {
		return Outcome{}, false
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	filtered := r.applySchedule(filters, hits)
	if len(filtered) > 0 {
		hits = filtered
	}
	if len(hits) > k {
		hits = hits[:k]
	}

	r.logger.Info("course code lookup",
		zap.Strings("codes", filters.Codes),
		zap.Int("hits", len(hits)),
	)
	return Outcome{Results: hits, Filtered: len(filtered) > 0}, true
}

// vectorStage embeds the query and returns the neighbors at or above the
// similarity threshold. Any failure yields an empty set.
func (r *Retriever) vectorStage(ctx context.Context, query string, k int) []search.Result {
	emb, err := r.embed.Embed(ctx, query)
	if err != nil || len(emb.Embedding) == 0 {
		r.logger.Warn("query embedding failed", zap.Error(err))
		return nil
	}

	fetch := 3 * k
	if fetch > maxVectorFetch {
		fetch = maxVectorFetch
	}

	hits, err := r.catalog.QueryByVector(ctx, emb.Embedding, fetch)
	if err != nil {
		r.logger.Warn("vector search failed", zap.Error(err))
		return nil
	}

	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= r.cfg.SimilarityThreshold {
			kept = append(kept, h)
		}
	}
	return kept
}

// shouldFallBack decides whether the keyword stage runs: too few vector
// hits, or the query names a category that most vector hits do not mention.
func (r *Retriever) shouldFallBack(query string, vectorHits []search.Result) bool {
	if len(vectorHits) < minVectorHits {
		return true
	}

	terms := r.lex.QueryCategoryTerms(query)
	if len(terms) == 0 {
		return false
	}

	onTopic := 0
	for _, hit := range vectorHits {
		text := hit.Title + " " + hit.Category + " " + hit.Description
		for _, t := range terms {
			if strings.Contains(text, t) {
				onTopic++
				break
			}
		}
	}
	return onTopic*2 < len(vectorHits)
}

// keywordStage scores the whole catalog against the expanded keyword set
// and keeps everything above the noise floor, best first.
func (r *Retriever) keywordStage(ctx context.Context, query string) []search.Result {
	keywords := r.lex.Expand(query)
	if len(keywords) == 0 {
		return nil
	}

	all, err := r.catalog.All(ctx)
	if err != nil {
		r.logger.Warn("keyword scan failed", zap.Error(err))
		return nil
	}

	var hits []search.Result
	for _, rec := range all {
		score := r.lex.Score(keywords, rec.Searchable, rec.Title, rec.Category)
		if score <= r.lex.NoiseFloor() {
			continue
		}
		rec.Score = score
		rec.Source = search.SourceKeyword
		hits = append(hits, rec)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits
}

// applySchedule keeps results matching the weekday/time filters. With no
// schedule constraint it returns the input unchanged.
func (r *Retriever) applySchedule(filters search.Filters, results []search.Result) []search.Result {
	if !filters.HasSchedule() {
		return results
	}
	var kept []search.Result
	for _, res := range results {
		if filters.MatchSchedule(res.Meta.Schedule, res.Meta.Time) {
			kept = append(kept, res)
		}
	}
	return kept
}

// mergeResults concatenates the stages in priority order, de-duplicates by
// id keeping the first occurrence, and truncates to k.
func mergeResults(first, second []search.Result, k int) []search.Result {
	seen := make(map[string]bool, len(first)+len(second))
	merged := make([]search.Result, 0, k)
	for _, res := range append(append([]search.Result{}, first...), second...) {
		if seen[res.ID] {
			continue
		}
		seen[res.ID] = true
		merged = append(merged, res)
		if len(merged) == k {
			break
		}
	}
	return merged
}
