// Package recommend orchestrates the retrieve, generate, sanitize flow and
// owns the knowledge-base rebuild sequence.
package recommend

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/classnav/classnav/internal/domain/course"
	"github.com/classnav/classnav/internal/domain/search"
	"github.com/classnav/classnav/internal/ingest"
	"github.com/classnav/classnav/internal/usecase/grounding"
	"github.com/classnav/classnav/internal/usecase/retriever"
)

const (
	noMatchMessage = "抱歉，我找不到符合您需求的課程。請嘗試用不同的關鍵字搜尋，例如：「有氧運動」、「瑜珈」、「游泳」、「球類運動」等。"
	noMatchClarify = "能更詳細地描述您想找的課程嗎？例如運動類型、上課時段或預算。"
	retryMessage   = "抱歉，生成推薦時發生錯誤。請稍後再試。"
)

// catalogStore is the consumer interface onto the catalog repository.
type catalogStore interface {
	EnsureIndex(ctx context.Context) error
	AddRecords(ctx context.Context, records []course.Record) error
	Reset(ctx context.Context) error
	Stats(ctx context.Context) (int, string)
	GetByCategory(ctx context.Context, category string, limit int) ([]search.Result, error)
	All(ctx context.Context) ([]search.Result, error)
}

// searcher runs the hybrid retrieval pipeline.
type searcher interface {
	Search(ctx context.Context, query string, k int) retriever.Outcome
}

// completer is the opaque generation service.
type completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config identifies the models reported by Stats.
type Config struct {
	ModelName      string
	EmbeddingModel string
}

// Result is one full recommendation turn.
type Result struct {
	Query     string
	Retrieved []search.Result
	Answer    grounding.Answer
	Filtered  bool
	Success   bool
}

// Stats summarizes the knowledge base.
type Stats struct {
	TotalCourses    int      `json:"total_courses"`
	TotalCategories int      `json:"total_categories"`
	Categories      []string `json:"categories"`
	CollectionName  string   `json:"collection_name"`
	ModelName       string   `json:"model_name"`
	EmbeddingModel  string   `json:"embedding_model"`
}

// Service wires retrieval, grounding, and generation together. Rebuilds are
// rare operator events, so a coarse RWMutex serializes them against queries.
type Service struct {
	mu sync.RWMutex

	catalog   catalogStore
	search    searcher
	formatter *grounding.Formatter
	complete  completer
	loader    ingest.Loader
	processor *ingest.Processor
	cfg       Config
	logger    *zap.Logger
}

// New creates the recommendation service.
func New(
	catalog catalogStore,
	searcher searcher,
	formatter *grounding.Formatter,
	complete completer,
	loader ingest.Loader,
	processor *ingest.Processor,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		catalog:   catalog,
		search:    searcher,
		formatter: formatter,
		complete:  complete,
		loader:    loader,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
	}
}

// EnsureKnowledgeBase makes the catalog queryable. With force it discards
// and reloads everything; otherwise an already-populated catalog is left
// untouched.
func (s *Service) EnsureKnowledgeBase(ctx context.Context, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force {
		if total, _ := s.catalog.Stats(ctx); total > 0 {
			s.logger.Info("knowledge base already populated", zap.Int("courses", total))
			return nil
		}
	}

	raws, err := s.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load catalog source: %w", err)
	}
	records := s.processor.Prepare(raws)
	if len(records) == 0 {
		return fmt.Errorf("catalog source yielded no usable courses")
	}

	if force {
		if err := s.catalog.Reset(ctx); err != nil {
			return fmt.Errorf("reset collection: %w", err)
		}
	} else if err := s.catalog.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}

	if err := s.catalog.AddRecords(ctx, records); err != nil {
		return fmt.Errorf("index %d courses: %w", len(records), err)
	}

	s.logger.Info("knowledge base built", zap.Int("courses", len(records)))
	return nil
}

// Recommend runs the full turn: retrieve, generate, sanitize. Generation
// failures surface as a generic retry message, never the raw error.
func (s *Service) Recommend(ctx context.Context, query string, k int) Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outcome := s.search.Search(ctx, query, k)
	if len(outcome.Results) == 0 {
		return Result{
			Query: query,
			Answer: grounding.Answer{
				Intro:           noMatchMessage,
				ClarifyQuestion: noMatchClarify,
			},
			Filtered: outcome.Filtered,
		}
	}

	gctx := s.formatter.Build(query, outcome.Results)
	raw, err := s.complete.Complete(ctx, gctx.SystemPrompt, gctx.UserPrompt)
	if err != nil {
		s.logger.Error("generation failed", zap.Error(err), zap.String("query", query))
		return Result{
			Query:     query,
			Retrieved: outcome.Results,
			Answer:    grounding.Answer{Intro: retryMessage},
			Filtered:  outcome.Filtered,
		}
	}

	return Result{
		Query:     query,
		Retrieved: outcome.Results,
		Answer:    s.formatter.Sanitize(raw, outcome.Results),
		Filtered:  outcome.Filtered,
		Success:   true,
	}
}

// SearchCourses exposes raw retrieval without generation.
func (s *Service) SearchCourses(ctx context.Context, query string, k int) retriever.Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search.Search(ctx, query, k)
}

// Categories lists the distinct categories currently indexed.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categories(ctx)
}

func (s *Service) categories(ctx context.Context) ([]string, error) {
	all, err := s.catalog.All(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]course.Record, 0, len(all))
	for _, res := range all {
		records = append(records, course.Record{Category: res.Category})
	}
	return ingest.Categories(records), nil
}

// CoursesByCategory returns every course in one category.
func (s *Service) CoursesByCategory(ctx context.Context, category string) ([]search.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.GetByCategory(ctx, category, 0)
}

// SystemStats reports knowledge-base counts and model identities.
func (s *Service) SystemStats(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total, collection := s.catalog.Stats(ctx)
	categories, err := s.categories(ctx)
	if err != nil {
		s.logger.Warn("category listing failed", zap.Error(err))
	}
	return Stats{
		TotalCourses:    total,
		TotalCategories: len(categories),
		Categories:      categories,
		CollectionName:  collection,
		ModelName:       s.cfg.ModelName,
		EmbeddingModel:  s.cfg.EmbeddingModel,
	}
}
