package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/classnav/classnav/internal/config"
	dbRedis "github.com/classnav/classnav/internal/db/redis"
	"github.com/classnav/classnav/internal/ingest"
	"github.com/classnav/classnav/internal/lexicon"
	logpkg "github.com/classnav/classnav/internal/logger"
	"github.com/classnav/classnav/internal/metrics"
	catalogrepo "github.com/classnav/classnav/internal/repository/catalog"
	sessionrepo "github.com/classnav/classnav/internal/repository/session"
	chiTransport "github.com/classnav/classnav/internal/transport/chi"
	"github.com/classnav/classnav/internal/transport/openai"
	"github.com/classnav/classnav/internal/usecase/grounding"
	"github.com/classnav/classnav/internal/usecase/recommend"
	"github.com/classnav/classnav/internal/usecase/retriever"
	sessionuc "github.com/classnav/classnav/internal/usecase/session"
	"github.com/classnav/classnav/internal/version"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting classnav API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterProviderMetrics()
	metrics.RegisterRetrievalMetrics()

	lex := loadLexicon(cfg.Catalog.LexiconPath, logger)

	embedder := openai.NewEmbedder(&openai.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	completer := openai.NewCompleter(&openai.CompleterConfig{
		APIKey:      cfg.Generation.APIKey,
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Timeout:     time.Duration(cfg.Generation.TimeoutSec) * time.Second,
		Logger:      logger,
	})
	logger.Info("Model providers created",
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("generation_model", cfg.Generation.Model),
	)

	catalog := catalogrepo.New(store, embedder, catalogrepo.Config{
		KeyPrefix:       cfg.Storage.KeyPrefix,
		CollectionName:  cfg.Catalog.CollectionName,
		Dimensions:      cfg.Embedding.Dimensions,
		HNSWM:           cfg.Catalog.HNSWM,
		HNSWEFConstruct: cfg.Catalog.HNSWEFConstruct,
	}, logger)
	sessions := sessionrepo.New(store, store, cfg.Storage.KeyPrefix,
		time.Duration(cfg.Session.TTLHours)*time.Hour)

	loader := buildLoader(cfg, logger)
	processor := ingest.NewProcessor(lex)

	search := retriever.New(catalog, embedder, lex, retriever.Config{
		TopK:                cfg.Retrieval.TopK,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
	}, logger)
	formatter := grounding.New(lex, logger)

	recSvc := recommend.New(catalog, search, formatter, completer, loader, processor,
		recommend.Config{
			ModelName:      cfg.Generation.Model,
			EmbeddingModel: cfg.Embedding.Model,
		}, logger)
	sessionMgr := sessionuc.NewManager(sessions, logger)

	if err := recSvc.EnsureKnowledgeBase(ctx, cfg.Catalog.RebuildOnStart); err != nil {
		logger.Fatal("Failed to build knowledge base", zap.Error(err))
	}

	server := chiTransport.NewServer(recSvc, sessionMgr, store, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// loadLexicon reads the external lexicon file, falling back to the embedded
// copy when the file is absent.
func loadLexicon(path string, logger *zap.Logger) *lexicon.Lexicon {
	lex, err := lexicon.Load(path)
	if err != nil {
		logger.Warn("Using embedded lexicon", zap.String("path", path), zap.Error(err))
		return lexicon.Default()
	}
	logger.Info("Lexicon loaded", zap.String("path", path))
	return lex
}

// buildLoader picks the catalog source configured for this deployment.
func buildLoader(cfg config.Config, logger *zap.Logger) ingest.Loader {
	switch cfg.Catalog.Source {
	case "sqlite":
		loader, err := ingest.NewGormLoader(cfg.Catalog.SQLitePath, logger)
		if err != nil {
			logger.Fatal("Failed to open catalog database", zap.Error(err))
		}
		return loader
	default:
		return ingest.NewFileLoader(cfg.Catalog.DataPath, logger)
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}

// jsonRecoverer keeps panics from leaking stack traces as plain text.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
