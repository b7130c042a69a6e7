// Package chi implements the HTTP API.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/classnav/classnav/internal/db"
	"github.com/classnav/classnav/internal/domain"
	"github.com/classnav/classnav/internal/domain/session"
	"github.com/classnav/classnav/internal/usecase/recommend"
	sessionuc "github.com/classnav/classnav/internal/usecase/session"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the recommendation engine over HTTP.
type Server struct {
	recommend     *recommend.Service
	sessions      *sessionuc.Manager
	pinger        db.Pinger
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the API server.
func NewServer(
	rec *recommend.Service,
	sessions *sessionuc.Manager,
	pinger db.Pinger,
	logger *zap.Logger,
) *Server {
	s := &Server{
		recommend: rec,
		sessions:  sessions,
		pinger:    pinger,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrSessionNotFound, http.StatusNotFound, "session_not_found"),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, "not_found"),
		sentinelHandler(domain.ErrCatalogUnavailable, http.StatusServiceUnavailable, "catalog_unavailable"),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, "embedding_provider_error"),
		sentinelHandler(domain.ErrGenerationFailed, http.StatusBadGateway, "generation_failed"),
	}
	return s
}

// Routes registers the API endpoints on r. Middleware is composed by the
// caller.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/recommend", s.handleRecommend)
		r.Post("/courses/search", s.handleSearch)
		r.Get("/courses/categories", s.handleCategories)
		r.Get("/courses/category/{category}", s.handleCategoryCourses)
		r.Get("/stats", s.handleStats)
		r.Post("/chat", s.handleChat)
		r.Post("/chat/feedback", s.handleFeedback)
		r.Post("/admin/rebuild", s.handleRebuild)
	})
}

// handleRecommend runs a full retrieve-generate-sanitize turn.
func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Query is required")
		return
	}

	result := s.recommend.Recommend(r.Context(), req.Query, req.K)
	writeJSON(w, http.StatusOK, recommendResponse{
		Query:          result.Query,
		Recommendation: result.Answer,
		Retrieved:      courseItemsFromResults(result.Retrieved),
		FiltersHonored: result.Filtered,
		Success:        result.Success,
	})
}

// handleSearch exposes raw hybrid retrieval without generation.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Query is required")
		return
	}

	outcome := s.recommend.SearchCourses(r.Context(), req.Query, req.K)
	writeJSON(w, http.StatusOK, searchResponse{
		Query:          req.Query,
		Results:        courseItemsFromResults(outcome.Results),
		Total:          len(outcome.Results),
		FiltersHonored: outcome.Filtered,
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.recommend.Categories(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categoriesResponse{
		Categories: categories,
		Total:      len(categories),
	})
}

func (s *Server) handleCategoryCourses(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	courses, err := s.recommend.CoursesByCategory(r.Context(), category)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryCoursesResponse{
		Category: category,
		Courses:  courseItemsFromResults(courses),
		Total:    len(courses),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.recommend.SystemStats(r.Context()))
}

// handleChat is the session-aware recommend: the conversation manager
// refines the query with accumulated preferences and records both turns.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Message is required")
		return
	}

	ctx := r.Context()
	sess, err := s.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	query := s.sessions.RefineQuery(sess, req.Message)
	result := s.recommend.Recommend(ctx, query, 0)

	titles := make([]string, 0, len(result.Answer.Recommendations))
	for _, rec := range result.Answer.Recommendations {
		titles = append(titles, rec.Title)
	}
	if err := s.sessions.AddMessage(ctx, sess, session.KindUserQuery, req.Message, nil); err != nil {
		s.logger.Warn("record user message failed", zap.Error(err))
	}
	if err := s.sessions.AddMessage(ctx, sess, session.KindResponse, result.Answer.Intro, titles); err != nil {
		s.logger.Warn("record response failed", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, chatResponse{
		SessionID:      sess.ID,
		Recommendation: result.Answer,
		Retrieved:      courseItemsFromResults(result.Retrieved),
		FiltersHonored: result.Filtered,
		Success:        result.Success,
	})
}

// handleFeedback records a user reaction and returns follow-up questions
// when the feedback calls for them.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Session id is required")
		return
	}
	kind := session.FeedbackKind(req.Kind)
	switch kind {
	case session.FeedbackDissatisfied, session.FeedbackPartiallySatisfied, session.FeedbackSatisfied:
	default:
		writeError(w, http.StatusBadRequest, "validation_failed", "Unknown feedback kind")
		return
	}

	ctx := r.Context()
	sess, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if err := s.sessions.AddFeedback(ctx, sess, kind, req.Content, req.RejectedCourses, req.Reasons); err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := feedbackResponse{SessionID: sess.ID}
	if s.sessions.ShouldFollowUp(sess) {
		resp.FollowUps = s.sessions.FollowUpQuestions(req.Content)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRebuild discards and reloads the knowledge base. Operator endpoint.
func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.recommend.EnsureKnowledgeBase(r.Context(), true); err != nil {
		s.logger.Error("knowledge base rebuild failed", zap.Error(err))
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}
	status := "healthy"
	httpStatus := http.StatusOK

	if err := s.pinger.Ping(r.Context()); err != nil {
		checks["database"] = "unreachable"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrSessionNotFound,
		domain.ErrCatalogUnavailable,
		domain.ErrEmbeddingProviderError,
		domain.ErrGenerationFailed,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
