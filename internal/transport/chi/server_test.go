package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/classnav/classnav/internal/domain"
	"github.com/classnav/classnav/internal/domain/course"
	"github.com/classnav/classnav/internal/domain/search"
	"github.com/classnav/classnav/internal/domain/session"
	"github.com/classnav/classnav/internal/ingest"
	"github.com/classnav/classnav/internal/lexicon"
	"github.com/classnav/classnav/internal/usecase/grounding"
	"github.com/classnav/classnav/internal/usecase/recommend"
	"github.com/classnav/classnav/internal/usecase/retriever"
	sessionuc "github.com/classnav/classnav/internal/usecase/session"
)

// --- Mocks ---

type stubCatalog struct {
	total int
	all   []search.Result
	byCat []search.Result

	rebuilt bool
}

func (s *stubCatalog) EnsureIndex(context.Context) error { return nil }

func (s *stubCatalog) AddRecords(context.Context, []course.Record) error { return nil }

func (s *stubCatalog) Reset(context.Context) error { s.rebuilt = true; return nil }

func (s *stubCatalog) Stats(context.Context) (int, string) { return s.total, "courses" }

func (s *stubCatalog) GetByCategory(context.Context, string, int) ([]search.Result, error) {
	return s.byCat, nil
}

func (s *stubCatalog) All(context.Context) ([]search.Result, error) { return s.all, nil }

type stubSearcher struct {
	outcome retriever.Outcome
}

func (s *stubSearcher) Search(context.Context, string, int) retriever.Outcome { return s.outcome }

type stubCompleter struct {
	reply string
	err   error
}

func (s *stubCompleter) Complete(context.Context, string, string) (string, error) {
	return s.reply, s.err
}

type stubLoader struct {
	raws []ingest.RawCourse
}

func (s *stubLoader) Load(context.Context) ([]ingest.RawCourse, error) { return s.raws, nil }

type stubSessionRepo struct {
	sessions map[string]*session.Session
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{sessions: make(map[string]*session.Session)}
}

func (s *stubSessionRepo) Get(_ context.Context, id string) (*session.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

func (s *stubSessionRepo) Save(_ context.Context, sess *session.Session) error {
	s.sessions[sess.ID] = sess
	return nil
}

func (s *stubSessionRepo) Delete(_ context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(context.Context) error { return s.err }

type fixture struct {
	router  http.Handler
	catalog *stubCatalog
	repo    *stubSessionRepo
	pinger  *stubPinger
}

func newFixture(searcher *stubSearcher, completer *stubCompleter, catalog *stubCatalog) *fixture {
	lex := lexicon.Default()
	logger := zap.NewNop()

	svc := recommend.New(
		catalog,
		searcher,
		grounding.New(lex, logger),
		completer,
		&stubLoader{raws: []ingest.RawCourse{{Title: "初階瑜珈", Description: "入門課", Category: "瑜珈系列"}}},
		ingest.NewProcessor(lex),
		recommend.Config{ModelName: "gpt-4.1-mini", EmbeddingModel: "text-embedding-3-small"},
		logger,
	)

	repo := newStubSessionRepo()
	mgr := sessionuc.NewManager(repo, logger)
	pinger := &stubPinger{}

	server := NewServer(svc, mgr, pinger, logger)
	r := chirouter.NewRouter()
	server.Routes(r)

	return &fixture{router: r, catalog: catalog, repo: repo, pinger: pinger}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v\n%s", err, rec.Body.String())
	}
	return v
}

func yogaOutcome() retriever.Outcome {
	return retriever.Outcome{
		Results: []search.Result{{
			ID:          "1",
			Title:       "初階瑜珈",
			Category:    "瑜珈系列",
			Description: "入門課",
			Score:       0.9,
			Source:      search.SourceVector,
			Meta:        course.Meta{Teacher: "林老師", Time: "09:00"},
		}},
		Filtered: true,
	}
}

// --- Tests ---

func TestRecommendEndpoint(t *testing.T) {
	f := newFixture(
		&stubSearcher{outcome: yogaOutcome()},
		&stubCompleter{reply: `{"intro": "為您推薦", "recommendations": [{"title": "初階瑜珈", "reason": "入門首選"}]}`},
		&stubCatalog{},
	)

	rec := f.do(t, http.MethodPost, "/api/v1/recommend", map[string]any{"query": "想學瑜珈"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[recommendResponse](t, rec)
	if !resp.Success {
		t.Error("expected success")
	}
	if len(resp.Recommendation.Recommendations) != 1 || resp.Recommendation.Recommendations[0].Title != "初階瑜珈" {
		t.Errorf("recommendation = %+v", resp.Recommendation)
	}
	if len(resp.Retrieved) != 1 || resp.Retrieved[0].SearchType != "vector" {
		t.Errorf("retrieved = %+v", resp.Retrieved)
	}
	if resp.Retrieved[0].Meta["teacher"] != "林老師" {
		t.Errorf("metadata = %v", resp.Retrieved[0].Meta)
	}
}

func TestRecommendRequiresQuery(t *testing.T) {
	f := newFixture(&stubSearcher{}, &stubCompleter{}, &stubCatalog{})

	rec := f.do(t, http.MethodPost, "/api/v1/recommend", map[string]any{"query": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if resp.Code != "validation_failed" {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestRecommendRejectsBadJSON(t *testing.T) {
	f := newFixture(&stubSearcher{}, &stubCompleter{}, &stubCatalog{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recommend", bytes.NewBufferString("{broken"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	f := newFixture(&stubSearcher{outcome: yogaOutcome()}, &stubCompleter{}, &stubCatalog{})

	rec := f.do(t, http.MethodPost, "/api/v1/courses/search", map[string]any{"query": "瑜珈", "k": 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[searchResponse](t, rec)
	if resp.Total != 1 || resp.Results[0].Title != "初階瑜珈" {
		t.Errorf("response = %+v", resp)
	}
	if !resp.FiltersHonored {
		t.Error("filters flag lost")
	}
}

func TestCategoriesEndpoint(t *testing.T) {
	f := newFixture(&stubSearcher{}, &stubCompleter{}, &stubCatalog{
		all: []search.Result{
			{ID: "1", Category: "瑜珈系列"},
			{ID: "2", Category: "游泳系列"},
		},
	})

	rec := f.do(t, http.MethodGet, "/api/v1/courses/categories", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[categoriesResponse](t, rec)
	if resp.Total != 2 {
		t.Errorf("total = %d", resp.Total)
	}
}

func TestCategoryCoursesEndpoint(t *testing.T) {
	f := newFixture(&stubSearcher{}, &stubCompleter{}, &stubCatalog{
		byCat: []search.Result{{ID: "1", Title: "初階瑜珈", Category: "瑜珈系列"}},
	})

	rec := f.do(t, http.MethodGet, "/api/v1/courses/category/瑜珈系列", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[categoryCoursesResponse](t, rec)
	if resp.Total != 1 || resp.Courses[0].Title != "初階瑜珈" {
		t.Errorf("response = %+v", resp)
	}
}

func TestStatsEndpoint(t *testing.T) {
	f := newFixture(&stubSearcher{}, &stubCompleter{}, &stubCatalog{total: 5})

	rec := f.do(t, http.MethodGet, "/api/v1/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[recommend.Stats](t, rec)
	if resp.TotalCourses != 5 {
		t.Errorf("total = %d", resp.TotalCourses)
	}
	if resp.ModelName != "gpt-4.1-mini" {
		t.Errorf("model = %q", resp.ModelName)
	}
}

func TestChatCreatesSessionAndRecordsTurns(t *testing.T) {
	f := newFixture(
		&stubSearcher{outcome: yogaOutcome()},
		&stubCompleter{reply: `{"intro": "為您推薦", "recommendations": [{"title": "初階瑜珈", "reason": "入門首選"}]}`},
		&stubCatalog{},
	)

	rec := f.do(t, http.MethodPost, "/api/v1/chat", map[string]any{"message": "想學瑜珈"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[chatResponse](t, rec)
	if resp.SessionID == "" {
		t.Fatal("expected generated session id")
	}

	sess := f.repo.sessions[resp.SessionID]
	if sess == nil {
		t.Fatal("session not persisted")
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("messages = %d, want user turn plus response", len(sess.Messages))
	}
	if sess.Messages[0].Kind != session.KindUserQuery || sess.Messages[0].Content != "想學瑜珈" {
		t.Errorf("first message = %+v", sess.Messages[0])
	}
	if sess.Messages[1].Kind != session.KindResponse {
		t.Errorf("second message = %+v", sess.Messages[1])
	}
	if sess.Messages[1].Courses[0] != "初階瑜珈" {
		t.Errorf("recommended titles = %v", sess.Messages[1].Courses)
	}
}

func TestChatRequiresMessage(t *testing.T) {
	f := newFixture(&stubSearcher{}, &stubCompleter{}, &stubCatalog{})

	rec := f.do(t, http.MethodPost, "/api/v1/chat", map[string]any{"message": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestFeedbackTriggersFollowUps(t *testing.T) {
	f := newFixture(&stubSearcher{}, &stubCompleter{}, &stubCatalog{})
	f.repo.sessions["s1"] = &session.Session{ID: "s1"}

	rec := f.do(t, http.MethodPost, "/api/v1/chat/feedback", map[string]any{
		"session_id":       "s1",
		"kind":             "dissatisfied",
		"content":          "時間不方便",
		"rejected_courses": []string{"初階瑜珈"},
		"reasons":          []string{"時間不合適"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[feedbackResponse](t, rec)
	if len(resp.FollowUps) == 0 {
		t.Error("expected follow-up questions for dissatisfied feedback")
	}

	sess := f.repo.sessions["s1"]
	if !sess.Preferences.TimeSensitive {
		t.Error("time preference not recorded")
	}
	if len(sess.RejectedCourses) != 1 {
		t.Errorf("rejected = %v", sess.RejectedCourses)
	}
}

func TestFeedbackSatisfiedHasNoFollowUps(t *testing.T) {
	f := newFixture(&stubSearcher{}, &stubCompleter{}, &stubCatalog{})
	f.repo.sessions["s1"] = &session.Session{ID: "s1"}

	rec := f.do(t, http.MethodPost, "/api/v1/chat/feedback", map[string]any{
		"session_id": "s1",
		"kind":       "satisfied",
		"content":    "很棒",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[feedbackResponse](t, rec)
	if len(resp.FollowUps) != 0 {
		t.Errorf("follow-ups = %v", resp.FollowUps)
	}
}

func TestFeedbackUnknownKind(t *testing.T) {
	f := newFixture(&stubSearcher{}, &stubCompleter{}, &stubCatalog{})

	rec := f.do(t, http.MethodPost, "/api/v1/chat/feedback", map[string]any{
		"session_id": "s1",
		"kind":       "meh",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestFeedbackMissingSession(t *testing.T) {
	f := newFixture(&stubSearcher{}, &stubCompleter{}, &stubCatalog{})

	rec := f.do(t, http.MethodPost, "/api/v1/chat/feedback", map[string]any{
		"session_id": "ghost",
		"kind":       "dissatisfied",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if resp.Code != "session_not_found" {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestRebuildEndpoint(t *testing.T) {
	catalog := &stubCatalog{total: 10}
	f := newFixture(&stubSearcher{}, &stubCompleter{}, catalog)

	rec := f.do(t, http.MethodPost, "/api/v1/admin/rebuild", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !catalog.rebuilt {
		t.Error("rebuild must reset the collection")
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(&stubSearcher{}, &stubCompleter{}, &stubCatalog{})

	rec := f.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	f.pinger.err = errors.New("connection refused")
	rec = f.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d for unhealthy store", rec.Code)
	}
}
