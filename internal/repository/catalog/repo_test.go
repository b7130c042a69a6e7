package catalog

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/classnav/classnav/internal/db"
	"github.com/classnav/classnav/internal/domain"
	"github.com/classnav/classnav/internal/domain/course"
)

// --- Mocks ---

type mockStore struct {
	hsetItems   []db.HashSetItem
	hsetErr     error
	getAll      []map[string]string
	scanKeys    []string
	scanErr     error
	deleted     []string
	createErr   error
	dropErr     error
	exists      bool
	existsErr   error
	knnResult   *db.SearchResult
	knnErr      error
	tagResult   *db.SearchResult
	count       int
	countErr    error

	createCalls int
	dropCalls   int
	lastKNN     *db.KNNQuery
}

func (m *mockStore) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	if m.hsetErr != nil {
		return m.hsetErr
	}
	m.hsetItems = append(m.hsetItems, items...)
	return nil
}

func (m *mockStore) HGetAllMulti(_ context.Context, keys []string) ([]map[string]string, error) {
	return m.getAll, nil
}

func (m *mockStore) Scan(_ context.Context, _ string) ([]string, error) {
	return m.scanKeys, m.scanErr
}

func (m *mockStore) DelMulti(_ context.Context, keys []string) error {
	m.deleted = append(m.deleted, keys...)
	return nil
}

func (m *mockStore) CreateIndex(_ context.Context, _ *db.IndexDefinition) error {
	m.createCalls++
	return m.createErr
}

func (m *mockStore) DropIndex(_ context.Context, _ string) error {
	m.dropCalls++
	return m.dropErr
}

func (m *mockStore) IndexExists(_ context.Context, _ string) (bool, error) {
	return m.exists, m.existsErr
}

func (m *mockStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	m.lastKNN = q
	return m.knnResult, m.knnErr
}

func (m *mockStore) SearchTag(_ context.Context, _, _, _ string, _ int, _ []string) (*db.SearchResult, error) {
	return m.tagResult, nil
}

func (m *mockStore) SearchCount(_ context.Context, _, _ string) (int, error) {
	return m.count, m.countErr
}

type mockEmbedder struct {
	vectors [][]float32
	err     error
	called  bool
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.called = true
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	if m.vectors != nil {
		return domain.BatchEmbeddingResult{Embeddings: m.vectors}, nil
	}
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{1, 0}
	}
	return domain.BatchEmbeddingResult{Embeddings: vecs}, nil
}

func newRepo(s *mockStore, e *mockEmbedder) *Repo {
	return New(s, e, Config{
		KeyPrefix:      "classnav:",
		CollectionName: "courses",
		Dimensions:     2,
	}, zap.NewNop())
}

func indexableRecord(id, title string) course.Record {
	return course.Record{
		ID:             id,
		Title:          title,
		Category:       "瑜珈系列",
		Description:    "介紹",
		SearchableText: "課程名稱: " + title,
		Meta:           course.Meta{Code: "114A47", Schedule: "[1][3]"},
	}
}

// --- Tests ---

func TestAddRecordsStoresDocuments(t *testing.T) {
	s := &mockStore{}
	e := &mockEmbedder{}
	r := newRepo(s, e)

	err := r.AddRecords(context.Background(), []course.Record{
		indexableRecord("0", "初階瑜珈"),
		{ID: "1", Title: "無介紹"}, // not indexable, skipped
	})
	if err != nil {
		t.Fatalf("AddRecords: %v", err)
	}
	if len(s.hsetItems) != 1 {
		t.Fatalf("stored %d items, want 1", len(s.hsetItems))
	}
	item := s.hsetItems[0]
	if item.Key != "classnav:courses:0" {
		t.Errorf("key = %q", item.Key)
	}
	if item.Fields["title"] != "初階瑜珈" {
		t.Errorf("title field = %q", item.Fields["title"])
	}
	if len(item.Fields["vector"]) != 8 {
		t.Errorf("vector blob length = %d, want 8 bytes for 2 float32", len(item.Fields["vector"]))
	}
}

func TestAddRecordsAbortsOnEmbedError(t *testing.T) {
	s := &mockStore{}
	e := &mockEmbedder{err: errors.New("provider down")}
	r := newRepo(s, e)

	err := r.AddRecords(context.Background(), []course.Record{indexableRecord("0", "a")})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(s.hsetItems) != 0 {
		t.Error("nothing may be written after an embedding failure")
	}
}

func TestAddRecordsAbortsOnEmptyEmbedding(t *testing.T) {
	s := &mockStore{}
	e := &mockEmbedder{vectors: [][]float32{{1, 0}, {}}}
	r := newRepo(s, e)

	err := r.AddRecords(context.Background(), []course.Record{
		indexableRecord("0", "a"),
		indexableRecord("1", "b"),
	})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("err = %v", err)
	}
	if len(s.hsetItems) != 0 {
		t.Error("partial batch must not be written")
	}
}

func TestAddRecordsEmptyInput(t *testing.T) {
	s := &mockStore{}
	e := &mockEmbedder{}
	r := newRepo(s, e)

	if err := r.AddRecords(context.Background(), nil); err != nil {
		t.Fatalf("AddRecords: %v", err)
	}
	if e.called {
		t.Error("embedder must not be called for an empty batch")
	}
}

func TestEnsureIndexIgnoresExisting(t *testing.T) {
	s := &mockStore{createErr: db.ErrIndexExists}
	r := newRepo(s, &mockEmbedder{})

	if err := r.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
}

func TestResetDeletesAndRecreates(t *testing.T) {
	s := &mockStore{scanKeys: []string{"classnav:courses:0", "classnav:courses:1"}}
	r := newRepo(s, &mockEmbedder{})

	if err := r.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if len(s.deleted) != 2 {
		t.Errorf("deleted %d keys", len(s.deleted))
	}
	if s.dropCalls != 1 || s.createCalls != 1 {
		t.Errorf("drop=%d create=%d", s.dropCalls, s.createCalls)
	}
}

func TestResetToleratesMissingIndex(t *testing.T) {
	s := &mockStore{dropErr: db.ErrIndexNotFound}
	r := newRepo(s, &mockEmbedder{})

	if err := r.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if s.createCalls != 1 {
		t.Error("index not recreated")
	}
}

func TestStatsFailSoft(t *testing.T) {
	s := &mockStore{exists: false, createErr: errors.New("store down")}
	r := newRepo(s, &mockEmbedder{})

	total, name := r.Stats(context.Background())
	if total != 0 {
		t.Errorf("total = %d, want 0 for dead store", total)
	}
	if name != "courses" {
		t.Errorf("collection = %q", name)
	}

	s2 := &mockStore{exists: true, count: 7}
	total, _ = newRepo(s2, &mockEmbedder{}).Stats(context.Background())
	if total != 7 {
		t.Errorf("total = %d", total)
	}
}

func TestLiveReacquiresIndex(t *testing.T) {
	// Index probe says missing, re-creation succeeds but the probe still
	// reports false: the fixed mock answers false both times.
	s := &mockStore{exists: false}
	r := newRepo(s, &mockEmbedder{})
	if r.Live(context.Background()) {
		t.Error("expected not live while probe reports missing")
	}
	if s.createCalls != 1 {
		t.Errorf("re-acquisition attempts = %d, want 1", s.createCalls)
	}

	healthy := &mockStore{exists: true}
	if !newRepo(healthy, &mockEmbedder{}).Live(context.Background()) {
		t.Error("expected live")
	}
	if healthy.createCalls != 0 {
		t.Error("healthy store must not trigger re-acquisition")
	}
}

func TestQueryByVectorMapsEntries(t *testing.T) {
	s := &mockStore{knnResult: &db.SearchResult{Entries: []db.SearchEntry{
		{
			Key:   "classnav:courses:3",
			Score: 0.91,
			Fields: map[string]string{
				"title":    "初階瑜珈",
				"category": "瑜珈系列",
				"schedule": "[1][3]",
				"code":     "114A47",
				"x_min_size": "8",
			},
		},
	}}}
	r := newRepo(s, &mockEmbedder{})

	results, err := r.QueryByVector(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("QueryByVector: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}
	res := results[0]
	if res.ID != "3" {
		t.Errorf("id = %q, want key prefix stripped", res.ID)
	}
	if res.Score != 0.91 {
		t.Errorf("score = %v", res.Score)
	}
	if res.Meta.Code != "114A47" || res.Meta.Schedule != "[1][3]" {
		t.Errorf("meta = %+v", res.Meta)
	}
	if res.Meta.Extra["min_size"] != "8" {
		t.Errorf("extra = %v", res.Meta.Extra)
	}
	if s.lastKNN.K != 5 {
		t.Errorf("K = %d", s.lastKNN.K)
	}
}

func TestAllSkipsEmptyDocuments(t *testing.T) {
	s := &mockStore{
		scanKeys: []string{"classnav:courses:0", "classnav:courses:1"},
		getAll: []map[string]string{
			{"title": "初階瑜珈", "searchable": "瑜珈 瑜伽"},
			{},
		},
	}
	r := newRepo(s, &mockEmbedder{})

	results, err := r.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].ID != "0" || results[0].Searchable != "瑜珈 瑜伽" {
		t.Errorf("result = %+v", results[0])
	}
}

func TestVectorBlobLittleEndian(t *testing.T) {
	blob := vectorBlob([]float32{1})
	// float32(1) is 0x3f800000, little endian on the wire.
	want := string([]byte{0x00, 0x00, 0x80, 0x3f})
	if blob != want {
		t.Errorf("blob = %x, want %x", blob, want)
	}
}
