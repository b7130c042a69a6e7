package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/classnav/classnav/internal/db"
	"github.com/classnav/classnav/internal/domain"
	"github.com/classnav/classnav/internal/domain/session"
)

// --- Mocks ---

type mockKV struct {
	data    map[string][]byte
	lastTTL time.Duration
	getErr  error
}

func newMockKV() *mockKV {
	return &mockKV{data: make(map[string][]byte)}
}

func (m *mockKV) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	raw, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return raw, nil
}

func (m *mockKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.lastTTL = ttl
	return nil
}

func (m *mockKV) Del(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

// --- Tests ---

func TestSaveAndGetRoundTrip(t *testing.T) {
	kv := newMockKV()
	repo := New(kv, kv, "classnav:", 72*time.Hour)

	s := &session.Session{
		ID:        "abc",
		CreatedAt: time.Now().Truncate(time.Second),
		Messages: []session.Message{
			{Kind: session.KindUserQuery, Content: "想學瑜珈"},
		},
		Preferences: session.Preferences{TimeSensitive: true},
	}
	if err := repo.Save(context.Background(), s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := kv.data["classnav:session:abc"]; !ok {
		t.Fatal("session not stored under prefixed key")
	}

	got, err := repo.Get(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "abc" || len(got.Messages) != 1 || !got.Preferences.TimeSensitive {
		t.Errorf("round trip = %+v", got)
	}
}

func TestSaveRefreshesTTL(t *testing.T) {
	kv := newMockKV()
	repo := New(kv, kv, "classnav:", 72*time.Hour)

	s := &session.Session{ID: "abc"}
	if err := repo.Save(context.Background(), s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if kv.lastTTL != 72*time.Hour {
		t.Errorf("ttl = %v", kv.lastTTL)
	}
}

func TestGetMissingMapsToSessionNotFound(t *testing.T) {
	kv := newMockKV()
	repo := New(kv, kv, "classnav:", time.Hour)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestGetStoreErrorPassesThrough(t *testing.T) {
	kv := newMockKV()
	kv.getErr = errors.New("connection refused")
	repo := New(kv, kv, "classnav:", time.Hour)

	_, err := repo.Get(context.Background(), "abc")
	if err == nil || errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
}

func TestGetCorruptPayload(t *testing.T) {
	kv := newMockKV()
	kv.data["classnav:session:bad"] = []byte("{not json")
	repo := New(kv, kv, "classnav:", time.Hour)

	if _, err := repo.Get(context.Background(), "bad"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDelete(t *testing.T) {
	kv := newMockKV()
	repo := New(kv, kv, "classnav:", time.Hour)

	repo.Save(context.Background(), &session.Session{ID: "abc"})
	if err := repo.Delete(context.Background(), "abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(context.Background(), "abc"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound after delete", err)
	}
}
