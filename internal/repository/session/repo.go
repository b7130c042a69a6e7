// Package session persists conversation sessions as JSON blobs with a
// sliding TTL.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/classnav/classnav/internal/db"
	"github.com/classnav/classnav/internal/domain"
	"github.com/classnav/classnav/internal/domain/session"
)

// kv is the consumer interface for session persistence.
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type deleter interface {
	Del(ctx context.Context, key string) error
}

// Repo stores sessions in the key-value store.
type Repo struct {
	kv        kv
	del       deleter
	keyPrefix string
	ttl       time.Duration
}

// New creates a session repository. Each Save refreshes the TTL, so active
// conversations stay alive and idle ones expire.
func New(kvStore kv, del deleter, keyPrefix string, ttl time.Duration) *Repo {
	return &Repo{kv: kvStore, del: del, keyPrefix: keyPrefix, ttl: ttl}
}

func (r *Repo) key(id string) string {
	return r.keyPrefix + "session:" + id
}

// Get loads a session by id.
func (r *Repo) Get(ctx context.Context, id string) (*session.Session, error) {
	raw, err := r.kv.Get(ctx, r.key(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	var s session.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

// Save persists a session and refreshes its TTL.
func (r *Repo) Save(ctx context.Context, s *session.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	if err := r.kv.SetWithTTL(ctx, r.key(s.ID), raw, r.ttl); err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}

// Delete removes a session. Deleting an absent session is not an error.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if err := r.del.Del(ctx, r.key(id)); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}
