package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/GoPolymarket/polysession/internal/session"
	"github.com/cockroachdb/pebble"
)

// PebbleSessionStore is an embedded on-disk session store for single-node
// deployments.
type PebbleSessionStore struct {
	db *pebble.DB
}

func NewPebbleSessionStore(path string) (*PebbleSessionStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleSessionStore{db: db}, nil
}

func (s *PebbleSessionStore) Close() error { return s.db.Close() }

// keys: s:<lowercase address>
func sessionKey(address string) []byte {
	return append([]byte("s:"), session.Key(address)...)
}

func (s *PebbleSessionStore) Save(_ context.Context, address string, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.db.Set(sessionKey(address), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *PebbleSessionStore) Load(_ context.Context, address string) (*session.Session, error) {
	val, closer, err := s.db.Get(sessionKey(address))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var sess session.Session
	if err := json.Unmarshal(val, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *PebbleSessionStore) Clear(_ context.Context, address string) error {
	return s.db.Delete(sessionKey(address), pebble.Sync)
}

var _ session.Store = (*PebbleSessionStore)(nil)
