package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/GoPolymarket/polysession/internal/config"
	"github.com/GoPolymarket/polysession/internal/session"
	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	Client *redis.Client
	prefix string
}

func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{Client: rdb, prefix: cfg.Redis.KeyPrefix}, nil
}

func (r *RedisClient) key(parts ...string) string {
	k := r.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}

// RedisSessionStore keeps each session as one JSON value so a save is a
// whole-record replacement.
type RedisSessionStore struct {
	client *RedisClient
}

func NewRedisSessionStore(client *RedisClient) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) Save(ctx context.Context, address string, sess *session.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Client.Set(ctx, s.client.key("session", session.Key(address)), payload, 0).Err()
}

func (s *RedisSessionStore) Load(ctx context.Context, address string) (*session.Session, error) {
	raw, err := s.client.Client.Get(ctx, s.client.key("session", session.Key(address))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *RedisSessionStore) Clear(ctx context.Context, address string) error {
	return s.client.Client.Del(ctx, s.client.key("session", session.Key(address))).Err()
}

var _ session.Store = (*RedisSessionStore)(nil)
