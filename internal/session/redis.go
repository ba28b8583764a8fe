package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"chatflow-works/engine/internal/engine"
)

// RedisStore implements Store using Redis. Sessions are stored as JSON under
// a prefixed key with an optional TTL so abandoned conversations age out.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*RedisStore)

// WithTTL sets the expiration for sessions.
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for sessions.
func WithPrefix(prefix string) Option {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed session store with options.
func NewRedisStore(address, password string, db int, opts ...Option) *RedisStore {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(rdb, opts...)
}

// NewRedisStoreFromClient creates a Redis-backed session store from an
// existing client.
func NewRedisStoreFromClient(client *backend.Client, opts ...Option) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: "chatflow:session:",
		ttl:    0, // No expiration by default
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (*engine.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == backend.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}
	var sess engine.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", id, err)
	}
	return &sess, nil
}

func (s *RedisStore) Put(ctx context.Context, sess *engine.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", sess.ID, err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: save %s: %w", sess.ID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("session: delete %s: %w", id, err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
