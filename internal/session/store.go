// Package session stores in-flight widget conversations. Sessions are small
// JSON documents keyed by session id; the Redis store is the production
// backend, the memory store serves tests and single-node deployments.
package session

import (
	"context"
	"errors"
	"sync"

	"chatflow-works/engine/internal/engine"
)

// ErrNotFound is returned when no session exists for the given id.
var ErrNotFound = errors.New("session: not found")

// Store persists conversation sessions between widget requests.
type Store interface {
	Get(ctx context.Context, id string) (*engine.Session, error)
	Put(ctx context.Context, s *engine.Session) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*engine.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*engine.Session)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*engine.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	cp.Transcript = append(cp.Transcript[:0:0], s.Transcript...)
	return &cp, nil
}

func (m *MemoryStore) Put(_ context.Context, s *engine.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Transcript = append(cp.Transcript[:0:0], s.Transcript...)
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}
