package session

import (
	"context"
	"sync"
)

// Store persists session turns outside the in-memory table.
// Implementations must be safe for concurrent use. The manager treats
// store failures as advisory: they are logged, never surfaced to callers.
type Store interface {
	// Append records a turn for the session.
	Append(ctx context.Context, sessionID string, turn Turn) error

	// Load returns all stored turns for the session, oldest first.
	// An unknown session returns an empty slice, not an error.
	Load(ctx context.Context, sessionID string) ([]Turn, error)

	// Delete removes all stored turns for the session.
	Delete(ctx context.Context, sessionID string) error

	// Close releases store resources.
	Close() error
}

// MemoryStore is the default in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	turns map[string][]Turn
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[string][]Turn)}
}

// Append records a turn for the session.
func (s *MemoryStore) Append(ctx context.Context, sessionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	return nil
}

// Load returns all stored turns for the session.
func (s *MemoryStore) Load(ctx context.Context, sessionID string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns[sessionID]))
	copy(out, s.turns[sessionID])
	return out, nil
}

// Delete removes all stored turns for the session.
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, sessionID)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Verify MemoryStore implements Store at compile time.
var _ Store = (*MemoryStore)(nil)
