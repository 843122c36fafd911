package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// entry is a stored result body with expiration
type entry struct {
	body      []byte
	expiresAt time.Time
}

// InMemoryIdempotencyStore implements shared.IdempotencyStore using an
// in-memory map. This is suitable for single-instance deployments and
// testing; state is not shared across processes.
type InMemoryIdempotencyStore struct {
	mu        sync.RWMutex
	entries   map[string]entry
	ttl       time.Duration
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryIdempotencyStore creates a new in-memory idempotency store.
// It starts a background goroutine to clean up expired entries.
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	store := &InMemoryIdempotencyStore{
		entries:  make(map[string]entry),
		ttl:      DefaultResultTTL,
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.cleanupLoop()

	return store
}

func storeKey(tenantID uuid.UUID, actionKey, idempotencyKey string) string {
	return fmt.Sprintf("%s:%s:%s", tenantID, actionKey, idempotencyKey)
}

// Get returns the stored result body, or (nil, false, nil) when absent
func (s *InMemoryIdempotencyStore) Get(ctx context.Context, tenantID uuid.UUID, actionKey, idempotencyKey string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[storeKey(tenantID, actionKey, idempotencyKey)]
	if !exists || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.body, true, nil
}

// Put stores the result body; the first writer wins and later writers get
// the winner's body back
func (s *InMemoryIdempotencyStore) Put(ctx context.Context, tenantID uuid.UUID, actionKey, idempotencyKey string, body []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(tenantID, actionKey, idempotencyKey)
	if e, exists := s.entries[key]; exists && time.Now().Before(e.expiresAt) {
		return e.body, nil
	}

	s.entries[key] = entry{
		body:      body,
		expiresAt: time.Now().Add(s.ttl),
	}
	return body, nil
}

// Close stops the cleanup goroutine and releases resources.
// Safe to call multiple times.
func (s *InMemoryIdempotencyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

// cleanupLoop periodically removes expired entries
func (s *InMemoryIdempotencyStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes expired entries from the store
func (s *InMemoryIdempotencyStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// Size returns the number of entries in the store (for testing/monitoring)
func (s *InMemoryIdempotencyStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ensure InMemoryIdempotencyStore implements IdempotencyStore
var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
