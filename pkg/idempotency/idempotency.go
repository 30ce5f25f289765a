/**
 * @description
 * Bounded-retention claim stores used to process each webhook event id at most
 * once. A claim is taken before dispatch and released when processing fails
 * with a retryable error, so the provider's redelivery can try again.
 */
package idempotency

import (
	"context"
	"sync"
	"time"
)

// Store claims keys for a bounded retention window.
type Store interface {
	// Claim returns true when the key was not already claimed.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	// Extend resets the expiry of a held claim to ttl from now.
	Extend(ctx context.Context, key string, ttl time.Duration) error
	// Purge removes expired claims and reports how many were dropped.
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.expires[key] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.expires, key)
	return nil
}

// Extend is a no-op for keys that are not claimed.
func (s *MemoryStore) Extend(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expires[key]; ok {
		s.expires[key] = s.now().Add(ttl)
	}
	return nil
}

func (s *MemoryStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for key, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, key)
			purged++
		}
	}
	return purged, nil
}

// Len reports the number of live and expired claims held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}
