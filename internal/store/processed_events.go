package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProcessedEventStore tracks webhook event ids in Postgres so a redelivered
// event is dispatched at most once within its retention window.
type ProcessedEventStore struct {
	db *pgxpool.Pool
}

// NewProcessedEventStore creates a new store.
func NewProcessedEventStore(db *pgxpool.Pool) *ProcessedEventStore {
	return &ProcessedEventStore{db: db}
}

// Claim records key unless an unexpired claim already exists.
func (s *ProcessedEventStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO processed_events (event_id, claimed_at, expires_at)
		VALUES ($1, NOW(), NOW() + make_interval(secs => $2))
		ON CONFLICT (event_id) DO UPDATE SET
			claimed_at = EXCLUDED.claimed_at,
			expires_at = EXCLUDED.expires_at
		WHERE processed_events.expires_at < NOW()
	`, key, ttl.Seconds())
	if err != nil {
		return false, fmt.Errorf("failed to claim event %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release drops a claim so the event can be processed again.
func (s *ProcessedEventStore) Release(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM processed_events WHERE event_id = $1", key); err != nil {
		return fmt.Errorf("failed to release event %s: %w", key, err)
	}
	return nil
}

// Extend moves the expiry of an existing claim to ttl from now.
func (s *ProcessedEventStore) Extend(ctx context.Context, key string, ttl time.Duration) error {
	_, err := s.db.Exec(ctx,
		"UPDATE processed_events SET expires_at = NOW() + make_interval(secs => $2) WHERE event_id = $1",
		key, ttl.Seconds())
	if err != nil {
		return fmt.Errorf("failed to extend event %s: %w", key, err)
	}
	return nil
}

// Purge deletes claims that expired before now.
func (s *ProcessedEventStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, "DELETE FROM processed_events WHERE expires_at < $1", now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge processed events: %w", err)
	}
	return tag.RowsAffected(), nil
}
