// Package store handles all database and cache interactions.
//
// postgres.go -- pgxpool connection setup and identity queries.
// Creates a connection pool at startup, shared across all handlers.
// All queries use parameterized statements (no string concatenation).
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists identities seen at login.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates and pings a connection pool.
// Call once at startup from main.go; the returned store is safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool}, nil
}

// Close shuts down the connection pool and releases all resources.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// CheckHealth pings Postgres.
func (s *PostgresStore) CheckHealth(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RecordLogin upserts the identity keyed by (provider, subject).
// Replays of the same event id are no-ops, so a redelivered queue item
// doesn't inflate login_count.
func (s *PostgresStore) RecordLogin(ctx context.Context, ev LoginEvent) error {
	if ev.Provider == "" || ev.Subject == "" {
		return ErrIncompleteEvent
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO identities (
			provider, subject, email, email_verified, name, namespace,
			is_admin, last_platform, last_event_id, first_seen_at, last_seen_at
		) VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $10)
		ON CONFLICT (provider, subject) DO UPDATE SET
			email          = COALESCE(EXCLUDED.email, identities.email),
			email_verified = EXCLUDED.email_verified OR (EXCLUDED.email IS NULL AND identities.email_verified),
			name           = COALESCE(EXCLUDED.name, identities.name),
			namespace      = EXCLUDED.namespace,
			is_admin       = EXCLUDED.is_admin,
			last_platform  = EXCLUDED.last_platform,
			last_event_id  = EXCLUDED.last_event_id,
			login_count    = identities.login_count + 1,
			last_seen_at   = GREATEST(identities.last_seen_at, EXCLUDED.last_seen_at)
		WHERE identities.last_event_id <> EXCLUDED.last_event_id
	`, ev.Provider, ev.Subject, ev.Email, ev.EmailVerified, ev.Name, ev.Namespace,
		ev.IsAdmin, ev.Platform, ev.ID, ev.At)
	if err != nil {
		return fmt.Errorf("upserting identity: %w", err)
	}
	return nil
}

// GetIdentity fetches one identity. Returns ErrIdentityNotFound if absent.
func (s *PostgresStore) GetIdentity(ctx context.Context, provider, subject string) (*Identity, error) {
	var id Identity
	err := s.pool.QueryRow(ctx, `
		SELECT provider, subject, email, email_verified, name, namespace, is_admin,
			last_platform, login_count, last_event_id, first_seen_at, last_seen_at
		FROM identities WHERE provider = $1 AND subject = $2
	`, provider, subject).Scan(
		&id.Provider, &id.Subject, &id.Email, &id.EmailVerified, &id.Name, &id.Namespace, &id.IsAdmin,
		&id.LastPlatform, &id.LoginCount, &id.LastEventID, &id.FirstSeenAt, &id.LastSeenAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching identity: %w", err)
	}
	return &id, nil
}
