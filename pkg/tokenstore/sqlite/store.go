// Package sqlite is a persistent tokenstore.Store backed by SQLite, so paid
// credentials survive restarts and can be shared by processes on one host.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/l402/pkg/models"
	"github.com/pario-ai/l402/pkg/tokenstore"
)

// Store implements tokenstore.Store on a SQLite table.
type Store struct {
	db     *sql.DB
	hits   atomic.Int64
	misses atomic.Int64
}

var _ tokenstore.Store = (*Store)(nil)

const createTokensTable = `
CREATE TABLE IF NOT EXISTS l402_tokens (
	resource TEXT PRIMARY KEY,
	auth_header TEXT NOT NULL,
	paid_at DATETIME NOT NULL,
	expires_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_tokens_expires ON l402_tokens(expires_at);
`

// New opens (or creates) the token database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open token db: %w", err)
	}

	if _, err := db.Exec(createTokensTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate token db: %w", err)
	}

	return &Store{db: db}, nil
}

// Get implements tokenstore.Store.
func (s *Store) Get(ctx context.Context, resource string) (*models.Credential, error) {
	var cred models.Credential
	var expiresAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT auth_header, paid_at, expires_at FROM l402_tokens WHERE resource = ?`,
		tokenstore.NormalizeURL(resource),
	).Scan(&cred.Authorization, &cred.PaidAt, &expiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		s.misses.Add(1)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("token get: %w", err)
	}

	if expiresAt.Valid {
		exp := expiresAt.Time
		cred.ExpiresAt = &exp
	}
	s.hits.Add(1)
	return &cred, nil
}

// Set implements tokenstore.Store.
func (s *Store) Set(ctx context.Context, resource string, cred models.Credential) error {
	var expiresAt sql.NullTime
	if cred.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: cred.ExpiresAt.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO l402_tokens (resource, auth_header, paid_at, expires_at)
		 VALUES (?, ?, ?, ?)`,
		tokenstore.NormalizeURL(resource), cred.Authorization, cred.PaidAt.UTC(), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("token set: %w", err)
	}
	return nil
}

// Delete implements tokenstore.Store.
func (s *Store) Delete(ctx context.Context, resource string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM l402_tokens WHERE resource = ?`, tokenstore.NormalizeURL(resource))
	if err != nil {
		return fmt.Errorf("token delete: %w", err)
	}
	return nil
}

// Stats returns entry count and the lookup counters of this process.
func (s *Store) Stats() (models.TokenStats, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM l402_tokens`).Scan(&count)
	if err != nil {
		return models.TokenStats{}, fmt.Errorf("token stats: %w", err)
	}
	return models.TokenStats{
		Entries: count,
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
	}, nil
}

// Clear removes credentials. If expiredOnly is true, only credentials whose
// expiry has passed are removed.
func (s *Store) Clear(expiredOnly bool) (int64, error) {
	var res sql.Result
	var err error
	if expiredOnly {
		res, err = s.db.Exec(
			`DELETE FROM l402_tokens WHERE expires_at IS NOT NULL AND expires_at <= ?`, time.Now().UTC())
	} else {
		res, err = s.db.Exec(`DELETE FROM l402_tokens`)
	}
	if err != nil {
		return 0, fmt.Errorf("token clear: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
