// Package ledger keeps a SQLite record of settled L402 payments.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/l402/pkg/models"
)

// Ledger records and queries settled payments.
type Ledger interface {
	// Record stores a payment. An empty ID is assigned a fresh UUID.
	Record(ctx context.Context, rec models.PaymentRecord) error
	// List returns payments since a given time, newest first.
	List(ctx context.Context, since time.Time) ([]models.PaymentRecord, error)
	// TotalSince returns the sats paid since a given time.
	TotalSince(ctx context.Context, since time.Time) (int64, error)
	// Summary returns per-resource aggregates, optionally filtered by resource.
	Summary(ctx context.Context, resource string) ([]models.PaymentSummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteLedger implements Ledger with a SQLite database.
type SQLiteLedger struct {
	db  *sql.DB
	now func() time.Time
}

var _ Ledger = (*SQLiteLedger)(nil)

const createPaymentsTable = `
CREATE TABLE IF NOT EXISTS l402_payments (
	id TEXT PRIMARY KEY,
	resource TEXT NOT NULL,
	price INTEGER NOT NULL,
	token_hash TEXT NOT NULL DEFAULT '',
	paid_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_payments_time ON l402_payments(paid_at);
CREATE INDEX IF NOT EXISTS idx_payments_resource ON l402_payments(resource, paid_at);
`

// New creates a SQLiteLedger and runs auto-migration.
func New(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if _, err := db.Exec(createPaymentsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}

	return &SQLiteLedger{db: db, now: time.Now}, nil
}

// Record stores a payment record.
func (l *SQLiteLedger) Record(ctx context.Context, rec models.PaymentRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.PaidAt.IsZero() {
		rec.PaidAt = l.now()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO l402_payments (id, resource, price, token_hash, paid_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Resource, rec.Price, rec.TokenHash, rec.PaidAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	return nil
}

// List returns payments since a given time, newest first.
func (l *SQLiteLedger) List(ctx context.Context, since time.Time) ([]models.PaymentRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, resource, price, token_hash, paid_at
		 FROM l402_payments WHERE paid_at >= ? ORDER BY paid_at DESC`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var records []models.PaymentRecord
	for rows.Next() {
		var r models.PaymentRecord
		if err := rows.Scan(&r.ID, &r.Resource, &r.Price, &r.TokenHash, &r.PaidAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// TotalSince returns the sats paid since a given time.
func (l *SQLiteLedger) TotalSince(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(price), 0) FROM l402_payments WHERE paid_at >= ?`,
		since.UTC(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total payments: %w", err)
	}
	return total, nil
}

// Summary returns payments aggregated per resource.
func (l *SQLiteLedger) Summary(ctx context.Context, resource string) ([]models.PaymentSummary, error) {
	query := `SELECT resource, COUNT(*), SUM(price), MAX(paid_at) FROM l402_payments`
	var args []any
	if resource != "" {
		query += ` WHERE resource = ?`
		args = append(args, resource)
	}
	query += ` GROUP BY resource ORDER BY resource`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.PaymentSummary
	for rows.Next() {
		var s models.PaymentSummary
		// MAX() loses the column type, so the driver hands back text.
		var last string
		if err := rows.Scan(&s.Resource, &s.PaymentCount, &s.TotalPaid, &last); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.LastPaidAt = parseTime(last)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Prune deletes payments made before the cutoff and returns how many went.
func (l *SQLiteLedger) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM l402_payments WHERE paid_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune payments: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
