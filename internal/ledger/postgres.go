package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/failwatch/failwatch/pkg/models"
)

// PostgresLedger implements Ledger on a suppression_entries table.
// Every Record is a committed insert, so deduplication state survives
// process restarts without any load step.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func (l *PostgresLedger) IsThrottled(ctx context.Context, fingerprint string, now time.Time, window time.Duration) (bool, *models.SuppressionEntry, error) {
	var e models.SuppressionEntry
	err := l.pool.QueryRow(ctx,
		`SELECT id, fingerprint, job_name, server_name, failed_at, sent_to, sent_at
		 FROM suppression_entries WHERE fingerprint = $1
		 ORDER BY sent_at DESC LIMIT 1`, fingerprint,
	).Scan(&e.ID, &e.Fingerprint, &e.JobName, &e.ServerName, &e.FailedAt, &e.SentTo, &e.SentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("%w: query latest entry: %v", ErrPersistence, err)
	}
	return now.Sub(e.SentAt) < window, &e, nil
}

func (l *PostgresLedger) Record(ctx context.Context, entry models.SuppressionEntry) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO suppression_entries (id, fingerprint, job_name, server_name, failed_at, sent_to, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.Fingerprint, entry.JobName, entry.ServerName,
		entry.FailedAt, entry.SentTo, entry.SentAt)
	if err != nil {
		return fmt.Errorf("%w: insert entry: %v", ErrPersistence, err)
	}
	return nil
}

func (l *PostgresLedger) List(ctx context.Context, limit int) ([]models.SuppressionEntry, error) {
	limit = normalizeLimit(limit)

	rows, err := l.pool.Query(ctx,
		`SELECT id, fingerprint, job_name, server_name, failed_at, sent_to, sent_at
		 FROM suppression_entries ORDER BY sent_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list entries: %v", ErrPersistence, err)
	}
	defer rows.Close()

	entries := []models.SuppressionEntry{}
	for rows.Next() {
		var e models.SuppressionEntry
		if err := rows.Scan(&e.ID, &e.Fingerprint, &e.JobName, &e.ServerName,
			&e.FailedAt, &e.SentTo, &e.SentAt); err != nil {
			return nil, fmt.Errorf("%w: scan entry: %v", ErrPersistence, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate entries: %v", ErrPersistence, err)
	}
	return entries, nil
}

func (l *PostgresLedger) Clear(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, `DELETE FROM suppression_entries`); err != nil {
		return fmt.Errorf("%w: clear entries: %v", ErrPersistence, err)
	}
	return nil
}

var _ Ledger = (*PostgresLedger)(nil)
