package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/failwatch/failwatch/pkg/models"
)

// PostgresSource reads failures from a Postgres table with the columns
// job_name, server_name, failed_at, failure_message, email_id, alt_email_id.
type PostgresSource struct {
	pool  *pgxpool.Pool
	table string
}

func NewPostgresSource(pool *pgxpool.Pool, table string) *PostgresSource {
	return &PostgresSource{pool: pool, table: table}
}

// Ping checks source database connectivity.
func (s *PostgresSource) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresSource) FetchLatest(ctx context.Context) (*models.FailureRecord, error) {
	// Table name comes from config, not request input; it cannot be a
	// placeholder parameter so it is quoted as an identifier.
	query := fmt.Sprintf(
		`SELECT job_name, server_name, failed_at, failure_message,
		        COALESCE(email_id, ''), COALESCE(alt_email_id, '')
		 FROM %s ORDER BY failed_at DESC LIMIT 1`,
		pgx.Identifier{s.table}.Sanitize())

	var rec models.FailureRecord
	err := s.pool.QueryRow(ctx, query).Scan(
		&rec.JobName, &rec.ServerName, &rec.FailedAt, &rec.FailureMessage,
		&rec.Recipient, &rec.AltRecipient)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoFailures
	}
	if err != nil {
		return nil, fmt.Errorf("fetch latest failure: %w", err)
	}
	return &rec, nil
}

var _ Source = (*PostgresSource)(nil)
