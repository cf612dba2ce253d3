package ledger_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/failwatch/failwatch/internal/ledger"
	"github.com/failwatch/failwatch/internal/store"
	"github.com/failwatch/failwatch/pkg/models"
)

func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("failwatch_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func pgEntry(fingerprint string, sentAt time.Time) models.SuppressionEntry {
	return models.SuppressionEntry{
		ID:          uuid.New(),
		Fingerprint: fingerprint,
		JobName:     "NightlyETL",
		ServerName:  "SQLPROD01",
		FailedAt:    sentAt.Add(-10 * time.Minute),
		SentTo:      "dba-team@example.com",
		SentAt:      sentAt,
	}
}

func TestPostgresLedger_ThrottleLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	led := ledger.NewPostgresLedger(pool)
	ctx := context.Background()

	sentAt := time.Now().UTC().Truncate(time.Microsecond)
	window := 24 * time.Hour

	throttled, prior, err := led.IsThrottled(ctx, "fp-1", sentAt, window)
	require.NoError(t, err)
	assert.False(t, throttled)
	assert.Nil(t, prior)

	require.NoError(t, led.Record(ctx, pgEntry("fp-1", sentAt)))

	throttled, prior, err = led.IsThrottled(ctx, "fp-1", sentAt.Add(time.Hour), window)
	require.NoError(t, err)
	assert.True(t, throttled)
	require.NotNil(t, prior)
	assert.True(t, prior.SentAt.Equal(sentAt))
	assert.Equal(t, "dba-team@example.com", prior.SentTo)

	// Exactly window-old entries no longer throttle.
	throttled, _, err = led.IsThrottled(ctx, "fp-1", sentAt.Add(window), window)
	require.NoError(t, err)
	assert.False(t, throttled)
}

func TestPostgresLedger_MostRecentEntryGoverns(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	led := ledger.NewPostgresLedger(pool)
	ctx := context.Background()

	old := time.Now().UTC().Add(-30 * time.Hour).Truncate(time.Microsecond)
	recent := old.Add(28 * time.Hour)
	require.NoError(t, led.Record(ctx, pgEntry("fp-1", old)))
	require.NoError(t, led.Record(ctx, pgEntry("fp-1", recent)))

	throttled, prior, err := led.IsThrottled(ctx, "fp-1", recent.Add(time.Hour), 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, throttled)
	require.NotNil(t, prior)
	assert.True(t, prior.SentAt.Equal(recent))
}

func TestPostgresLedger_ListAndClear(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	led := ledger.NewPostgresLedger(pool)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, led.Record(ctx, pgEntry("fp-"+uuid.NewString()[:6], base.Add(time.Duration(i)*time.Minute))))
	}

	entries, err := led.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].SentAt.After(entries[1].SentAt))
	assert.True(t, entries[1].SentAt.After(entries[2].SentAt))

	require.NoError(t, led.Clear(ctx))

	entries, err = led.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
