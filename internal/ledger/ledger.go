// Package ledger persists the history of successfully sent notifications
// and answers throttling decisions against it.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/failwatch/failwatch/pkg/models"
)

// ErrPersistence wraps any failure to read or write the backing store.
// Callers must never treat a persistence failure as "not throttled".
var ErrPersistence = errors.New("ledger persistence failure")

// Ledger is the suppression store interface. All implementations must be
// safe for concurrent use.
type Ledger interface {
	// IsThrottled reports whether the most recent entry for fingerprint is
	// still inside the window: now.Sub(SentAt) < window. Exactly window
	// elapsed is not throttled. The most recent matching entry is returned
	// for caller diagnostics whenever one exists, throttled or not.
	IsThrottled(ctx context.Context, fingerprint string, now time.Time, window time.Duration) (bool, *models.SuppressionEntry, error)

	// Record appends an entry. The entry is durable before Record returns;
	// an error means the caller must not assume the entry was kept.
	Record(ctx context.Context, entry models.SuppressionEntry) error

	// List returns up to limit entries, most recent first.
	List(ctx context.Context, limit int) ([]models.SuppressionEntry, error)

	// Clear removes all entries unconditionally.
	Clear(ctx context.Context) error
}

const DefaultListLimit = 20

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > 100 {
		return 100
	}
	return limit
}
