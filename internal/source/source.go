// Package source reads the most recent job failure from the monitored
// database and resolves the notification recipient.
package source

import (
	"context"
	"errors"

	"github.com/failwatch/failwatch/pkg/models"
)

// ErrNoFailures means the failures table is empty. It is a legitimate
// empty result, not an error condition for callers to alarm on.
var ErrNoFailures = errors.New("no job failures found")

// Source fetches the latest failure record.
type Source interface {
	FetchLatest(ctx context.Context) (*models.FailureRecord, error)
}

// ResolveRecipient applies the recipient precedence: the record's explicit
// address, then its secondary address column, then the configured default.
// First non-empty value wins.
func ResolveRecipient(rec models.FailureRecord, defaultRecipient string) string {
	if rec.Recipient != "" {
		return rec.Recipient
	}
	if rec.AltRecipient != "" {
		return rec.AltRecipient
	}
	return defaultRecipient
}
