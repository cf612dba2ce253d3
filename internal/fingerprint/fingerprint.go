// Package fingerprint derives the stable content hash that identifies
// "the same failure" for deduplication.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/failwatch/failwatch/pkg/models"
)

// fieldSep joins identity fields before hashing. A non-printable separator
// keeps "ab"+"c" and "a"+"bc" from colliding.
const fieldSep = "\x1f"

// Compute returns the SHA-256 hex fingerprint of a failure record.
//
// The hash covers exactly (JobName, ServerName, FailedAt, FailureMessage),
// in that order, with FailedAt rendered as RFC 3339 with nanoseconds in UTC.
// Recipient fields are deliberately excluded: the address may change without
// changing what counts as the same failure. Any record, including one with
// empty fields, produces a valid fingerprint.
func Compute(rec models.FailureRecord) string {
	payload := rec.JobName + fieldSep +
		rec.ServerName + fieldSep +
		rec.FailedAt.UTC().Format(time.RFC3339Nano) + fieldSep +
		rec.FailureMessage
	hash := sha256.Sum256([]byte(payload))
	return fmt.Sprintf("%x", hash)
}
