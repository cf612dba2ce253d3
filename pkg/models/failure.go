// Package models contains shared data models used across the failwatch codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// FailureRecord is an immutable snapshot of one observed job failure.
// FailedAt is part of the failure's identity and must never be mutated
// after the record is read from the source.
type FailureRecord struct {
	JobName        string    `json:"job_name"`
	ServerName     string    `json:"server_name"`
	FailedAt       time.Time `json:"failed_at"`
	FailureMessage string    `json:"failure_message"`

	// Recipient is the per-record notification address, AltRecipient the
	// secondary column some source schemas carry instead. Resolution order
	// is Recipient, then AltRecipient, then the configured default.
	Recipient    string `json:"recipient,omitempty"`
	AltRecipient string `json:"alt_recipient,omitempty"`
}

// SuppressionEntry records one confirmed notification delivery.
// Entries are append-only; only the most recent SentAt for a fingerprint
// governs throttling, older rows are audit history.
type SuppressionEntry struct {
	ID          uuid.UUID `db:"id"          json:"id"`
	Fingerprint string    `db:"fingerprint" json:"fingerprint"`
	JobName     string    `db:"job_name"    json:"job_name"`
	ServerName  string    `db:"server_name" json:"server_name"`
	FailedAt    time.Time `db:"failed_at"   json:"failed_at"`
	SentTo      string    `db:"sent_to"     json:"sent_to"`
	SentAt      time.Time `db:"sent_at"     json:"sent_at"`
}
