package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/failwatch/failwatch/pkg/models"
)

// FileLedger keeps the full entry set in memory and flushes the JSON file
// after every Record. If the file is missing, unreadable, or corrupt at
// construction the ledger starts empty: availability over strict history.
type FileLedger struct {
	mu      sync.Mutex
	path    string
	entries []models.SuppressionEntry
}

// NewFileLedger loads the ledger file at path, creating parent directories
// as needed. Load failures are logged and produce an empty ledger.
func NewFileLedger(path string) (*FileLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create ledger dir: %v", ErrPersistence, err)
	}

	l := &FileLedger{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		slog.Warn("ledger file unreadable, starting empty", "path", path, "error", err)
		return l, nil
	}
	if err := json.Unmarshal(data, &l.entries); err != nil {
		slog.Warn("ledger file corrupt, starting empty", "path", path, "error", err)
		l.entries = nil
		return l, nil
	}

	slog.Info("ledger loaded", "path", path, "entries", len(l.entries))
	return l, nil
}

func (l *FileLedger) IsThrottled(_ context.Context, fingerprint string, now time.Time, window time.Duration) (bool, *models.SuppressionEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	latest := l.latestLocked(fingerprint)
	if latest == nil {
		return false, nil, nil
	}
	entry := *latest
	return now.Sub(entry.SentAt) < window, &entry, nil
}

func (l *FileLedger) Record(_ context.Context, entry models.SuppressionEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if err := l.flushLocked(); err != nil {
		// Roll back the in-memory append so memory matches disk.
		l.entries = l.entries[:len(l.entries)-1]
		return err
	}
	return nil
}

func (l *FileLedger) List(_ context.Context, limit int) ([]models.SuppressionEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit = normalizeLimit(limit)

	out := make([]models.SuppressionEntry, len(l.entries))
	copy(out, l.entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SentAt.After(out[j].SentAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *FileLedger) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	return l.flushLocked()
}

// latestLocked returns the entry with the newest SentAt for fingerprint.
// Only that entry governs throttling; older ones are audit history.
func (l *FileLedger) latestLocked(fingerprint string) *models.SuppressionEntry {
	var latest *models.SuppressionEntry
	for i := range l.entries {
		e := &l.entries[i]
		if e.Fingerprint != fingerprint {
			continue
		}
		if latest == nil || e.SentAt.After(latest.SentAt) {
			latest = e
		}
	}
	return latest
}

// flushLocked writes the full entry set via temp file + rename so a crash
// mid-write never leaves a truncated ledger.
func (l *FileLedger) flushLocked() error {
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal entries: %v", ErrPersistence, err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrPersistence, tmp, err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("%w: rename %s: %v", ErrPersistence, l.path, err)
	}
	return nil
}

var _ Ledger = (*FileLedger)(nil)
