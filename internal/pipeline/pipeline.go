// Package pipeline orchestrates the failure notification sequence:
// fingerprint, throttle check, analysis, formatting, dispatch, commit.
// It owns the cross-stage failure policy and the per-fingerprint
// at-most-one-delivery-per-window guarantee.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/failwatch/failwatch/internal/fingerprint"
	"github.com/failwatch/failwatch/internal/ledger"
	"github.com/failwatch/failwatch/pkg/models"
)

// Stage identifies where a failed invocation stopped.
type Stage string

const (
	StageThrottleCheck Stage = "throttle_check"
	StageAnalysis      Stage = "analysis"
	StageFormatting    Stage = "formatting"
	StageDispatch      Stage = "dispatch"
)

// Status is the terminal state of one Process invocation.
type Status string

const (
	// StatusSuppressed: a notification for this fingerprint was already
	// sent inside the throttle window; no external calls were made.
	StatusSuppressed Status = "suppressed"
	// StatusFailed: a stage failed; the ledger was not mutated.
	StatusFailed Status = "failed"
	// StatusCommitted: the notification was delivered. Warning is set when
	// delivery succeeded but recording the suppression entry did not.
	StatusCommitted Status = "committed"
)

// Outcome is the tagged result of Process. Exactly the fields implied by
// Status are populated; callers never need to re-derive pipeline state.
type Outcome struct {
	Status      Status
	Fingerprint string

	// Suppressed
	LastSentAt time.Time
	LastSentTo string

	// Failed
	Stage Stage
	Err   error

	// Committed
	Entry   *models.SuppressionEntry
	Warning error
}

// Analyzer produces free-text analysis for a failure record.
type Analyzer interface {
	Analyze(ctx context.Context, rec models.FailureRecord) (string, error)
	Name() string
}

// Formatter renders analysis text into deliverable message bodies.
type Formatter interface {
	Format(analysis string, rec models.FailureRecord) (htmlBody, plainBody string, err error)
}

// Dispatcher transmits a rendered message.
type Dispatcher interface {
	Send(ctx context.Context, recipient, subject, htmlBody, plainBody string) error
}

// Options control a single Process invocation.
type Options struct {
	// ForceBypassThrottle skips the throttle rejection only; a forced send
	// still records its entry, so the next unforced duplicate is suppressed.
	ForceBypassThrottle bool
}

const (
	DefaultWindow          = 24 * time.Hour
	DefaultAnalysisTimeout = 60 * time.Second
	DefaultDispatchTimeout = 30 * time.Second
)

// Config wires a Pipeline. Ledger, Analyzer, Formatter, and Dispatcher are
// required; zero durations take the package defaults.
type Config struct {
	Ledger     ledger.Ledger
	Analyzer   Analyzer
	Formatter  Formatter
	Dispatcher Dispatcher

	Window          time.Duration
	AnalysisTimeout time.Duration
	DispatchTimeout time.Duration

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Pipeline is the orchestrator. Safe for concurrent use; invocations for
// the same fingerprint are serialized, distinct fingerprints proceed
// independently.
type Pipeline struct {
	ledger     ledger.Ledger
	analyzer   Analyzer
	formatter  Formatter
	dispatcher Dispatcher

	window          time.Duration
	analysisTimeout time.Duration
	dispatchTimeout time.Duration
	now             func() time.Time

	locks *keyedMutex
}

func New(cfg Config) *Pipeline {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = DefaultAnalysisTimeout
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		ledger:          cfg.Ledger,
		analyzer:        cfg.Analyzer,
		formatter:       cfg.Formatter,
		dispatcher:      cfg.Dispatcher,
		window:          cfg.Window,
		analysisTimeout: cfg.AnalysisTimeout,
		dispatchTimeout: cfg.DispatchTimeout,
		now:             cfg.Now,
		locks:           newKeyedMutex(),
	}
}

// Window returns the configured throttle window.
func (p *Pipeline) Window() time.Duration { return p.window }

// Process runs one record through the full sequence and returns its
// terminal outcome. The per-fingerprint lock is held from the throttle
// check through the ledger commit, so concurrent duplicates serialize:
// the first one through commits, the rest observe its fresh entry and
// report Suppressed.
func (p *Pipeline) Process(ctx context.Context, rec models.FailureRecord, opts Options) Outcome {
	fp := fingerprint.Compute(rec)

	unlock := p.locks.lock(fp)
	defer unlock()

	if !opts.ForceBypassThrottle {
		throttled, prior, err := p.ledger.IsThrottled(ctx, fp, p.now(), p.window)
		if err != nil {
			// Never guess: an unreadable ledger could hide a recent send.
			return Outcome{
				Status:      StatusFailed,
				Fingerprint: fp,
				Stage:       StageThrottleCheck,
				Err:         err,
			}
		}
		if throttled {
			slog.Info("notification suppressed",
				"job", rec.JobName, "fingerprint", fp,
				"last_sent_at", prior.SentAt, "last_sent_to", prior.SentTo)
			return Outcome{
				Status:      StatusSuppressed,
				Fingerprint: fp,
				LastSentAt:  prior.SentAt,
				LastSentTo:  prior.SentTo,
			}
		}
	}

	analysisCtx, cancelAnalysis := context.WithTimeout(ctx, p.analysisTimeout)
	analysis, err := p.analyzer.Analyze(analysisCtx, rec)
	cancelAnalysis()
	if err != nil {
		return p.failed(fp, StageAnalysis, err)
	}

	htmlBody, plainBody, err := p.formatter.Format(analysis, rec)
	if err != nil {
		return p.failed(fp, StageFormatting, err)
	}

	subject := Subject(rec)
	dispatchCtx, cancelDispatch := context.WithTimeout(ctx, p.dispatchTimeout)
	err = p.dispatcher.Send(dispatchCtx, rec.Recipient, subject, htmlBody, plainBody)
	cancelDispatch()
	if err != nil {
		return p.failed(fp, StageDispatch, err)
	}

	entry := models.SuppressionEntry{
		ID:          uuid.New(),
		Fingerprint: fp,
		JobName:     rec.JobName,
		ServerName:  rec.ServerName,
		FailedAt:    rec.FailedAt,
		SentTo:      rec.Recipient,
		SentAt:      p.now(),
	}

	outcome := Outcome{
		Status:      StatusCommitted,
		Fingerprint: fp,
		Entry:       &entry,
	}
	if err := p.ledger.Record(ctx, entry); err != nil {
		// The message is already delivered; surface stale-dedup risk
		// without reporting the send itself as failed.
		slog.Error("suppression entry not recorded, dedup state may be stale",
			"fingerprint", fp, "error", err)
		outcome.Warning = err
	}

	slog.Info("notification sent",
		"job", rec.JobName, "server", rec.ServerName,
		"recipient", rec.Recipient, "fingerprint", fp,
		"forced", opts.ForceBypassThrottle)
	return outcome
}

// Subject builds the notification subject line for a failure record.
func Subject(rec models.FailureRecord) string {
	job := rec.JobName
	if job == "" {
		job = "Unknown Job"
	}
	return fmt.Sprintf("[URGENT] SQL Job Failure: %s", job)
}

func (p *Pipeline) failed(fp string, stage Stage, err error) Outcome {
	slog.Error("pipeline stage failed", "stage", string(stage), "fingerprint", fp, "error", err)
	return Outcome{
		Status:      StatusFailed,
		Fingerprint: fp,
		Stage:       stage,
		Err:         err,
	}
}
