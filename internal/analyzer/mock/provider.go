// Package mock provides analyzer test doubles.
package mock

import (
	"context"

	"github.com/failwatch/failwatch/internal/analyzer"
	"github.com/failwatch/failwatch/pkg/models"
)

// Provider satisfies analyzer.Provider for testing.
type Provider struct {
	Name_       string
	AnalyzeFunc func(ctx context.Context, rec models.FailureRecord) (string, error)
}

func (m *Provider) Name() string { return m.Name_ }

func (m *Provider) Analyze(ctx context.Context, rec models.FailureRecord) (string, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, rec)
	}
	return "", nil
}

// NewProvider returns a Provider with a canned structured analysis.
func NewProvider() *Provider {
	return &Provider{
		Name_: "mock",
		AnalyzeFunc: func(_ context.Context, rec models.FailureRecord) (string, error) {
			return "SUMMARY\nThe job " + rec.JobName + " failed due to a simulated error.\n\n" +
				"URGENCY: MEDIUM\nReview at the next opportunity.\n\n" +
				"SOLUTION STEPS\n\nStep 1: Re-run the job.\n\n" +
				"PREVENTIVE MEASURES\nAdd retries.", nil
		},
	}
}

// NewFailingProvider returns a Provider that always returns the given error.
func NewFailingProvider(err error) *Provider {
	return &Provider{
		Name_: "mock-failing",
		AnalyzeFunc: func(_ context.Context, _ models.FailureRecord) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a Provider that blocks until context is cancelled.
func NewTimeoutProvider() *Provider {
	return &Provider{
		Name_: "mock-timeout",
		AnalyzeFunc: func(ctx context.Context, _ models.FailureRecord) (string, error) {
			<-ctx.Done()
			return "", analyzer.ErrInferenceTimeout
		},
	}
}

// Compile-time check that Provider implements analyzer.Provider.
var _ analyzer.Provider = (*Provider)(nil)
