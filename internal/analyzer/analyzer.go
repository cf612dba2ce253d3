// Package analyzer produces LLM analyses of job failures. All providers
// implement the Provider interface; never call a specific provider
// directly — always inject the interface.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/failwatch/failwatch/pkg/models"
)

// Sentinel errors for analyzer failures.
var (
	ErrProviderUnavailable = errors.New("analyzer provider unavailable")
	ErrInferenceTimeout    = errors.New("analyzer inference timeout")
	ErrInvalidResponse     = errors.New("analyzer provider returned invalid response")
)

// Provider generates free-text failure analysis.
type Provider interface {
	// Analyze returns the analysis text for a failure record. The text is
	// structured-ish free text; callers do not parse it beyond formatting.
	Analyze(ctx context.Context, rec models.FailureRecord) (string, error)
	// Name returns the provider identifier (e.g., "gemini", "anthropic").
	Name() string
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
