package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/failwatch/failwatch/internal/analyzer"
	"github.com/failwatch/failwatch/internal/api/response"
	"github.com/failwatch/failwatch/internal/pipeline"
	"github.com/failwatch/failwatch/internal/source"
	"github.com/failwatch/failwatch/pkg/models"
)

// Notifier defines the interface the handler depends on.
type Notifier interface {
	NotifyLatest(ctx context.Context, force bool) (pipeline.Outcome, *models.FailureRecord, error)
}

// NewNotifyHandler returns an http.HandlerFunc for POST /api/v1/analyze-latest.
func NewNotifyHandler(svc Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Force bool `json:"force"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		outcome, rec, err := svc.NotifyLatest(r.Context(), req.Force)
		if err != nil {
			if errors.Is(err, source.ErrNoFailures) {
				response.JSON(w, notifyResponse{Status: "no_failures", Message: "No failure records found"})
				return
			}
			response.Error(w, http.StatusInternalServerError, "SOURCE_UNAVAILABLE",
				"Could not read the failure archive", nil)
			return
		}

		switch outcome.Status {
		case pipeline.StatusSuppressed:
			response.JSON(w, notifyResponse{
				Status:     "throttled",
				Message:    "An identical failure was already reported within the throttle window",
				JobName:    rec.JobName,
				ServerName: rec.ServerName,
				LastSentAt: formatTime(outcome.LastSentAt),
				LastSentTo: outcome.LastSentTo,
			})
		case pipeline.StatusFailed:
			writeStageError(w, outcome)
		case pipeline.StatusCommitted:
			resp := notifyResponse{
				Status:     "sent",
				Message:    "Failure analyzed and notification sent",
				JobName:    rec.JobName,
				ServerName: rec.ServerName,
				FailedAt:   formatTime(rec.FailedAt),
				SentTo:     outcome.Entry.SentTo,
				SentAt:     formatTime(outcome.Entry.SentAt),
			}
			if outcome.Warning != nil {
				resp.Warning = "Notification was sent but could not be recorded; a duplicate may be sent later"
			}
			response.JSON(w, resp)
		default:
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
		}
	}
}

func writeStageError(w http.ResponseWriter, outcome pipeline.Outcome) {
	switch outcome.Stage {
	case pipeline.StageThrottleCheck:
		response.Error(w, http.StatusInternalServerError, "LEDGER_UNAVAILABLE",
			"Could not consult the suppression ledger", nil)
	case pipeline.StageAnalysis:
		switch {
		case errors.Is(outcome.Err, analyzer.ErrInferenceTimeout):
			response.Error(w, http.StatusGatewayTimeout, "AI_INFERENCE_TIMEOUT",
				"AI analysis took too long and was cancelled", nil)
		case errors.Is(outcome.Err, analyzer.ErrInvalidResponse):
			response.Error(w, http.StatusBadGateway, "AI_INVALID_RESPONSE",
				"The AI provider returned an unusable response", nil)
		default:
			response.Error(w, http.StatusBadGateway, "AI_PROVIDER_UNAVAILABLE",
				"The AI provider is not available", nil)
		}
	case pipeline.StageFormatting:
		response.Error(w, http.StatusInternalServerError, "FORMAT_FAILED",
			"Could not render the notification email", nil)
	case pipeline.StageDispatch:
		response.Error(w, http.StatusBadGateway, "DISPATCH_FAILED",
			"The notification email could not be delivered", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

type notifyResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	JobName    string `json:"job_name,omitempty"`
	ServerName string `json:"server_name,omitempty"`
	FailedAt   string `json:"failed_at,omitempty"`
	SentTo     string `json:"sent_to,omitempty"`
	SentAt     string `json:"sent_at,omitempty"`
	LastSentAt string `json:"last_sent_at,omitempty"`
	LastSentTo string `json:"last_sent_to,omitempty"`
	Warning    string `json:"warning,omitempty"`
}
