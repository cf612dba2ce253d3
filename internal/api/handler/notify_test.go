package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/failwatch/failwatch/internal/analyzer"
	"github.com/failwatch/failwatch/internal/ledger"
	"github.com/failwatch/failwatch/internal/mailer"
	"github.com/failwatch/failwatch/internal/pipeline"
	"github.com/failwatch/failwatch/internal/source"
	"github.com/failwatch/failwatch/pkg/models"
)

type mockNotifier struct {
	fn func(ctx context.Context, force bool) (pipeline.Outcome, *models.FailureRecord, error)
}

func (m *mockNotifier) NotifyLatest(ctx context.Context, force bool) (pipeline.Outcome, *models.FailureRecord, error) {
	return m.fn(ctx, force)
}

func notifyRecord() *models.FailureRecord {
	return &models.FailureRecord{
		JobName:        "NightlyETL",
		ServerName:     "SQLPROD01",
		FailedAt:       time.Date(2025, 6, 1, 2, 30, 0, 0, time.UTC),
		FailureMessage: "Unable to determine if the owner has server access.",
		Recipient:      "dba-team@example.com",
	}
}

func committedOutcome() pipeline.Outcome {
	return pipeline.Outcome{
		Status:      pipeline.StatusCommitted,
		Fingerprint: "fp-abc",
		Entry: &models.SuppressionEntry{
			ID:          uuid.New(),
			Fingerprint: "fp-abc",
			JobName:     "NightlyETL",
			ServerName:  "SQLPROD01",
			SentTo:      "dba-team@example.com",
			SentAt:      time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC),
		},
	}
}

func notifyReq(t *testing.T, body string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/analyze-latest", bytes.NewReader([]byte(body)))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func parseData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Data
}

func parseErr(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error.Code
}

func TestNotifyHandler_Sent(t *testing.T) {
	h := NewNotifyHandler(&mockNotifier{fn: func(_ context.Context, force bool) (pipeline.Outcome, *models.FailureRecord, error) {
		assert.False(t, force)
		return committedOutcome(), notifyRecord(), nil
	}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, notifyReq(t, `{}`))

	require.Equal(t, http.StatusOK, rec.Code)
	data := parseData(t, rec)
	assert.Equal(t, "sent", data["status"])
	assert.Equal(t, "NightlyETL", data["job_name"])
	assert.Equal(t, "dba-team@example.com", data["sent_to"])
	assert.Equal(t, "2025-06-01T03:00:00Z", data["sent_at"])
	assert.NotContains(t, data, "warning")
}

func TestNotifyHandler_EmptyBodyAllowed(t *testing.T) {
	h := NewNotifyHandler(&mockNotifier{fn: func(_ context.Context, force bool) (pipeline.Outcome, *models.FailureRecord, error) {
		assert.False(t, force)
		return committedOutcome(), notifyRecord(), nil
	}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, notifyReq(t, ``))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotifyHandler_ForcePassedThrough(t *testing.T) {
	var gotForce bool
	h := NewNotifyHandler(&mockNotifier{fn: func(_ context.Context, force bool) (pipeline.Outcome, *models.FailureRecord, error) {
		gotForce = force
		return committedOutcome(), notifyRecord(), nil
	}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, notifyReq(t, `{"force": true}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gotForce)
}

func TestNotifyHandler_InvalidJSON(t *testing.T) {
	h := NewNotifyHandler(&mockNotifier{fn: func(context.Context, bool) (pipeline.Outcome, *models.FailureRecord, error) {
		t.Fatal("notifier should not be called")
		return pipeline.Outcome{}, nil, nil
	}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, notifyReq(t, `{invalid`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", parseErr(t, rec))
}

func TestNotifyHandler_NoFailures(t *testing.T) {
	h := NewNotifyHandler(&mockNotifier{fn: func(context.Context, bool) (pipeline.Outcome, *models.FailureRecord, error) {
		return pipeline.Outcome{}, nil, source.ErrNoFailures
	}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, notifyReq(t, `{}`))

	require.Equal(t, http.StatusOK, rec.Code)
	data := parseData(t, rec)
	assert.Equal(t, "no_failures", data["status"])
}

func TestNotifyHandler_SourceError(t *testing.T) {
	h := NewNotifyHandler(&mockNotifier{fn: func(context.Context, bool) (pipeline.Outcome, *models.FailureRecord, error) {
		return pipeline.Outcome{}, nil, errors.New("connection refused")
	}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, notifyReq(t, `{}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "SOURCE_UNAVAILABLE", parseErr(t, rec))
}

func TestNotifyHandler_Throttled(t *testing.T) {
	lastSent := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	h := NewNotifyHandler(&mockNotifier{fn: func(context.Context, bool) (pipeline.Outcome, *models.FailureRecord, error) {
		return pipeline.Outcome{
			Status:      pipeline.StatusSuppressed,
			Fingerprint: "fp-abc",
			LastSentAt:  lastSent,
			LastSentTo:  "dba-team@example.com",
		}, notifyRecord(), nil
	}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, notifyReq(t, `{}`))

	require.Equal(t, http.StatusOK, rec.Code)
	data := parseData(t, rec)
	assert.Equal(t, "throttled", data["status"])
	assert.Equal(t, "2025-06-01T03:00:00Z", data["last_sent_at"])
	assert.Equal(t, "dba-team@example.com", data["last_sent_to"])
}

func TestNotifyHandler_StageErrors(t *testing.T) {
	tests := []struct {
		name       string
		stage      pipeline.Stage
		err        error
		wantStatus int
		wantCode   string
	}{
		{"ledger unavailable", pipeline.StageThrottleCheck, ledger.ErrPersistence, http.StatusInternalServerError, "LEDGER_UNAVAILABLE"},
		{"analysis timeout", pipeline.StageAnalysis, analyzer.ErrInferenceTimeout, http.StatusGatewayTimeout, "AI_INFERENCE_TIMEOUT"},
		{"analysis invalid response", pipeline.StageAnalysis, analyzer.ErrInvalidResponse, http.StatusBadGateway, "AI_INVALID_RESPONSE"},
		{"analysis unavailable", pipeline.StageAnalysis, analyzer.ErrProviderUnavailable, http.StatusBadGateway, "AI_PROVIDER_UNAVAILABLE"},
		{"formatting", pipeline.StageFormatting, mailer.ErrTemplateUnrenderable, http.StatusInternalServerError, "FORMAT_FAILED"},
		{"dispatch", pipeline.StageDispatch, mailer.ErrDispatchFailed, http.StatusBadGateway, "DISPATCH_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewNotifyHandler(&mockNotifier{fn: func(context.Context, bool) (pipeline.Outcome, *models.FailureRecord, error) {
				return pipeline.Outcome{
					Status: pipeline.StatusFailed,
					Stage:  tt.stage,
					Err:    tt.err,
				}, notifyRecord(), nil
			}})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, notifyReq(t, `{}`))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, parseErr(t, rec))
		})
	}
}

func TestNotifyHandler_CommittedWithWarning(t *testing.T) {
	out := committedOutcome()
	out.Warning = ledger.ErrPersistence

	h := NewNotifyHandler(&mockNotifier{fn: func(context.Context, bool) (pipeline.Outcome, *models.FailureRecord, error) {
		return out, notifyRecord(), nil
	}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, notifyReq(t, `{}`))

	require.Equal(t, http.StatusOK, rec.Code)
	data := parseData(t, rec)
	assert.Equal(t, "sent", data["status"])
	assert.Contains(t, data["warning"], "could not be recorded")
}
