package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/failwatch/failwatch/internal/config"
	"github.com/failwatch/failwatch/pkg/models"
)

func analyzerRecord() models.FailureRecord {
	return models.FailureRecord{
		JobName:        "NightlyETL",
		ServerName:     "SQLPROD01",
		FailedAt:       time.Date(2025, 6, 1, 2, 30, 0, 0, time.UTC),
		FailureMessage: "Unable to determine if the owner has server access.",
	}
}

// --- prompt ---

func TestBuildPrompt_FillsAllFields(t *testing.T) {
	prompt := BuildPrompt(analyzerRecord())

	assert.Contains(t, prompt, "NightlyETL")
	assert.Contains(t, prompt, "SQLPROD01")
	assert.Contains(t, prompt, "2025-06-01T02:30:00Z")
	assert.Contains(t, prompt, "Unable to determine if the owner has server access.")
	assert.NotContains(t, prompt, "{{")
}

func TestBuildPrompt_EmptyFieldsBecomeNA(t *testing.T) {
	prompt := BuildPrompt(models.FailureRecord{})

	assert.Contains(t, prompt, "N/A")
	assert.NotContains(t, prompt, "{{")
}

// --- factory ---

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
	}{
		{"gemini", "gemini"},
		{"anthropic", "anthropic"},
		{"ollama", "ollama"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(config.LLMConfig{
				Provider:  tt.provider,
				Gemini:    config.GeminiConfig{APIKey: "k", Model: "m", BaseURL: "http://localhost"},
				Anthropic: config.AnthropicConfig{APIKey: "k", Model: "m"},
				Ollama:    config.OllamaConfig{BaseURL: "http://localhost", Model: "m"},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider(config.LLMConfig{Provider: "bard"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bard")
}

// --- gemini ---

func geminiServer(t *testing.T, handler http.HandlerFunc) *GeminiProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGeminiProvider(config.GeminiConfig{
		APIKey:  "test-key",
		Model:   "gemini-flash-latest",
		BaseURL: srv.URL,
	})
}

func TestGemini_Analyze(t *testing.T) {
	var gotPath, gotAPIKey string
	var gotBody map[string]any

	p := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{
					{"text": "SUMMARY\n"},
					{"text": "Owner lost server access."},
				}}},
			},
		})
	})

	text, err := p.Analyze(context.Background(), analyzerRecord())
	require.NoError(t, err)

	assert.Equal(t, "SUMMARY\nOwner lost server access.", text)
	assert.Equal(t, "/v1beta/models/gemini-flash-latest:generateContent", gotPath)
	assert.Equal(t, "test-key", gotAPIKey)
	assert.Contains(t, gotBody, "contents")
}

func TestGemini_ServerError(t *testing.T) {
	p := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := p.Analyze(context.Background(), analyzerRecord())
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestGemini_EmptyCandidates(t *testing.T) {
	p := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	})

	_, err := p.Analyze(context.Background(), analyzerRecord())
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestGemini_MalformedJSON(t *testing.T) {
	p := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	})

	_, err := p.Analyze(context.Background(), analyzerRecord())
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestGemini_ContextTimeout(t *testing.T) {
	p := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Analyze(ctx, analyzerRecord())
	assert.ErrorIs(t, err, ErrInferenceTimeout)
}

// --- ollama ---

func ollamaServer(t *testing.T, handler http.HandlerFunc) *OllamaProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"})
}

func TestOllama_Analyze(t *testing.T) {
	var gotReq ollamaRequest

	p := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(ollamaResponse{Response: "Restart the agent."})
	})

	text, err := p.Analyze(context.Background(), analyzerRecord())
	require.NoError(t, err)

	assert.Equal(t, "Restart the agent.", text)
	assert.Equal(t, "llama3", gotReq.Model)
	assert.False(t, gotReq.Stream)
	assert.Contains(t, gotReq.Prompt, "NightlyETL")
}

func TestOllama_EmptyResponse(t *testing.T) {
	p := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaResponse{})
	})

	_, err := p.Analyze(context.Background(), analyzerRecord())
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestOllama_ServerError(t *testing.T) {
	p := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := p.Analyze(context.Background(), analyzerRecord())
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestOllama_Unreachable(t *testing.T) {
	p := NewOllamaProvider(config.OllamaConfig{BaseURL: "http://127.0.0.1:1", Model: "llama3"})

	_, err := p.Analyze(context.Background(), analyzerRecord())
	require.Error(t, err)
	assert.True(t,
		strings.Contains(err.Error(), ErrProviderUnavailable.Error()) ||
			strings.Contains(err.Error(), ErrInferenceTimeout.Error()))
}
