package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/failwatch/failwatch/internal/config"
	"github.com/failwatch/failwatch/pkg/models"
)

// OllamaProvider calls a local Ollama server's generate endpoint.
type OllamaProvider struct {
	cfg    config.OllamaConfig
	client *http.Client
}

func NewOllamaProvider(cfg config.OllamaConfig) *OllamaProvider {
	return &OllamaProvider{
		cfg:    cfg,
		client: &http.Client{},
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Analyze(ctx context.Context, rec models.FailureRecord) (string, error) {
	payload, err := json.Marshal(ollamaRequest{
		Model:  p.cfg.Model,
		Prompt: BuildPrompt(rec),
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	u := strings.TrimRight(p.cfg.BaseURL, "/") + "/api/generate"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrInvalidResponse, err)
	}
	if ollamaResp.Response == "" {
		return "", fmt.Errorf("%w: empty response text", ErrInvalidResponse)
	}
	return ollamaResp.Response, nil
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

var _ Provider = (*OllamaProvider)(nil)
