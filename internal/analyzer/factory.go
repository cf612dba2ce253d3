package analyzer

import (
	"fmt"

	"github.com/failwatch/failwatch/internal/config"
)

// NewProvider constructs the appropriate analyzer provider based on config.
// Called once at server startup.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiProvider(cfg.Gemini), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.Anthropic), nil
	case "ollama":
		return NewOllamaProvider(cfg.Ollama), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: must be one of gemini, anthropic, ollama", cfg.Provider)
	}
}
