package llm

import (
	"fmt"

	"github.com/samsaffron/gemchat/internal/config"
)

// NewProvider creates the Gemini provider described by cfg.
// The provider is wrapped with automatic retry for rate limits (429) and transient errors.
func NewProvider(cfg *config.Config) (Provider, error) {
	if cfg.Gemini.APIKey == "" {
		return nil, fmt.Errorf("gemini API key not configured. Set GEMINI_API_KEY or add gemini.api_key to config")
	}
	return WrapWithRetry(NewGeminiProvider(cfg.Gemini.APIKey, cfg.Gemini.Model), DefaultRetryConfig()), nil
}
