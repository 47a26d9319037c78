package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/sourcecheck/internal/model"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	switch normalizeName(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "gemini":
		return NewGeminiProvider(config)

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama, gemini)", config.Provider)
	}
}

// ConfigFromModel converts the application config to llm.Config
func ConfigFromModel(cfg *model.Config) Config {
	return Config{
		Provider:   cfg.LLM.Provider,
		Model:      cfg.LLM.Model,
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Timeout:    cfg.LLM.Timeout,
		MaxTokens:  cfg.LLM.MaxTokens,
		HTTPProxy:  cfg.HTTP.HTTPProxy,
		HTTPSProxy: cfg.HTTP.HTTPSProxy,
		NoProxy:    cfg.HTTP.NoProxy,
	}
}

// APIKeyFromEnv returns the conventional environment credential for a provider
func APIKeyFromEnv(provider string) string {
	switch normalizeName(provider) {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	}
	return ""
}

// BaseURLFromEnv returns the conventional environment endpoint for a provider
func BaseURLFromEnv(provider string) string {
	if normalizeName(provider) == "ollama" {
		return os.Getenv("OLLAMA_BASE_URL")
	}
	return ""
}

func normalizeName(provider string) string {
	name := strings.ToLower(strings.TrimSpace(provider))
	switch name {
	case "claude":
		return "anthropic"
	case "google":
		return "gemini"
	}
	return name
}
