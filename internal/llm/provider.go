package llm

import (
	"context"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete runs one structured completion whose output must match req.Schema
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest contains the input for a structured completion
type CompletionRequest struct {
	// Instructions is the system-level instruction text
	Instructions string

	// Prompt is the user message
	Prompt string

	// SchemaName names the response schema (providers that need one)
	SchemaName string

	// Schema is the JSON schema the response must satisfy
	Schema jsonschema.Definition

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// CompletionResponse contains the raw structured output
type CompletionResponse struct {
	// Content is the JSON document returned by the model
	Content string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", "gemini"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for hosted providers
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "openai",
		Timeout:   60,
		MaxTokens: 2048,
	}
}

// RequiresAPIKey reports whether the named provider cannot run without credentials
func RequiresAPIKey(provider string) bool {
	switch normalizeName(provider) {
	case "ollama":
		return false
	default:
		return true
	}
}

func (c Config) model(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	if c.Model != "" {
		return c.Model
	}
	return fallback
}

func (c Config) maxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 2048
}
