package model

import "time"

// Config is the complete sourcecheck configuration
type Config struct {
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Session      SessionConfig      `yaml:"session" mapstructure:"session"`
	Selection    SelectionConfig    `yaml:"selection" mapstructure:"selection"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Authority    AuthorityConfig    `yaml:"authority" mapstructure:"authority"`
}

// HTTPConfig controls source acquisition
type HTTPConfig struct {
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"` // Per-fetch timeout
	UserAgent       string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"` // Read limit per response
	MaxRedirects    int           `yaml:"max_redirects" mapstructure:"max_redirects"`
	MaxContentChars int           `yaml:"max_content_chars" mapstructure:"max_content_chars"` // Extracted text cap per source
	Extraction      string        `yaml:"extraction" mapstructure:"extraction"`               // plain or readability
	RespectRobots   bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	InsecureTLS     bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	HTTPProxy       string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy      string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy         string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig controls the content cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	DiskDir string        `yaml:"disk_dir,omitempty" mapstructure:"disk_dir"` // Empty keeps the cache in memory only
	DiskTTL time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// LLMConfig selects and tunes the structured-completion provider
type LLMConfig struct {
	Provider        string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, gemini
	Model           string `yaml:"model,omitempty" mapstructure:"model"`
	APIKey          string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL         string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout         int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens       int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxPromptChars  int    `yaml:"max_prompt_chars" mapstructure:"max_prompt_chars"` // Aggregate source text budget
	Decontextualize bool   `yaml:"decontextualize" mapstructure:"decontextualize"`
}

// ConcurrencyConfig bounds fan-out
type ConcurrencyConfig struct {
	Workers      int `yaml:"workers" mapstructure:"workers"`             // Concurrent acquisitions per run
	BatchWorkers int `yaml:"batch_workers" mapstructure:"batch_workers"` // Concurrent runs in batch mode
}

// RateLimitingConfig is the per-domain request budget
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// SessionConfig selects the session state backend
type SessionConfig struct {
	Backend   string `yaml:"backend" mapstructure:"backend"` // memory or redis
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
	TabID     string `yaml:"tab_id" mapstructure:"tab_id"`
}

// SelectionConfig tunes the page agent
type SelectionConfig struct {
	MinLength          int `yaml:"min_length" mapstructure:"min_length"`
	MaxSources         int `yaml:"max_sources" mapstructure:"max_sources"`
	MaxDepthAIOverview int `yaml:"max_depth_ai_overview" mapstructure:"max_depth_ai_overview"`
	MaxDepthGeneric    int `yaml:"max_depth_generic" mapstructure:"max_depth_generic"`
}

// OutputConfig controls logging and reports
type OutputConfig struct {
	Verbose  bool   `yaml:"verbose" mapstructure:"verbose"`
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	LogJSON  bool   `yaml:"log_json" mapstructure:"log_json"`
}

// ServerConfig controls `sourcecheck serve`
type ServerConfig struct {
	Addr           string        `yaml:"addr" mapstructure:"addr"`
	MessageTimeout time.Duration `yaml:"message_timeout" mapstructure:"message_timeout"`
}

// AuthorityConfig lists the domains treated as primary or secondary sources.
// A domain also matches its subdomains.
type AuthorityConfig struct {
	PrimaryDomains   []string          `yaml:"primary_domains" mapstructure:"primary_domains"`
	SecondaryDomains []string          `yaml:"secondary_domains" mapstructure:"secondary_domains"`
	DomainMap        map[string]string `yaml:"domain_map,omitempty" mapstructure:"domain_map"` // Exact host to tier overrides
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:         15 * time.Second,
			UserAgent:       "sourcecheck/0.1 (+https://github.com/ppiankov/sourcecheck)",
			MaxBodyBytes:    5_000_000,
			MaxRedirects:    5,
			MaxContentChars: 15000,
			Extraction:      "plain",
		},
		Cache: CacheConfig{
			Enabled: true,
			DiskTTL: 24 * time.Hour,
		},
		LLM: LLMConfig{
			Provider:        "openai",
			Timeout:         60,
			MaxTokens:       2048,
			MaxPromptChars:  60000,
			Decontextualize: true,
		},
		Concurrency: ConcurrencyConfig{
			Workers:      8,
			BatchWorkers: 2,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 2,
			BurstSize:         4,
		},
		Session: SessionConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			KeyPrefix: "sourcecheck",
			TabID:     "default",
		},
		Selection: SelectionConfig{
			MinLength:          5,
			MaxSources:         25,
			MaxDepthAIOverview: 10,
			MaxDepthGeneric:    15,
		},
		Output: OutputConfig{
			LogLevel: "info",
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8787",
			MessageTimeout: 3 * time.Minute,
		},
		Authority: AuthorityConfig{
			PrimaryDomains: []string{
				"who.int", "un.org", "europa.eu", "nih.gov", "cdc.gov",
				"gov.uk", "nasa.gov", "doi.org", "arxiv.org",
			},
			SecondaryDomains: []string{
				"wikipedia.org", "britannica.com", "reuters.com", "apnews.com",
				"bbc.co.uk", "bbc.com", "nature.com", "science.org",
			},
		},
	}
}
