package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/sourcecheck/internal/acquire"
	"github.com/ppiankov/sourcecheck/internal/decontext"
	"github.com/ppiankov/sourcecheck/internal/llm"
	"github.com/ppiankov/sourcecheck/internal/messaging"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/pipeline"
	"github.com/ppiankov/sourcecheck/internal/session"
	"github.com/ppiankov/sourcecheck/internal/settings"
	"github.com/ppiankov/sourcecheck/internal/validate"
	"github.com/ppiankov/sourcecheck/internal/verify"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds the components shared by commands. Pipeline stages reach the
// coordinator-side services only through the message bus.
type app struct {
	cfg         *model.Config
	logger      *zap.Logger
	settings    settings.Store
	provider    *llm.Switchable
	active      string // Effective provider name after settings
	store       session.Store
	coordinator *session.Coordinator
	bus         *messaging.Bus
	client      *messaging.Client
	pipeline    *pipeline.Pipeline
}

// newApp wires the coordinator, services, bus and pipeline from cfg. The settings
// file, when present, overrides the provider, credentials, model and source cap.
func newApp(cfg *model.Config, logger *zap.Logger, observer pipeline.Observer) (*app, error) {
	settingsStore, err := openSettings()
	if err != nil {
		return nil, err
	}
	saved, err := settingsStore.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if saved.MaxSources > 0 {
		cfg.Selection.MaxSources = saved.MaxSources
	}

	store, err := newSessionStore(cfg.Session, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		settings: settingsStore,
		provider: llm.NewSwitchable(nil),
		store:    store,
	}
	if err := a.applySettings(saved); err != nil {
		logger.Warn("LLM provider not configured", zap.Error(err))
	}

	a.coordinator = session.NewCoordinator(store, logger).WithCredentials(a.provider.Configured)

	decontextualizer := decontext.New(a.provider, logger).WithModel(cfg.LLM.Model)
	verifier := verify.New(a.provider,
		verify.WithModel(cfg.LLM.Model),
		verify.WithMaxTokens(cfg.LLM.MaxTokens),
		verify.WithMaxPromptChars(cfg.LLM.MaxPromptChars),
		verify.WithLogger(logger),
	)

	router := messaging.NewRouter(messaging.Services{
		Coordinator:      a.coordinator,
		Settings:         settingsStore,
		Acquirer:         acquire.NewServiceFromConfig(cfg, logger),
		Decontextualizer: decontextualizer,
		Verifier:         verifier,
		OnSettingsSaved:  a.applySettings,
		Logger:           logger,
	})
	a.bus = messaging.NewBus(router,
		messaging.WithTimeout(cfg.Server.MessageTimeout),
		messaging.WithLogger(logger),
	)
	a.client = messaging.NewClient(a.bus)

	opts := []pipeline.Option{
		pipeline.WithCoordinator(a.coordinator),
		pipeline.WithPreflight(a.preflight),
		pipeline.WithObserver(observer),
		pipeline.WithLogger(logger),
		pipeline.WithWorkers(cfg.Concurrency.Workers),
		pipeline.WithMaxSources(cfg.Selection.MaxSources),
		pipeline.WithClassifier(validate.NewAuthorityClassifier(cfg.Authority)),
	}
	if !cfg.LLM.Decontextualize {
		opts = append(opts, pipeline.WithoutDecontextualization())
	}
	a.pipeline = pipeline.NewPipeline(a.client, a.client, a.client, opts...)

	return a, nil
}

// applySettings rebuilds the LLM provider from config overlaid with s. Without
// usable credentials the provider is cleared.
func (a *app) applySettings(s settings.Settings) error {
	llmCfg := llm.ConfigFromModel(a.cfg)
	if s.Provider != "" {
		llmCfg.Provider = s.Provider
		llmCfg.APIKey = ""
	}
	if s.APIKey != "" {
		llmCfg.APIKey = s.APIKey
	}
	if s.Model != "" {
		llmCfg.Model = s.Model
	}
	a.active = llmCfg.Provider
	if llmCfg.APIKey == "" {
		llmCfg.APIKey = llm.APIKeyFromEnv(llmCfg.Provider)
	}
	if llmCfg.BaseURL == "" {
		llmCfg.BaseURL = llm.BaseURLFromEnv(llmCfg.Provider)
	}

	if llm.RequiresAPIKey(llmCfg.Provider) && llmCfg.APIKey == "" {
		a.provider.Swap(nil)
		return fmt.Errorf("no API key for %s", llmCfg.Provider)
	}

	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		a.provider.Swap(nil)
		return err
	}
	a.provider.Swap(provider)
	a.logger.Debug("LLM provider ready", zap.String("provider", provider.Name()))
	return nil
}

// preflight fails a run before any fetch when no provider can be called
func (a *app) preflight() error {
	if !a.provider.Configured() {
		return &pipeline.ConfigError{Reason: fmt.Sprintf(
			"no API key for %s (set it with `sourcecheck config set-key` or %s)",
			a.active, envKeyHint(a.active))}
	}
	return nil
}

func (a *app) Close() error {
	return errors.Join(a.bus.Close(), a.store.Close())
}

// openSettings returns the settings file store
func openSettings() (settings.Store, error) {
	path, err := settings.DefaultPath()
	if err != nil {
		return nil, err
	}
	return settings.NewFileStore(path), nil
}

// newSessionStore builds the configured session backend
func newSessionStore(cfg model.SessionConfig, logger *zap.Logger) (session.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return session.NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return session.NewRedisStore(client, cfg.KeyPrefix, cfg.TabID, logger), nil
	default:
		return nil, fmt.Errorf("unknown session backend: %s (supported: memory, redis)", cfg.Backend)
	}
}

func envKeyHint(provider string) string {
	switch provider {
	case "anthropic", "claude":
		return "ANTHROPIC_API_KEY"
	case "gemini", "google":
		return "GEMINI_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}
