package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/sourcecheck/internal/acquire"
	"github.com/ppiankov/sourcecheck/internal/agent"
	"github.com/ppiankov/sourcecheck/internal/model"
	"go.uber.org/zap"
)

// loadPage reads a page from a URL or a local file into the agent. For local files
// pageURL names the address the page was saved from and resolves relative links.
func loadPage(ctx context.Context, cfg *model.Config, a *agent.Agent, source, pageURL string) (model.PageMode, error) {
	var body []byte
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		fetched, err := acquire.NewFetcher(cfg.HTTP).Fetch(ctx, source)
		if err != nil {
			return model.PageModeInactive, fmt.Errorf("fetch page: %w", err)
		}
		body = fetched.Body
		if pageURL == "" {
			pageURL = fetched.FinalURL
		}
	} else {
		data, err := os.ReadFile(source)
		if err != nil {
			return model.PageModeInactive, fmt.Errorf("read page: %w", err)
		}
		body = data
	}

	return a.LoadHTML(ctx, pageURL, bytes.NewReader(body))
}

// selectOnPage loads a page and selects text on it, activating generic handling
// when the page has no overview
func selectOnPage(ctx context.Context, cfg *model.Config, a *agent.Agent, logger *zap.Logger, source, pageURL, text string) error {
	mode, err := loadPage(ctx, cfg, a, source, pageURL)
	if err != nil {
		return err
	}
	if mode == model.PageModeInactive {
		if err := a.ActivateGeneric(ctx); err != nil {
			return fmt.Errorf("activate page: %w", err)
		}
	}

	fired, err := a.Select(ctx, text)
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}
	if !fired {
		return fmt.Errorf("selection ignored: needs at least %d characters", cfg.Selection.MinLength)
	}
	logger.Debug("selection sent", zap.String("mode", string(a.Mode())))
	return nil
}
