package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ppiankov/sourcecheck/internal/extract"
	"github.com/ppiankov/sourcecheck/internal/extract/adapters"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/session"
	"go.uber.org/zap"
)

// DefaultMinLength is the shortest selection, in runes, that triggers a check
const DefaultMinLength = 5

// ErrNoPage is returned when an action needs a loaded page
var ErrNoPage = errors.New("no page loaded")

// Sender delivers page events to the coordinator
type Sender interface {
	Detect(ctx context.Context, d session.Detection) error
	Select(ctx context.Context, sel session.Selection) error
	ActivateGeneric(ctx context.Context, pageURL string) error
}

// page is the document the agent currently observes
type page struct {
	url     string
	doc     *goquery.Document
	adapter adapters.Adapter
	mode    model.PageMode
}

// Agent observes one page: it reports detected overviews and turns selections into
// prioritized source lists for the coordinator
type Agent struct {
	registry *adapters.Registry
	sender   Sender
	cfg      model.SelectionConfig
	logger   *zap.Logger

	mu            sync.Mutex
	current       *page
	lastSelection string
}

// New creates an agent. Zero config values fall back to defaults.
func New(sender Sender, cfg model.SelectionConfig, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinLength
	}
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = extract.DefaultLimit
	}
	return &Agent{
		registry: adapters.NewRegistry(),
		sender:   sender,
		cfg:      cfg,
		logger:   logger,
	}
}

// WithRegistry replaces the adapter registry
func (a *Agent) WithRegistry(r *adapters.Registry) *Agent {
	a.registry = r
	return a
}

// LoadHTML parses r and loads it as the page at pageURL
func (a *Agent) LoadHTML(ctx context.Context, pageURL string, r io.Reader) (model.PageMode, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return model.PageModeInactive, fmt.Errorf("failed to parse page: %w", err)
	}
	return a.Load(ctx, pageURL, doc)
}

// Load replaces the observed page. On pages whose adapter finds an overview region,
// the region's URLs are sent as a detection. Other pages stay inactive until
// ActivateGeneric is called.
func (a *Agent) Load(ctx context.Context, pageURL string, doc *goquery.Document) (model.PageMode, error) {
	adapter := a.registry.FindAdapter(pageURL)
	p := &page{url: pageURL, doc: doc, adapter: adapter, mode: model.PageModeInactive}

	a.mu.Lock()
	a.current = p
	a.lastSelection = ""
	a.mu.Unlock()

	if adapter.Mode() != model.PageModeAIOverview {
		return p.mode, nil
	}

	urls, ok := adapters.DetectURLs(adapter, doc, pageURL, a.cfg.MaxSources)
	if !ok {
		a.logger.Debug("no overview on page", zap.String("page", pageURL))
		return p.mode, nil
	}

	a.mu.Lock()
	p.mode = model.PageModeAIOverview
	a.mu.Unlock()

	a.logger.Info("overview detected",
		zap.String("page", pageURL),
		zap.Int("urls", len(urls)),
	)
	err := a.sender.Detect(ctx, session.Detection{URLs: urls, Mode: model.PageModeAIOverview, PageURL: pageURL})
	return model.PageModeAIOverview, err
}

// ActivateGeneric turns on selection handling for a page without an overview. Pages
// already in overview mode are left as they are.
func (a *Agent) ActivateGeneric(ctx context.Context) error {
	a.mu.Lock()
	p := a.current
	if p == nil {
		a.mu.Unlock()
		return ErrNoPage
	}
	if p.mode == model.PageModeAIOverview {
		a.mu.Unlock()
		return nil
	}
	if p.adapter.Mode() != model.PageModeGeneric {
		p.adapter = a.registry.Generic()
	}
	p.mode = model.PageModeGeneric
	pageURL := p.url
	a.mu.Unlock()

	return a.sender.ActivateGeneric(ctx, pageURL)
}

// Mode returns the mode of the observed page
func (a *Agent) Mode() model.PageMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return model.PageModeInactive
	}
	return a.current.mode
}

// Select handles a text selection. It returns false without sending anything when the
// page is inactive, the text is shorter than the minimum length, or the text repeats
// the previous selection.
func (a *Agent) Select(ctx context.Context, text string) (bool, error) {
	text = strings.TrimSpace(text)

	a.mu.Lock()
	if a.current == nil {
		a.mu.Unlock()
		return false, ErrNoPage
	}
	p := *a.current
	if p.mode == model.PageModeInactive ||
		utf8.RuneCountInString(text) < a.cfg.MinLength ||
		text == a.lastSelection {
		a.mu.Unlock()
		return false, nil
	}
	a.lastSelection = text
	a.mu.Unlock()

	sel := a.buildSelection(p, text)
	a.logger.Debug("selection",
		zap.Int("chars", utf8.RuneCountInString(text)),
		zap.Int("urls", len(sel.URLs)),
		zap.Bool("context", sel.Context != ""),
	)

	if err := a.sender.Select(ctx, sel); err != nil {
		// Let the same text be retried
		a.mu.Lock()
		if a.lastSelection == text {
			a.lastSelection = ""
		}
		a.mu.Unlock()
		return true, err
	}
	return true, nil
}

func (a *Agent) buildSelection(p page, text string) session.Selection {
	anchor := extract.LocateSelection(p.doc.Nodes[0], text)

	plan := p.adapter.Plan(p.doc)
	plan.MaxDepth = a.maxDepth(p.mode, plan.MaxDepth)
	ex := plan.Extractor(p.url)

	var urls []string
	if anchor != nil {
		urls = extract.Prioritize(ex, anchor, plan.Options(a.cfg.MaxSources))
	} else {
		urls = extract.Collect(ex, append(plan.Fallbacks, plan.PageWide...), a.cfg.MaxSources)
	}

	return session.Selection{
		Text:    text,
		Context: extract.SurroundingText(anchor, text),
		URLs:    urls,
	}
}

func (a *Agent) maxDepth(mode model.PageMode, fallback int) int {
	switch mode {
	case model.PageModeAIOverview:
		if a.cfg.MaxDepthAIOverview > 0 {
			return a.cfg.MaxDepthAIOverview
		}
	case model.PageModeGeneric:
		if a.cfg.MaxDepthGeneric > 0 {
			return a.cfg.MaxDepthGeneric
		}
	}
	return fallback
}
