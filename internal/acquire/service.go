package acquire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/ppiankov/sourcecheck/internal/cache"
	"github.com/ppiankov/sourcecheck/internal/extract"
	"github.com/ppiankov/sourcecheck/internal/metrics"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/util"
	"github.com/ppiankov/sourcecheck/internal/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Result is the outcome of a successful acquisition
type Result struct {
	Content   string
	FinalURL  string
	FromCache bool
}

// entry is what the cache holds for a URL
type entry struct {
	Requested string    `json:"requested"`
	Resolved  string    `json:"resolved"`
	Text      string    `json:"text"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Service acquires readable text for source URLs. Successful acquisitions are
// cached under both the requested and the final URL; failures are never cached.
type Service struct {
	cache      cache.Cache
	fetcher    *Fetcher
	limiter    *worker.Limiter
	robots     *util.RobotsChecker
	group      singleflight.Group
	logger     *zap.Logger
	maxChars   int
	extraction string
	now        func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithLimiter applies per-domain rate limiting before each network fetch
func WithLimiter(l *worker.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithRobots checks robots.txt before each network fetch
func WithRobots(r *util.RobotsChecker) Option {
	return func(s *Service) { s.robots = r }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates an acquisition service
func NewService(c cache.Cache, cfg model.HTTPConfig, opts ...Option) *Service {
	if c == nil {
		c = cache.NopCache{}
	}

	s := &Service{
		cache:      c,
		fetcher:    NewFetcher(cfg),
		logger:     zap.NewNop(),
		maxChars:   cfg.MaxContentChars,
		extraction: cfg.Extraction,
		now:        time.Now,
	}
	if s.maxChars <= 0 {
		s.maxChars = 15000
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromConfig wires the cache, limiter and optional robots checker from cfg
func NewServiceFromConfig(cfg *model.Config, logger *zap.Logger) *Service {
	opts := []Option{
		WithLogger(logger),
		WithLimiter(worker.NewLimiterFromConfig(cfg.RateLimiting)),
	}
	if cfg.HTTP.RespectRobots {
		opts = append(opts, WithRobots(util.NewRobotsChecker(cfg.HTTP.UserAgent, cfg.HTTP.Timeout)))
	}
	return NewService(cache.New(cfg.Cache), cfg.HTTP, opts...)
}

// Acquire returns the readable text behind rawURL. A cached URL, requested or
// final, is served without network I/O. Concurrent calls for the same URL share
// one fetch.
func (s *Service) Acquire(ctx context.Context, rawURL string) (Result, error) {
	if e, ok := s.lookup(rawURL); ok {
		metrics.CacheHits.Inc()
		metrics.Acquisitions.WithLabelValues("cache").Inc()
		return Result{Content: e.Text, FinalURL: e.Resolved, FromCache: true}, nil
	}

	v, err, shared := s.group.Do(rawURL, func() (any, error) {
		return s.fetch(ctx, rawURL)
	})
	if shared {
		s.logger.Debug("acquisition shared", zap.String("url", rawURL))
	}
	if err != nil {
		var acqErr *Error
		if errors.As(err, &acqErr) {
			metrics.Acquisitions.WithLabelValues(string(acqErr.Kind)).Inc()
		}
		return Result{}, err
	}

	metrics.Acquisitions.WithLabelValues("fetched").Inc()
	return v.(Result), nil
}

func (s *Service) fetch(ctx context.Context, rawURL string) (Result, error) {
	target := extract.Unwrap(rawURL)
	if target != rawURL {
		if e, ok := s.lookup(target); ok {
			s.store(rawURL, e)
			return Result{Content: e.Text, FinalURL: e.Resolved, FromCache: true}, nil
		}
	}

	var crawlDelay time.Duration
	if s.robots != nil {
		allowed, delay, err := s.robots.CanFetch(ctx, target)
		if err != nil {
			return Result{}, &Error{Kind: KindInvalidURL, URL: rawURL, Err: err}
		}
		if !allowed {
			return Result{}, &Error{Kind: KindDisallowed, URL: rawURL}
		}
		crawlDelay = delay
	}

	if s.limiter != nil {
		if err := s.limiter.WaitPolite(ctx, target, crawlDelay); err != nil {
			return Result{}, transportError(rawURL, err)
		}
	}

	start := s.now()
	fetched, err := s.fetcher.Fetch(ctx, target)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		var acqErr *Error
		if errors.As(err, &acqErr) {
			acqErr.URL = rawURL
		}
		s.logger.Debug("fetch failed", zap.String("url", rawURL), zap.Error(err))
		return Result{}, err
	}

	if !isTextual(fetched.ContentType) {
		return Result{}, &Error{Kind: KindNonText, URL: rawURL, Err: fmt.Errorf("content type %q", fetched.ContentType)}
	}

	text := s.extractText(fetched)
	if text == "" {
		return Result{}, &Error{Kind: KindEmpty, URL: rawURL}
	}

	e := entry{
		Requested: rawURL,
		Resolved:  fetched.FinalURL,
		Text:      text,
		FetchedAt: s.now().UTC(),
	}
	s.store(rawURL, e)
	if fetched.FinalURL != rawURL {
		s.store(fetched.FinalURL, e)
	}

	s.logger.Debug("fetched source",
		zap.String("url", rawURL),
		zap.String("final_url", fetched.FinalURL),
		zap.Int("chars", len([]rune(text))),
	)

	return Result{Content: text, FinalURL: fetched.FinalURL}, nil
}

func (s *Service) extractText(fetched *FetchResult) string {
	mediaType, _, _ := mime.ParseMediaType(fetched.ContentType)
	if mediaType == "text/plain" {
		return PlainText(fetched.Body, s.maxChars)
	}
	if s.extraction == ExtractReadability {
		return Readable(fetched.Body, fetched.FinalURL, s.maxChars)
	}
	return StripMarkup(fetched.Body, s.maxChars)
}

// isTextual reports whether a response can be read as text. A missing
// Content-Type is treated as HTML.
func isTextual(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/xhtml+xml", mediaType == "application/xml":
		return true
	}
	return false
}

func (s *Service) lookup(rawURL string) (entry, bool) {
	data, ok := s.cache.Get(cache.CacheKey(rawURL))
	if !ok {
		return entry{}, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil || strings.TrimSpace(e.Text) == "" {
		return entry{}, false
	}
	return e, true
}

func (s *Service) store(rawURL string, e entry) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := s.cache.Set(cache.CacheKey(rawURL), data, cache.NoExpiration); err != nil {
		s.logger.Warn("cache write failed", zap.String("url", rawURL), zap.Error(err))
	}
}
