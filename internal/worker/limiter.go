package worker

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/sourcecheck/internal/model"
	"golang.org/x/time/rate"
)

// Limiter implements per-host rate limiting for source acquisition
type Limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a new rate limiter. A non-positive rate disables limiting.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}

	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

// NewLimiterFromConfig creates a limiter from the rate limiting section
func NewLimiterFromConfig(cfg model.RateLimitingConfig) *Limiter {
	return NewLimiter(cfg.RequestsPerSecond, cfg.BurstSize)
}

// Wait blocks until the host of rawURL may be contacted
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	return l.WaitPolite(ctx, rawURL, 0)
}

// WaitPolite is Wait for a host that asked for crawlDelay between requests.
// The host's limiter is slowed to that pace and never sped up again.
func (l *Limiter) WaitPolite(ctx context.Context, rawURL string, crawlDelay time.Duration) error {
	host, err := hostKey(rawURL)
	if err != nil {
		return err
	}

	limiter := l.getLimiter(host)
	if crawlDelay > 0 {
		if every := rate.Every(crawlDelay); every < limiter.Limit() {
			limiter.SetLimit(every)
			limiter.SetBurst(1)
		}
	}
	return limiter.Wait(ctx)
}

// Allow reports whether a request to rawURL's host may proceed now, consuming a token
func (l *Limiter) Allow(rawURL string) bool {
	host, err := hostKey(rawURL)
	if err != nil {
		return false
	}
	return l.getLimiter(host).Allow()
}

// Hosts returns how many hosts have been seen
func (l *Limiter) Hosts() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

func (l *Limiter) getLimiter(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[host]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[host]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[host] = limiter
	return limiter
}

// hostKey returns the lowercased hostname of rawURL, without port
func hostKey(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("no host in %q", rawURL)
	}
	return strings.ToLower(parsed.Hostname()), nil
}
