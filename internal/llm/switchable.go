package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrNotConfigured is returned by a Switchable that holds no provider
var ErrNotConfigured = errors.New("no LLM provider configured")

// Switchable is a Provider whose backing provider can be replaced at runtime,
// for example after new credentials are saved. It may start empty.
type Switchable struct {
	mu       sync.RWMutex
	provider Provider
}

// NewSwitchable wraps p, which may be nil
func NewSwitchable(p Provider) *Switchable {
	return &Switchable{provider: p}
}

// Swap replaces the backing provider
func (s *Switchable) Swap(p Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = p
}

// Configured reports whether a provider is set
func (s *Switchable) Configured() bool {
	return s.current() != nil
}

func (s *Switchable) current() Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

func (s *Switchable) Name() string {
	if p := s.current(); p != nil {
		return p.Name()
	}
	return "none"
}

func (s *Switchable) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	p := s.current()
	if p == nil {
		return nil, ErrNotConfigured
	}
	return p.Complete(ctx, req)
}

func (s *Switchable) IsAvailable(ctx context.Context) bool {
	p := s.current()
	return p != nil && p.IsAvailable(ctx)
}
