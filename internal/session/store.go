package session

import (
	"context"
	"errors"
	"sync"

	"github.com/ppiankov/sourcecheck/internal/model"
)

// ErrConflict means the stored state changed between read and write
var ErrConflict = errors.New("session: version conflict")

// ErrClosed is returned by a store after Close
var ErrClosed = errors.New("session: store closed")

// Store holds one session record with versioned writes. Every successful write
// sets Version to the previous version plus one and notifies subscribers.
type Store interface {
	// Load returns the current state, or the default state when nothing is stored
	Load(ctx context.Context) (model.SessionState, error)

	// CompareAndSwap replaces the state only if its version is still expected
	CompareAndSwap(ctx context.Context, expected uint64, next model.SessionState) (model.SessionState, error)

	// Subscribe streams complete states, starting with the current one. Slow
	// subscribers only ever miss intermediate states, never the latest. The channel
	// closes when ctx is done or the store is closed.
	Subscribe(ctx context.Context) (<-chan model.SessionState, error)

	Close() error
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu     sync.RWMutex
	state  model.SessionState
	subs   map[chan model.SessionState]struct{}
	closed bool
}

// NewMemoryStore creates a store holding the default state
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: model.DefaultSessionState(),
		subs:  make(map[chan model.SessionState]struct{}),
	}
}

func (m *MemoryStore) Load(ctx context.Context) (model.SessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return model.SessionState{}, ErrClosed
	}
	return m.state.Clone(), nil
}

func (m *MemoryStore) CompareAndSwap(ctx context.Context, expected uint64, next model.SessionState) (model.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return model.SessionState{}, ErrClosed
	}
	if m.state.Version != expected {
		return model.SessionState{}, ErrConflict
	}

	next = next.Clone()
	next.Version = expected + 1
	m.state = next

	for ch := range m.subs {
		offer(ch, next.Clone())
	}
	return next.Clone(), nil
}

func (m *MemoryStore) Subscribe(ctx context.Context) (<-chan model.SessionState, error) {
	ch := make(chan model.SessionState, 1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.subs[ch] = struct{}{}
	ch <- m.state.Clone()
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.unsubscribe(ch)
	}()
	return ch, nil
}

func (m *MemoryStore) unsubscribe(ch chan model.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(ch)
	}
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for ch := range m.subs {
		delete(m.subs, ch)
		close(ch)
	}
	return nil
}

// offer delivers state to a one-slot channel, replacing an undelivered older state
func offer(ch chan model.SessionState, state model.SessionState) {
	for {
		select {
		case ch <- state:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
