package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/sourcecheck/internal/metrics"
	"go.uber.org/zap"
)

var (
	// ErrTimeout means no reply arrived within the request timeout
	ErrTimeout = errors.New("message timed out")

	// ErrClosed is returned for requests on a closed bus
	ErrClosed = errors.New("message bus closed")
)

// DefaultTimeout bounds a request when no other timeout is configured
const DefaultTimeout = 3 * time.Minute

// Handler answers requests
type Handler interface {
	Handle(ctx context.Context, msg Message) (Message, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, msg Message) (Message, error)

func (f HandlerFunc) Handle(ctx context.Context, msg Message) (Message, error) {
	return f(ctx, msg)
}

type request struct {
	ctx   context.Context
	msg   Message
	reply chan reply
}

type reply struct {
	msg Message
	err error
}

// Bus carries requests from senders to a handler running on its own goroutines.
// Each request gets exactly one reply or fails with ErrTimeout.
type Bus struct {
	handler Handler
	queue   chan request
	timeout time.Duration
	logger  *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
	inflight  sync.WaitGroup
	loop      sync.WaitGroup
}

// Option configures a Bus
type Option func(*Bus)

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus starts a bus delivering to handler
func NewBus(handler Handler, opts ...Option) *Bus {
	b := &Bus{
		handler: handler,
		queue:   make(chan request),
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.loop.Add(1)
	go b.run()
	return b
}

// Request sends msg and waits for the reply
func (b *Bus) Request(ctx context.Context, msg Message) (Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrUnknownKind)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req := request{ctx: ctx, msg: msg, reply: make(chan reply, 1)}
	select {
	case b.queue <- req:
	case <-b.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, b.contextError(ctx, msg)
	}

	select {
	case r := <-req.reply:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, b.contextError(ctx, msg)
	}
}

// Notify sends msg and discards the reply
func (b *Bus) Notify(ctx context.Context, msg Message) error {
	_, err := b.Request(ctx, msg)
	return err
}

// Close stops accepting requests and waits for in-flight handlers
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	b.loop.Wait()
	b.inflight.Wait()
	return nil
}

func (b *Bus) run() {
	defer b.loop.Done()
	for {
		select {
		case <-b.done:
			return
		case req := <-b.queue:
			b.inflight.Add(1)
			go b.dispatch(req)
		}
	}
}

func (b *Bus) dispatch(req request) {
	defer b.inflight.Done()

	kind := string(req.msg.Kind())
	start := time.Now()

	var r reply
	func() {
		defer func() {
			if p := recover(); p != nil {
				r = reply{err: fmt.Errorf("handler panic on %s: %v", kind, p)}
			}
		}()
		r.msg, r.err = b.handler.Handle(req.ctx, req.msg)
	}()

	outcome := "ok"
	if r.err != nil {
		outcome = "error"
		b.logger.Debug("message failed", zap.String("kind", kind), zap.Error(r.err))
	}
	metrics.Messages.WithLabelValues(kind, outcome).Inc()
	b.logger.Debug("message handled", zap.String("kind", kind), zap.Duration("took", time.Since(start)))

	req.reply <- r
}

func (b *Bus) contextError(ctx context.Context, msg Message) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		metrics.Messages.WithLabelValues(string(msg.Kind()), "timeout").Inc()
		return fmt.Errorf("%w: %s", ErrTimeout, msg.Kind())
	}
	return ctx.Err()
}
