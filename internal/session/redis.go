package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore keeps the session record in Redis and fans updates out over pub/sub,
// so several processes can observe one tab's session.
type RedisStore struct {
	client  *redis.Client
	key     string
	channel string
	ttl     time.Duration
	logger  *zap.Logger
}

// NewRedisStore creates a store for one tab's session under prefix
func NewRedisStore(client *redis.Client, prefix, tabID string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	key := fmt.Sprintf("%s:session:%s", prefix, tabID)
	return &RedisStore{
		client:  client,
		key:     key,
		channel: key + ":updates",
		ttl:     24 * time.Hour,
		logger:  logger,
	}
}

// Key returns the Redis key holding the record
func (r *RedisStore) Key() string {
	return r.key
}

func (r *RedisStore) Load(ctx context.Context) (model.SessionState, error) {
	return r.load(ctx, r.client)
}

// getter is satisfied by both the client and a WATCH transaction
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) load(ctx context.Context, c getter) (model.SessionState, error) {
	data, err := c.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.DefaultSessionState(), nil
	}
	if err != nil {
		return model.SessionState{}, fmt.Errorf("load session: %w", err)
	}

	var state model.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return model.SessionState{}, fmt.Errorf("decode session: %w", err)
	}
	if state.SourceURLs == nil {
		state.SourceURLs = []string{}
	}
	return state, nil
}

func (r *RedisStore) CompareAndSwap(ctx context.Context, expected uint64, next model.SessionState) (model.SessionState, error) {
	next = next.Clone()
	next.Version = expected + 1

	data, err := json.Marshal(next)
	if err != nil {
		return model.SessionState{}, fmt.Errorf("encode session: %w", err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := r.load(ctx, tx)
		if err != nil {
			return err
		}
		if current.Version != expected {
			return ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key, data, r.ttl)
			pipe.Publish(ctx, r.channel, data)
			return nil
		})
		return err
	}, r.key)

	if errors.Is(err, redis.TxFailedErr) {
		return model.SessionState{}, ErrConflict
	}
	if err != nil {
		return model.SessionState{}, err
	}
	return next, nil
}

func (r *RedisStore) Subscribe(ctx context.Context) (<-chan model.SessionState, error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	// Wait for the subscription confirmation so no later publish is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe session updates: %w", err)
	}

	current, err := r.Load(ctx)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan model.SessionState, 1)
	out <- current

	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		last := current.Version
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var state model.SessionState
				if err := json.Unmarshal([]byte(msg.Payload), &state); err != nil {
					r.logger.Warn("discarding malformed session update", zap.Error(err))
					continue
				}
				// Versions only grow; anything older was already superseded
				if state.Version <= last {
					continue
				}
				last = state.Version
				offer(out, state)
			}
		}
	}()

	return out, nil
}

// Close releases the Redis client
func (r *RedisStore) Close() error {
	return r.client.Close()
}
