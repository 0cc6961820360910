package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore tracks processed message IDs so redelivered stage
// messages can be skipped. Implementations must be safe for concurrent use.
type IdempotencyStore interface {
	// Contains returns true if the message ID has already been processed.
	Contains(ctx context.Context, messageID string) (bool, error)
	// Add marks a message ID as processed after successful handling.
	Add(ctx context.Context, messageID string) error
}

// MemoryIdempotencyStore is an in-memory IdempotencyStore for development
// and single-instance workers. Entries expire lazily after the TTL.
type MemoryIdempotencyStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	ttl     time.Duration
}

// NewMemoryIdempotencyStore creates an in-memory store with the given TTL.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
	}
}

// Contains checks if the message ID exists and is not expired.
func (s *MemoryIdempotencyStore) Contains(_ context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	ts, exists := s.entries[messageID]
	s.mu.RUnlock()

	if !exists {
		return false, nil
	}

	if time.Since(ts) > s.ttl {
		s.mu.Lock()
		delete(s.entries, messageID)
		s.mu.Unlock()
		return false, nil
	}

	return true, nil
}

// Add marks the message ID as processed with the current timestamp.
func (s *MemoryIdempotencyStore) Add(_ context.Context, messageID string) error {
	s.mu.Lock()
	s.entries[messageID] = time.Now()
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries, including potentially expired ones.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// RedisIdempotencyStore is a Redis-backed IdempotencyStore shared across
// worker replicas of the same stage.
type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a Redis-backed store with the given TTL.
func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{
		client: client,
		prefix: "payment:processed:",
		ttl:    ttl,
	}
}

// Contains checks whether the message ID key exists.
func (s *RedisIdempotencyStore) Contains(ctx context.Context, messageID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+messageID).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency lookup: %w", err)
	}
	return n > 0, nil
}

// Add records the message ID with the configured TTL.
func (s *RedisIdempotencyStore) Add(ctx context.Context, messageID string) error {
	if err := s.client.Set(ctx, s.prefix+messageID, 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency record: %w", err)
	}
	return nil
}

// IdempotentHandler wraps a Handler with deduplication by MessageID. A
// message already seen is acknowledged without re-running the stage. On a
// store failure the message is processed anyway; re-running a stage is safe
// (the saga store fence rejects stale writes) while dropping one is not.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg *Message) error {
		if msg.MessageID == "" {
			return inner(ctx, msg)
		}

		exists, err := store.Contains(ctx, msg.MessageID)
		if err != nil {
			logger.Warn("idempotency store lookup failed, processing anyway",
				slog.String("message_id", msg.MessageID),
				slog.String("error", err.Error()),
			)
			return inner(ctx, msg)
		}

		if exists {
			logger.Debug("skipping duplicate stage message",
				slog.String("message_id", msg.MessageID),
				slog.String("trace_id", msg.TraceID),
				slog.String("stage", string(msg.Stage)),
			)
			return nil
		}

		if err := inner(ctx, msg); err != nil {
			return err
		}

		if addErr := store.Add(ctx, msg.MessageID); addErr != nil {
			logger.Warn("failed to record message ID in idempotency store",
				slog.String("message_id", msg.MessageID),
				slog.String("error", addErr.Error()),
			)
		}

		return nil
	}
}
