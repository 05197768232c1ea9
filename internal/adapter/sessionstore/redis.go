package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"devops-sentinel/internal/domain"
)

const redisKeyPrefix = "sentinel:session:"

// Redis persists session contexts in Redis with TTL-based eviction.
// One key per session, JSON-encoded, last writer wins.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the Redis at url (e.g. "redis://localhost:6379/0")
// and verifies the connection with a ping.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: ping: %s", domain.ErrStoreUnavailable, err)
	}

	return &Redis{client: client, ttl: ttl}, nil
}

// Get implements domain.SessionStore.
func (r *Redis) Get(ctx context.Context, sessionID string) (*domain.SessionContext, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %s", domain.ErrStoreUnavailable, sessionID, err)
	}

	var sc domain.SessionContext
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, domain.WrapOp("Redis.Get", err)
	}
	return &sc, nil
}

// Put implements domain.SessionStore.
func (r *Redis) Put(ctx context.Context, sc *domain.SessionContext) error {
	if sc == nil || sc.SessionID == "" {
		return domain.NewDomainError("Redis.Put", domain.ErrInvalidInput, "empty session id")
	}

	raw, err := json.Marshal(sc)
	if err != nil {
		return domain.WrapOp("Redis.Put", err)
	}

	if err := r.client.Set(ctx, redisKeyPrefix+sc.SessionID, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %s", domain.ErrStoreUnavailable, sc.SessionID, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
