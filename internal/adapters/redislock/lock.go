// Package redislock provides a Redis-backed lease so only one instance runs
// an outbox pass at a time.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/htpdf/htpdf/internal/core"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease key only when this holder still owns it,
// so an expired lease taken over by another instance is never released.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Lock is a single-key Redis lease. It is safe for concurrent use, though
// each Lock tracks one outstanding acquisition at a time.
type Lock struct {
	client redis.UniversalClient
	key    string

	mu    sync.Mutex
	token string
}

var _ core.PassLock = (*Lock)(nil)

// New creates a lease on the given key.
func New(client redis.UniversalClient, key string) (*Lock, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	return &Lock{client: client, key: key}, nil
}

// Acquire takes the lease for ttl. Returns false when another holder has it.
func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
	return true, nil
}

// Release gives the lease up early. Releasing a lease that expired or was
// never acquired is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()

	if token == "" {
		return nil
	}

	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}
