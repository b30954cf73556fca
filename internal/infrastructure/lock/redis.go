package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultKeyPrefix  = "erp:module-lock:"
	defaultRetryDelay = 25 * time.Millisecond
	defaultLeaseTTL   = 10 * time.Second
	releaseTimeout    = 2 * time.Second
)

// releaseScript deletes the key only while it still holds our token
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// lockClient is the subset of *redis.Client the locker needs
type lockClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// RedisTenantLocker takes a per-company lease with SET NX PX.
// The lease expires after ttl so a crashed holder cannot block the company forever.
type RedisTenantLocker struct {
	client     lockClient
	logger     *zap.Logger
	keyPrefix  string
	ttl        time.Duration
	wait       time.Duration
	retryDelay time.Duration
}

// RedisLockerOption configures a RedisTenantLocker
type RedisLockerOption func(*RedisTenantLocker)

// WithKeyPrefix overrides the Redis key prefix
func WithKeyPrefix(prefix string) RedisLockerOption {
	return func(l *RedisTenantLocker) {
		l.keyPrefix = prefix
	}
}

// WithRetryDelay sets the pause between SET NX attempts
func WithRetryDelay(d time.Duration) RedisLockerOption {
	return func(l *RedisTenantLocker) {
		l.retryDelay = d
	}
}

// NewRedisTenantLocker creates a locker over an existing client. The caller owns the client.
// A non-positive ttl falls back to a 10s lease; SET with no expiry would never be reclaimed.
func NewRedisTenantLocker(client *redis.Client, ttl, wait time.Duration, logger *zap.Logger, opts ...RedisLockerOption) *RedisTenantLocker {
	return newRedisTenantLocker(client, ttl, wait, logger, opts...)
}

func newRedisTenantLocker(client lockClient, ttl, wait time.Duration, logger *zap.Logger, opts ...RedisLockerOption) *RedisTenantLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	l := &RedisTenantLocker{
		client:     client,
		logger:     logger.Named("tenant_lock"),
		keyPrefix:  defaultKeyPrefix,
		ttl:        ttl,
		wait:       wait,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock retries SET NX until it wins, ctx is done, or the configured wait elapses
func (l *RedisTenantLocker) Lock(ctx context.Context, companyID uuid.UUID) (func(), error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	key := l.keyPrefix + companyID.String()
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: company %s: %v", ErrNotAcquired, companyID, ctx.Err())
			}
			return nil, fmt.Errorf("failed to acquire tenant lock: %w", err)
		}
		if ok {
			return l.releaseFunc(key, token), nil
		}

		timer := time.NewTimer(l.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: company %s: %v", ErrNotAcquired, companyID, ctx.Err())
		case <-timer.C:
		}
	}
}

func (l *RedisTenantLocker) releaseFunc(key, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true

		// the caller's ctx may already be cancelled; release must still reach Redis
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		n, err := l.client.Eval(ctx, releaseScript, []string{key}, token).Int64()
		if err != nil {
			l.logger.Warn("failed to release tenant lock", zap.String("key", key), zap.Error(err))
			return
		}
		if n == 0 {
			l.logger.Warn("tenant lock expired before release", zap.String("key", key))
		}
	}
}
