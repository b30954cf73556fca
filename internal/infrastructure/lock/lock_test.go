package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMemoryTenantLocker(t *testing.T) {
	t.Run("serializes holders of the same company", func(t *testing.T) {
		locker := NewMemoryTenantLocker(0)
		companyID := uuid.New()

		var inside, maxInside int32
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := locker.Lock(context.Background(), companyID)
				if !assert.NoError(t, err) {
					return
				}
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				release()
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), maxInside)
		assert.Equal(t, 0, locker.Len())
	})

	t.Run("different companies do not block each other", func(t *testing.T) {
		locker := NewMemoryTenantLocker(50 * time.Millisecond)

		releaseA, err := locker.Lock(context.Background(), uuid.New())
		require.NoError(t, err)
		defer releaseA()

		releaseB, err := locker.Lock(context.Background(), uuid.New())
		require.NoError(t, err)
		releaseB()
	})

	t.Run("wait timeout returns ErrNotAcquired", func(t *testing.T) {
		locker := NewMemoryTenantLocker(20 * time.Millisecond)
		companyID := uuid.New()

		release, err := locker.Lock(context.Background(), companyID)
		require.NoError(t, err)

		_, err = locker.Lock(context.Background(), companyID)
		assert.ErrorIs(t, err, ErrNotAcquired)

		release()
		assert.Equal(t, 0, locker.Len())
	})

	t.Run("cancelled context returns ErrNotAcquired", func(t *testing.T) {
		locker := NewMemoryTenantLocker(0)
		companyID := uuid.New()

		release, err := locker.Lock(context.Background(), companyID)
		require.NoError(t, err)
		defer release()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = locker.Lock(ctx, companyID)
		assert.ErrorIs(t, err, ErrNotAcquired)
	})

	t.Run("release is idempotent", func(t *testing.T) {
		locker := NewMemoryTenantLocker(0)
		companyID := uuid.New()

		release, err := locker.Lock(context.Background(), companyID)
		require.NoError(t, err)
		release()
		release()

		again, err := locker.Lock(context.Background(), companyID)
		require.NoError(t, err)
		again()
	})
}

// fakeRedis implements lockClient with the SET NX PX and compare-and-delete semantics
type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	expires map[string]time.Time
	setErr  error
	evals   int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, expires: map[string]time.Time{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if exp, ok := f.expires[key]; ok && time.Now().After(exp) {
		delete(f.values, key)
		delete(f.expires, key)
	}
	if _, held := f.values[key]; held {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	f.expires[key] = time.Now().Add(expiration)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.evals++
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		delete(f.expires, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) held(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[key]
	return ok
}

func TestRedisTenantLocker(t *testing.T) {
	companyID := uuid.New()
	key := defaultKeyPrefix + companyID.String()

	t.Run("acquires and releases", func(t *testing.T) {
		client := newFakeRedis()
		locker := newRedisTenantLocker(client, time.Second, time.Second, zap.NewNop())

		release, err := locker.Lock(context.Background(), companyID)
		require.NoError(t, err)
		assert.True(t, client.held(key))

		release()
		release()
		assert.False(t, client.held(key))
		assert.Equal(t, 1, client.evals)
	})

	t.Run("waits for the current holder", func(t *testing.T) {
		client := newFakeRedis()
		locker := newRedisTenantLocker(client, time.Second, time.Second, zap.NewNop(), WithRetryDelay(time.Millisecond))

		release, err := locker.Lock(context.Background(), companyID)
		require.NoError(t, err)

		acquired := make(chan struct{})
		go func() {
			second, err := locker.Lock(context.Background(), companyID)
			if err == nil {
				second()
			}
			close(acquired)
		}()

		select {
		case <-acquired:
			t.Fatal("second holder acquired while lock was held")
		case <-time.After(20 * time.Millisecond):
		}

		release()
		select {
		case <-acquired:
		case <-time.After(time.Second):
			t.Fatal("second holder never acquired")
		}
	})

	t.Run("gives up after wait", func(t *testing.T) {
		client := newFakeRedis()
		locker := newRedisTenantLocker(client, time.Second, 15*time.Millisecond, zap.NewNop(), WithRetryDelay(time.Millisecond))

		release, err := locker.Lock(context.Background(), companyID)
		require.NoError(t, err)
		defer release()

		_, err = locker.Lock(context.Background(), companyID)
		assert.ErrorIs(t, err, ErrNotAcquired)
	})

	t.Run("expired lease can be taken over", func(t *testing.T) {
		client := newFakeRedis()
		core, recorded := observer.New(zapcore.WarnLevel)
		locker := newRedisTenantLocker(client, 5*time.Millisecond, time.Second, zap.New(core), WithRetryDelay(time.Millisecond))

		stale, err := locker.Lock(context.Background(), companyID)
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		fresh, err := locker.Lock(context.Background(), companyID)
		require.NoError(t, err)

		// the stale holder must not delete the new lease
		stale()
		assert.True(t, client.held(key))
		assert.Equal(t, 1, recorded.FilterMessage("tenant lock expired before release").Len())

		fresh()
		assert.False(t, client.held(key))
	})

	t.Run("redis errors are returned", func(t *testing.T) {
		client := newFakeRedis()
		client.setErr = errors.New("connection refused")
		locker := newRedisTenantLocker(client, time.Second, time.Second, nil)

		_, err := locker.Lock(context.Background(), companyID)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotAcquired)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("zero ttl still takes an expiring lease", func(t *testing.T) {
		client := newFakeRedis()
		locker := newRedisTenantLocker(client, 0, time.Second, nil)

		release, err := locker.Lock(context.Background(), companyID)
		require.NoError(t, err)
		defer release()

		client.mu.Lock()
		expiresIn := time.Until(client.expires[key])
		client.mu.Unlock()
		assert.Greater(t, expiresIn, 9*time.Second)
		assert.LessOrEqual(t, expiresIn, defaultLeaseTTL)
	})

	t.Run("key prefix option", func(t *testing.T) {
		client := newFakeRedis()
		locker := newRedisTenantLocker(client, time.Second, time.Second, nil, WithKeyPrefix("test:"))

		release, err := locker.Lock(context.Background(), companyID)
		require.NoError(t, err)
		assert.True(t, client.held("test:"+companyID.String()))
		release()
	})
}
