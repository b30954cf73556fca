// Package lock serializes module lifecycle changes per company.
// MemoryTenantLocker covers a single process; RedisTenantLocker covers a fleet sharing one Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotAcquired is returned when the lock could not be taken before the wait expired
var ErrNotAcquired = errors.New("tenant lock not acquired")

type tenantLock struct {
	sem  chan struct{}
	refs int
}

// MemoryTenantLocker holds one binary semaphore per company.
// Entries are dropped once no goroutine holds or waits on them.
type MemoryTenantLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*tenantLock
	wait  time.Duration
}

// NewMemoryTenantLocker creates a locker. wait bounds how long Lock blocks; zero means until ctx is done.
func NewMemoryTenantLocker(wait time.Duration) *MemoryTenantLocker {
	return &MemoryTenantLocker{
		locks: make(map[uuid.UUID]*tenantLock),
		wait:  wait,
	}
}

// Lock blocks until the company's lock is held and returns its release func
func (l *MemoryTenantLocker) Lock(ctx context.Context, companyID uuid.UUID) (func(), error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	tl := l.acquireRef(companyID)
	select {
	case tl.sem <- struct{}{}:
	case <-ctx.Done():
		l.releaseRef(companyID, tl)
		return nil, fmt.Errorf("%w: company %s: %v", ErrNotAcquired, companyID, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-tl.sem
			l.releaseRef(companyID, tl)
		})
	}, nil
}

func (l *MemoryTenantLocker) acquireRef(companyID uuid.UUID) *tenantLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	tl, ok := l.locks[companyID]
	if !ok {
		tl = &tenantLock{sem: make(chan struct{}, 1)}
		l.locks[companyID] = tl
	}
	tl.refs++
	return tl
}

func (l *MemoryTenantLocker) releaseRef(companyID uuid.UUID, tl *tenantLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tl.refs--
	if tl.refs == 0 {
		delete(l.locks, companyID)
	}
}

// Len returns the number of companies with a held or awaited lock
func (l *MemoryTenantLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
