package module

import (
	"context"
	"sync"

	"github.com/erp/platform/internal/domain/module"
	"github.com/google/uuid"
)

// ActivationCache holds the active module set per company for the lifetime of one request.
// It is safe for concurrent use by the goroutines serving that request.
type ActivationCache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]module.Set
}

// NewActivationCache creates an empty cache
func NewActivationCache() *ActivationCache {
	return &ActivationCache{entries: make(map[uuid.UUID]module.Set)}
}

// Get returns a copy of the cached set
func (c *ActivationCache) Get(companyID uuid.UUID) (module.Set, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	set, ok := c.entries[companyID]
	if !ok {
		return nil, false
	}
	return set.Clone(), true
}

// Set stores a copy of active for the company
func (c *ActivationCache) Set(companyID uuid.UUID, active module.Set) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[companyID] = active.Clone()
}

// Invalidate drops the company's entry
func (c *ActivationCache) Invalidate(companyID uuid.UUID) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, companyID)
}

// Len returns the number of cached companies
func (c *ActivationCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

type cacheKey struct{}

// WithCache returns a context carrying a fresh cache.
// Reads made without a cache in the context always go to storage.
func WithCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, cacheKey{}, NewActivationCache())
}

// CacheFromContext returns the request cache, or nil
func CacheFromContext(ctx context.Context) *ActivationCache {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(cacheKey{}).(*ActivationCache)
	return c
}
