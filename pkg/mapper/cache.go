package mapper

import (
	"context"
	"sync"

	"github.com/trialworks/criteria-engine/pkg/apperrors"
	"github.com/trialworks/criteria-engine/pkg/models"
)

// CachedMapping is one cache entry, keyed by the criterion's verbatim text.
// Validated starts false at write time and flips once Stage 3 passes the
// criterion.
type CachedMapping struct {
	Mapping    *models.MimicMapping `json:"mapping"`
	Confidence float64              `json:"confidence"`
	Reasoning  string               `json:"reasoning"`
	Validated  bool                 `json:"validated"`
}

// Cache stores criterion-text to mapping results. Get returns
// apperrors.ErrCacheMiss when the key is absent.
type Cache interface {
	Get(ctx context.Context, key string) (*CachedMapping, error)
	Set(ctx context.Context, key string, entry *CachedMapping) error
	MarkValidated(ctx context.Context, key string) error
	Close() error
}

// MemoryCache is the in-process cache used when no persistent backend is
// configured. Keys are case-sensitive, exactly as authored.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]CachedMapping
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]CachedMapping)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (*CachedMapping, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, apperrors.ErrCacheMiss
	}
	return &entry, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, entry *CachedMapping) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *entry
	return nil
}

// MarkValidated implements Cache. Unknown keys are a no-op.
func (c *MemoryCache) MarkValidated(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		entry.Validated = true
		c.entries[key] = entry
	}
	return nil
}

// Close implements Cache.
func (c *MemoryCache) Close() error {
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ Cache = (*MemoryCache)(nil)
