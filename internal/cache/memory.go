package cache

import (
	"context"

	"github.com/facebookarchive/commoner/internal/memo"
	"github.com/facebookarchive/commoner/internal/metrics"
	"github.com/facebookarchive/commoner/internal/module"
)

// MemoryCache keeps artifacts in process memory only.
//
// It serves builds without a working directory, such as a single module read
// from standard input, and tests. The contract matches DiskCache; only
// durability is weaker.
type MemoryCache struct {
	opts options
	memo memo.Group[string, []byte]
}

var (
	_ Cache   = (*MemoryCache)(nil)
	_ Statter = (*MemoryCache)(nil)
)

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache(opts ...Option) *MemoryCache {
	return &MemoryCache{opts: applyOptions(opts)}
}

// GetOrBuild implements Cache.
func (c *MemoryCache) GetOrBuild(ctx context.Context, key string, build BuildFunc) ([]byte, error) {
	if data, ok := c.memo.Peek(key); ok {
		c.opts.metrics.CacheLookup(BackendMemory, metrics.ResultHit)
		return data, nil
	}
	return c.memo.Do(key, func() ([]byte, error) {
		c.opts.metrics.CacheLookup(BackendMemory, metrics.ResultMiss)
		return build(ctx)
	})
}

// Publish implements Cache by writing the bytes to dest.
func (c *MemoryCache) Publish(ctx context.Context, key, dest string) error {
	data, ok := c.memo.Peek(key)
	if !ok {
		return module.NewColdCacheError(key)
	}
	return publishBytes(data, dest)
}

// Stats implements Statter.
func (c *MemoryCache) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Backend: BackendMemory}
	c.memo.Range(func(_ string, data []byte) bool {
		st.Entries++
		st.Bytes += int64(len(data))
		return true
	})
	return st, nil
}
