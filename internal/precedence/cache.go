// Package precedence decides which of two resources owns an ambiguous request.
package precedence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/MrSnakeDoc/restpub/internal/host"
	"github.com/MrSnakeDoc/restpub/internal/logger"
	"github.com/MrSnakeDoc/restpub/internal/rest"
)

// DefaultTTL bounds how long a looked-up service path is trusted.
const DefaultTTL = 5 * time.Minute

// Lookup finds the live service registered with an implementation name.
// *host.Registry satisfies it.
type Lookup interface {
	ServiceReference(impl string) *host.ServiceReference
}

// PathCache memoizes implementation -> declared service path. Entries expire
// a fixed time after they were written; misses are computed synchronously.
// An empty cached value is the "no path" sentinel.
type PathCache struct {
	cache  *otter.Cache[string, string]
	lookup Lookup
	log    logger.Logger
}

// NewPathCache builds a read-through cache over lookup. ttl <= 0 means DefaultTTL.
func NewPathCache(lookup Lookup, ttl time.Duration, log logger.Logger) (*PathCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cache, err := otter.New(&otter.Options[string, string]{
		ExpiryCalculator: otter.ExpiryWriting[string, string](ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build path cache: %w", err)
	}
	return &PathCache{cache: cache, lookup: lookup, log: log}, nil
}

// Path returns the declared service path for impl, and false when the
// implementation has no registered service or a blank path.
func (c *PathCache) Path(ctx context.Context, impl string) (string, bool) {
	p, err := c.cache.Get(ctx, impl, otter.LoaderFunc[string, string](c.load))
	if err != nil {
		c.log.Debug("service path lookup failed",
			logger.String("impl", impl),
			logger.Error(err))
		return "", false
	}
	return p, p != ""
}

func (c *PathCache) load(_ context.Context, impl string) (string, error) {
	ref := c.lookup.ServiceReference(impl)
	if ref == nil {
		c.log.Warn("no service reference found for implementation",
			logger.String("impl", impl))
		return "", nil
	}
	p := ref.Property(rest.ServicePathProperty)
	if strings.TrimSpace(p) == "" {
		return "", nil
	}
	return p, nil
}

// Invalidate drops the cached entry for impl.
func (c *PathCache) Invalidate(impl string) {
	c.cache.Invalidate(impl)
}

// Len reports the number of cached entries (approximate).
func (c *PathCache) Len() int {
	return c.cache.EstimatedSize()
}

// Close stops the cache's background goroutines.
func (c *PathCache) Close() {
	c.cache.StopAllGoroutines()
}
