package questionbank

import (
	"context"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/models"
	"golang.org/x/sync/singleflight"
)

const defaultCacheSize = 32

// Cache memoizes a Provider. Definitions are immutable per (type, version), so entries never expire on their own.
// Call Invalidate when a version is republished in place and Purge after reloading the whole source.
//
// Concurrent misses of the same key trigger a single load.
type Cache struct {
	source  Provider
	entries *lru.Cache[string, *Definition]
	group   singleflight.Group
}

// NewCache wraps source. size <= 0 selects the default size.
func NewCache(source Provider, size int) (*Cache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	l, err := lru.New[string, *Definition](size)
	if err != nil {
		return nil, errors.Wrap(err, "new lru")
	}
	return &Cache{source: source, entries: l, group: singleflight.Group{}}, nil
}

func cacheKey(t models.AssessmentType, version string) string {
	return string(t) + "@" + version
}

func (c *Cache) Questions(ctx context.Context, t models.AssessmentType, version string) (*Definition, error) {
	key := cacheKey(t, version)
	if def, ok := c.entries.Get(key); ok {
		return def, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if def, ok := c.entries.Get(key); ok {
			return def, nil
		}
		def, err := c.source.Questions(context.WithoutCancel(ctx), t, version)
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, def)
		return def, nil
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // already annotated by the source
	}
	return v.(*Definition), nil //nolint:forcetypeassert // only *Definition is stored
}

// LatestVersion is not cached because publishing a new version must take effect immediately.
func (c *Cache) LatestVersion(t models.AssessmentType) (string, error) {
	return c.source.LatestVersion(t) //nolint:wrapcheck // pass-through
}

// Invalidate drops a single cached version.
func (c *Cache) Invalidate(t models.AssessmentType, version string) {
	c.entries.Remove(cacheKey(t, version))
}

// Purge drops every cached version.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached versions.
func (c *Cache) Len() int {
	return c.entries.Len()
}
