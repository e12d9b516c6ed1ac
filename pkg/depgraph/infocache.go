package depgraph

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// FetchFunc performs one informational batch fetch against the remote
// store, e.g. "list every published package hash".
type FetchFunc func(ctx context.Context) (InfoMap, error)

// InfoCache memoizes informational dependency fetches for one run. However
// many artifacts request a key, and however concurrently, the underlying
// fetch happens at most once; all requesters observe the same snapshot.
// A failed fetch is surfaced to every waiting caller and is not retried
// here (the run aborts).
type InfoCache struct {
	fetchers map[string]FetchFunc

	group   singleflight.Group
	mu      sync.RWMutex
	results map[string]InfoMap
}

func NewInfoCache(fetchers map[string]FetchFunc) *InfoCache {
	return &InfoCache{
		fetchers: fetchers,
		results:  make(map[string]InfoMap),
	}
}

var _ Info = &InfoCache{}

// Has reports whether a fetcher is registered for key. Graph assembly uses
// this to fail fast on dangling informational references.
func (c *InfoCache) Has(key string) bool {
	_, ok := c.fetchers[key]
	return ok
}

func (c *InfoCache) Get(ctx context.Context, key string) (InfoMap, error) {
	c.mu.RLock()
	cached, ok := c.results[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the group: a previous flight may have already
		// stored the result.
		c.mu.RLock()
		cached, ok := c.results[key]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		fetch, ok := c.fetchers[key]
		if !ok {
			return nil, fmt.Errorf("%w: no fetcher registered for informational dependency %q", ErrConfig, key)
		}

		m, err := fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching informational dependency %q: %w", key, err)
		}

		c.mu.Lock()
		c.results[key] = m
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(InfoMap), nil
}
