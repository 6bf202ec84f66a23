package filter

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// filterCache holds compiled filters keyed by their trimmed expression.
type filterCache struct {
	cache *lru.Cache[string, CompiledFilter]
}

func newFilterCache(size int) (*filterCache, error) {
	c, err := lru.New[string, CompiledFilter](size)
	if err != nil {
		return nil, err
	}
	return &filterCache{cache: c}, nil
}

func (c *filterCache) Get(expression string) (CompiledFilter, bool) {
	return c.cache.Get(expression)
}

func (c *filterCache) Put(expression string, filter CompiledFilter) {
	c.cache.Add(expression, filter)
}

func (c *filterCache) Clear() {
	c.cache.Purge()
}

func (c *filterCache) Size() int {
	return c.cache.Len()
}
