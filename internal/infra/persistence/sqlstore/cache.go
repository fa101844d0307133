package sqlstore

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// statementCache memoizes rendered and rebound statement text. lru.Cache is
// not safe for concurrent use on its own.
type statementCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func newStatementCache(size int) *statementCache {
	return &statementCache{cache: lru.New(size)}
}

func (c *statementCache) get(key string, render func() (string, error)) (string, error) {
	c.mu.Lock()
	if v, ok := c.cache.Get(key); ok {
		c.mu.Unlock()
		return v.(string), nil
	}
	c.mu.Unlock()
	text, err := render()
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.cache.Add(key, text)
	c.mu.Unlock()
	return text, nil
}

func (c *statementCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

func (c *statementCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Clear()
}
