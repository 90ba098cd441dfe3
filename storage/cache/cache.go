// Package cache provides the in-process cache used for hot, read-mostly lists.
package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

type Cache struct {
	store *ristretto.Cache
}

var _ core.Cache = (*Cache)(nil) // interface compliance check

// New creates a cache holding up to maxItems entries, each costing 1.
func New(maxItems int64) (*Cache, error) {
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxItems * 10,
		MaxCost:            maxItems,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating cache")
	}
	return &Cache{store: store}, nil
}

func (c *Cache) Get(key string) (interface{}, bool) {
	return c.store.Get(key)
}

func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	c.store.SetWithTTL(key, value, 1, ttl)
	// make the value visible to the next Get
	c.store.Wait()
}

func (c *Cache) Del(keys ...string) {
	for _, key := range keys {
		c.store.Del(key)
	}
}

func (c *Cache) Close() {
	c.store.Close()
}
