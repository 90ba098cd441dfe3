package core

import (
	"sync"
	"time"
)

// Cache is any in-process key/value cache.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	Del(keys ...string)
}

// CachedValue caches the result of one query under a single key.
// A load that overlaps an Invalidate is returned to its caller but not cached.
type CachedValue[T any] struct {
	cache Cache
	key   string
	ttl   time.Duration

	mu  sync.Mutex
	gen uint64
}

func NewCachedValue[T any](cache Cache, key string, ttl time.Duration) *CachedValue[T] {
	return &CachedValue[T]{cache: cache, key: key, ttl: ttl}
}

// Get returns the cached value, calling load on a miss.
func (v *CachedValue[T]) Get(load func() (T, error)) (T, error) {
	if cached, ok := v.cache.Get(v.key); ok {
		if val, ok := cached.(T); ok {
			return val, nil
		}
	}

	v.mu.Lock()
	gen := v.gen
	v.mu.Unlock()

	val, err := load()
	if err != nil {
		return val, err
	}

	v.mu.Lock()
	if v.gen == gen {
		v.cache.Set(v.key, val, v.ttl)
	}
	v.mu.Unlock()
	return val, nil
}

// Invalidate drops the cached value. Call it once the write it follows is committed.
func (v *CachedValue[T]) Invalidate() {
	v.mu.Lock()
	v.gen++
	v.cache.Del(v.key)
	v.mu.Unlock()
}
