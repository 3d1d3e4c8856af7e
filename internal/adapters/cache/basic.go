package cache

import (
	"context"
	"sync"
	"time"
)

type basicCacheEntry[T any] struct {
	data  T
	valid bool
}

// basicCache never expires entries
type basicCache[T any] struct {
	cache     map[string]basicCacheEntry[T]
	cacheLock sync.Mutex
}

func (c *basicCache[T]) getOrClaim(key string) hitResult[T] {
	c.cacheLock.Lock()
	defer c.cacheLock.Unlock()

	oldValue, ok := c.cache[key]
	if ok {
		return hitResult[T]{
			data:    oldValue.data,
			valid:   oldValue.valid,
			claimed: false,
		}
	}

	c.cache[key] = basicCacheEntry[T]{valid: false}
	return hitResult[T]{
		valid:   false,
		claimed: true,
	}
}

func (c *basicCache[T]) set(key string, data T) {
	c.cacheLock.Lock()
	defer c.cacheLock.Unlock()

	c.cache[key] = basicCacheEntry[T]{data: data, valid: true}
}

func (c *basicCache[T]) delete(key string) {
	c.cacheLock.Lock()
	defer c.cacheLock.Unlock()

	delete(c.cache, key)
}

func (c *basicCache[T]) wait(ctx context.Context) error {
	return sleepContext(ctx, 5*time.Millisecond)
}

func NewBasicCache[T any]() *basicCache[T] {
	return &basicCache[T]{
		cache: make(map[string]basicCacheEntry[T]),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
