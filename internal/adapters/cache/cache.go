package cache

import "context"

type hitResult[T any] struct {
	data    T
	valid   bool
	claimed bool
}

// Cache is a keyed store where the first caller to miss claims the entry and
// is responsible for filling it, while later callers wait for the result
type Cache[T any] interface {
	getOrClaim(key string) hitResult[T]
	set(key string, data T)
	delete(key string)
	wait(ctx context.Context) error
}
