package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ClusterCockpit/cc-frontend/internal/logging"
)

// Returns data, created, error
func GetOrCreate[T any](ctx context.Context, cache Cache[T], key string, create func(ctx context.Context) (T, error)) (T, bool, error) {
	// Clean up the cache if we claim an entry, but don't set it
	// This allows other callers to try again
	claimed := false
	set := false
	defer func() {
		if claimed && !set {
			cache.delete(key)
		}
	}()

	logger := logging.FromContext(ctx).With(slog.String("cacheKey", key))

	for {
		result := cache.getOrClaim(key)

		if result.claimed {
			claimed = true

			logger.DebugContext(ctx, "Getting cached value", "cache", "miss")

			data, err := create(ctx)
			if err != nil {
				var empty T
				return empty, false, fmt.Errorf("failed to create cache entry: %w", err)
			}

			cache.set(key, data)
			set = true

			return data, true, nil
		}

		if result.valid {
			logger.DebugContext(ctx, "Getting cached value", "cache", "hit")
			return result.data, false, nil
		}

		logger.DebugContext(ctx, "Waiting for cache")
		if err := cache.wait(ctx); err != nil {
			var empty T
			return empty, false, fmt.Errorf("failed waiting for cache entry: %w", err)
		}
	}
}
