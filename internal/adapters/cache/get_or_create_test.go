package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createCallback(data int) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		return fmt.Sprintf("data%d", data), nil
	}
}

func createUnreachable(t *testing.T) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		t.Helper()
		t.Error("Unreachable code executed")
		return "", nil
	}
}

func TestGetOrCreate(t *testing.T) {
	t.Parallel()

	caches := map[string]func(t *testing.T) Cache[string]{
		"basic": func(t *testing.T) Cache[string] {
			return NewBasicCache[string]()
		},
		"ttl": func(t *testing.T) Cache[string] {
			cache, stop := NewTTLCache[string](time.Hour)
			t.Cleanup(stop)
			return cache
		},
	}

	for name, newCache := range caches {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			t.Run("miss then hit", func(t *testing.T) {
				t.Parallel()
				cache := newCache(t)

				data, created, err := GetOrCreate(t.Context(), cache, "key1", createCallback(1))
				require.NoError(t, err)
				require.True(t, created)
				require.Equal(t, "data1", data)

				data, created, err = GetOrCreate(t.Context(), cache, "key1", createUnreachable(t))
				require.NoError(t, err)
				require.False(t, created)
				require.Equal(t, "data1", data)

				data, created, err = GetOrCreate(t.Context(), cache, "key2", createCallback(2))
				require.NoError(t, err)
				require.True(t, created)
				require.Equal(t, "data2", data)
			})

			t.Run("errors are not cached", func(t *testing.T) {
				t.Parallel()
				cache := newCache(t)

				_, created, err := GetOrCreate(t.Context(), cache, "key1", func(context.Context) (string, error) {
					return "", errors.New("backend down")
				})
				require.ErrorContains(t, err, "backend down")
				require.False(t, created)

				data, created, err := GetOrCreate(t.Context(), cache, "key1", createCallback(3))
				require.NoError(t, err)
				require.True(t, created)
				require.Equal(t, "data3", data)
			})

			t.Run("concurrent callers share one create", func(t *testing.T) {
				t.Parallel()
				cache := newCache(t)

				release := make(chan struct{})
				started := make(chan struct{})
				var calls atomic.Int32

				create := func(context.Context) (string, error) {
					if calls.Add(1) == 1 {
						close(started)
					}
					<-release
					return "shared", nil
				}

				const callers = 5
				results := make([]string, callers)
				var wg sync.WaitGroup

				wg.Add(1)
				go func() {
					defer wg.Done()
					data, _, err := GetOrCreate(context.Background(), cache, "key", create)
					assert.NoError(t, err)
					results[0] = data
				}()
				<-started

				for i := 1; i < callers; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						data, created, err := GetOrCreate(context.Background(), cache, "key", create)
						assert.NoError(t, err)
						assert.False(t, created)
						results[i] = data
					}()
				}

				close(release)
				wg.Wait()

				require.Equal(t, int32(1), calls.Load())
				for _, result := range results {
					require.Equal(t, "shared", result)
				}
			})

			t.Run("waiting respects context", func(t *testing.T) {
				t.Parallel()
				cache := newCache(t)

				release := make(chan struct{})
				started := make(chan struct{})
				done := make(chan struct{})
				go func() {
					defer close(done)
					_, _, _ = GetOrCreate(context.Background(), cache, "key", func(context.Context) (string, error) {
						close(started)
						<-release
						return "late", nil
					})
				}()
				<-started

				ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
				defer cancel()

				_, _, err := GetOrCreate(ctx, cache, "key", createUnreachable(t))
				require.ErrorIs(t, err, context.DeadlineExceeded)

				close(release)
				<-done
			})
		})
	}
}

func TestTTLCacheExpires(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping test in short mode")
	}
	t.Parallel()

	cache, stop := NewTTLCache[string](20 * time.Millisecond)
	defer stop()

	_, created, err := GetOrCreate(t.Context(), cache, "key", createCallback(1))
	require.NoError(t, err)
	require.True(t, created)

	time.Sleep(50 * time.Millisecond)

	data, created, err := GetOrCreate(t.Context(), cache, "key", createCallback(2))
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "data2", data)
}
