package ratelimiting

import (
	"fmt"
	"time"

	"github.com/ClusterCockpit/cc-frontend/internal/domain"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"
)

type RateLimiter interface {
	Consume(key string) bool
}

type tokenBucketRateLimiter struct {
	limiterByKey    *ttlcache.Cache[string, *rate.Limiter]
	refillPerSecond int
	burstSize       int
}

func (rateLimiter *tokenBucketRateLimiter) Consume(key string) bool {
	limiter, _ := rateLimiter.limiterByKey.GetOrSet(key, rate.NewLimiter(rate.Limit(rateLimiter.refillPerSecond), rateLimiter.burstSize))
	return limiter.Value().Allow()
}

type RefillPerSecond int
type BurstSize int

// NewTokenBucketRateLimiter creates a limiter with one token bucket per key.
// Buckets for keys that have not been seen for a while are dropped.
//
// Call the returned stop function to release the cleanup goroutine.
func NewTokenBucketRateLimiter(refillPerSecond RefillPerSecond, burstSize BurstSize) (RateLimiter, func()) {
	limiterTTLCache := ttlcache.New[string, *rate.Limiter](
		ttlcache.WithTTL[string, *rate.Limiter](30 * time.Minute),
	)
	go limiterTTLCache.Start()

	return &tokenBucketRateLimiter{
		limiterByKey:    limiterTTLCache,
		refillPerSecond: int(refillPerSecond),
		burstSize:       int(burstSize),
	}, limiterTTLCache.Stop
}

// OperationRateLimiter throttles outgoing GraphQL operations
type OperationRateLimiter interface {
	Consume(op domain.Operation) bool
	KeyFor(op domain.Operation) string
}

type operationBasedRateLimiter struct {
	limiter RateLimiter
	keyFunc func(op domain.Operation) string
}

func (rateLimiter *operationBasedRateLimiter) Consume(op domain.Operation) bool {
	return rateLimiter.limiter.Consume(rateLimiter.keyFunc(op))
}

func (rateLimiter *operationBasedRateLimiter) KeyFor(op domain.Operation) string {
	return rateLimiter.keyFunc(op)
}

func NewOperationBasedRateLimiter(limiter RateLimiter, keyFunc func(op domain.Operation) string) OperationRateLimiter {
	return &operationBasedRateLimiter{
		limiter: limiter,
		keyFunc: keyFunc,
	}
}

// OperationNameKeyFunc gives every named operation its own bucket
func OperationNameKeyFunc(op domain.Operation) string {
	name := op.Name
	if name == "" {
		name = "<anonymous>"
	}
	return fmt.Sprintf("%s: %.50s", op.Kind, name)
}

// BackendKeyFunc shares a single bucket between all operations
func BackendKeyFunc(domain.Operation) string {
	return "backend"
}
