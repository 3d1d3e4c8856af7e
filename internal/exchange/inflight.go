package exchange

import (
	"context"
	"sync"

	"github.com/ClusterCockpit/cc-frontend/internal/domain"
)

// Call is the shared outcome of one fetch. Every waiter of a wave holds the
// same *Call.
type Call struct {
	done   chan struct{}
	result domain.Result
	err    error
}

// Wait blocks until the call settles or ctx is done. Giving up only affects
// the caller.
func (c *Call) Wait(ctx context.Context) (domain.Result, error) {
	select {
	case <-c.done:
		return c.result, c.err
	default:
	}

	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return domain.Result{}, ctx.Err()
	}
}

// Registry tracks the keys that currently have a fetch in flight
type Registry struct {
	mu    sync.Mutex
	calls map[string]*Call
}

func NewRegistry() *Registry {
	return &Registry{
		calls: make(map[string]*Call),
	}
}

// Join returns the in-flight call for key. The first caller of a wave is the
// leader and must perform the fetch and Settle it.
func (r *Registry) Join(key string) (*Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if call, ok := r.calls[key]; ok {
		return call, false
	}

	call := &Call{done: make(chan struct{})}
	r.calls[key] = call
	return call, true
}

// Settle delivers the outcome to every waiter of the current wave for key.
// Returns false if no wave was in flight.
func (r *Registry) Settle(key string, result domain.Result, err error) bool {
	r.mu.Lock()
	call, ok := r.calls[key]
	if ok {
		delete(r.calls, key)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	call.result = result
	call.err = err
	close(call.done)
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.calls)
}
