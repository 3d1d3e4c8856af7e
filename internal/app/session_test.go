package app_test

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ClusterCockpit/cc-frontend/internal/app"
	"github.com/ClusterCockpit/cc-frontend/internal/domain"
	"github.com/stretchr/testify/require"
)

const initData = `{
	"clusters": [
		{
			"name": "fritz",
			"__typename": "Cluster",
			"metricConfig": [
				{"name": "flops_any", "unit": {"base": "F/s", "prefix": "G"}, "peak": 5600, "normal": 1000, "caution": 200, "alert": 50, "timestep": 60, "scope": "hwthread"},
				{"name": "mem_bw", "unit": {"base": "B/s", "prefix": "G"}, "peak": 350, "normal": 100, "caution": 50, "alert": 10, "timestep": 60, "scope": "socket"}
			],
			"filterRanges": {"duration": {"from": 0, "to": 86400}, "numNodes": {"from": 1, "to": 64}, "startTime": {"from": "2022-01-01T00:00:00Z", "to": "2022-12-31T00:00:00Z"}},
			"partitions": [{"name": "main", "processorType": "Intel Icelake", "socketsPerNode": 2, "coresPerSocket": 36, "threadsPerCore": 1, "flopRateScalar": 432, "flopRateSimd": 9216, "memoryBandwidth": 350, "topology": {"accelerators": []}}]
		}
	],
	"tags": [
		{"id": "1", "name": "io-stall", "type": "bug", "__typename": "Tag"},
		{"id": "2", "name": "lustre", "type": "filesystem", "__typename": "Tag"},
		{"id": "3", "name": "cuda-oom", "type": "bug", "__typename": "Tag"}
	]
}`

type fakeExecutor struct {
	t       *testing.T
	calls   atomic.Int32
	release chan struct{}
	result  domain.Result
	err     error

	lastOp domain.Operation
	mu     sync.Mutex
}

func (f *fakeExecutor) Execute(ctx context.Context, op domain.Operation) (domain.Result, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastOp = op
	f.mu.Unlock()

	if f.release != nil {
		<-f.release
	}
	return f.result, f.err
}

type executorFunc func(ctx context.Context, op domain.Operation) (domain.Result, error)

func (f executorFunc) Execute(ctx context.Context, op domain.Operation) (domain.Result, error) {
	return f(ctx, op)
}

func TestSession(t *testing.T) {
	t.Parallel()

	t.Run("init loads clusters and tags", func(t *testing.T) {
		t.Parallel()

		executor := &fakeExecutor{t: t, result: domain.Result{Data: []byte(initData)}}
		session := app.NewSession(executor, "user { username }")

		_, err := session.Tags()
		require.ErrorIs(t, err, domain.ErrNotInitialized)

		require.NoError(t, session.Init(t.Context()))
		require.Equal(t, domain.KindQuery, executor.lastOp.Kind)
		require.Contains(t, executor.lastOp.Document, "user { username }")
		require.True(t, strings.HasPrefix(executor.lastOp.Document, "query SessionInit"))

		tags, err := session.Tags()
		require.NoError(t, err)
		require.Len(t, tags, 3)

		clusters, err := session.Clusters()
		require.NoError(t, err)
		require.Len(t, clusters, 1)
		require.Equal(t, 36, clusters[0].Partitions[0].CoresPerSocket)

		config, err := session.MetricConfig("fritz", "mem_bw")
		require.NoError(t, err)
		require.Equal(t, domain.Unit{Base: "B/s", Prefix: "G"}, config.Unit)
		require.Equal(t, "socket", config.Scope)

		_, err = session.MetricConfig("fritz", "ipc")
		require.ErrorIs(t, err, domain.ErrMetricNotFound)

		_, err = session.MetricConfig("alex", "mem_bw")
		require.ErrorIs(t, err, domain.ErrClusterNotFound)

		found, err := session.SearchTags("bug:")
		require.NoError(t, err)
		require.Equal(t, []domain.Tag{
			{ID: "3", Name: "cuda-oom", Type: "bug"},
			{ID: "1", Name: "io-stall", Type: "bug"},
		}, found)

		// Later calls do not query again
		require.NoError(t, session.Init(t.Context()))
		require.Equal(t, int32(1), executor.calls.Load())
	})

	t.Run("transport failure", func(t *testing.T) {
		t.Parallel()

		executor := &fakeExecutor{t: t, err: domain.ErrTransport}
		session := app.NewSession(executor, "")

		err := session.Init(t.Context())
		require.ErrorIs(t, err, domain.ErrTransport)

		state := session.State()
		require.False(t, state.Fetching)
		require.ErrorIs(t, state.Err, domain.ErrTransport)
		require.Nil(t, state.Data)

		_, err = session.Clusters()
		require.ErrorIs(t, err, domain.ErrNotInitialized)
		require.ErrorIs(t, err, domain.ErrTransport)
	})

	t.Run("graphql errors", func(t *testing.T) {
		t.Parallel()

		executor := &fakeExecutor{t: t, result: domain.Result{Errors: []domain.GraphQLError{{Message: "unknown field"}}}}
		session := app.NewSession(executor, "")

		err := session.Init(t.Context())
		require.ErrorContains(t, err, "unknown field")
	})

	t.Run("subscribers in registration order", func(t *testing.T) {
		t.Parallel()

		executor := &fakeExecutor{t: t, result: domain.Result{Data: []byte(initData)}}
		session := app.NewSession(executor, "")

		var mu sync.Mutex
		var calls []string
		record := func(name string) func(app.SessionState) {
			return func(state app.SessionState) {
				mu.Lock()
				defer mu.Unlock()
				if state.Fetching {
					calls = append(calls, name+":fetching")
				} else {
					calls = append(calls, name+":done")
				}
			}
		}

		session.Subscribe(record("first"))
		unsubscribe := session.Subscribe(record("second"))
		session.Subscribe(record("third"))
		session.OnInit(record("onInit"))
		unsubscribe()

		require.NoError(t, session.Init(t.Context()))

		// Subscribing after completion delivers the final state right away
		session.Subscribe(record("late"))
		session.OnInit(record("lateOnInit"))

		require.Equal(t, []string{
			"first:fetching",
			"second:fetching",
			"third:fetching",
			"first:done",
			"third:done",
			"onInit:done",
			"late:done",
			"lateOnInit:done",
		}, calls)
	})

	t.Run("concurrent init waits for the first", func(t *testing.T) {
		t.Parallel()

		executor := &fakeExecutor{t: t, result: domain.Result{Data: []byte(initData)}, release: make(chan struct{})}
		session := app.NewSession(executor, "")

		firstDone := make(chan error)
		go func() {
			firstDone <- session.Init(context.Background())
		}()

		secondDone := make(chan error)
		go func() {
			secondDone <- session.Init(context.Background())
		}()

		close(executor.release)
		require.NoError(t, <-firstDone)
		require.NoError(t, <-secondDone)
		require.Equal(t, int32(1), executor.calls.Load())

		select {
		case <-session.Initialized():
		default:
			t.Fatal("session should be initialized")
		}
	})

	t.Run("waiting init respects context", func(t *testing.T) {
		t.Parallel()

		executor := &fakeExecutor{t: t, result: domain.Result{Data: []byte(initData)}, release: make(chan struct{})}
		session := app.NewSession(executor, "")

		firstDone := make(chan error)
		go func() {
			firstDone <- session.Init(context.Background())
		}()
		for executor.calls.Load() == 0 {
			// Wait for the first Init to claim the query
			runtime.Gosched()
		}

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		require.ErrorIs(t, session.Init(ctx), context.Canceled)

		close(executor.release)
		require.NoError(t, <-firstDone)
		require.False(t, errors.Is(session.Err(), context.Canceled))
	})

	t.Run("abandoned init can be retried", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		session := app.NewSession(executorFunc(func(ctx context.Context, op domain.Operation) (domain.Result, error) {
			if calls.Add(1) == 1 {
				<-ctx.Done()
				return domain.Result{}, ctx.Err()
			}
			return domain.Result{Data: []byte(initData)}, nil
		}), "")

		var states []app.SessionState
		session.Subscribe(func(state app.SessionState) {
			states = append(states, state)
		})

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		require.ErrorIs(t, session.Init(ctx), context.Canceled)

		// Nothing was delivered for the abandoned attempt
		require.True(t, session.State().Fetching)
		require.Len(t, states, 1)

		require.NoError(t, session.Init(t.Context()))
		require.Equal(t, int32(2), calls.Load())
		require.Len(t, states, 2)
		require.False(t, states[1].Fetching)

		tags, err := session.Tags()
		require.NoError(t, err)
		require.Len(t, tags, 3)
	})
}
