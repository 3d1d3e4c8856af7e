package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClusterCockpit/cc-frontend/internal/domain"
	"github.com/ClusterCockpit/cc-frontend/internal/logging"
	"github.com/ClusterCockpit/cc-frontend/internal/reporting"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type Executor interface {
	Execute(ctx context.Context, op domain.Operation) (domain.Result, error)
}

type ExecutorFunc func(ctx context.Context, op domain.Operation) (domain.Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, op domain.Operation) (domain.Result, error) {
	return f(ctx, op)
}

const DefaultDocumentCacheSize = 256

type Options struct {
	// How long a query result stays fresh. Hits don't extend it.
	TTL time.Duration
	// Maximum number of live cache entries
	MaxSize int
	// Number of prepared documents to remember. Defaults to DefaultDocumentCacheSize.
	DocumentCacheSize int
	NowFunc           func() time.Time
}

type exchangeMetricsCollection struct {
	hitCount         metric.Int64Counter
	missCount        metric.Int64Counter
	coalescedCount   metric.Int64Counter
	uncacheableCount metric.Int64Counter
	invalidatedCount metric.Int64Counter
}

func setupExchangeMetrics(meter metric.Meter) (exchangeMetricsCollection, error) {
	hitCount, err := meter.Int64Counter(
		"exchange/cache_hit_count",
		metric.WithDescription("Queries served from the cache"),
	)
	if err != nil {
		return exchangeMetricsCollection{}, fmt.Errorf("failed to create hit count metric: %w", err)
	}

	missCount, err := meter.Int64Counter(
		"exchange/cache_miss_count",
		metric.WithDescription("Queries not found in the cache"),
	)
	if err != nil {
		return exchangeMetricsCollection{}, fmt.Errorf("failed to create miss count metric: %w", err)
	}

	coalescedCount, err := meter.Int64Counter(
		"exchange/coalesced_count",
		metric.WithDescription("Queries that joined a fetch already in flight"),
	)
	if err != nil {
		return exchangeMetricsCollection{}, fmt.Errorf("failed to create coalesced count metric: %w", err)
	}

	uncacheableCount, err := meter.Int64Counter(
		"exchange/uncacheable_count",
		metric.WithDescription("Operations forwarded without caching"),
	)
	if err != nil {
		return exchangeMetricsCollection{}, fmt.Errorf("failed to create uncacheable count metric: %w", err)
	}

	invalidatedCount, err := meter.Int64Counter(
		"exchange/invalidated_count",
		metric.WithDescription("Cache entries removed by mutations"),
	)
	if err != nil {
		return exchangeMetricsCollection{}, fmt.Errorf("failed to create invalidated count metric: %w", err)
	}

	return exchangeMetricsCollection{
		hitCount:         hitCount,
		missCount:        missCount,
		coalescedCount:   coalescedCount,
		uncacheableCount: uncacheableCount,
		invalidatedCount: invalidatedCount,
	}, nil
}

type Stats struct {
	Store    StoreStats
	InFlight int
	Tags     int
}

// Exchange caches query results in front of another Executor.
//
// Queries are served from the store while fresh, concurrent identical queries
// share one downstream call, and mutation results invalidate the cached
// queries that depend on the entities they return. Subscriptions pass through.
type Exchange struct {
	next     Executor
	keyer    *Keyer
	store    *Store
	index    *DependencyIndex
	inFlight *Registry

	ttl     time.Duration
	nowFunc func() time.Time

	metrics exchangeMetricsCollection
	tracer  trace.Tracer
}

func New(next Executor, opts Options) (*Exchange, error) {
	const name = "cc-frontend/exchange"

	if next == nil {
		return nil, fmt.Errorf("%w: missing downstream executor", domain.ErrInvalidConfig)
	}
	if opts.TTL < 0 {
		return nil, fmt.Errorf("%w: ttl must not be negative (got %s)", domain.ErrInvalidConfig, opts.TTL)
	}

	index := NewDependencyIndex()
	store, err := NewStore(opts.MaxSize, index)
	if err != nil {
		return nil, err
	}

	documentCacheSize := opts.DocumentCacheSize
	if documentCacheSize == 0 {
		documentCacheSize = DefaultDocumentCacheSize
	}
	keyer, err := NewKeyer(documentCacheSize)
	if err != nil {
		return nil, err
	}

	nowFunc := opts.NowFunc
	if nowFunc == nil {
		nowFunc = time.Now
	}

	metrics, err := setupExchangeMetrics(otel.Meter(name))
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	return &Exchange{
		next:     next,
		keyer:    keyer,
		store:    store,
		index:    index,
		inFlight: NewRegistry(),

		ttl:     opts.TTL,
		nowFunc: nowFunc,

		metrics: metrics,
		tracer:  otel.Tracer(name),
	}, nil
}

func (e *Exchange) Execute(ctx context.Context, op domain.Operation) (domain.Result, error) {
	ctx, span := e.tracer.Start(ctx, "Exchange.Execute")
	defer span.End()

	span.SetAttributes(attribute.String("operation.kind", op.Kind.String()))
	ctx = logging.AddMetaToContext(ctx, slog.String("operationKind", op.Kind.String()))
	ctx = reporting.AddOperationToContext(ctx, op.Kind.String(), op.Name)

	switch op.Kind {
	case domain.KindQuery:
		return e.executeQuery(ctx, op)
	case domain.KindMutation:
		return e.executeMutation(ctx, op)
	default:
		e.metrics.uncacheableCount.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", op.Kind.String())))
		return e.next.Execute(ctx, op)
	}
}

func (e *Exchange) executeQuery(ctx context.Context, op domain.Operation) (domain.Result, error) {
	logger := logging.FromContext(ctx)

	prepared, key, err := e.keyer.Prepare(op)
	if err != nil {
		logger.DebugContext(ctx, "Forwarding uncacheable query", "error", err.Error())
		e.metrics.uncacheableCount.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", op.Kind.String())))
		return e.next.Execute(ctx, op)
	}

	attributes := metric.WithAttributes(attribute.String("operation_name", prepared.Name))

	if entry, ok := e.store.Get(key, e.nowFunc()); ok {
		logger.DebugContext(ctx, "Executing query", "cache", "hit", "operationName", prepared.Name)
		e.metrics.hitCount.Add(ctx, 1, attributes)
		return entry.Result, nil
	}
	e.metrics.missCount.Add(ctx, 1, attributes)

	call, leader := e.inFlight.Join(key)
	if leader {
		logger.DebugContext(ctx, "Executing query", "cache", "miss", "operationName", prepared.Name)
		generation := e.store.Generation()
		// The fetch is shared, so it must outlive the caller that started it
		go e.fetch(context.WithoutCancel(ctx), prepared, key, generation)
	} else {
		logger.DebugContext(ctx, "Executing query", "cache", "in-flight", "operationName", prepared.Name)
		e.metrics.coalescedCount.Add(ctx, 1, attributes)
	}

	return call.Wait(ctx)
}

func (e *Exchange) fetch(ctx context.Context, op domain.Operation, key string, generation uint64) {
	settled := false
	defer func() {
		if r := recover(); r != nil && !settled {
			err := fmt.Errorf("%w: panic in downstream executor: %v", domain.ErrTransport, r)
			reporting.Report(ctx, err)
			e.inFlight.Settle(key, domain.Result{}, err)
		}
	}()

	result, err := e.next.Execute(ctx, op)
	if err == nil {
		e.storeResult(ctx, key, result, generation)
	}

	settled = true
	e.inFlight.Settle(key, result, err)
}

// storeResult caches result unless a mutation or a clear happened while it was
// being fetched. Waiters still receive it.
func (e *Exchange) storeResult(ctx context.Context, key string, result domain.Result, generation uint64) {
	logger := logging.FromContext(ctx)

	if !result.HasData() {
		logger.DebugContext(ctx, "Not caching result without data", "errors", len(result.Errors))
		return
	}

	tags, err := ExtractTypeTags(result.Data)
	if err != nil {
		logger.WarnContext(ctx, "Not caching result with malformed data", "error", err.Error())
		return
	}

	now := e.nowFunc()
	stored := e.store.PutIfCurrent(CacheEntry{
		Key:        key,
		Result:     result,
		TypeTags:   tags,
		InsertedAt: now,
		ExpiresAt:  now.Add(e.ttl),
	}, generation)
	if !stored {
		logger.DebugContext(ctx, "Not caching result fetched across an invalidation")
	}
}

func (e *Exchange) executeMutation(ctx context.Context, op domain.Operation) (domain.Result, error) {
	logger := logging.FromContext(ctx)

	prepared, _, err := e.keyer.Prepare(op)
	if err != nil {
		logger.DebugContext(ctx, "Forwarding mutation with unparsed document", "error", err.Error())
	}

	result, err := e.next.Execute(ctx, prepared)
	if err != nil {
		// State is presumed unchanged
		return result, err
	}

	if !result.HasData() {
		return result, nil
	}

	tags, err := ExtractInvalidationTags(result.Data)
	if err != nil {
		logger.WarnContext(ctx, "Could not extract invalidation tags from mutation result", "error", err.Error())
		return result, nil
	}
	e.Invalidate(ctx, tags...)

	return result, nil
}

// Invalidate removes every cached entry depending on any of the tags.
// Returns the number of entries removed.
func (e *Exchange) Invalidate(ctx context.Context, tags ...string) int {
	if len(tags) == 0 {
		return 0
	}

	removed := e.store.Invalidate(e.index.KeysForTags(tags), tags)

	if removed > 0 {
		logging.FromContext(ctx).InfoContext(ctx, "Invalidated cached queries", "count", removed, "tags", tags)
		e.metrics.invalidatedCount.Add(ctx, int64(removed))
	}

	return removed
}

// Clear drops every cached result. Fetches in flight still settle their
// waiters and may repopulate the cache.
func (e *Exchange) Clear() {
	e.store.Clear()
}

func (e *Exchange) Stats() Stats {
	return Stats{
		Store:    e.store.Stats(),
		InFlight: e.inFlight.Len(),
		Tags:     e.index.Len(),
	}
}
