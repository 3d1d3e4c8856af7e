package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ClusterCockpit/cc-frontend/internal/adapters/cache"
	"github.com/ClusterCockpit/cc-frontend/internal/adapters/metricsprovider"
	"github.com/ClusterCockpit/cc-frontend/internal/adapters/transport"
	"github.com/ClusterCockpit/cc-frontend/internal/app"
	"github.com/ClusterCockpit/cc-frontend/internal/domain"
	"github.com/ClusterCockpit/cc-frontend/internal/exchange"
	"github.com/ClusterCockpit/cc-frontend/internal/ratelimiting"
)

type Config interface {
	BackendURL() string
	GraphQLURL() string
	JWT() string
	CacheTTL() time.Duration
	CacheMaxSize() int
	HTTPTimeout() time.Duration
	RetryAttempts() int
	RateLimitPerSecond() int
	RateLimitBurst() int
}

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type options struct {
	httpClient     HttpClient
	extraInitQuery string
	nowFunc        func() time.Time
	retryDelay     time.Duration
}

type Option func(*options)

// WithHTTPClient replaces the instrumented default HTTP client
func WithHTTPClient(httpClient HttpClient) Option {
	return func(o *options) {
		o.httpClient = httpClient
	}
}

// WithExtraInitQuery adds a selection to the session init query
func WithExtraInitQuery(selection string) Option {
	return func(o *options) {
		o.extraInitQuery = selection
	}
}

func WithNowFunc(nowFunc func() time.Time) Option {
	return func(o *options) {
		o.nowFunc = nowFunc
	}
}

func WithRetryDelay(delay time.Duration) Option {
	return func(o *options) {
		o.retryDelay = delay
	}
}

// Client is the entry point for talking to a ClusterCockpit backend. It owns
// one caching exchange in front of the GraphQL transport and one session.
type Client struct {
	exchange      *exchange.Exchange
	session       *app.Session
	getJobMetrics app.GetJobMetrics

	stopFuncs []func()
}

func New(config Config, opts ...Option) (*Client, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = transport.NewHTTPClient(config.HTTPTimeout())
	}

	var stopFuncs []func()

	var limiter ratelimiting.OperationRateLimiter
	if config.RateLimitPerSecond() > 0 {
		rateLimiter, stop := ratelimiting.NewTokenBucketRateLimiter(
			ratelimiting.RefillPerSecond(config.RateLimitPerSecond()),
			ratelimiting.BurstSize(config.RateLimitBurst()),
		)
		stopFuncs = append(stopFuncs, stop)
		limiter = ratelimiting.NewOperationBasedRateLimiter(rateLimiter, ratelimiting.OperationNameKeyFunc)
	}

	stopAll := func() {
		for _, stop := range stopFuncs {
			stop()
		}
	}

	httpTransport, err := transport.NewHTTPTransport(httpClient, transport.Options{
		URL:           config.GraphQLURL(),
		Token:         config.JWT(),
		RetryAttempts: uint(config.RetryAttempts()),
		RetryDelay:    o.retryDelay,
		Limiter:       limiter,
	})
	if err != nil {
		stopAll()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	ex, err := exchange.New(httpTransport, exchange.Options{
		TTL:     config.CacheTTL(),
		MaxSize: config.CacheMaxSize(),
		NowFunc: o.nowFunc,
	})
	if err != nil {
		stopAll()
		return nil, fmt.Errorf("failed to create exchange: %w", err)
	}

	provider, err := metricsprovider.NewRESTProvider(httpClient, config.BackendURL(), config.JWT())
	if err != nil {
		stopAll()
		return nil, fmt.Errorf("failed to create metrics provider: %w", err)
	}

	var getJobMetrics app.GetJobMetrics = provider.GetJobMetrics
	if config.CacheTTL() > 0 && config.CacheMaxSize() > 0 {
		jobMetricsCache, stop := cache.NewTTLCache[domain.JobMetrics](config.CacheTTL())
		stopFuncs = append(stopFuncs, stop)
		getJobMetrics = app.BuildGetJobMetricsWithCache(jobMetricsCache, provider)
	}

	return &Client{
		exchange:      ex,
		session:       app.NewSession(ex, o.extraInitQuery),
		getJobMetrics: getJobMetrics,

		stopFuncs: stopFuncs,
	}, nil
}

func (c *Client) Execute(ctx context.Context, op domain.Operation) (domain.Result, error) {
	return c.exchange.Execute(ctx, op)
}

func (c *Client) Query(ctx context.Context, document string, variables map[string]any) (domain.Result, error) {
	return c.Execute(ctx, domain.NewQuery(document, variables))
}

func (c *Client) Mutate(ctx context.Context, document string, variables map[string]any) (domain.Result, error) {
	return c.Execute(ctx, domain.NewMutation(document, variables))
}

func (c *Client) Session() *app.Session {
	return c.session
}

func (c *Client) JobMetrics(ctx context.Context, job domain.Job, metrics []string, scopes []domain.MetricScope) (domain.JobMetrics, error) {
	return c.getJobMetrics(ctx, job, metrics, scopes)
}

// Invalidate drops the cached queries depending on any of the tags, e.g.
// exchange.EntityTag("Job", "42")
func (c *Client) Invalidate(ctx context.Context, tags ...string) int {
	return c.exchange.Invalidate(ctx, tags...)
}

// ResetCache drops every cached query result
func (c *Client) ResetCache() {
	c.exchange.Clear()
}

func (c *Client) CacheStats() exchange.Stats {
	return c.exchange.Stats()
}

// Close stops the background goroutines of the client
func (c *Client) Close() {
	for _, stop := range c.stopFuncs {
		stop()
	}
	c.stopFuncs = nil
}
