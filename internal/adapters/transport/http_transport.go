package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ClusterCockpit/cc-frontend/internal/constants"
	"github.com/ClusterCockpit/cc-frontend/internal/domain"
	"github.com/ClusterCockpit/cc-frontend/internal/logging"
	"github.com/ClusterCockpit/cc-frontend/internal/ratelimiting"
	"github.com/ClusterCockpit/cc-frontend/internal/reporting"
	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const maxResponseSize = 64 << 20

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient creates an instrumented HTTP client. The timeout applies to
// each attempt separately.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}

type transportMetricsCollection struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
}

func setupTransportMetrics(meter metric.Meter) (transportMetricsCollection, error) {
	requestCount, err := meter.Int64Counter("transport/request_count")
	if err != nil {
		return transportMetricsCollection{}, fmt.Errorf("failed to create request count metric: %w", err)
	}

	requestDuration, err := meter.Float64Histogram(
		"transport/request_duration_seconds",
		metric.WithUnit("s"),
	)
	if err != nil {
		return transportMetricsCollection{}, fmt.Errorf("failed to create request duration metric: %w", err)
	}

	return transportMetricsCollection{
		requestCount:    requestCount,
		requestDuration: requestDuration,
	}, nil
}

type Options struct {
	// URL of the GraphQL endpoint
	URL string
	// Token is sent as a bearer token when set
	Token string
	// RetryAttempts is the total number of attempts for transient failures. Values below 1 mean a single attempt.
	RetryAttempts uint
	RetryDelay    time.Duration
	// Limiter throttles outgoing operations. Optional.
	Limiter ratelimiting.OperationRateLimiter
}

// HTTPTransport executes GraphQL operations over HTTP POST
type HTTPTransport struct {
	httpClient HttpClient
	url        string
	token      string
	attempts   uint
	retryDelay time.Duration
	limiter    ratelimiting.OperationRateLimiter

	metrics transportMetricsCollection
	tracer  trace.Tracer
}

func NewHTTPTransport(httpClient HttpClient, opts Options) (*HTTPTransport, error) {
	const name = "cc-frontend/adapters/transport"

	if opts.URL == "" {
		return nil, fmt.Errorf("%w: missing GraphQL URL", domain.ErrInvalidConfig)
	}

	meter := otel.Meter(name)
	tracer := otel.Tracer(name)

	metrics, err := setupTransportMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	attempts := opts.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}

	return &HTTPTransport{
		httpClient: httpClient,
		url:        opts.URL,
		token:      opts.Token,
		attempts:   attempts,
		retryDelay: retryDelay,
		limiter:    opts.Limiter,

		metrics: metrics,
		tracer:  tracer,
	}, nil
}

type graphQLRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// retryableError marks failures that may succeed on a later attempt
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func isRetryable(err error) bool {
	var retryable *retryableError
	return errors.As(err, &retryable)
}

func (t *HTTPTransport) Execute(ctx context.Context, op domain.Operation) (domain.Result, error) {
	ctx, span := t.tracer.Start(ctx, "HTTPTransport.Execute")
	defer span.End()

	span.SetAttributes(
		attribute.String("graphql.operation.type", op.Kind.String()),
		attribute.String("graphql.operation.name", op.Name),
	)

	if op.Kind == domain.KindSubscription {
		return domain.Result{}, domain.ErrSubscriptionsUnsupported
	}

	if t.limiter != nil && !t.limiter.Consume(op) {
		logging.FromContext(ctx).WarnContext(ctx, "Not executing operation due to rate limiting", slog.String("limiterKey", t.limiter.KeyFor(op)))
		return domain.Result{}, fmt.Errorf("%w: too many requests to the backend", domain.ErrTemporarilyUnavailable)
	}

	body, err := json.Marshal(graphQLRequest{
		Query:         op.Document,
		Variables:     op.Variables,
		OperationName: op.Name,
	})
	if err != nil {
		return domain.Result{}, fmt.Errorf("%w: failed to encode request: %w", domain.ErrTransport, err)
	}

	start := time.Now()
	result, err := retry.DoWithData(
		func() (domain.Result, error) {
			return t.attempt(ctx, op, body)
		},
		retry.Attempts(t.attempts),
		retry.Delay(t.retryDelay),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logging.FromContext(ctx).WarnContext(ctx, "Retrying GraphQL request",
				slog.Int("attempt", int(n)+1),
				slog.String("error", err.Error()),
			)
		}),
		retry.Context(ctx),
	)

	outcome := "success"
	switch {
	case err == nil && len(result.Errors) > 0:
		outcome = "graphql_error"
	case errors.Is(err, domain.ErrUnauthorized):
		outcome = "unauthorized"
	case err != nil:
		outcome = "error"
	}
	t.metrics.requestDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("operation_kind", op.Kind.String())))
	t.metrics.requestCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation_kind", op.Kind.String()),
		attribute.String("outcome", outcome),
	))

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.Result{}, fmt.Errorf("%w: %w", domain.ErrTransport, err)
		}
		if !errors.Is(err, domain.ErrTransport) && !errors.Is(err, domain.ErrUnauthorized) {
			err = fmt.Errorf("%w: %w", domain.ErrTransport, err)
		}
		if !errors.Is(err, domain.ErrUnauthorized) {
			reporting.Report(ctx, err, map[string]string{
				"operationName": op.Name,
				"operationKind": op.Kind.String(),
			})
		}
		return domain.Result{}, err
	}

	return result, nil
}

func (t *HTTPTransport) attempt(ctx context.Context, op domain.Operation, body []byte) (domain.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return domain.Result{}, fmt.Errorf("%w: failed to create request: %w", domain.ErrTransport, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", constants.USER_AGENT)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		err := fmt.Errorf("%w: failed to send request: %w", domain.ErrTransport, err)
		if ctx.Err() != nil {
			return domain.Result{}, err
		}
		return domain.Result{}, &retryableError{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return domain.Result{}, &retryableError{
			err: fmt.Errorf("%w: failed to read response body: %w", domain.ErrTransport, err),
		}
	}

	return resultFromResponse(resp.StatusCode, data)
}

// resultFromResponse classifies a backend response. GraphQL servers may answer
// validation failures with a 4xx status and an errors payload, which is a
// result and not a transport failure.
func resultFromResponse(statusCode int, data []byte) (domain.Result, error) {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return domain.Result{}, fmt.Errorf("%w: backend returned status code %d", domain.ErrUnauthorized, statusCode)
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return domain.Result{}, &retryableError{
			err: fmt.Errorf("%w: backend returned status code %d", domain.ErrTransport, statusCode),
		}
	}

	var result domain.Result
	decodeErr := json.Unmarshal(data, &result)

	if statusCode != http.StatusOK {
		if decodeErr == nil && len(result.Errors) > 0 {
			return result, nil
		}
		return domain.Result{}, fmt.Errorf("%w: backend returned status code %d", domain.ErrTransport, statusCode)
	}

	if decodeErr != nil {
		return domain.Result{}, fmt.Errorf("%w: failed to decode response: %w", domain.ErrTransport, decodeErr)
	}
	if !result.HasData() && len(result.Errors) == 0 {
		return domain.Result{}, fmt.Errorf("%w: response has neither data nor errors", domain.ErrTransport)
	}

	return result, nil
}
