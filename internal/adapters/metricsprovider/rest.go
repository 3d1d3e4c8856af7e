package metricsprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ClusterCockpit/cc-frontend/internal/constants"
	"github.com/ClusterCockpit/cc-frontend/internal/domain"
	"github.com/ClusterCockpit/cc-frontend/internal/reporting"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type JobMetricsProvider interface {
	GetJobMetrics(ctx context.Context, job domain.Job, metrics []string, scopes []domain.MetricScope) (domain.JobMetrics, error)
}

type restProvider struct {
	httpClient HttpClient
	baseURL    string
	token      string

	requestCount metric.Int64Counter
	tracer       trace.Tracer
}

func NewRESTProvider(httpClient HttpClient, baseURL string, token string) (*restProvider, error) {
	const name = "cc-frontend/adapters/metricsprovider"

	meter := otel.Meter(name)
	tracer := otel.Tracer(name)

	requestCount, err := meter.Int64Counter("metricsprovider/request_count")
	if err != nil {
		return nil, fmt.Errorf("failed to create request count metric: %w", err)
	}

	return &restProvider{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,

		requestCount: requestCount,
		tracer:       tracer,
	}, nil
}

// JobMetricsURL builds the REST url for the metrics of a job. Metrics and
// scopes are repeated query parameters and are omitted when empty.
func JobMetricsURL(baseURL string, jobID int64, metrics []string, scopes []domain.MetricScope) string {
	query := url.Values{}
	for _, m := range metrics {
		query.Add("metric", m)
	}
	for _, s := range scopes {
		query.Add("scope", string(s))
	}

	u := fmt.Sprintf("%s/api/jobs/metrics/%d", baseURL, jobID)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// GetJobMetrics fetches the metric data of a job.
//
// Jobs that are not monitored have no metrics, and the zero JobMetrics is
// returned without contacting the backend.
func (p *restProvider) GetJobMetrics(ctx context.Context, job domain.Job, metrics []string, scopes []domain.MetricScope) (domain.JobMetrics, error) {
	ctx, span := p.tracer.Start(ctx, "MetricsProvider.GetJobMetrics")
	defer span.End()

	span.SetAttributes(attribute.Int64("job.id", job.ID))

	if job.MonitoringStatus == 0 {
		return domain.JobMetrics{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, JobMetricsURL(p.baseURL, job.ID, metrics, scopes), nil)
	if err != nil {
		err := fmt.Errorf("failed to create request: %w", err)
		reporting.Report(ctx, err)
		return domain.JobMetrics{}, err
	}

	req.Header.Set("User-Agent", constants.USER_AGENT)
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		err := fmt.Errorf("%w: failed to fetch job metrics: %w", domain.ErrTransport, err)
		reporting.Report(ctx, err)
		return domain.JobMetrics{}, err
	}
	defer resp.Body.Close()

	p.requestCount.Add(ctx, 1, metric.WithAttributes(attribute.String("status_code", strconv.Itoa(resp.StatusCode))))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		err := fmt.Errorf("%w: failed to read response body: %w", domain.ErrTransport, err)
		reporting.Report(ctx, err)
		return domain.JobMetrics{}, err
	}

	if resp.StatusCode != http.StatusOK {
		// Client errors are forwarded to the caller as-is
		return domain.JobMetrics{}, &domain.JobMetricsError{
			Status:  resp.StatusCode,
			Message: string(data),
		}
	}

	var jobMetrics domain.JobMetrics
	err = json.Unmarshal(data, &jobMetrics)
	if err != nil {
		err := fmt.Errorf("failed to decode job metrics: %w", err)
		reporting.Report(ctx, err, map[string]string{"data": string(data)})
		return domain.JobMetrics{}, err
	}

	return jobMetrics, nil
}
