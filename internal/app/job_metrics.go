package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClusterCockpit/cc-frontend/internal/adapters/cache"
	"github.com/ClusterCockpit/cc-frontend/internal/domain"
)

type GetJobMetrics func(ctx context.Context, job domain.Job, metrics []string, scopes []domain.MetricScope) (domain.JobMetrics, error)

type jobMetricsProvider interface {
	GetJobMetrics(ctx context.Context, job domain.Job, metrics []string, scopes []domain.MetricScope) (domain.JobMetrics, error)
}

func buildGetJobMetricsWithoutCache(provider jobMetricsProvider) GetJobMetrics {
	return func(ctx context.Context, job domain.Job, metrics []string, scopes []domain.MetricScope) (domain.JobMetrics, error) {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		jobMetrics, err := provider.GetJobMetrics(ctx, job, metrics, scopes)
		if err != nil {
			// NOTE: jobMetricsProvider implementations handle their own error reporting
			return domain.JobMetrics{}, fmt.Errorf("could not get metrics for job %d: %w", job.ID, err)
		}

		return jobMetrics, nil
	}
}

func jobMetricsKey(job domain.Job, metrics []string, scopes []domain.MetricScope) string {
	scopeNames := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		scopeNames = append(scopeNames, string(scope))
	}
	return fmt.Sprintf("job:%d|metrics:%s|scopes:%s", job.ID, strings.Join(metrics, ","), strings.Join(scopeNames, ","))
}

func BuildGetJobMetricsWithCache(
	jobMetricsCache cache.Cache[domain.JobMetrics],
	provider jobMetricsProvider,
) GetJobMetrics {
	getJobMetricsWithoutCache := buildGetJobMetricsWithoutCache(provider)

	return func(ctx context.Context, job domain.Job, metrics []string, scopes []domain.MetricScope) (domain.JobMetrics, error) {
		if job.MonitoringStatus == 0 {
			return domain.JobMetrics{}, nil
		}

		key := jobMetricsKey(job, metrics, scopes)

		jobMetrics, _, err := cache.GetOrCreate(ctx, jobMetricsCache, key, func(ctx context.Context) (domain.JobMetrics, error) {
			return getJobMetricsWithoutCache(ctx, job, metrics, scopes)
		})
		if err != nil {
			// NOTE: GetOrCreate only returns an error if create() fails or the context is done.
			return domain.JobMetrics{}, fmt.Errorf("failed to cache.GetOrCreate job metrics: %w", err)
		}

		return jobMetrics, nil
	}
}
