package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ClusterCockpit/cc-frontend/internal/domain"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentMetricsRequests = 4

func (c *CLI) newMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics <jobID>...",
		Short: "Fetch the metric data of jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metrics, _ := cmd.Flags().GetStringSlice("metric")
			rawScopes, _ := cmd.Flags().GetStringSlice("scope")

			scopes := make([]domain.MetricScope, 0, len(rawScopes))
			for _, raw := range rawScopes {
				scope, err := domain.ParseScope(raw)
				if err != nil {
					return err
				}
				scopes = append(scopes, scope)
			}

			jobIDs := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid job id %q", arg)
				}
				jobIDs = append(jobIDs, id)
			}

			data := make([]json.RawMessage, len(jobIDs))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(maxConcurrentMetricsRequests)
			for i, id := range jobIDs {
				g.Go(func() error {
					// Only the backend knows the monitoring status
					job := domain.Job{ID: id, MonitoringStatus: 1}
					jobMetrics, err := c.client.JobMetrics(ctx, job, metrics, scopes)
					if err != nil {
						return fmt.Errorf("failed to get metrics for job %d: %w", id, err)
					}
					data[i] = jobMetrics.Data
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			byJob := make(map[string]json.RawMessage, len(jobIDs))
			for i, id := range jobIDs {
				byJob[strconv.FormatInt(id, 10)] = data[i]
			}
			if err := writeJSON(cmd.OutOrStdout(), byJob); err != nil {
				return err
			}
			return c.printStats(cmd)
		},
	}
	cmd.Flags().StringSlice("metric", nil, "Metrics to fetch. All metrics when empty.")
	cmd.Flags().StringSlice("scope", nil, "Scopes to fetch, e.g. node,socket")
	return cmd
}
