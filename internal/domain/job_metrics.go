package domain

import (
	"encoding/json"
	"fmt"
)

type Job struct {
	ID               int64 `json:"id"`
	MonitoringStatus int   `json:"monitoringStatus"`
}

// JobMetrics is the payload of the job metrics REST endpoint. The metric
// series are passed through untouched.
type JobMetrics struct {
	Data json.RawMessage `json:"data"`
}

// JobMetricsError is returned when the job metrics endpoint responds with a
// non-200 status
type JobMetricsError struct {
	Status  int
	Message string
}

func (e *JobMetricsError) Error() string {
	return fmt.Sprintf("job metrics request failed with status %d: %s", e.Status, e.Message)
}
