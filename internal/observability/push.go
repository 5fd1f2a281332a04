package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// PushJob is the Pushgateway job name for run-once executions.
const PushJob = "lightning_etl"

// Push sends the current metric values to a Prometheus Pushgateway,
// replacing the previous push for the job.
func Push(ctx context.Context, url string, m *Metrics) error {
	if err := push.New(url, PushJob).Gatherer(m.Gatherer()).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
