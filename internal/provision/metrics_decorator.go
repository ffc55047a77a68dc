package provision

import (
	"context"
	"time"

	"github.com/relaymq/client-go/internal/metrics"
)

// Runner runs provisioning flows. *Provisioner implements it.
type Runner interface {
	Run(ctx context.Context) (*Result, error)
}

var _ Runner = (*Provisioner)(nil)

type runnerWithMetrics struct {
	next    Runner
	metrics metrics.BusinessMetrics
}

// NewRunnerWithMetrics wraps r with operation metrics.
func NewRunnerWithMetrics(r Runner, m metrics.BusinessMetrics) Runner {
	return &runnerWithMetrics{next: r, metrics: m}
}

// Run records metrics for a provisioning flow.
func (r *runnerWithMetrics) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res, err := r.next.Run(ctx)

	status := metrics.Status(err)
	r.metrics.RecordOperation(ctx, "provision", "run", status)
	r.metrics.RecordDuration(ctx, "provision", "run", time.Since(start), status)

	return res, err
}
