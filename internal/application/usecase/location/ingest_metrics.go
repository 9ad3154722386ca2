package location

import (
	"context"
	"time"

	"github.com/DioGolang/GoTracker/pkg/metrics"
)

type IngestMetricsDecorator struct {
	Next    IngestUseCase
	Metrics metrics.Metrics
}

func (d *IngestMetricsDecorator) Execute(ctx context.Context, input IngestInput) (IngestOutput, error) {
	start := time.Now()
	output, err := d.Next.Execute(ctx, input)
	d.Metrics.RecordUseCaseExecution("IngestLocation", err == nil, time.Since(start))
	return output, err
}
