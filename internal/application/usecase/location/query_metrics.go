package location

import (
	"context"
	"time"

	"github.com/DioGolang/GoTracker/pkg/metrics"
)

type NearestMetricsDecorator struct {
	Next    NearestUseCase
	Metrics metrics.Metrics
}

func (d *NearestMetricsDecorator) Execute(ctx context.Context, input NearestInput) (NearestOutput, error) {
	start := time.Now()
	output, err := d.Next.Execute(ctx, input)
	d.Metrics.RecordUseCaseExecution("NearestAvailable", err == nil, time.Since(start))
	return output, err
}

type GetDriverMetricsDecorator struct {
	Next    GetDriverUseCase
	Metrics metrics.Metrics
}

func (d *GetDriverMetricsDecorator) Execute(ctx context.Context, input GetDriverInput) (DriverOutput, error) {
	start := time.Now()
	output, err := d.Next.Execute(ctx, input)
	d.Metrics.RecordUseCaseExecution("GetDriver", err == nil, time.Since(start))
	return output, err
}
