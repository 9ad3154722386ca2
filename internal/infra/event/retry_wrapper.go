package event

import (
	"context"
	"time"

	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/DioGolang/GoTracker/pkg/metrics"
)

// WrapRetry re-runs next on transient errors, up to maxRetries extra
// attempts. Rejections and malformed messages fail on the first try.
func WrapRetry(
	log logger.Logger,
	m metrics.Metrics,
	handlerName string,
	maxRetries int,
	backoff Backoff,
	next MessageHandler,
) MessageHandler {
	return func(ctx context.Context, msg []byte, headers map[string]interface{}) error {
		var err error
		for attempt := 1; ; attempt++ {
			if err = next(ctx, msg, headers); err == nil || permanent(err) {
				return err
			}
			if attempt > maxRetries {
				break
			}

			wait := backoff.Delay(attempt)
			log.Warn(ctx, "transient failure, retrying",
				logger.String("handler", handlerName),
				logger.Int("attempt", attempt),
				logger.Duration("wait", wait),
				logger.WithError(err),
			)

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		log.Error(ctx, "retries exhausted",
			logger.String("handler", handlerName),
			logger.Int("max_retries", maxRetries),
			logger.WithError(err),
		)
		m.RecordUseCaseExecution(handlerName+"_final_failure", false, 0)
		return err
	}
}
