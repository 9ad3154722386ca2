package event

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/DioGolang/GoTracker/pkg/metrics"
)

type IdempotencyStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

// WrapIdempotency drops deliveries already seen within ttl. The key is the
// x-event-id header, or a hash of the body when the header is missing.
func WrapIdempotency(
	log logger.Logger,
	m metrics.Metrics,
	store IdempotencyStore,
	handlerName string,
	ttl time.Duration,
	next MessageHandler,
) MessageHandler {

	return func(ctx context.Context, msg []byte, headers map[string]interface{}) error {

		var eventID string

		if v, ok := headers["x-event-id"]; ok {
			eventID = fmt.Sprintf("%v", v)
		}

		if eventID == "" {
			hash := sha256.Sum256(msg)
			eventID = fmt.Sprintf("hash:%x", hash)
		}

		key := fmt.Sprintf("dedup:%s:%s", handlerName, eventID)

		saved, err := store.SetNX(ctx, key, "processing", ttl)

		if err != nil {
			// fail closed: the delivery is requeued instead of risking a double apply
			log.Error(ctx, "Redis unavailable for idempotency check",
				logger.WithError(err))

			return fmt.Errorf("idempotency store unavailable: %w", err)
		}

		if !saved {
			log.Info(ctx, "Duplicate event dropped by Idempotency Guard",
				logger.String("handler", handlerName),
				logger.String("event_id", eventID),
			)
			m.IncDuplicateMessages(handlerName)
			return nil
		}

		err = next(ctx, msg, headers)

		// a rejected report stays rejected, keep the key
		if err != nil && !permanent(err) {
			log.Warn(ctx, "Handler logic failed, releasing lock for retry",
				logger.String("key", key),
				logger.WithError(err),
			)

			if delErr := store.Del(context.WithoutCancel(ctx), key); delErr != nil {
				log.Error(ctx, "Failed to release idempotency lock (Zombie Key Risk)",
					logger.String("key", key),
					logger.WithError(delErr),
				)
			}
		}

		return err
	}
}
