package outbound

import (
	"context"

	"github.com/DioGolang/GoTracker/pkg/events"
)

// EventPublisher accepts an event for at-least-once delivery. Implementations
// must not block on the broker.
type EventPublisher interface {
	// Admit is called before a report is committed and fails with
	// entity.ErrBackpressure when the publisher cannot take more events.
	Admit(ctx context.Context) error
	// Publish is called after the commit and must not drop the event for
	// lack of room.
	Publish(ctx context.Context, event events.Event) error
}
