package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DioGolang/GoTracker/internal/application/port/outbound"
	"github.com/DioGolang/GoTracker/internal/domain/entity"
	"github.com/DioGolang/GoTracker/pkg/events"
	"github.com/DioGolang/GoTracker/pkg/metrics"
	carrier "github.com/DioGolang/GoTracker/pkg/otel"
)

const DefaultOutboxCapacity = 100_000

var ErrOutboxClosed = errors.New("outbox closed")

type envelope struct {
	event     events.Event
	trace     map[string]string
	attempts  int
	notBefore time.Time
}

// Outbox buffers events between the ingest commit and the broker. Publish
// never waits on the network; OutboxRelay drains it.
//
// Capacity bounds admission, not storage: Admit refuses new reports while
// the backlog is at capacity, but an event of an already committed update is
// always queued. The backlog can therefore exceed capacity by the reports
// admitted concurrently.
type Outbox struct {
	mu       sync.Mutex
	queue    []*envelope
	capacity int
	closed   bool
	metrics  metrics.Metrics
	wake     chan struct{}
}

var _ outbound.EventPublisher = (*Outbox)(nil)

func NewOutbox(capacity int, m metrics.Metrics) *Outbox {
	if capacity <= 0 {
		capacity = DefaultOutboxCapacity
	}
	return &Outbox{
		capacity: capacity,
		metrics:  m,
		wake:     make(chan struct{}, 1),
	}
}

// Admit fails with entity.ErrBackpressure while the backlog is at capacity.
func (o *Outbox) Admit(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("%w: %w", entity.ErrPublish, ErrOutboxClosed)
	}
	if len(o.queue) >= o.capacity {
		return fmt.Errorf("%w: %d events pending", entity.ErrBackpressure, len(o.queue))
	}
	return nil
}

func (o *Outbox) Publish(ctx context.Context, e events.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("%w: %w", entity.ErrPublish, ErrOutboxClosed)
	}
	o.queue = append(o.queue, &envelope{event: e, trace: carrier.TraceSnapshot(ctx)})
	o.metrics.SetOutboxDepth(len(o.queue))

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// drain removes up to limit envelopes due at now, oldest first.
func (o *Outbox) drain(now time.Time, limit int) []*envelope {
	o.mu.Lock()
	defer o.mu.Unlock()

	var due []*envelope
	kept := o.queue[:0]
	for _, env := range o.queue {
		if len(due) < limit && !env.notBefore.After(now) {
			due = append(due, env)
			continue
		}
		kept = append(kept, env)
	}
	for i := len(kept); i < len(o.queue); i++ {
		o.queue[i] = nil
	}
	o.queue = kept
	o.metrics.SetOutboxDepth(len(o.queue))
	return due
}

// requeue puts back a failed envelope. It is accepted even when closed so a
// delivery attempt never loses an event.
func (o *Outbox) requeue(env *envelope) {
	o.mu.Lock()
	o.queue = append(o.queue, env)
	o.metrics.SetOutboxDepth(len(o.queue))
	o.mu.Unlock()
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Close stops accepting new events. Pending ones stay for the relay.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}
