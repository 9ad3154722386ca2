package event

import (
	"context"
	"testing"
	"time"

	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/DioGolang/GoTracker/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRelay(sink Sink) (*OutboxRelay, *Outbox) {
	o := NewOutbox(100, metrics.NewNop())
	r := NewOutboxRelay(o, sink, logger.NewNop(), metrics.NewNop(), RelayConfig{
		RetryBase: time.Second,
		RetryMax:  4 * time.Second,
	})
	return r, o
}

func TestOutboxRelay_DeliversBatch(t *testing.T) {
	sink := &fakeSink{}
	r, o := newTestRelay(sink)
	ctx := context.Background()
	for _, id := range []string{"D1", "D2", "D3"} {
		require.NoError(t, o.Publish(ctx, locationEvent(t, id)))
	}

	n := r.processBatch(ctx, time.Now())

	assert.Equal(t, 3, n)
	_, sent := sink.snapshot()
	assert.Len(t, sent, 3)
	assert.Equal(t, 0, o.Len())
}

func TestOutboxRelay_RetriesWithBackoff(t *testing.T) {
	// Arrange
	sink := &fakeSink{failures: 2}
	r, o := newTestRelay(sink)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	ctx := context.Background()
	require.NoError(t, o.Publish(ctx, locationEvent(t, "D1")))

	// Act & Assert
	r.processBatch(ctx, now)
	require.Equal(t, 1, o.Len())
	assert.Equal(t, 0, r.processBatch(ctx, now.Add(500*time.Millisecond)), "still in backoff")

	now = now.Add(time.Second)
	r.processBatch(ctx, now)
	require.Equal(t, 1, o.Len())
	assert.Equal(t, 0, r.processBatch(ctx, now.Add(time.Second)), "second wait doubles")

	now = now.Add(2 * time.Second)
	r.processBatch(ctx, now)
	calls, sent := sink.snapshot()
	assert.Equal(t, 3, calls)
	assert.Len(t, sent, 1)
	assert.Equal(t, 0, o.Len())
}

func TestOutboxRelay_BackoffIsCapped(t *testing.T) {
	r, _ := newTestRelay(&fakeSink{})

	assert.Equal(t, time.Second, r.backoff(1))
	assert.Equal(t, 2*time.Second, r.backoff(2))
	assert.Equal(t, 4*time.Second, r.backoff(3))
	assert.Equal(t, 4*time.Second, r.backoff(30))
}

func TestOutboxRelay_BreakerStopsCallingTheSink(t *testing.T) {
	sink := &fakeSink{failures: 100}
	r, o := newTestRelay(sink)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, o.Publish(ctx, locationEvent(t, "D1")))
	}
	r.cfg.Workers = 1

	r.processBatch(ctx, time.Now())

	calls, _ := sink.snapshot()
	assert.Equal(t, 5, calls)
	assert.Equal(t, 10, o.Len())
}

func TestOutboxRelay_FlushIgnoresBackoff(t *testing.T) {
	sink := &fakeSink{failures: 1}
	r, o := newTestRelay(sink)
	ctx := context.Background()
	require.NoError(t, o.Publish(ctx, locationEvent(t, "D1")))
	r.processBatch(ctx, time.Now())
	require.Equal(t, 1, o.Len())

	r.Flush(ctx)

	assert.Equal(t, 0, o.Len())
}

func TestOutboxRelay_RunDeliversUntilCancelled(t *testing.T) {
	sink := &fakeSink{}
	r, o := newTestRelay(sink)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.NoError(t, o.Publish(context.Background(), locationEvent(t, "D1")))

	assert.Eventually(t, func() bool {
		_, sent := sink.snapshot()
		return len(sent) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
