package event

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DioGolang/GoTracker/internal/domain/entity"
	"github.com/DioGolang/GoTracker/internal/infra/storage"
	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/DioGolang/GoTracker/pkg/metrics"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingHandler(errs ...error) (MessageHandler, *int) {
	calls := 0
	return func(context.Context, []byte, map[string]interface{}) error {
		calls++
		if calls <= len(errs) {
			return errs[calls-1]
		}
		return nil
	}, &calls
}

func TestWrapRetry(t *testing.T) {
	transient := errors.New("db timeout")
	rejected := fmt.Errorf("%w: %w", entity.ErrValidation, entity.ErrDriverIDRequired)

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{name: "Should succeed after transient failures", errs: []error{transient, transient}, wantCalls: 3},
		{name: "Should give up after max retries", errs: []error{transient, transient, transient, transient}, wantCalls: 3, wantErr: transient},
		{name: "Should not retry a rejected report", errs: []error{rejected}, wantCalls: 1, wantErr: entity.ErrValidation},
		{name: "Should not retry a malformed message", errs: []error{ErrMalformedMessage}, wantCalls: 1, wantErr: ErrMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, calls := countingHandler(tt.errs...)
			h := WrapRetry(logger.NewNop(), metrics.NewNop(), "test", 2, Backoff{Base: time.Millisecond}, next)

			err := h(context.Background(), []byte("{}"), nil)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, *calls)
		})
	}
}

func newIdempotencyStore(t *testing.T) (*storage.RedisIdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return storage.NewRedisIdempotencyStore(client), mr
}

func TestWrapIdempotency_DropsDuplicates(t *testing.T) {
	store, _ := newIdempotencyStore(t)
	next, calls := countingHandler()
	h := WrapIdempotency(logger.NewNop(), metrics.NewNop(), store, "ingest", time.Hour, next)
	headers := map[string]interface{}{"x-event-id": "e1"}

	require.NoError(t, h(context.Background(), []byte("a"), headers))
	require.NoError(t, h(context.Background(), []byte("b"), headers))

	assert.Equal(t, 1, *calls)
}

func TestWrapIdempotency_HashesBodyWithoutEventID(t *testing.T) {
	store, _ := newIdempotencyStore(t)
	next, calls := countingHandler()
	h := WrapIdempotency(logger.NewNop(), metrics.NewNop(), store, "ingest", time.Hour, next)

	require.NoError(t, h(context.Background(), []byte("same"), nil))
	require.NoError(t, h(context.Background(), []byte("same"), nil))
	require.NoError(t, h(context.Background(), []byte("other"), nil))

	assert.Equal(t, 2, *calls)
}

func TestWrapIdempotency_ReleasesKeyOnTransientFailure(t *testing.T) {
	store, mr := newIdempotencyStore(t)
	next, calls := countingHandler(errors.New("db down"))
	h := WrapIdempotency(logger.NewNop(), metrics.NewNop(), store, "ingest", time.Hour, next)
	headers := map[string]interface{}{"x-event-id": "e1"}

	assert.Error(t, h(context.Background(), nil, headers))
	assert.False(t, mr.Exists("dedup:ingest:e1"))
	assert.NoError(t, h(context.Background(), nil, headers))
	assert.Equal(t, 2, *calls)
}

func TestWrapIdempotency_KeepsKeyOnRejection(t *testing.T) {
	store, mr := newIdempotencyStore(t)
	next, _ := countingHandler(ErrMalformedMessage)
	h := WrapIdempotency(logger.NewNop(), metrics.NewNop(), store, "ingest", time.Hour, next)

	assert.ErrorIs(t, h(context.Background(), nil, map[string]interface{}{"x-event-id": "e1"}), ErrMalformedMessage)
	assert.True(t, mr.Exists("dedup:ingest:e1"))
}

func TestWrapIdempotency_FailsClosedWhenRedisIsDown(t *testing.T) {
	store, mr := newIdempotencyStore(t)
	mr.Close()
	next, calls := countingHandler()
	h := WrapIdempotency(logger.NewNop(), metrics.NewNop(), store, "ingest", time.Hour, next)

	assert.Error(t, h(context.Background(), nil, nil))
	assert.Equal(t, 0, *calls)
}

func TestWrapResilientConsumer_RejectionsDoNotTripTheBreaker(t *testing.T) {
	cb := NewConsumerBreaker("test")
	rejected := fmt.Errorf("%w: bad", entity.ErrValidation)
	h := WrapResilientConsumer(metrics.NewNop(), "test", time.Second, cb,
		func(context.Context, []byte, map[string]interface{}) error { return rejected })

	for i := 0; i < 10; i++ {
		assert.ErrorIs(t, h(context.Background(), nil, nil), entity.ErrValidation)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestWrapResilientConsumer_OpensOnInfrastructureFailures(t *testing.T) {
	cb := NewConsumerBreaker("test")
	next, calls := countingHandler(errors.New("1"), errors.New("2"), errors.New("3"), errors.New("4"), errors.New("5"))
	h := WrapResilientConsumer(metrics.NewNop(), "test", time.Second, cb, next)

	for i := 0; i < 5; i++ {
		assert.Error(t, h(context.Background(), nil, nil))
	}
	err := h(context.Background(), nil, nil)

	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 5, *calls)
}

func TestBackoff_Delay(t *testing.T) {
	tests := []struct {
		name    string
		backoff Backoff
		attempt int
		want    time.Duration
	}{
		{name: "Should wait the base on the first attempt", backoff: Backoff{Base: 100 * time.Millisecond, Max: time.Second}, attempt: 1, want: 100 * time.Millisecond},
		{name: "Should double per attempt", backoff: Backoff{Base: 100 * time.Millisecond, Max: time.Second}, attempt: 3, want: 400 * time.Millisecond},
		{name: "Should cap at max", backoff: Backoff{Base: 100 * time.Millisecond, Max: time.Second}, attempt: 10, want: time.Second},
		{name: "Should treat attempt zero as the first", backoff: Backoff{Base: 50 * time.Millisecond}, attempt: 0, want: 50 * time.Millisecond},
		{name: "Should grow unbounded without max", backoff: Backoff{Base: time.Millisecond}, attempt: 5, want: 16 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.backoff.Delay(tt.attempt))
		})
	}
}
