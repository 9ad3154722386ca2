package event

import (
	"context"
	"errors"

	"github.com/DioGolang/GoTracker/pkg/events"
	"github.com/DioGolang/GoTracker/pkg/logger"
)

// LogSink writes events to the log. Used when no broker is configured.
type LogSink struct {
	log logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(ctx context.Context, e events.Event) error {
	s.log.Info(ctx, "driver event",
		logger.String("event_id", e.GetID()),
		logger.String("event", e.GetName()),
		logger.String("partition_key", e.GetPartitionKey()),
		logger.Any("payload", e.GetPayload()),
	)
	return nil
}

// MultiSink sends every event to all sinks. A failure in any of them makes
// the relay retry the event everywhere; subscribers dedupe by event id.
type MultiSink []Sink

func (m MultiSink) Name() string {
	name := ""
	for i, s := range m {
		if i > 0 {
			name += "+"
		}
		name += s.Name()
	}
	return name
}

func (m MultiSink) Send(ctx context.Context, e events.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
