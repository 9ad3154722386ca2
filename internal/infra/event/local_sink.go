package event

import (
	"context"

	"github.com/DioGolang/GoTracker/pkg/events"
)

// LocalSink hands relayed events to in-process handlers registered on an
// events.EventDispatcher, by event name.
type LocalSink struct {
	dispatcher events.EventDispatcher
}

func NewLocalSink(d events.EventDispatcher) *LocalSink {
	return &LocalSink{dispatcher: d}
}

func (s *LocalSink) Name() string { return "local" }

func (s *LocalSink) Send(ctx context.Context, e events.Event) error {
	return s.dispatcher.Dispatch(ctx, e)
}
