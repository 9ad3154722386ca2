package event

import (
	"context"
	"errors"

	"github.com/DioGolang/GoTracker/internal/domain/entity"
	"github.com/DioGolang/GoTracker/pkg/events"
)

type MessageHandler func(ctx context.Context, msg []byte, headers map[string]interface{}) error

// ErrMalformedMessage marks a delivery whose body cannot be decoded.
var ErrMalformedMessage = errors.New("malformed message")

// Sink delivers one event to a broker.
type Sink interface {
	Name() string
	Send(ctx context.Context, e events.Event) error
}

// permanent reports whether retrying err can never succeed.
func permanent(err error) bool {
	return errors.Is(err, ErrMalformedMessage) || entity.IsRejection(err)
}
