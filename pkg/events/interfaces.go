package events

import (
	"context"
	"time"
)

type Event interface {
	GetID() string
	GetName() string
	GetDateTime() time.Time
	GetPayload() interface{}
	// GetPartitionKey groups related events (ex: a geohash cell) for brokers
	// that route or shard by key.
	GetPartitionKey() string
}

type EventDispatcher interface {
	Register(eventName string, handler EventHandler) error
	Dispatch(ctx context.Context, event Event) error
	Remove(eventName string, handler EventHandler) error
	Has(eventName string, handler EventHandler) bool
	Clear()
}

type EventHandler interface {
	Handle(ctx context.Context, event Event) error
}
