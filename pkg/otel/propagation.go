package otel

import (
	"context"
	"net/http"

	"github.com/nats-io/nats.go"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceSnapshot captures the propagation fields of ctx so work queued now
// can be continued later under the same trace. Nil when ctx carries none.
func TraceSnapshot(ctx context.Context) map[string]string {
	c := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, c)
	if len(c) == 0 {
		return nil
	}
	return c
}

// ResumeTrace is the inverse of TraceSnapshot.
func ResumeTrace(parent context.Context, snapshot map[string]string) context.Context {
	if len(snapshot) == 0 {
		return parent
	}
	return otel.GetTextMapPropagator().Extract(parent, propagation.MapCarrier(snapshot))
}

func InjectAMQP(ctx context.Context, headers amqp.Table) {
	otel.GetTextMapPropagator().Inject(ctx, amqpCarrier(headers))
}

func ExtractAMQP(ctx context.Context, headers amqp.Table) context.Context {
	if headers == nil {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, amqpCarrier(headers))
}

func InjectNATS(ctx context.Context, h nats.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(http.Header(h)))
}

func ExtractNATS(ctx context.Context, h nats.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(http.Header(h)))
}

// amqpCarrier reads both string and []byte header values; brokers and
// other clients are not consistent about which one they send.
type amqpCarrier amqp.Table

func (c amqpCarrier) Get(key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func (c amqpCarrier) Set(key, value string) { c[key] = value }

func (c amqpCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
