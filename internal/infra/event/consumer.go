package event

import (
	"context"
	"fmt"

	"github.com/DioGolang/GoTracker/pkg/logger"
	carrier "github.com/DioGolang/GoTracker/pkg/otel"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const DefaultIngestQueue = "gotracker.location.reports"

type Consumer struct {
	Conn     *amqp.Connection
	Handler  MessageHandler
	Logger   logger.Logger
	Prefetch int
}

func NewConsumer(conn *amqp.Connection, handler MessageHandler, l logger.Logger, prefetch int) *Consumer {
	if prefetch <= 0 {
		prefetch = 50
	}
	return &Consumer{
		Conn:     conn,
		Handler:  handler,
		Logger:   l,
		Prefetch: prefetch,
	}
}

// Start consumes queueName until ctx is cancelled or the channel closes.
// Deliveries are handled concurrently, at most Prefetch at a time.
func (c *Consumer) Start(ctx context.Context, queueName string) error {
	ch, err := c.Conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := c.setupTopology(ch, queueName); err != nil {
		return fmt.Errorf("error when configuring topology: %w", err)
	}

	msgs, err := ch.ConsumeWithContext(
		ctx,
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	c.Logger.Info(ctx, "[*] Waiting for location reports", logger.String("queue", queueName))

	var g errgroup.Group
	g.SetLimit(c.Prefetch)
	defer func() { _ = g.Wait() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", queueName)
			}
			g.Go(func() error {
				c.handle(ctx, queueName, d)
				return nil
			})
		}
	}
}

func (c *Consumer) handle(ctx context.Context, queueName string, d amqp.Delivery) {
	ctx = carrier.ExtractAMQP(ctx, d.Headers)
	ctx, span := otel.GetTracerProvider().Tracer("worker-tracer").Start(ctx, "ConsumeLocationReport",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("queue.name", queueName),
			attribute.String("messaging.message_id", d.MessageId),
		))
	defer span.End()

	headers := map[string]interface{}(d.Headers)
	if headers == nil {
		headers = map[string]interface{}{}
	}
	if _, ok := headers["x-event-id"]; !ok && d.MessageId != "" {
		headers["x-event-id"] = d.MessageId
	}

	err := c.Handler(ctx, d.Body, headers)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case permanent(err):
		c.Logger.Warn(ctx, "Dropping rejected location report", logger.WithError(err))
		span.SetStatus(codes.Error, "rejected")
		_ = d.Nack(false, false)
	default:
		c.Logger.Error(ctx, "Failed to process location report, requeueing", logger.WithError(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		_ = d.Nack(false, true)
	}
}

func (c *Consumer) setupTopology(ch *amqp.Channel, queueName string) error {
	_, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}
	return ch.Qos(c.Prefetch, 0, false)
}
