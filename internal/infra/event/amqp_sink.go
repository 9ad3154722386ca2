package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DioGolang/GoTracker/pkg/events"
	carrier "github.com/DioGolang/GoTracker/pkg/otel"
	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultEventsExchange = "gotracker.events"

// AMQPSink publishes events to a topic exchange, routed by event name, and
// waits for the broker confirmation.
type AMQPSink struct {
	ch       *amqp.Channel
	exchange string
}

func DeclareEventsExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,
		false,
		false,
		false,
		nil,
	)
}

func NewAMQPSink(conn *amqp.Connection, exchange string) (*AMQPSink, error) {
	if exchange == "" {
		exchange = DefaultEventsExchange
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := DeclareEventsExchange(ch, exchange); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &AMQPSink{ch: ch, exchange: exchange}, nil
}

func (s *AMQPSink) Name() string { return "amqp" }

func (s *AMQPSink) Send(ctx context.Context, e events.Event) error {
	msg, err := buildPublishing(ctx, e)
	if err != nil {
		return err
	}
	dc, err := s.ch.PublishWithDeferredConfirmWithContext(ctx, s.exchange, e.GetName(), false, false, msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.GetName(), err)
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("confirm %s: %w", e.GetName(), err)
	}
	if !acked {
		return fmt.Errorf("publish %s: broker nacked %s", e.GetName(), e.GetID())
	}
	return nil
}

func (s *AMQPSink) Close() error {
	return s.ch.Close()
}

func buildPublishing(ctx context.Context, e events.Event) (amqp.Publishing, error) {
	payload, err := json.Marshal(e.GetPayload())
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal %s: %w", e.GetName(), err)
	}

	headers := make(amqp.Table)
	carrier.InjectAMQP(ctx, headers)
	headers["x-event-id"] = e.GetID()
	headers["x-partition-key"] = e.GetPartitionKey()

	return amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.GetID(),
		Type:         e.GetName(),
		Timestamp:    e.GetDateTime().UTC().Truncate(time.Second),
		Body:         payload,
	}, nil
}
