package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DioGolang/GoTracker/pkg/events"
	carrier "github.com/DioGolang/GoTracker/pkg/otel"
	"github.com/nats-io/nats.go"
)

// NATSSink publishes each event on "<event name>.<partition key>", so
// subscribers can follow one area with a wildcard such as
// "driver.location.changed.dr5re".
type NATSSink struct {
	nc *nats.Conn
}

func NewNATSSink(nc *nats.Conn) *NATSSink {
	return &NATSSink{nc: nc}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Send(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(e.GetPayload())
	if err != nil {
		return fmt.Errorf("marshal %s: %w", e.GetName(), err)
	}

	msg := nats.NewMsg(Subject(e))
	msg.Data = payload
	msg.Header.Set(nats.MsgIdHdr, e.GetID())
	carrier.InjectNATS(ctx, msg.Header)

	if err := s.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	if err := s.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", msg.Subject, err)
	}
	return nil
}

var subjectToken = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

func Subject(e events.Event) string {
	key := e.GetPartitionKey()
	if key == "" {
		return e.GetName()
	}
	return e.GetName() + "." + subjectToken.Replace(key)
}
