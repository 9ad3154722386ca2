package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DioGolang/GoTracker/internal/domain/entity"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runNATS(t *testing.T) *nats.Conn {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	srv := natsserver.RunServer(&opts)
	t.Cleanup(srv.Shutdown)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err, "Failed to connect to NATS server")
	t.Cleanup(nc.Close)
	return nc
}

func TestNATSSink_PublishesOnGeohashSubject(t *testing.T) {
	// Arrange
	nc := runNATS(t)
	sub, err := nc.SubscribeSync(entity.EventLocationChanged + ".dr5re")
	require.NoError(t, err)
	sink := NewNATSSink(nc)
	ev := locationEvent(t, "D1")

	// Act
	err = sink.Send(context.Background(), ev)

	// Assert
	require.NoError(t, err)
	msg, err := sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, ev.GetID(), msg.Header.Get(nats.MsgIdHdr))
	var payload entity.LocationChanged
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "D1", payload.DriverID)
	assert.Equal(t, "dr5regw", payload.Geohash)
}

func TestSubject_SanitizesDriverKeys(t *testing.T) {
	ev := entity.NewAvailabilityChanged(entity.DriverState{
		DriverID:      "fleet.driver 7",
		LastUpdatedAt: time.Now(),
	})

	assert.Equal(t, entity.EventAvailabilityChanged+".fleet_driver_7", Subject(ev))
}
