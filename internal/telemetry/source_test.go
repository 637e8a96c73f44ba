package telemetry

import (
	"testing"

	"github.com/kermanimohammad/SensorPlus-Client/internal/bus"
	"github.com/kermanimohammad/SensorPlus-Client/internal/mqtt"
	"github.com/kermanimohammad/SensorPlus-Client/internal/sensors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherPublishesDecodedReadings(t *testing.T) {
	b := bus.New(4)
	ch := b.Subscribe()
	d := dispatcher{bus: b, logger: logrus.New(), source: "test"}

	ok := d.handle("building/demo/solar", []byte(`{"deviceId":"sol-1","kind":"solar","ts":5,"powerW":420,"voltage":48,"current":8.75}`))
	require.True(t, ok)
	msg := <-ch
	assert.Equal(t, "building/demo/solar", msg.Topic)
	assert.Equal(t, sensors.Solar, msg.Reading.Kind)
	assert.Equal(t, 420.0, *msg.Reading.PowerW)
	assert.False(t, msg.Received.IsZero())

	assert.False(t, d.handle("building/demo/x", []byte("{broken")))
	assert.False(t, d.handle("building/demo/x", []byte(`{"kind":"wind","value":3}`)))
	assert.Len(t, ch, 0)
}

func TestSubjectToTopic(t *testing.T) {
	assert.Equal(t, "building/demo/room1", SubjectToTopic("building.demo.room1"))
}

func TestSourcesDescribeThemselves(t *testing.T) {
	b := bus.New(1)
	sources := []Source{
		NewMQTTSource(mqtt.Options{URL: "mqtt://localhost:1883", ClientID: "t"}, "building/demo/#", b, logrus.New()),
		NewNATSSource("nats://localhost:4222", "building.demo.>", "t", b, logrus.New()),
	}
	var names []string
	for _, s := range sources {
		names = append(names, s.Name())
		assert.False(t, s.IsConnected())
	}
	assert.Equal(t, []string{"mqtt", "nats"}, names)
}
