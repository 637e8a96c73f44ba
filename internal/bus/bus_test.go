package bus

import (
	"testing"

	"github.com/kermanimohammad/SensorPlus-Client/internal/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOutWithoutBlocking(t *testing.T) {
	b := New(1)
	a := b.Subscribe()
	c := b.Subscribe()

	m := Message{Topic: "building/demo/t", Reading: &sensors.Reading{DeviceID: "d1", Kind: sensors.Temperature}}
	assert.Equal(t, 2, b.Publish(m))
	// buffers are full now; the second publish is dropped rather than blocking
	assert.Equal(t, 0, b.Publish(m))

	got := <-a
	assert.Equal(t, "d1", got.Reading.DeviceID)
	got = <-c
	assert.Equal(t, "building/demo/t", got.Topic)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(4)
	ch := b.Subscribe()
	b.Unsubscribe(ch)
	_, open := <-ch
	require.False(t, open)
	assert.Equal(t, 0, b.Publish(Message{}))

	other := b.Subscribe()
	b.Close()
	_, open = <-other
	assert.False(t, open)
}
