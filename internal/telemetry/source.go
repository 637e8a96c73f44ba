package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kermanimohammad/SensorPlus-Client/internal/bus"
	"github.com/kermanimohammad/SensorPlus-Client/internal/sensors"
	"github.com/sirupsen/logrus"
)

// Source delivers decoded readings onto a bus until its context ends.
type Source interface {
	Name() string
	// Run connects, subscribes and blocks until ctx is cancelled.
	Run(ctx context.Context) error
	IsConnected() bool
}

// Decode turns a raw (topic, payload) pair into a bus message.
func Decode(topic string, payload []byte) (bus.Message, error) {
	r, err := sensors.ParseReading(payload)
	if err != nil {
		return bus.Message{}, fmt.Errorf("undecodable payload on %s: %w", topic, err)
	}
	return bus.Message{Topic: topic, Reading: r, Received: time.Now()}, nil
}

// dispatcher is the shared receive path of every source: decode, drop what
// does not parse, publish the rest.
type dispatcher struct {
	bus    *bus.Bus
	logger *logrus.Logger
	source string
}

func (d *dispatcher) handle(topic string, payload []byte) bool {
	msg, err := Decode(topic, payload)
	if err != nil {
		d.logger.WithError(err).WithField("source", d.source).Debug("Ignoring telemetry payload")
		return false
	}
	if d.bus.Publish(msg) == 0 {
		d.logger.WithField("topic", topic).Debug("No subscriber ready for telemetry message")
	}
	return true
}

// SubjectToTopic rewrites a NATS subject into the slash-separated form used
// by sensor topics, so both transports correlate the same way.
func SubjectToTopic(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}
