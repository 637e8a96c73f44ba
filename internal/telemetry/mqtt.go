package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/kermanimohammad/SensorPlus-Client/internal/bus"
	"github.com/kermanimohammad/SensorPlus-Client/internal/mqtt"
	"github.com/sirupsen/logrus"
)

// MQTTSource subscribes to one topic filter on an MQTT broker.
type MQTTSource struct {
	opts   mqtt.Options
	topic  string
	d      dispatcher
	client atomic.Pointer[mqtt.Client]
}

func NewMQTTSource(opts mqtt.Options, topic string, b *bus.Bus, logger *logrus.Logger) *MQTTSource {
	return &MQTTSource{
		opts:  opts,
		topic: topic,
		d:     dispatcher{bus: b, logger: logger, source: "mqtt"},
	}
}

func (s *MQTTSource) Name() string { return "mqtt" }

func (s *MQTTSource) Run(ctx context.Context) error {
	client, err := mqtt.NewClient(s.opts, s.d.logger)
	if err != nil {
		return fmt.Errorf("mqtt source: %w", err)
	}
	s.client.Store(client)
	defer func() {
		s.client.Store(nil)
		client.Disconnect(250)
	}()

	if err := client.Subscribe(s.topic, s.onMessage); err != nil {
		return fmt.Errorf("mqtt source: %w", err)
	}
	s.d.logger.WithField("topic", s.topic).Info("Listening for MQTT telemetry")

	<-ctx.Done()
	return nil
}

func (s *MQTTSource) onMessage(_ paho.Client, m paho.Message) {
	s.d.handle(m.Topic(), m.Payload())
}

func (s *MQTTSource) IsConnected() bool {
	c := s.client.Load()
	return c != nil && c.IsConnected()
}
