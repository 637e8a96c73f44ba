package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kermanimohammad/SensorPlus-Client/internal/bus"
	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSSource subscribes to a subject on a NATS server. Subjects are
// reported as slash-separated topics.
type NATSSource struct {
	url     string
	subject string
	name    string
	d       dispatcher
	conn    atomic.Pointer[nats.Conn]
}

func NewNATSSource(url, subject, clientID string, b *bus.Bus, logger *logrus.Logger) *NATSSource {
	return &NATSSource{
		url:     url,
		subject: subject,
		name:    "sensorplus-" + clientID,
		d:       dispatcher{bus: b, logger: logger, source: "nats"},
	}
}

func (s *NATSSource) Name() string { return "nats" }

func (s *NATSSource) Run(ctx context.Context) error {
	logger := s.d.logger
	nc, err := nats.Connect(s.url,
		nats.Name(s.name),
		nats.Timeout(config.NATSTimeout),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.WithError(err).Warn("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	s.conn.Store(nc)
	defer func() {
		s.conn.Store(nil)
		nc.Close()
	}()

	sub, err := nc.Subscribe(s.subject, func(m *nats.Msg) {
		s.d.handle(SubjectToTopic(m.Subject), m.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			logger.WithError(err).Debug("NATS unsubscribe failed")
		}
	}()
	logger.WithField("subject", s.subject).Info("Listening for NATS telemetry")

	<-ctx.Done()
	return nil
}

func (s *NATSSource) IsConnected() bool {
	nc := s.conn.Load()
	return nc != nil && nc.IsConnected()
}
