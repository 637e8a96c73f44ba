package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	"github.com/sirupsen/logrus"
)

// Options configures a broker connection. Username/Password take precedence
// over credentials embedded in the URL.
type Options struct {
	URL      string
	ClientID string
	Username string
	Password string
	// OnConnect runs after every (re)connect, e.g. to restore subscriptions.
	OnConnect func()
}

// Client wraps the MQTT client with the subscription bookkeeping the editor
// needs.
type Client struct {
	client   mqtt.Client
	clientID string
	logger   *logrus.Logger

	mu     sync.Mutex
	topics map[string]mqtt.MessageHandler
}

// BrokerAddress maps a ws/wss/mqtt/mqtts URL onto the form paho expects and
// reports whether TLS must be configured.
func BrokerAddress(rawURL string) (string, bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false, fmt.Errorf("invalid MQTT URL: %w", err)
	}
	switch parsed.Scheme {
	case "ws":
		return rawURL, false, nil
	case "wss":
		return rawURL, true, nil
	case "mqtt":
		return strings.Replace(rawURL, "mqtt://", "tcp://", 1), false, nil
	case "mqtts":
		return strings.Replace(rawURL, "mqtts://", "ssl://", 1), true, nil
	default:
		return "", false, fmt.Errorf("unsupported protocol scheme: %s (supported: ws, wss, mqtt, mqtts)", parsed.Scheme)
	}
}

// NewClient connects to the broker.
func NewClient(o Options, logger *logrus.Logger) (*Client, error) {
	brokerURL, secure, err := BrokerAddress(o.URL)
	if err != nil {
		return nil, err
	}
	parsedURL, _ := url.Parse(o.URL)

	clientID := fmt.Sprintf("sensorplus-%s", o.ClientID)
	c := &Client{clientID: clientID, logger: logger, topics: make(map[string]mqtt.MessageHandler)}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	if secure {
		// brokers on local networks commonly run with self-signed certs
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetConnectTimeout(config.MQTTTimeout)
	opts.SetMaxReconnectInterval(10 * time.Second)

	if parsedURL.User != nil {
		password, _ := parsedURL.User.Password()
		opts.SetUsername(parsedURL.User.Username())
		opts.SetPassword(password)
	}
	if o.Username != "" {
		opts.SetUsername(o.Username)
	}
	if o.Password != "" {
		opts.SetPassword(o.Password)
	}

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		logger.Debug("MQTT reconnecting...")
	})

	firstConnect := true
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		if firstConnect {
			logger.Debug("MQTT connected")
			firstConnect = false
		} else {
			logger.Info("MQTT reconnected")
			c.resubscribe()
		}
		if o.OnConnect != nil {
			o.OnConnect()
		}
	})

	c.client = mqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(config.MQTTTimeout) {
		return nil, fmt.Errorf("connect to MQTT broker timed out after %s", config.MQTTTimeout)
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	logger.WithFields(logrus.Fields{
		"broker":    cleanURL(o.URL),
		"protocol":  parsedURL.Scheme,
		"client_id": clientID,
	}).Info("MQTT client connected")
	return c, nil
}

// Subscribe subscribes to a topic filter with a message handler.
func (c *Client) Subscribe(topic string, handler mqtt.MessageHandler) error {
	token := c.client.Subscribe(topic, 0, handler)

	// Prevent indefinite blocking on slow or lost connections.
	if !token.WaitTimeout(config.MQTTTimeout) {
		return fmt.Errorf("subscribe to topic %s timed out after %s", topic, config.MQTTTimeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	c.mu.Lock()
	c.topics[topic] = handler
	c.mu.Unlock()
	c.logger.WithField("topic", topic).Debug("Subscribed to MQTT topic")
	return nil
}

// Unsubscribe drops a topic filter. Unknown topics are ignored.
func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	_, ok := c.topics[topic]
	delete(c.topics, topic)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(config.MQTTTimeout) {
		return fmt.Errorf("unsubscribe from topic %s timed out after %s", topic, config.MQTTTimeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe from topic %s: %w", topic, token.Error())
	}
	c.logger.WithField("topic", topic).Debug("Unsubscribed from MQTT topic")
	return nil
}

// resubscribe restores the topic set after a reconnect. Clean sessions drop
// subscriptions on the broker side.
func (c *Client) resubscribe() {
	c.mu.Lock()
	topics := make(map[string]mqtt.MessageHandler, len(c.topics))
	for t, h := range c.topics {
		topics[t] = h
	}
	c.mu.Unlock()

	for t, h := range topics {
		go func(topic string, handler mqtt.MessageHandler) {
			if err := c.Subscribe(topic, handler); err != nil {
				c.logger.WithError(err).WithField("topic", topic).Warn("Failed to restore MQTT subscription")
			}
		}(t, h)
	}
}

// Topics returns the active topic filters.
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	return out
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Disconnect unsubscribes everything and disconnects the client.
func (c *Client) Disconnect(quiesce uint) {
	for _, t := range c.Topics() {
		if err := c.Unsubscribe(t); err != nil {
			c.logger.WithError(err).Debug("Unsubscribe during disconnect failed")
		}
	}
	c.client.Disconnect(quiesce)
	c.logger.Debug("MQTT client disconnected")
}

// cleanURL removes credentials from URL for logging
func cleanURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if parsed.User != nil {
		parsed.User = url.UserPassword("***", "***")
	}

	return parsed.String()
}

// TopicMatches reports whether topic matches an MQTT filter with + and #
// wildcards.
func TopicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
