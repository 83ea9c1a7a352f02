package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/jkaberg/zendure-hass/internal/config"
)

var (
	ErrCannotConnect = errors.New("cannot connect to MQTT broker")
	ErrNotConnected  = errors.New("MQTT client not connected")
)

// MessageHandler receives the topic and raw payload of an inbound message.
type MessageHandler func(topic string, payload []byte)

// Client wraps the MQTT client with additional functionality
type Client struct {
	client pahomqtt.Client
	logger *logrus.Logger

	// subs tracks subscriptions so they survive reconnects of a clean session.
	subMu sync.Mutex
	subs  map[string]MessageHandler
}

func newClient(client pahomqtt.Client, logger *logrus.Logger) *Client {
	return &Client{client: client, logger: logger, subs: make(map[string]MessageHandler)}
}

// NewClient creates a connected MQTT client from a URL. Supports ws, wss,
// mqtt, mqtts, tcp and ssl schemes; credentials are taken from the URL.
func NewClient(mqttURL, clientID string, logger *logrus.Logger) (*Client, error) {
	opts, parsedURL, err := newOptions(mqttURL, clientID, logger)
	if err != nil {
		return nil, err
	}

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})

	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		logger.Debug("MQTT reconnecting...")
	})

	c := newClient(nil, logger)

	firstConnect := true
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		if firstConnect {
			logger.Debug("MQTT connected")
			firstConnect = false
		} else {
			logger.Info("MQTT reconnected")
			c.resubscribe()
		}
	})

	c.client = pahomqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(config.ConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %s", ErrCannotConnect, config.ConnectTimeout)
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotConnect, token.Error())
	}

	logger.WithFields(logrus.Fields{
		"broker":    cleanURL(mqttURL),
		"protocol":  parsedURL.Scheme,
		"client_id": clientID,
	}).Info("MQTT client connected")

	return c, nil
}

// newOptions translates a broker URL into paho options with the common
// keepalive/reconnect settings applied.
func newOptions(mqttURL, clientID string, logger *logrus.Logger) (*pahomqtt.ClientOptions, *url.URL, error) {
	parsedURL, err := url.Parse(mqttURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid MQTT URL: %w", err)
	}

	opts := pahomqtt.NewClientOptions()

	var brokerURL string
	switch parsedURL.Scheme {
	case "ws":
		brokerURL = mqttURL
		logger.Debug("Using WebSocket MQTT connection")
	case "wss":
		brokerURL = mqttURL
		logger.Debug("Using secure WebSocket MQTT connection")
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	case "mqtt", "tcp":
		brokerURL = "tcp://" + parsedURL.Host
		logger.Debug("Using standard MQTT connection (TCP)")
	case "mqtts", "ssl":
		brokerURL = "ssl://" + parsedURL.Host
		logger.Debug("Using secure MQTT connection (SSL/TLS)")
		// Disable certificate verification to support self-signed certs
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	default:
		return nil, nil, fmt.Errorf("unsupported protocol scheme: %s (supported: ws, wss, mqtt, mqtts, tcp, ssl)", parsedURL.Scheme)
	}

	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(config.KeepAlive)
	opts.SetPingTimeout(time.Second)
	opts.SetConnectTimeout(config.ConnectTimeout)
	opts.SetMaxReconnectInterval(config.MaxReconnectWait)

	if parsedURL.User != nil {
		username := parsedURL.User.Username()
		password, _ := parsedURL.User.Password()
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	return opts, parsedURL, nil
}

// Publish publishes a message to the specified topic
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("publish to topic %s: %w", topic, ErrNotConnected)
	}

	qos := byte(1) // At least once delivery
	token := c.client.Publish(topic, qos, retained, payload)

	// Avoid potential deadlocks: wait for completion with a timeout instead of indefinitely.
	if !token.WaitTimeout(config.MQTTTimeout) {
		return fmt.Errorf("publish to topic %s timed out after %s", topic, config.MQTTTimeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	c.logger.WithFields(logrus.Fields{
		"topic":    topic,
		"size":     len(payload),
		"retained": retained,
	}).Debug("Published MQTT message")

	return nil
}

// Subscribe subscribes to a topic with a message handler. The subscription
// is remembered and restored after a reconnect; while disconnected it is only
// recorded.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	c.subMu.Lock()
	c.subs[topic] = handler
	c.subMu.Unlock()

	if !c.client.IsConnected() {
		c.logger.WithField("topic", topic).Debug("Deferring subscription until connected")
		return nil
	}
	return c.subscribe(topic, handler)
}

func (c *Client) subscribe(topic string, handler MessageHandler) error {
	qos := byte(1)
	token := c.client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})

	// Prevent indefinite blocking on slow or lost connections.
	if !token.WaitTimeout(config.MQTTTimeout) {
		return fmt.Errorf("subscribe to topic %s timed out after %s", topic, config.MQTTTimeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	c.logger.WithField("topic", topic).Debug("Subscribed to MQTT topic")
	return nil
}

// resubscribe restores every remembered subscription.
func (c *Client) resubscribe() {
	c.subMu.Lock()
	subs := make(map[string]MessageHandler, len(c.subs))
	for t, h := range c.subs {
		subs[t] = h
	}
	c.subMu.Unlock()

	for topic, handler := range subs {
		if err := c.subscribe(topic, handler); err != nil {
			c.logger.WithError(err).WithField("topic", topic).Warn("Failed to restore subscription")
		}
	}
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Disconnect disconnects the client
func (c *Client) Disconnect(quiesce uint) {
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

// BuildCleanTopic ensures topic follows MQTT standards
func BuildCleanTopic(parts ...string) string {
	var cleanParts []string
	for _, part := range parts {
		// Replace invalid characters
		clean := strings.ReplaceAll(part, " ", "_")
		clean = strings.ReplaceAll(clean, "+", "plus")
		clean = strings.ReplaceAll(clean, "#", "hash")
		clean = strings.ToLower(clean)
		cleanParts = append(cleanParts, clean)
	}
	return strings.Join(cleanParts, "/")
}
