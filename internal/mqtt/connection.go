package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jkaberg/zendure-hass/internal/config"
	"github.com/jkaberg/zendure-hass/internal/zendure"
)

// Connection is the broker connection for a single Zendure device. It turns
// paho callbacks into Events; consumers read them from Events().
//
// On every (re)connect it subscribes to the report, write-reply and device
// wildcard topics. Messages arriving through the wildcard that a specific
// subscription already delivers are dropped, so each message yields exactly
// one MessageReceived.
type Connection struct {
	*Client
	device config.DeviceConfig
	topics zendure.Topics
	log    *logrus.Entry

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewConnection prepares a connection for dev without dialing. dev must
// have been validated.
func NewConnection(dev config.DeviceConfig, logger *logrus.Logger) (*Connection, error) {
	productID, ok := dev.ModelID().ProductID()
	if !ok {
		return nil, fmt.Errorf("no product ID for model %q", dev.Model)
	}

	clientID := fmt.Sprintf("zendure-hass-%s-%s", dev.DeviceID, uuid.NewString()[:8])
	opts, _, err := newOptions(dev.BrokerURL(), clientID, logger)
	if err != nil {
		return nil, err
	}
	if dev.Username != "" {
		opts.SetUsername(dev.Username)
		opts.SetPassword(dev.Password)
	}

	c := newConnection(nil, dev, zendure.TopicsFor(productID, dev.DeviceID), logger)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleConnectionLost(err) })
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.log.Debug("MQTT reconnecting...")
	})

	c.Client.client = pahomqtt.NewClient(opts)
	return c, nil
}

func newConnection(client pahomqtt.Client, dev config.DeviceConfig, topics zendure.Topics, logger *logrus.Logger) *Connection {
	return &Connection{
		Client: newClient(client, logger),
		device: dev,
		topics: topics,
		log: logger.WithFields(logrus.Fields{
			"device_id": dev.DeviceID,
			"model":     dev.Model,
		}),
		events: make(chan Event, config.EventBuffer),
		done:   make(chan struct{}),
	}
}

// Events returns the stream of connection events. It is never closed;
// stop reading once the context driving the consumer is done.
func (c *Connection) Events() <-chan Event { return c.events }

// Topics returns the device's topic set.
func (c *Connection) Topics() zendure.Topics { return c.topics }

// Connect dials the broker. It returns once the connection is established,
// ctx is cancelled or the connect timeout elapses. Reconnects after a later
// drop are handled by paho.
func (c *Connection) Connect(ctx context.Context) error {
	token := c.client.Connect()

	ctx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	select {
	case <-token.Done():
	case <-ctx.Done():
		c.emit(Event{Kind: Disconnected, Err: ctx.Err()})
		return fmt.Errorf("%w: %w", ErrCannotConnect, ctx.Err())
	}
	if err := token.Error(); err != nil {
		c.log.WithError(err).Error("Failed to connect to MQTT broker")
		c.emit(Event{Kind: Disconnected, Err: err})
		return fmt.Errorf("%w: %w", ErrCannotConnect, err)
	}

	c.log.WithFields(logrus.Fields{
		"broker": c.device.BrokerURL(),
		"report": c.topics.Report,
	}).Info("Device connection established")
	return nil
}

// Disconnect closes the connection and emits a final Disconnected event.
// Pending emits are released before paho is told to disconnect, since paho
// waits for its delivery goroutine to finish.
func (c *Connection) Disconnect() {
	c.closeOnce.Do(func() {
		select {
		case c.events <- Event{Kind: Disconnected}:
		default:
		}
		close(c.done)
		if c.client.IsConnectionOpen() {
			c.Client.Disconnect(250)
		}
		c.log.Info("Device connection closed")
	})
}

// WriteProperties publishes {"properties": props} to the device's write
// topic. It reports whether the publish itself succeeded; the reply on the
// write-reply topic is not correlated.
func (c *Connection) WriteProperties(props map[string]any) bool {
	payload, err := json.Marshal(map[string]any{"properties": props})
	if err != nil {
		c.log.WithError(err).Error("Failed to encode property write")
		return false
	}
	if err := c.Publish(c.topics.Write, payload, false); err != nil {
		c.log.WithError(err).Error("Failed to publish property write")
		return false
	}
	c.log.WithFields(logrus.Fields{
		"topic":   c.topics.Write,
		"payload": string(payload),
	}).Info("Published property write")
	return true
}

func (c *Connection) handleConnect() {
	c.log.Info("Connected to MQTT broker")
	for _, topic := range c.topics.Subscriptions() {
		handler := c.handleMessage
		if topic == c.topics.Wildcard {
			handler = c.handleWildcard
		}
		if err := c.subscribe(topic, handler); err != nil {
			c.log.WithError(err).WithField("topic", topic).Error("Failed to subscribe")
			continue
		}
		c.log.WithField("topic", topic).Info("Subscribed to topic")
	}
	c.resubscribe()
	c.emit(Event{Kind: Connected})
}

func (c *Connection) handleConnectionLost(err error) {
	c.log.WithError(err).Warn("Disconnected from MQTT broker")
	c.emit(Event{Kind: Disconnected, Err: err})
}

func (c *Connection) handleMessage(topic string, payload []byte) {
	c.log.WithFields(logrus.Fields{
		"topic":   topic,
		"payload": string(payload),
	}).Debug("Received message")
	c.emit(Event{Kind: MessageReceived, Topic: topic, Payload: payload})
}

func (c *Connection) handleWildcard(topic string, payload []byte) {
	if c.topics.IsDirect(topic) {
		return
	}
	c.handleMessage(topic, payload)
}

// emit hands an event to the consumer, blocking paho's delivery goroutine
// while the queue is full so that ordering is kept. After Disconnect events
// are discarded.
func (c *Connection) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// ValidateConnection connects to the broker described by dev once and
// disconnects again. Any failure is reported as ErrCannotConnect.
func ValidateConnection(ctx context.Context, dev config.DeviceConfig, logger *logrus.Logger) error {
	clientID := fmt.Sprintf("zendure-hass-check-%s", uuid.NewString()[:8])
	opts, _, err := newOptions(dev.BrokerURL(), clientID, logger)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCannotConnect, err)
	}
	if dev.Username != "" {
		opts.SetUsername(dev.Username)
		opts.SetPassword(dev.Password)
	}
	opts.SetAutoReconnect(false)

	client := pahomqtt.NewClient(opts)
	token := client.Connect()

	ctx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCannotConnect, ctx.Err())
	}
	if err := token.Error(); err != nil {
		logger.WithError(err).WithField("broker", dev.BrokerURL()).Error("Failed to connect to MQTT broker")
		return fmt.Errorf("%w: %w", ErrCannotConnect, err)
	}
	client.Disconnect(250)
	return nil
}
