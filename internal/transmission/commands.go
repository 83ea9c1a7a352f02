package transmission

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jkaberg/zendure-hass/internal/mqtt"
)

// ErrEmptyCommand is returned for a command without any property.
var ErrEmptyCommand = errors.New("command has no properties")

// CommandTopic is where Home Assistant (or anyone else) publishes property
// writes for this device.
func (t *MQTTTransmitter) CommandTopic() string {
	return t.Topic("set")
}

// BridgeCommands subscribes to the command topic and forwards every valid
// command to w.
func (t *MQTTTransmitter) BridgeCommands(sub Subscriber, w PropertyWriter) error {
	topic := t.CommandTopic()
	if err := sub.Subscribe(topic, t.commandHandler(w)); err != nil {
		return fmt.Errorf("subscribe to command topic: %w", err)
	}
	t.logger.WithField("topic", topic).Info("Listening for property commands")
	return nil
}

func (t *MQTTTransmitter) commandHandler(w PropertyWriter) mqtt.MessageHandler {
	return func(topic string, payload []byte) {
		log := t.logger.WithFields(logrus.Fields{
			"topic":     topic,
			"device_id": t.device.DeviceID,
		})

		props, err := ParseCommand(payload)
		if err != nil {
			log.WithError(err).Warn("Ignoring invalid command")
			return
		}
		if !w.WriteProperties(props) {
			log.Warn("Property write failed")
			return
		}
		log.WithField("properties", len(props)).Debug("Forwarded property command")
	}
}

// ParseCommand decodes a command payload. Both a bare property object and
// the device's own {"properties": {...}} envelope are accepted.
func ParseCommand(payload []byte) (map[string]any, error) {
	var props map[string]any
	if err := json.Unmarshal(payload, &props); err != nil {
		return nil, fmt.Errorf("invalid command payload: %w", err)
	}
	if inner, ok := props["properties"].(map[string]any); ok && len(props) == 1 {
		props = inner
	}
	if len(props) == 0 {
		return nil, ErrEmptyCommand
	}
	return props, nil
}
