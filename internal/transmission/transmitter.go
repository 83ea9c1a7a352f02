package transmission

import (
	"github.com/jkaberg/zendure-hass/internal/domain"
	"github.com/jkaberg/zendure-hass/internal/mqtt"
)

// Transmitter defines the interface for transmitting device snapshots
type Transmitter interface {
	Transmit(s *domain.Snapshot) error
	IsConnected() bool
}

// Publisher is the broker side a transmitter writes to. Both *mqtt.Client
// and *mqtt.Connection satisfy it.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
	IsConnected() bool
}

// Subscriber registers a handler for an MQTT topic.
type Subscriber interface {
	Subscribe(topic string, handler mqtt.MessageHandler) error
}

// PropertyWriter forwards a property write to a device.
type PropertyWriter interface {
	WriteProperties(props map[string]any) bool
}
