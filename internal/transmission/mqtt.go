package transmission

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jkaberg/zendure-hass/internal/config"
	"github.com/jkaberg/zendure-hass/internal/domain"
	"github.com/jkaberg/zendure-hass/internal/mqtt"
	"github.com/jkaberg/zendure-hass/internal/sensors"
)

// MQTTTransmitter publishes one device's snapshots to Home Assistant
type MQTTTransmitter struct {
	client           Publisher
	device           config.DeviceConfig
	discoveryPrefix  string
	baseTopic        string
	logger           *logrus.Logger
	publishedSensors map[string]bool // Tracks published discovery configs
}

// HADiscoveryConfig represents Home Assistant MQTT discovery configuration
type HADiscoveryConfig struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	StateTopic          string   `json:"state_topic"`
	JSONAttributesTopic string   `json:"json_attributes_topic,omitempty"`
	ValueTemplate       string   `json:"value_template,omitempty"`
	DeviceClass         string   `json:"device_class,omitempty"`
	UnitOfMeasurement   string   `json:"unit_of_measurement,omitempty"`
	Device              HADevice `json:"device"`
	AvailabilityTopic   string   `json:"availability_topic"`
	Icon                string   `json:"icon,omitempty"`
	StateClass          string   `json:"state_class,omitempty"`
}

// HADevice represents the device information for Home Assistant
type HADevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// SensorConfig defines the configuration for each property entity
type SensorConfig struct {
	Name        string
	Key         string // attribute key in the attributes payload
	EntityID    string
	DeviceClass string
	Unit        string
	StateClass  string
}

// NewMQTTTransmitter creates a new MQTT transmitter for dev
func NewMQTTTransmitter(client Publisher, dev config.DeviceConfig, discoveryPrefix, baseTopic string, logger *logrus.Logger) *MQTTTransmitter {
	return &MQTTTransmitter{
		client:           client,
		device:           dev,
		discoveryPrefix:  discoveryPrefix,
		baseTopic:        baseTopic,
		logger:           logger,
		publishedSensors: make(map[string]bool),
	}
}

// Topic returns <base>/<device>/<leaf>.
func (t *MQTTTransmitter) Topic(leaf string) string {
	return fmt.Sprintf("%s/%s/%s", t.baseTopic, t.device.DeviceID, leaf)
}

// nodeID is the discovery node for this device; HA restricts node IDs to a
// topic-safe subset.
func (t *MQTTTransmitter) nodeID() string {
	return "zendure_" + mqtt.BuildCleanTopic(t.device.DeviceID)
}

func (t *MQTTTransmitter) haDevice() HADevice {
	model := t.device.ModelID()
	return HADevice{
		Identifiers:  []string{"zendure_" + t.device.UniqueID()},
		Name:         fmt.Sprintf("Zendure %s", model.Upper()),
		Model:        model.Upper(),
		Manufacturer: "Zendure",
	}
}

// getSensorConfigs builds property entities from the device property table.
// Only properties with a unit get their own entity; the rest stay available
// as attributes of the main sensor.
func (t *MQTTTransmitter) getSensorConfigs() []SensorConfig {
	configs := make([]SensorConfig, 0, len(sensors.DeviceProperties))
	for _, def := range sensors.DeviceProperties {
		if def.UnitOfMeasurement == "" {
			continue
		}
		configs = append(configs, SensorConfig{
			Name:        def.Name,
			Key:         def.Key,
			EntityID:    sensors.ToSnakeCase(def.Key),
			DeviceClass: def.DeviceClass,
			Unit:        def.UnitOfMeasurement,
			StateClass:  def.StateClass,
		})
	}
	return configs
}

// publishMainDiscovery publishes the primary state sensor carrying all
// attributes.
func (t *MQTTTransmitter) publishMainDiscovery(device HADevice) error {
	uniqueID := fmt.Sprintf("zendure_mqtt_%s_%s_sensor", t.device.DeviceID, t.device.Model)
	if t.publishedSensors[uniqueID] {
		return nil
	}

	config := HADiscoveryConfig{
		Name:                device.Name,
		UniqueID:            uniqueID,
		StateTopic:          t.Topic("state"),
		JSONAttributesTopic: t.Topic("attributes"),
		AvailabilityTopic:   t.Topic("availability"),
		Icon:                "mdi:battery",
		Device:              device,
	}

	topic := fmt.Sprintf("%s/sensor/%s/state/config", t.discoveryPrefix, t.nodeID())
	if err := t.publishConfigRaw(topic, config); err != nil {
		return fmt.Errorf("failed to publish main sensor discovery config: %w", err)
	}

	t.logger.WithField("topic", topic).Info("Published device discovery config")
	t.publishedSensors[uniqueID] = true
	return nil
}

// publishDiscoveryForSensor publishes the discovery config for a single
// property entity.
func (t *MQTTTransmitter) publishDiscoveryForSensor(sensor SensorConfig, device HADevice) error {
	uniqueID := fmt.Sprintf("zendure_mqtt_%s_%s_%s", t.device.DeviceID, t.device.Model, sensor.EntityID)

	// Skip if already published
	if t.publishedSensors[uniqueID] {
		return nil
	}

	config := HADiscoveryConfig{
		Name:              sensor.Name,
		UniqueID:          uniqueID,
		StateTopic:        t.Topic("attributes"),
		ValueTemplate:     valueTemplate(sensor.Key),
		AvailabilityTopic: t.Topic("availability"),
		DeviceClass:       sensor.DeviceClass,
		UnitOfMeasurement: sensor.Unit,
		StateClass:        sensor.StateClass,
		Device:            device,
	}

	topic := fmt.Sprintf("%s/sensor/%s/%s/config", t.discoveryPrefix, t.nodeID(), sensor.EntityID)
	if err := t.publishConfigRaw(topic, config); err != nil {
		return fmt.Errorf("failed to publish %s discovery config: %w", sensor.Name, err)
	}

	t.logger.WithFields(logrus.Fields{
		"sensor_name": sensor.Name,
		"entity_id":   sensor.EntityID,
		"topic":       topic,
	}).Debug("Published sensor discovery config")

	t.publishedSensors[uniqueID] = true
	return nil
}

// valueTemplate reads key from the attributes payload. A report that omits
// the key renders as unknown rather than a fabricated zero.
func valueTemplate(key string) string {
	return fmt.Sprintf("{{ value_json.%s if value_json.%s is defined else none }}", key, key)
}

// publishDiscoveryConfigs ensures the main sensor and all property entities
// have their discovery configs published.
func (t *MQTTTransmitter) publishDiscoveryConfigs() error {
	device := t.haDevice()

	if err := t.publishMainDiscovery(device); err != nil {
		return err
	}

	for _, sensor := range t.getSensorConfigs() {
		// Entities are announced even before the device reports the value;
		// they stay unknown until it does.
		if err := t.publishDiscoveryForSensor(sensor, device); err != nil {
			t.logger.WithError(err).WithField("sensor", sensor.Name).Error("Failed to publish discovery config")
		}
	}
	return nil
}

// publishConfigRaw publishes a raw configuration object
func (t *MQTTTransmitter) publishConfigRaw(topic string, config interface{}) error {
	payload, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery config: %w", err)
	}

	if err := t.client.Publish(topic, payload, true); err != nil {
		return fmt.Errorf("failed to publish discovery config to %s: %w", topic, err)
	}

	return nil
}

// Transmit publishes a snapshot. An unavailable snapshot only flips the
// availability topic so Home Assistant keeps the last known values.
func (t *MQTTTransmitter) Transmit(s *domain.Snapshot) error {
	if s == nil {
		return nil
	}
	if !t.client.IsConnected() {
		return fmt.Errorf("transmit %s: %w", s.DeviceID, mqtt.ErrNotConnected)
	}

	if !s.Available {
		return t.PublishAvailability(false)
	}

	if err := t.publishDiscoveryConfigs(); err != nil {
		// Log error but don't block transmission
		t.logger.WithError(err).Error("Failed to publish Home Assistant discovery configs")
	}

	if err := t.publishState(s); err != nil {
		return fmt.Errorf("failed to publish device state: %w", err)
	}

	if err := t.PublishAvailability(true); err != nil {
		return fmt.Errorf("failed to publish availability: %w", err)
	}

	t.logger.WithField("device_id", s.DeviceID).Debug("Data transmitted successfully")
	return nil
}

// publishState publishes the primary state and the attribute payload
func (t *MQTTTransmitter) publishState(s *domain.Snapshot) error {
	stateTopic := t.Topic("state")
	if err := t.client.Publish(stateTopic, []byte(s.State), true); err != nil {
		return fmt.Errorf("failed to publish state to %s: %w", stateTopic, err)
	}

	attrs := s.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	attrTopic := t.Topic("attributes")
	if err := t.client.Publish(attrTopic, payload, true); err != nil {
		return fmt.Errorf("failed to publish attributes to %s: %w", attrTopic, err)
	}

	t.logger.WithFields(logrus.Fields{
		"topic":      stateTopic,
		"state":      s.State,
		"attributes": len(attrs),
	}).Info("Published device state")

	return nil
}

// PublishAvailability publishes the availability status
func (t *MQTTTransmitter) PublishAvailability(online bool) error {
	payload := "online"
	if !online {
		payload = "offline"
	}

	topic := t.Topic("availability")
	if err := t.client.Publish(topic, []byte(payload), true); err != nil {
		return fmt.Errorf("failed to publish availability to %s: %w", topic, err)
	}
	return nil
}

// IsConnected checks if the MQTT client is connected
func (t *MQTTTransmitter) IsConnected() bool {
	return t.client.IsConnected()
}
