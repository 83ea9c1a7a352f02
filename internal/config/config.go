package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jkaberg/zendure-hass/internal/zendure"
)

var (
	ErrNoDevices       = errors.New("at least one device is required")
	ErrInvalidDeviceID = errors.New("invalid device ID")
	ErrUnknownModel    = errors.New("unknown device model")
	ErrDuplicateDevice = errors.New("device already configured")
)

// Config holds all configuration options for the zendure-hass application
type Config struct {
	// Devices to bridge; each gets its own broker connection.
	Devices []DeviceConfig `mapstructure:"devices"`

	// Home Assistant side
	HAMQTTUrl       string `mapstructure:"ha_mqtt_url"`      // Broker for HA publishing; empty reuses each device connection
	DiscoveryPrefix string `mapstructure:"discovery_prefix"` // Home Assistant discovery prefix
	BaseTopic       string `mapstructure:"base_topic"`       // Root of state/attribute topics

	// Application Configuration
	Verbose             bool          `mapstructure:"verbose"`
	MQTTInterval        time.Duration `mapstructure:"mqtt_interval"`
	ForceUpdateInterval time.Duration `mapstructure:"force_update_interval"` // 0 = disabled
}

// DeviceConfig describes one Zendure device and the broker it reports to.
type DeviceConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Model    string `mapstructure:"model"`
	DeviceID string `mapstructure:"device_id"`
}

// GetDefaultConfig returns a configuration with sensible defaults
func GetDefaultConfig() *Config {
	return &Config{
		DiscoveryPrefix: "homeassistant",
		BaseTopic:       "zendure",
		MQTTInterval:    MQTTTransmitInterval,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Devices) == 0 {
		return ErrNoDevices
	}

	seen := make(map[string]bool, len(c.Devices))
	for i := range c.Devices {
		d := &c.Devices[i]
		if err := d.Validate(); err != nil {
			return fmt.Errorf("device %d: %w", i+1, err)
		}
		if seen[d.UniqueID()] {
			return fmt.Errorf("device %d: %w: %s", i+1, ErrDuplicateDevice, d.UniqueID())
		}
		seen[d.UniqueID()] = true
	}

	if c.HAMQTTUrl != "" {
		if !strings.HasPrefix(c.HAMQTTUrl, "ws://") &&
			!strings.HasPrefix(c.HAMQTTUrl, "wss://") &&
			!strings.HasPrefix(c.HAMQTTUrl, "mqtt://") &&
			!strings.HasPrefix(c.HAMQTTUrl, "mqtts://") {
			return fmt.Errorf("HA MQTT URL must use supported protocol (ws://, wss://, mqtt://, or mqtts://)")
		}
	}

	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = "homeassistant"
	}
	if c.BaseTopic == "" {
		c.BaseTopic = "zendure"
	}
	if c.MQTTInterval <= 0 {
		c.MQTTInterval = MQTTTransmitInterval
	}
	if c.ForceUpdateInterval < 0 {
		c.ForceUpdateInterval = 0
	}
	return nil
}

// HasHABroker returns true if Home Assistant publishing uses its own broker.
func (c *Config) HasHABroker() bool {
	return c.HAMQTTUrl != ""
}

// Validate normalizes and checks a single device entry.
func (d *DeviceConfig) Validate() error {
	d.Host = strings.TrimSpace(d.Host)
	d.DeviceID = strings.TrimSpace(d.DeviceID)

	if d.Host == "" {
		return fmt.Errorf("MQTT host is required")
	}
	if d.Port == 0 {
		d.Port = DefaultMQTTPort
	}
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("MQTT port %d out of range", d.Port)
	}
	if d.DeviceID == "" {
		return ErrInvalidDeviceID
	}
	if strings.ContainsAny(d.DeviceID, "+#/") {
		return fmt.Errorf("%w: %q contains MQTT wildcard or separator", ErrInvalidDeviceID, d.DeviceID)
	}
	m, err := zendure.ParseModel(d.Model)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownModel, err)
	}
	d.Model = string(m)
	if d.Username == "" && d.Password != "" {
		return fmt.Errorf("MQTT username is required when a password is provided")
	}
	return nil
}

// ModelID returns the parsed model. Call Validate first.
func (d DeviceConfig) ModelID() zendure.Model {
	return zendure.Model(strings.ToLower(d.Model))
}

// UniqueID identifies the device entry, e.g. "abc123_hub2000".
func (d DeviceConfig) UniqueID() string {
	return fmt.Sprintf("%s_%s", d.DeviceID, strings.ToLower(d.Model))
}

// Title is the display name, e.g. "Zendure HUB2000 (abc123)".
func (d DeviceConfig) Title() string {
	return fmt.Sprintf("Zendure %s (%s)", d.ModelID().Upper(), d.DeviceID)
}

// BrokerURL returns the tcp:// URL paho expects.
func (d DeviceConfig) BrokerURL() string {
	return "tcp://" + net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}
