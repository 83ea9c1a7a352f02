package config

import "time"

// Central place for all application-wide timing constants and other defaults.
// Changing a value here immediately affects all components that import
// github.com/jkaberg/zendure-hass/internal/config.

const (
	// Broker defaults
	DefaultMQTTPort = 1883

	// Transmission intervals
	MQTTTransmitInterval = 60 * time.Second // Publish state to Home Assistant
	SchedulerTick        = time.Second      // How often the scheduler looks for work

	// Operation time-outs (to avoid blocking goroutines)
	ConnectTimeout   = 10 * time.Second // Initial broker connect / validation
	MQTTTimeout      = 5 * time.Second  // Publish / subscribe acknowledgement
	KeepAlive        = 60 * time.Second
	MaxReconnectWait = 10 * time.Second

	// Config reload debounce; editors tend to emit several writes per save.
	ReloadDebounce = 2 * time.Second

	// Size of the per-device event queue between paho callbacks and the
	// dispatcher.
	EventBuffer = 64
)
