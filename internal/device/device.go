package device

import (
	"maps"
	"time"

	"github.com/jkaberg/zendure-hass/internal/config"
	"github.com/jkaberg/zendure-hass/internal/domain"
	"github.com/jkaberg/zendure-hass/internal/sensors"
)

// Device is the mutable record for one configured device. It is owned by a
// single Dispatcher and must not be shared between goroutines.
//
// A property report replaces the attribute set; any other message (write
// replies, unlisted subtopics, raw payloads) is merged into it until the next
// report arrives.
type Device struct {
	cfg        config.DeviceConfig
	available  bool
	state      string
	attributes map[string]any
	updated    time.Time
	now        func() time.Time
}

// New creates an unavailable device with no state.
func New(cfg config.DeviceConfig) *Device {
	return &Device{
		cfg:        cfg,
		attributes: make(map[string]any),
		now:        time.Now,
	}
}

// Config returns the device configuration.
func (d *Device) Config() config.DeviceConfig { return d.cfg }

// Available reports whether the broker connection is up.
func (d *Device) Available() bool { return d.available }

// State returns the current primary state.
func (d *Device) State() string { return d.state }

// Attributes returns a copy of the current attribute set.
func (d *Device) Attributes() map[string]any { return maps.Clone(d.attributes) }

// SetAvailable records a connection state change and reports whether it
// changed anything.
func (d *Device) SetAvailable(available bool) bool {
	if d.available == available {
		return false
	}
	d.available = available
	d.updated = d.now()
	return true
}

// ApplyMessage decodes one inbound message into the record.
func (d *Device) ApplyMessage(topic string, payload []byte) sensors.Result {
	res := sensors.Decode(topic, payload)

	if res.Report {
		d.attributes = res.Attributes
	} else {
		for k, v := range res.Attributes {
			d.attributes[k] = v
		}
	}

	switch {
	case res.HasState:
		d.state = res.State
	case d.state == "":
		d.state = sensors.StateOnline
	}

	// A device that talks to us is reachable even if we missed the connect
	// event.
	d.available = true
	d.updated = d.now()
	return res
}

// Snapshot returns an independent copy of the current record.
func (d *Device) Snapshot() *domain.Snapshot {
	return &domain.Snapshot{
		DeviceID:   d.cfg.DeviceID,
		Model:      d.cfg.ModelID(),
		Available:  d.available,
		State:      d.state,
		Attributes: maps.Clone(d.attributes),
		Timestamp:  d.updated,
	}
}
