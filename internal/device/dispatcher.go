package device

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/jkaberg/zendure-hass/internal/domain"
	"github.com/jkaberg/zendure-hass/internal/mqtt"
)

// Publisher receives a snapshot after every change to the device.
type Publisher interface {
	Publish(s *domain.Snapshot)
}

// Dispatcher feeds connection events into a Device one at a time.
type Dispatcher struct {
	device *Device
	out    Publisher
	log    *logrus.Entry
}

// NewDispatcher creates a dispatcher for dev publishing snapshots to out.
func NewDispatcher(dev *Device, out Publisher, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		device: dev,
		out:    out,
		log:    logger.WithField("device_id", dev.Config().DeviceID),
	}
}

// Run consumes events until ctx is cancelled or events is closed.
func (d *Dispatcher) Run(ctx context.Context, events <-chan mqtt.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.Handle(ev)
		}
	}
}

// Handle applies a single event and publishes the resulting snapshot when
// something changed.
func (d *Dispatcher) Handle(ev mqtt.Event) {
	switch ev.Kind {
	case mqtt.Connected:
		if !d.device.SetAvailable(true) {
			return
		}
		d.log.Info("Device available")
	case mqtt.Disconnected:
		if !d.device.SetAvailable(false) {
			return
		}
		entry := d.log
		if ev.Err != nil {
			entry = entry.WithError(ev.Err)
		}
		entry.Warn("Device unavailable")
	case mqtt.MessageReceived:
		res := d.device.ApplyMessage(ev.Topic, ev.Payload)
		d.log.WithFields(logrus.Fields{
			"topic":      ev.Topic,
			"state":      d.device.State(),
			"attributes": len(res.Attributes),
			"report":     res.Report,
		}).Debug("Decoded message")
	default:
		d.log.WithField("kind", ev.Kind).Warn("Ignoring unknown event")
		return
	}
	d.out.Publish(d.device.Snapshot())
}
