package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jkaberg/zendure-hass/internal/bus"
	"github.com/jkaberg/zendure-hass/internal/config"
	"github.com/jkaberg/zendure-hass/internal/device"
	"github.com/jkaberg/zendure-hass/internal/domain"
	"github.com/jkaberg/zendure-hass/internal/mqtt"
	"github.com/jkaberg/zendure-hass/internal/transmission"
)

// broker is the Home Assistant side: either a dedicated client or the
// device's own connection.
type broker interface {
	transmission.Publisher
	transmission.Subscriber
}

// bridge is everything needed to run one device.
type bridge struct {
	dev  config.DeviceConfig
	conn *mqtt.Connection
	tx   *transmission.MQTTTransmitter
	ha   broker
}

// Run bridges every configured device and blocks until ctx is cancelled.
// haClient may be nil, in which case each device connection also carries the
// Home Assistant traffic. All devices are prepared before any goroutine
// starts, so a bad entry fails Run without leaving others running.
func Run(ctx context.Context, cfg *config.Config, haClient *mqtt.Client, logger *logrus.Logger) error {
	bridges := make([]bridge, 0, len(cfg.Devices))
	for _, dev := range cfg.Devices {
		conn, err := mqtt.NewConnection(dev, logger)
		if err != nil {
			return fmt.Errorf("device %s: %w", dev.DeviceID, err)
		}

		var ha broker = conn
		if haClient != nil {
			ha = haClient
		}
		bridges = append(bridges, bridge{
			dev:  dev,
			conn: conn,
			tx:   transmission.NewMQTTTransmitter(ha, dev, cfg.DiscoveryPrefix, cfg.BaseTopic, logger),
			ha:   ha,
		})
	}

	grp, ctx := errgroup.WithContext(ctx)
	for _, b := range bridges {
		log := logger.WithField("device_id", b.dev.DeviceID)
		conn, tx := b.conn, b.tx

		if err := tx.BridgeCommands(b.ha, conn); err != nil {
			log.WithError(err).Warn("Command bridge unavailable")
		}

		messageBus := bus.New()
		sub := messageBus.Subscribe()
		disp := device.NewDispatcher(device.New(b.dev), messageBus, logger)

		// Connection -----------------------------------------------------------
		grp.Go(func() error {
			defer messageBus.Close()
			if err := connectWithRetry(ctx, conn, log); err != nil {
				return nil
			}
			<-ctx.Done()
			if err := tx.PublishAvailability(false); err != nil {
				log.WithError(err).Debug("Could not publish offline availability")
			}
			conn.Disconnect()
			return nil
		})

		// Dispatcher -----------------------------------------------------------
		grp.Go(func() error {
			return disp.Run(ctx, conn.Events())
		})

		// Scheduler ------------------------------------------------------------
		sched := newScheduler(tx, cfg.MQTTInterval, cfg.ForceUpdateInterval, log)
		grp.Go(func() error {
			return sched.run(ctx, sub)
		})

		log.WithField("title", b.dev.Title()).Info("Device bridge started")
	}

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// connectWithRetry dials until the first connection succeeds; later drops
// are handled by paho's auto-reconnect. It only fails when ctx ends.
func connectWithRetry(ctx context.Context, conn *mqtt.Connection, log *logrus.Entry) error {
	for {
		err := conn.Connect(ctx)
		if err == nil {
			return nil
		}
		log.WithError(err).WithField("retry_in", config.MaxReconnectWait).Warn("Device connection failed")

		select {
		case <-ctx.Done():
			conn.Disconnect()
			return ctx.Err()
		case <-time.After(config.MaxReconnectWait):
		}
	}
}

// scheduler forwards the latest snapshot to a transmitter, at most once per
// interval and only when something changed. Availability flips are sent
// immediately; forceInterval > 0 resends unchanged data periodically.
type scheduler struct {
	tx            transmission.Transmitter
	interval      time.Duration
	forceInterval time.Duration
	log           *logrus.Entry

	latest   *domain.Snapshot
	lastSent time.Time
	lastSnap *domain.Snapshot
}

func newScheduler(tx transmission.Transmitter, interval, forceInterval time.Duration, log *logrus.Entry) *scheduler {
	return &scheduler{
		tx:            tx,
		interval:      interval,
		forceInterval: forceInterval,
		log:           log,
		lastSent:      time.Now().Add(-interval),
	}
}

func (s *scheduler) run(ctx context.Context, snaps <-chan *domain.Snapshot) error {
	ticker := time.NewTicker(config.SchedulerTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			s.latest = snap
			if s.availabilityChanged() {
				s.tick(time.Now())
			}
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

func (s *scheduler) availabilityChanged() bool {
	return s.latest != nil && s.lastSnap != nil && s.latest.Available != s.lastSnap.Available
}

// tick decides whether the latest snapshot is due and sends it.
func (s *scheduler) tick(now time.Time) {
	if s.latest == nil {
		return
	}

	forced := s.forceInterval > 0 && now.Sub(s.lastSent) >= s.forceInterval
	if !forced && !s.availabilityChanged() {
		if now.Sub(s.lastSent) < s.interval {
			return
		}
		if !domain.Changed(s.lastSnap, s.latest) {
			return
		}
	}

	if err := s.tx.Transmit(s.latest); err != nil {
		s.log.WithError(err).Warn("MQTT transmit failed")
		// Retry on the next due tick even without a data change.
		s.lastSnap = nil
		s.lastSent = now
		return
	}
	s.lastSnap = s.latest
	s.lastSent = now
}
