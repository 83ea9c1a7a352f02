package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/jkaberg/zendure-hass/internal/config"
	"github.com/jkaberg/zendure-hass/internal/domain"
	"github.com/jkaberg/zendure-hass/internal/mqtt"
)

const report = "/A8yh63/test-device-id/properties/report"

func testConfig() config.DeviceConfig {
	return config.DeviceConfig{Host: "127.0.0.1", Port: 1883, Model: "hub2000", DeviceID: "test-device-id"}
}

type recorder struct {
	mu    sync.Mutex
	snaps []*domain.Snapshot
}

func (r *recorder) Publish(s *domain.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) last() *domain.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return nil
	}
	return r.snaps[len(r.snaps)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func TestDeviceReportReplacesAttributes(t *testing.T) {
	d := New(testConfig())

	d.ApplyMessage(report, []byte(`{"properties":{"electricLevel":85,"socSet":900}}`))
	if d.State() != "85" {
		t.Errorf("State() = %q, want 85", d.State())
	}
	if got := d.Attributes()["socSet"]; got != 90.0 {
		t.Errorf("socSet = %v, want 90", got)
	}

	d.ApplyMessage(report, []byte(`{"properties":{"packState":1}}`))
	attrs := d.Attributes()
	if _, stale := attrs["socSet"]; stale {
		t.Error("report did not replace previous attribute set")
	}
	if attrs["packState"] != "charging" || d.State() != "charging" {
		t.Errorf("packState = %v, state = %q", attrs["packState"], d.State())
	}
}

func TestDeviceNonReportMerges(t *testing.T) {
	d := New(testConfig())
	d.ApplyMessage(report, []byte(`{"properties":{"electricLevel":50}}`))

	reply := "/A8yh63/test-device-id/properties/write/reply"
	d.ApplyMessage(reply, []byte(`{"messageId":"42","deviceId":"test-device-id"}`))

	attrs := d.Attributes()
	if attrs["electricLevel"] != 50.0 || attrs["messageId"] != "42" {
		t.Errorf("attributes = %v", attrs)
	}
	if d.State() != "50" {
		t.Errorf("State() = %q, want unchanged 50", d.State())
	}

	d.ApplyMessage("/A8yh63/test-device-id/log", []byte("boot ok"))
	if d.State() != "boot ok" || d.Attributes()["/A8yh63/test-device-id/log"] != "boot ok" {
		t.Errorf("raw passthrough not applied: state=%q attrs=%v", d.State(), d.Attributes())
	}
}

func TestDeviceStateDefaultsToOnline(t *testing.T) {
	d := New(testConfig())
	d.ApplyMessage(report, []byte(`{"deviceId":"test-device-id"}`))
	if d.State() != "online" {
		t.Errorf("State() = %q, want online", d.State())
	}
	if !d.Available() {
		t.Error("device with traffic should be available")
	}
}

func TestDeviceSnapshotIsCopy(t *testing.T) {
	d := New(testConfig())
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	d.ApplyMessage(report, []byte(`{"properties":{"electricLevel":85}}`))
	s := d.Snapshot()
	s.Attributes["electricLevel"] = 1.0

	if d.Attributes()["electricLevel"] != 85.0 {
		t.Error("snapshot shares attributes with device")
	}
	if s.DeviceID != "test-device-id" || s.Model != "hub2000" || !s.Timestamp.Equal(fixed) {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestDispatcherHandle(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rec := &recorder{}
	disp := NewDispatcher(New(testConfig()), rec, logger)

	disp.Handle(mqtt.Event{Kind: mqtt.Connected})
	if s := rec.last(); s == nil || !s.Available {
		t.Fatalf("snapshot after connect = %+v", s)
	}

	disp.Handle(mqtt.Event{Kind: mqtt.Connected})
	if rec.count() != 1 {
		t.Errorf("duplicate connect published %d snapshots", rec.count())
	}

	disp.Handle(mqtt.Event{Kind: mqtt.MessageReceived, Topic: report, Payload: []byte(`{"properties":{"electricLevel":85}}`)})
	if s := rec.last(); s.State != "85" || s.Attributes["electricLevel"] != 85.0 {
		t.Errorf("snapshot after report = %+v", s)
	}

	disp.Handle(mqtt.Event{Kind: mqtt.Disconnected, Err: errors.New("EOF")})
	if s := rec.last(); s.Available {
		t.Error("device still available after disconnect")
	}
	if e := hook.LastEntry(); e == nil || e.Level != logrus.WarnLevel || e.Data[logrus.ErrorKey] == nil {
		t.Errorf("disconnect log entry = %v", e)
	}
}

func TestDispatcherRun(t *testing.T) {
	logger, _ := test.NewNullLogger()
	rec := &recorder{}
	disp := NewDispatcher(New(testConfig()), rec, logger)

	events := make(chan mqtt.Event, 3)
	events <- mqtt.Event{Kind: mqtt.Connected}
	events <- mqtt.Event{Kind: mqtt.MessageReceived, Topic: report, Payload: []byte("hello")}
	close(events)

	if err := disp.Run(context.Background(), events); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if s := rec.last(); s == nil || s.State != "hello" {
		t.Errorf("last snapshot = %+v", s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := disp.Run(ctx, make(chan mqtt.Event)); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
