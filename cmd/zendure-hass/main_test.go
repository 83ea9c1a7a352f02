package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/jkaberg/zendure-hass/internal/config"
	"github.com/jkaberg/zendure-hass/internal/mqtt"
)

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ok", nil, "ok"},
		{"invalid device id", fmt.Errorf("device 1: %w", config.ErrInvalidDeviceID), "invalid_device_id"},
		{"unknown model", fmt.Errorf("%w: toaster", config.ErrUnknownModel), "unknown_model"},
		{"cannot connect", fmt.Errorf("%w: connection refused", mqtt.ErrCannotConnect), "cannot_connect"},
		{"other", errors.New("MQTT host is required"), "invalid_config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkStatus(tt.err); got != tt.want {
				t.Errorf("checkStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckDevice(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tests := []struct {
		name string
		dev  config.DeviceConfig
		want string
	}{
		{"empty device id", config.DeviceConfig{Host: "127.0.0.1", Model: "hub2000"}, "invalid_device_id"},
		{"wildcard device id", config.DeviceConfig{Host: "127.0.0.1", Model: "hub2000", DeviceID: "a/#"}, "invalid_device_id"},
		{"unknown model", config.DeviceConfig{Host: "127.0.0.1", Model: "toaster", DeviceID: "abc"}, "unknown_model"},
		{"missing host", config.DeviceConfig{Model: "hub2000", DeviceID: "abc"}, "invalid_config"},
		{"unreachable broker", config.DeviceConfig{Host: "127.0.0.1", Port: 1, Model: "hub2000", DeviceID: "abc"}, "cannot_connect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := tt.dev
			if got := checkDevice(&dev, logger); got != tt.want {
				t.Errorf("checkDevice() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReloadLogLevelKeepsVerboseFlag(t *testing.T) {
	tests := []struct {
		name        string
		flagVerbose bool
		fileVerbose bool
		want        logrus.Level
	}{
		{"flag wins over file", true, false, logrus.DebugLevel},
		{"file enables debug", false, true, logrus.DebugLevel},
		{"neither", false, false, logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := test.NewNullLogger()
			logger.SetLevel(logrus.WarnLevel)

			cb := reloadLogLevel(logger, tt.flagVerbose)
			if err := cb(&config.Config{Verbose: tt.fileVerbose}); err != nil {
				t.Fatalf("callback error = %v", err)
			}
			if got := logger.GetLevel(); got != tt.want {
				t.Errorf("level = %v, want %v", got, tt.want)
			}
		})
	}
}
