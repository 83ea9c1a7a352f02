package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jkaberg/zendure-hass/internal/app"
	"github.com/jkaberg/zendure-hass/internal/config"
	"github.com/jkaberg/zendure-hass/internal/mqtt"
)

// version is injected at build time via ldflags
var version = "dev"

type options struct {
	configPath string
	check      bool
	write      string
	verbose    bool // -verbose given on the command line
}

func main() {
	cfg, loader, opts := parseFlags()

	logger := setupLogger(cfg.Verbose)

	// One-shot paths -------------------------------------------------------------
	if opts.check {
		os.Exit(runCheck(cfg, logger))
	}

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	if opts.write != "" {
		os.Exit(runWrite(cfg, opts.write, logger))
	}

	logFields := logrus.Fields{
		"version":  version,
		"devices":  len(cfg.Devices),
		"mqtt_int": cfg.MQTTInterval,
		"ha_mqtt":  cfg.HasHABroker(),
	}
	if cfg.ForceUpdateInterval > 0 {
		logFields["force_update_int"] = cfg.ForceUpdateInterval
	}
	logger.WithFields(logFields).Info("Starting Zendure-HASS")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("Shutdown signal received")
		cancel()
	}()

	if opts.configPath != "" {
		err := loader.Watch(reloadLogLevel(logger, opts.verbose))
		if err != nil {
			logger.WithError(err).Warn("Config file will not be watched")
		}
	}

	// Home Assistant broker --------------------------------------------------------
	var haClient *mqtt.Client
	if cfg.HasHABroker() {
		clientID := "zendure-hass-" + uuid.NewString()[:8]
		c, err := mqtt.NewClient(cfg.HAMQTTUrl, clientID, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Home Assistant MQTT client")
		}
		defer c.Disconnect(250)
		haClient = c
		logger.Info("Home Assistant MQTT client ready")
	} else {
		logger.Info("Publishing to Home Assistant through the device brokers")
	}

	// Run application ------------------------------------------------------------
	if err := app.Run(ctx, cfg, haClient, logger); err != nil {
		logger.WithError(err).Fatal("Bridge stopped")
	}

	logger.Info("Zendure-HASS stopped")
}

// -----------------------------------------------------------------------------
// One-shot commands
// -----------------------------------------------------------------------------

// runCheck validates every device entry and its broker connection and
// prints one outcome per device: ok, invalid_device_id, unknown_model,
// cannot_connect or invalid_config.
func runCheck(cfg *config.Config, logger *logrus.Logger) int {
	if len(cfg.Devices) == 0 {
		fmt.Println(config.ErrNoDevices)
		return 1
	}

	code := 0
	for i := range cfg.Devices {
		dev := &cfg.Devices[i]
		result := checkDevice(dev, logger)
		if result != "ok" {
			code = 1
		}
		fmt.Printf("%s: %s\n", dev.Title(), result)
	}
	return code
}

func checkDevice(dev *config.DeviceConfig, logger *logrus.Logger) string {
	err := dev.Validate()
	if err == nil {
		err = mqtt.ValidateConnection(context.Background(), *dev, logger)
	}
	if err != nil {
		logger.WithError(err).WithField("device_id", dev.DeviceID).Debug("Device check failed")
	}
	return checkStatus(err)
}

// checkStatus maps a validation or connection error to the reported outcome.
func checkStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, config.ErrInvalidDeviceID):
		return "invalid_device_id"
	case errors.Is(err, config.ErrUnknownModel):
		return "unknown_model"
	case errors.Is(err, mqtt.ErrCannotConnect):
		return "cannot_connect"
	default:
		return "invalid_config"
	}
}

// runWrite sends a single property write to every configured device.
func runWrite(cfg *config.Config, raw string, logger *logrus.Logger) int {
	var props map[string]any
	if err := json.Unmarshal([]byte(raw), &props); err != nil || len(props) == 0 {
		logger.WithField("write", raw).Error("-write expects a non-empty JSON object")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()

	code := 0
	for _, dev := range cfg.Devices {
		conn, err := mqtt.NewConnection(dev, logger)
		if err != nil {
			logger.WithError(err).WithField("device_id", dev.DeviceID).Error("Failed to prepare connection")
			code = 1
			continue
		}
		if err := conn.Connect(ctx); err != nil {
			fmt.Printf("%s: cannot_connect\n", dev.Title())
			conn.Disconnect()
			code = 1
			continue
		}
		if !conn.WriteProperties(props) {
			code = 1
		}
		conn.Disconnect()
	}
	return code
}

// -----------------------------------------------------------------------------
// Helpers & Flags
// -----------------------------------------------------------------------------

func parseFlags() (*config.Config, *config.Loader, options) {
	var opts options
	dev := config.DeviceConfig{}

	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.BoolVar(&opts.check, "check", false, "Test the broker connection of every device and exit")
	flag.StringVar(&opts.write, "write", "", `Write properties to every device and exit (e.g. '{"socSet":900}')`)
	flag.StringVar(&opts.configPath, "config", getEnv("ZENDURE_HASS_CONFIG", ""), "YAML config file")

	flag.StringVar(&dev.Host, "host", getEnv("ZENDURE_HASS_HOST", ""), "Device MQTT broker host")
	portStr := flag.String("port", getEnv("ZENDURE_HASS_PORT", ""), "Device MQTT broker port")
	flag.StringVar(&dev.Username, "username", getEnv("ZENDURE_HASS_USERNAME", ""), "Device MQTT username")
	flag.StringVar(&dev.Password, "password", getEnv("ZENDURE_HASS_PASSWORD", ""), "Device MQTT password")
	flag.StringVar(&dev.Model, "model", getEnv("ZENDURE_HASS_MODEL", ""), "Device model (hub1200, hub2000, aio2400, ace1500, hyper2000)")
	flag.StringVar(&dev.DeviceID, "device-id", getEnv("ZENDURE_HASS_DEVICE_ID", ""), "Device identifier")

	haURL := flag.String("ha-mqtt-url", "", "Home Assistant MQTT URL (default: reuse the device broker)")
	discoveryPrefix := flag.String("discovery-prefix", "", "HA discovery prefix")
	flag.BoolVar(&opts.verbose, "verbose", false, "Verbose logging")
	mqttIntervalStr := flag.String("mqtt-interval", "", "MQTT interval (e.g. 60s)")
	forceUpdateIntervalStr := flag.String("force-update-interval", "", "Force update all sensors at this interval even if unchanged (e.g. 10m, 0 = disabled)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("zendure-hass %s\n", version)
		os.Exit(0)
	}

	bootLogger := setupLogger(opts.verbose)
	loader := config.NewLoader(opts.configPath, bootLogger)
	cfg, err := loader.Load()
	if err != nil {
		bootLogger.WithError(err).Fatal("Failed to load configuration")
	}

	// Flag overrides
	if dev.Host != "" || dev.DeviceID != "" {
		if *portStr != "" {
			p, err := strconv.Atoi(*portStr)
			if err != nil {
				bootLogger.WithField("port", *portStr).Fatal("Invalid port")
			}
			dev.Port = p
		}
		cfg.Devices = append(cfg.Devices, dev)
	}
	if *haURL != "" {
		cfg.HAMQTTUrl = *haURL
	}
	if *discoveryPrefix != "" {
		cfg.DiscoveryPrefix = *discoveryPrefix
	}
	if opts.verbose {
		cfg.Verbose = true
	}

	// Duration overrides
	if *mqttIntervalStr != "" {
		if d, err := time.ParseDuration(*mqttIntervalStr); err == nil && d > 0 {
			cfg.MQTTInterval = d
		} else if v, err2 := strconv.Atoi(*mqttIntervalStr); err2 == nil && v > 0 {
			cfg.MQTTInterval = time.Duration(v) * time.Second
		}
	}
	if *forceUpdateIntervalStr != "" {
		if d, err := time.ParseDuration(*forceUpdateIntervalStr); err == nil && d >= 0 {
			cfg.ForceUpdateInterval = d
		} else if v, err2 := strconv.Atoi(*forceUpdateIntervalStr); err2 == nil && v >= 0 {
			cfg.ForceUpdateInterval = time.Duration(v) * time.Second
		}
	}

	return cfg, loader, opts
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func setupLogger(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	setLogLevel(l, verbose)
	return l
}

// reloadLogLevel applies the verbose setting of a reloaded config file. A
// -verbose flag given at startup keeps debug logging on.
func reloadLogLevel(logger *logrus.Logger, flagVerbose bool) config.ConfigChangeCallback {
	return func(updated *config.Config) error {
		verbose := flagVerbose || updated.Verbose
		setLogLevel(logger, verbose)
		logger.WithField("verbose", verbose).Info("Log level updated; other changes apply after restart")
		return nil
	}
}

func setLogLevel(l *logrus.Logger, verbose bool) {
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
}
