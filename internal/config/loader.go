package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// ZENDURE_HASS_HA_MQTT_URL.
const EnvPrefix = "ZENDURE_HASS"

// ConfigChangeCallback is invoked with the re-read configuration after the
// config file changed on disk.
type ConfigChangeCallback func(cfg *Config) error

// Loader reads the optional YAML config file and environment overrides.
type Loader struct {
	v      *viper.Viper
	path   string
	logger *logrus.Logger

	mu         sync.Mutex
	lastChange time.Time
	onChange   ConfigChangeCallback
}

// NewLoader prepares a loader for path. An empty path means environment and
// defaults only.
func NewLoader(path string, logger *logrus.Logger) *Loader {
	v := viper.New()
	def := GetDefaultConfig()
	v.SetDefault("discovery_prefix", def.DiscoveryPrefix)
	v.SetDefault("base_topic", def.BaseTopic)
	v.SetDefault("mqtt_interval", def.MQTTInterval)
	v.SetDefault("force_update_interval", def.ForceUpdateInterval)
	v.SetDefault("ha_mqtt_url", "")
	v.SetDefault("verbose", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}
	return &Loader{v: v, path: path, logger: logger}
}

// Load reads the config file (when set) and returns the merged config. The
// result is not validated; callers apply flag overrides first.
func (l *Loader) Load() (*Config, error) {
	if l.path != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.path, err)
		}
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := GetDefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Watch re-reads the config file on every write and hands the result to
// callback. Writes within ReloadDebounce of the previous one are ignored.
func (l *Loader) Watch(callback ConfigChangeCallback) error {
	if l.path == "" {
		return fmt.Errorf("no config file to watch")
	}
	absPath, err := filepath.Abs(l.path)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.onChange = callback
	l.mu.Unlock()

	l.v.SetConfigFile(absPath)
	l.v.OnConfigChange(l.handleChange)
	l.v.WatchConfig()
	return nil
}

func (l *Loader) handleChange(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) {
		return
	}

	l.mu.Lock()
	now := time.Now()
	if now.Sub(l.lastChange) < ReloadDebounce {
		l.mu.Unlock()
		return
	}
	l.lastChange = now
	cb := l.onChange
	l.mu.Unlock()

	l.logger.WithField("file", e.Name).Info("Config file changed")

	cfg, err := l.unmarshal()
	if err != nil {
		l.logger.WithError(err).Warn("Failed to decode updated config")
		return
	}
	if cb == nil {
		return
	}
	if err := cb(cfg); err != nil {
		l.logger.WithError(err).Warn("Failed to apply updated config")
		return
	}
	l.logger.Info("Updated config applied")
}
