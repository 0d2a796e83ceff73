// Package config loads the agent configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marcus/arcsync/internal/geofence"
	"github.com/marcus/arcsync/internal/models"
)

// FileName is the config file name inside the data directory.
const FileName = "config.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARCSYNC_"

// Config is the agent configuration.
type Config struct {
	DataDir      string                `yaml:"data_dir"`
	DeviceAPI    EndpointConfig        `yaml:"device_api"`
	PushAPI      EndpointConfig        `yaml:"push_api"`
	Bus          BusConfig             `yaml:"bus"`
	Sync         SyncConfig            `yaml:"sync"`
	Monitor      MonitorConfig         `yaml:"monitor"`
	Geofence     models.GeofenceTarget `yaml:"geofence"`
	Sensor       SensorConfig          `yaml:"sensor"`
	Bridge       BridgeConfig          `yaml:"bridge"`
	WakeLock     WakeLockConfig        `yaml:"wakelock"`
	Connectivity ConnectivityConfig    `yaml:"connectivity"`
	Log          LogConfig             `yaml:"log"`
	Tracing      TracingConfig         `yaml:"tracing"`
}

// EndpointConfig is a remote HTTP API.
type EndpointConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token,omitempty"`
}

// BusConfig selects the bus transport. An empty URL means in-process.
type BusConfig struct {
	URL   string `yaml:"url"`
	Topic string `yaml:"topic"`
}

type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type MonitorConfig struct {
	Interval    time.Duration `yaml:"interval"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// SensorConfig selects the location source: "gpsd" or "static".
type SensorConfig struct {
	Kind      string  `yaml:"kind"`
	GPSDAddr  string  `yaml:"gpsd_addr"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Accuracy  float64 `yaml:"accuracy"`
}

type BridgeConfig struct {
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// WakeLockConfig selects the wake lock: "inhibit" or "none".
type WakeLockConfig struct {
	Kind string `yaml:"kind"`
}

// ConnectivityConfig points at the reachability status file. Empty means
// always online.
type ConnectivityConfig struct {
	StatusFile string `yaml:"status_file"`
}

type LogConfig struct {
	Format string `yaml:"format"` // "json" or "text"
	Level  string `yaml:"level"`
}

type TracingConfig struct {
	Exporter string `yaml:"exporter"` // "none", "stdout" or "otlp"
	Endpoint string `yaml:"endpoint"`
}

// DefaultDataDir returns ~/.arcsync, or ./.arcsync without a home directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".arcsync"
	}
	return filepath.Join(home, ".arcsync")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DataDir:   DefaultDataDir(),
		DeviceAPI: EndpointConfig{URL: "http://localhost:5000"},
		PushAPI:   EndpointConfig{URL: "http://localhost:8080"},
		Bus:       BusConfig{Topic: "location_channel"},
		Sync:      SyncConfig{Interval: 30 * time.Second},
		Monitor:   MonitorConfig{Interval: 10 * time.Second, PollTimeout: 8 * time.Second},
		Geofence:  models.GeofenceTarget(geofence.DefaultTarget()),
		Sensor:    SensorConfig{Kind: "gpsd", GPSDAddr: "localhost:2947"},
		Bridge:    BridgeConfig{RetryDelay: 5 * time.Second},
		WakeLock:  WakeLockConfig{Kind: "inhibit"},
		Log:       LogConfig{Format: "text", Level: "info"},
		Tracing:   TracingConfig{Exporter: "none"},
	}
}

// Path returns the config path for dataDir.
func Path(dataDir string) string {
	return filepath.Join(dataDir, FileName)
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "config-*.yaml.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

type lookupFunc func(string) (string, bool)

// ApplyEnv overrides fields from ARCSYNC_* variables.
func (c *Config) ApplyEnv(lookup lookupFunc) error {
	var errs []string
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	num := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}

	str("DATA_DIR", &c.DataDir)
	str("DEVICE_API_URL", &c.DeviceAPI.URL)
	str("DEVICE_API_TOKEN", &c.DeviceAPI.Token)
	str("PUSH_API_URL", &c.PushAPI.URL)
	str("PUSH_API_TOKEN", &c.PushAPI.Token)
	str("BUS_URL", &c.Bus.URL)
	str("BUS_TOPIC", &c.Bus.Topic)
	dur("SYNC_INTERVAL", &c.Sync.Interval)
	dur("MONITOR_INTERVAL", &c.Monitor.Interval)
	dur("MONITOR_POLL_TIMEOUT", &c.Monitor.PollTimeout)
	num("GEOFENCE_LATITUDE", &c.Geofence.Latitude)
	num("GEOFENCE_LONGITUDE", &c.Geofence.Longitude)
	num("GEOFENCE_RADIUS_M", &c.Geofence.RadiusMeters)
	if v, ok := lookup(EnvPrefix + "GEOFENCE_EXACT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sGEOFENCE_EXACT: %v", EnvPrefix, err))
		} else {
			c.Geofence.Exact = b
		}
	}
	str("SENSOR_KIND", &c.Sensor.Kind)
	str("SENSOR_GPSD_ADDR", &c.Sensor.GPSDAddr)
	num("SENSOR_LATITUDE", &c.Sensor.Latitude)
	num("SENSOR_LONGITUDE", &c.Sensor.Longitude)
	num("SENSOR_ACCURACY", &c.Sensor.Accuracy)
	dur("BRIDGE_RETRY_DELAY", &c.Bridge.RetryDelay)
	str("WAKELOCK_KIND", &c.WakeLock.Kind)
	str("CONNECTIVITY_STATUS_FILE", &c.Connectivity.StatusFile)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_LEVEL", &c.Log.Level)
	str("TRACING_EXPORTER", &c.Tracing.Exporter)
	str("TRACING_ENDPOINT", &c.Tracing.Endpoint)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate rejects values the agent cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return fmt.Errorf("data_dir must be set")
	case c.Sync.Interval <= 0:
		return fmt.Errorf("sync.interval must be positive")
	case c.Monitor.Interval <= 0 || c.Monitor.PollTimeout <= 0:
		return fmt.Errorf("monitor.interval and monitor.poll_timeout must be positive")
	case c.Geofence.RadiusMeters <= 0:
		return fmt.Errorf("geofence.radius_m must be positive")
	case c.Geofence.Latitude < -90 || c.Geofence.Latitude > 90 || c.Geofence.Longitude < -180 || c.Geofence.Longitude > 180:
		return fmt.Errorf("geofence coordinates out of range")
	case c.Bridge.RetryDelay <= 0:
		return fmt.Errorf("bridge.retry_delay must be positive")
	}
	switch c.Sensor.Kind {
	case "gpsd", "static":
	default:
		return fmt.Errorf("sensor.kind %q: want gpsd or static", c.Sensor.Kind)
	}
	switch c.WakeLock.Kind {
	case "inhibit", "none":
	default:
		return fmt.Errorf("wakelock.kind %q: want inhibit or none", c.WakeLock.Kind)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q: want json or text", c.Log.Format)
	}
	return nil
}
