// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package config loads the connector daemon configuration.
//
// Values are resolved in order: built-in defaults, the YAML file, then
// GNMI_SB_* environment variables. The result is validated before it is
// returned.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	southbound "github.com/netascode/go-gnmi-southbound"
	"github.com/netascode/go-gnmi-southbound/capability"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GNMI_SB_"

// Config is the daemon configuration.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Schema     SchemaConfig     `yaml:"schema"`
	Southbound SouthboundConfig `yaml:"southbound"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Devices    []DeviceConfig   `yaml:"devices"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is json or console.
	Format string `yaml:"format"`
}

// Logger builds the daemon logger writing to w.
func (l LogConfig) Logger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(l.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if l.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

type SchemaConfig struct {
	// Dir holds the model description files.
	Dir string `yaml:"dir"`
}

type SouthboundConfig struct {
	// MaxConcurrentConnects limits parallel connect attempts. Zero means
	// no limit.
	MaxConcurrentConnects int `yaml:"max_concurrent_connects"`
}

type DatabaseConfig struct {
	Path        string        `yaml:"path"`
	WALMode     bool          `yaml:"wal_mode"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

type InfluxDBConfig struct {
	Enabled     bool          `yaml:"enabled"`
	URL         string        `yaml:"url"`
	Token       string        `yaml:"token"`
	Org         string        `yaml:"org"`
	Bucket      string        `yaml:"bucket"`
	Measurement string        `yaml:"measurement"`
	FlushEvery  time.Duration `yaml:"flush_interval"`
}

// DeviceConfig describes one device to connect at startup.
type DeviceConfig struct {
	ID                 string                        `yaml:"id"`
	Address            string                        `yaml:"address"`
	Port               int                           `yaml:"port"`
	Username           string                        `yaml:"username"`
	Password           string                        `yaml:"password"`
	TLS                *bool                         `yaml:"tls"`
	VerifyCertificate  *bool                         `yaml:"verify_certificate"`
	CACert             string                        `yaml:"ca_cert"`
	ClientCert         string                        `yaml:"client_cert"`
	ClientKey          string                        `yaml:"client_key"`
	ConnectTimeout     time.Duration                 `yaml:"connect_timeout"`
	OperationTimeout   time.Duration                 `yaml:"operation_timeout"`
	MaxRetries         *int                          `yaml:"max_retries"`
	PrefixModuleNames  bool                          `yaml:"prefix_module_names"`
	OverwriteDatastore *bool                         `yaml:"overwrite_datastore"`
	PathTarget         string                        `yaml:"path_target"`
	ForceCapabilities  []capability.DeviceCapability `yaml:"force_capabilities"`
}

// Load reads the file at path, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: "info", Format: "json"},
		Schema: SchemaConfig{Dir: "./models"},
		Database: DatabaseConfig{
			Path:        "./data/opstate.db",
			WALMode:     true,
			BusyTimeout: 5 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "gnmi-southbound",
			TopicPrefix: "gnmi",
			QoS:         1,
		},
		InfluxDB: InfluxDBConfig{
			URL:         "http://localhost:8086",
			Bucket:      "gnmi",
			Measurement: "device_connection",
			FlushEvery:  10 * time.Second,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	setString := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FORMAT", &cfg.Log.Format)
	setString("SCHEMA_DIR", &cfg.Schema.Dir)
	setString("DATABASE_PATH", &cfg.Database.Path)
	setString("MQTT_BROKER", &cfg.MQTT.Broker)
	setString("MQTT_USERNAME", &cfg.MQTT.Username)
	setString("MQTT_PASSWORD", &cfg.MQTT.Password)
	setString("INFLUXDB_URL", &cfg.InfluxDB.URL)
	setString("INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	// Device credentials: GNMI_SB_DEVICE_<ID>_USERNAME and _PASSWORD, with
	// the ID upper-cased and dashes replaced by underscores.
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		key := "DEVICE_" + strings.ToUpper(strings.ReplaceAll(d.ID, "-", "_"))
		setString(key+"_USERNAME", &d.Username)
		setString(key+"_PASSWORD", &d.Password)
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil || c.Log.Level == "" {
		errs = append(errs, fmt.Errorf("log.level %q is invalid", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	if c.Schema.Dir == "" {
		errs = append(errs, errors.New("schema.dir is required"))
	}
	if c.Southbound.MaxConcurrentConnects < 0 {
		errs = append(errs, errors.New("southbound.max_concurrent_connects cannot be negative"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.MQTT.Enabled {
		if u, err := url.Parse(c.MQTT.Broker); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("mqtt.broker %q is not a broker URL", c.MQTT.Broker))
		}
		if c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, errors.New("mqtt.topic_prefix is required"))
		}
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, errors.New("influxdb.url, influxdb.org and influxdb.bucket are required"))
		}
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.ID == "" {
			errs = append(errs, fmt.Errorf("devices[%d].id is required", i))
			continue
		}
		if seen[d.ID] {
			errs = append(errs, fmt.Errorf("devices[%d]: duplicate id %q", i, d.ID))
		}
		seen[d.ID] = true
		if _, err := d.SouthboundConfig(); err != nil {
			errs = append(errs, fmt.Errorf("devices[%d] (%s): %w", i, d.ID, err))
		}
	}
	return errors.Join(errs...)
}

// SouthboundConfig builds the connection configuration of the device.
// Unset fields keep the southbound defaults.
func (d DeviceConfig) SouthboundConfig() (*southbound.DeviceConfig, error) {
	var opts []func(*southbound.DeviceConfig)
	if d.Port != 0 {
		opts = append(opts, southbound.Port(d.Port))
	}
	if d.Username != "" {
		opts = append(opts, southbound.Username(d.Username))
	}
	if d.Password != "" {
		opts = append(opts, southbound.Password(d.Password))
	}
	if d.TLS != nil {
		opts = append(opts, southbound.TLS(*d.TLS))
	}
	if d.VerifyCertificate != nil {
		opts = append(opts, southbound.VerifyCertificate(*d.VerifyCertificate))
	}
	if d.CACert != "" {
		opts = append(opts, southbound.TLSCA(d.CACert))
	}
	if d.ClientCert != "" {
		opts = append(opts, southbound.TLSCert(d.ClientCert))
	}
	if d.ClientKey != "" {
		opts = append(opts, southbound.TLSKey(d.ClientKey))
	}
	if d.ConnectTimeout != 0 {
		opts = append(opts, southbound.ConnectTimeout(d.ConnectTimeout))
	}
	if d.OperationTimeout != 0 {
		opts = append(opts, southbound.OperationTimeout(d.OperationTimeout))
	}
	if d.MaxRetries != nil {
		opts = append(opts, southbound.MaxRetries(*d.MaxRetries))
	}
	if d.OverwriteDatastore != nil {
		opts = append(opts, southbound.OverwriteDatastore(*d.OverwriteDatastore))
	}
	if d.PathTarget != "" {
		opts = append(opts, southbound.PathTarget(d.PathTarget))
	}
	if len(d.ForceCapabilities) > 0 {
		opts = append(opts, southbound.ForceCapabilities(d.ForceCapabilities...))
	}
	opts = append(opts, southbound.PrefixModuleNames(d.PrefixModuleNames))
	return southbound.NewDeviceConfig(d.Address, opts...)
}
