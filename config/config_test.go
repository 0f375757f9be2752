// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
log:
  level: debug
schema:
  dir: /etc/gnmi/models
southbound:
  max_concurrent_connects: 4
database:
  path: /var/lib/gnmi/opstate.db
  busy_timeout: 2s
mqtt:
  enabled: true
  broker: tcp://broker:1883
influxdb:
  enabled: true
  org: lab
devices:
  - id: leaf-1
    address: 10.0.0.1
    port: 50051
    username: admin
    password: admin
    tls: false
    connect_timeout: 3s
    max_retries: 0
    overwrite_datastore: false
    force_capabilities:
      - name: openconfig-interfaces
        version: 2.4.3
  - id: spine-1
    address: 10.0.0.2
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Database.BusyTimeout != 2*time.Second || !cfg.Database.WALMode {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.MQTT.TopicPrefix != "gnmi" || cfg.MQTT.QoS != 1 {
		t.Errorf("mqtt defaults lost: %+v", cfg.MQTT)
	}
	if cfg.Southbound.MaxConcurrentConnects != 4 {
		t.Errorf("southbound = %+v", cfg.Southbound)
	}
	if len(cfg.Devices) != 2 {
		t.Fatalf("devices = %d", len(cfg.Devices))
	}

	dc, err := cfg.Devices[0].SouthboundConfig()
	if err != nil {
		t.Fatalf("SouthboundConfig() error = %v", err)
	}
	if dc.Target() != "10.0.0.1:50051" || dc.UseTLS || dc.MaxRetries != 0 || dc.OverwriteDatastore {
		t.Errorf("leaf-1 = %+v", dc)
	}
	if dc.ConnectTimeout != 3*time.Second || !dc.HasCredentials() {
		t.Errorf("leaf-1 timeouts or credentials = %v, %v", dc.ConnectTimeout, dc.HasCredentials())
	}
	if len(dc.ForceCapabilities) != 1 || dc.ForceCapabilities[0].Version != "2.4.3" {
		t.Errorf("forced capabilities = %v", dc.ForceCapabilities)
	}

	dc, err = cfg.Devices[1].SouthboundConfig()
	if err != nil {
		t.Fatalf("SouthboundConfig() error = %v", err)
	}
	if !dc.UseTLS || dc.Port != 57400 || !dc.OverwriteDatastore {
		t.Errorf("spine-1 defaults = %+v", dc)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GNMI_SB_LOG_LEVEL", "warn")
	t.Setenv("GNMI_SB_DATABASE_PATH", "/tmp/other.db")
	t.Setenv("GNMI_SB_MQTT_PASSWORD", "mqtt-secret")
	t.Setenv("GNMI_SB_DEVICE_SPINE_1_PASSWORD", "device-secret")

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "warn" || cfg.Database.Path != "/tmp/other.db" || cfg.MQTT.Password != "mqtt-secret" {
		t.Errorf("overrides not applied: %+v %+v %+v", cfg.Log, cfg.Database, cfg.MQTT)
	}
	if cfg.Devices[1].Password != "device-secret" || cfg.Devices[0].Password != "admin" {
		t.Errorf("device passwords = %q, %q", cfg.Devices[0].Password, cfg.Devices[1].Password)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("Load() of a missing file succeeded")
	}
	if _, err := Load(writeConfig(t, "log: [")); err == nil {
		t.Errorf("Load() of invalid YAML succeeded")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "log level", modify: func(c *Config) { c.Log.Level = "verbose" }, wantErr: "log.level"},
		{name: "empty log level", modify: func(c *Config) { c.Log.Level = "" }, wantErr: "log.level"},
		{name: "log format", modify: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log.format"},
		{name: "schema dir", modify: func(c *Config) { c.Schema.Dir = "" }, wantErr: "schema.dir"},
		{name: "negative connects", modify: func(c *Config) { c.Southbound.MaxConcurrentConnects = -1 }, wantErr: "max_concurrent_connects"},
		{name: "database path", modify: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{
			name:    "mqtt broker",
			modify:  func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker = "broker" },
			wantErr: "mqtt.broker",
		},
		{
			name:    "mqtt qos",
			modify:  func(c *Config) { c.MQTT.Enabled = true; c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{name: "disabled mqtt is not checked", modify: func(c *Config) { c.MQTT.Broker = "" }},
		{name: "influxdb org", modify: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: "influxdb"},
		{
			name:    "device without id",
			modify:  func(c *Config) { c.Devices = []DeviceConfig{{Address: "10.0.0.1"}} },
			wantErr: "devices[0].id",
		},
		{
			name: "duplicate device",
			modify: func(c *Config) {
				c.Devices = []DeviceConfig{{ID: "a", Address: "10.0.0.1"}, {ID: "a", Address: "10.0.0.2"}}
			},
			wantErr: "duplicate",
		},
		{
			name:    "device without address",
			modify:  func(c *Config) { c.Devices = []DeviceConfig{{ID: "a"}} },
			wantErr: "address",
		},
		{
			name:    "device port",
			modify:  func(c *Config) { c.Devices = []DeviceConfig{{ID: "a", Address: "10.0.0.1", Port: 70000}} },
			wantErr: "port",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLogConfig_Logger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "WARN", Format: "json"}.Logger(&buf)
	logger.Info().Msg("hidden")
	logger.Warn().Str("device_id", "r1").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"device_id":"r1"`) || !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("output = %s", out)
	}

	buf.Reset()
	logger = LogConfig{Level: "bogus", Format: "console"}.Logger(&buf)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("console line")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "console line") {
		t.Errorf("console output = %s", out)
	}
}
