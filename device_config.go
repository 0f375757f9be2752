// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package southbound

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/netascode/go-gnmi-southbound/capability"
)

// Default device configuration values
const (
	DefaultPort               = 57400
	DefaultMaxRetries         = 3
	DefaultBackoffMinDelay    = 1 * time.Second
	DefaultBackoffMaxDelay    = 60 * time.Second
	DefaultBackoffDelayFactor = 2
	DefaultConnectTimeout     = 30 * time.Second
	DefaultOperationTimeout   = 15 * time.Second
	DefaultUseTLS             = true
	DefaultVerifyCertificate  = true
)

// DeviceConfig describes how to reach and manage one device.
//
// Create it with NewDeviceConfig; the zero value is not valid.
type DeviceConfig struct {
	// Address is the device host, optionally with a port
	Address string
	Port    int

	username string
	password string

	tlsCert string
	tlsKey  string
	tlsCA   string

	UseTLS            bool
	VerifyCertificate bool

	ConnectTimeout   time.Duration
	OperationTimeout time.Duration

	MaxRetries         int
	BackoffMinDelay    time.Duration
	BackoffMaxDelay    time.Duration
	BackoffDelayFactor float64

	// ForceCapabilities replaces the models the device advertises when
	// loading its schema.
	ForceCapabilities []capability.DeviceCapability

	// PrefixModuleNames qualifies the first path element and the
	// top-level JSON member of every request with the module name.
	PrefixModuleNames bool

	// OverwriteDatastore sends Write as a gNMI replace. When false, Write
	// is sent as an update.
	OverwriteDatastore bool

	// PathTarget is set as the target of every request prefix.
	PathTarget string

	prettyPrintLogs   bool
	redactionPatterns []*regexp.Regexp
}

// NewDeviceConfig creates a device configuration with defaults applied
// before opts.
//
// Example:
//
//	cfg, err := southbound.NewDeviceConfig("192.168.1.1",
//	    southbound.Username("admin"),
//	    southbound.Password("secret"),
//	    southbound.VerifyCertificate(false),
//	    southbound.ForceCapabilities(capability.DeviceCapability{Name: "openconfig-interfaces"}))
//
// Returns an error if validation fails.
func NewDeviceConfig(address string, opts ...func(*DeviceConfig)) (*DeviceConfig, error) {
	c := &DeviceConfig{
		Address:            address,
		Port:               DefaultPort,
		UseTLS:             DefaultUseTLS,
		VerifyCertificate:  DefaultVerifyCertificate,
		ConnectTimeout:     DefaultConnectTimeout,
		OperationTimeout:   DefaultOperationTimeout,
		MaxRetries:         DefaultMaxRetries,
		BackoffMinDelay:    DefaultBackoffMinDelay,
		BackoffMaxDelay:    DefaultBackoffMaxDelay,
		BackoffDelayFactor: DefaultBackoffDelayFactor,
		OverwriteDatastore: true,
		redactionPatterns:  defaultRedactionPatterns,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Target returns host:port of the device.
func (c *DeviceConfig) Target() string {
	if _, _, err := net.SplitHostPort(c.Address); err == nil {
		return c.Address
	}
	return net.JoinHostPort(strings.Trim(c.Address, "[]"), strconv.Itoa(c.Port))
}

// HasCredentials reports whether a username and password are configured.
func (c *DeviceConfig) HasCredentials() bool {
	return c.username != "" && c.password != ""
}

// validate checks ranges and file paths.
func (c *DeviceConfig) validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("target address cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive, got: %v", c.ConnectTimeout)
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("operation timeout must be positive, got: %v", c.OperationTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got: %d", c.MaxRetries)
	}
	if c.BackoffMinDelay <= 0 {
		return fmt.Errorf("backoff min delay must be positive, got: %v", c.BackoffMinDelay)
	}
	if c.BackoffMaxDelay <= c.BackoffMinDelay {
		return fmt.Errorf("backoff max delay (%v) must be greater than min delay (%v)",
			c.BackoffMaxDelay, c.BackoffMinDelay)
	}
	if c.BackoffDelayFactor < 1.0 {
		return fmt.Errorf("backoff delay factor must be >= 1.0, got: %f", c.BackoffDelayFactor)
	}
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return fmt.Errorf("TLS certificate and key must be configured together")
	}

	// Only the file name is reported to avoid disclosing paths.
	for _, f := range []struct{ kind, path string }{
		{"certificate", c.tlsCert},
		{"key", c.tlsKey},
		{"CA", c.tlsCA},
	} {
		if f.path == "" {
			continue
		}
		if _, err := os.Stat(f.path); err != nil {
			return fmt.Errorf("TLS %s file not found: %s", f.kind, filepath.Base(f.path))
		}
	}
	for _, fc := range c.ForceCapabilities {
		if fc.Name == "" {
			return fmt.Errorf("forced capability without a model name")
		}
	}
	return nil
}

// warnInsecure logs configurations that are valid but unsafe.
func (c *DeviceConfig) warnInsecure(ctx context.Context, logger Logger, deviceID string) {
	if c.UseTLS && !c.VerifyCertificate {
		logger.Warn(ctx, "TLS certificate verification disabled",
			"device", deviceID,
			"security_risk", "Man-in-the-Middle attacks possible",
			"recommendation", "Use only in testing environments")
	}
	if !c.UseTLS {
		logger.Warn(ctx, "TLS disabled - connection is not encrypted",
			"device", deviceID,
			"security_risk", "Credentials and data transmitted in clear text",
			"recommendation", "Enable TLS for production use")
	}
	if !c.HasCredentials() {
		logger.Warn(ctx, "No credentials configured",
			"device", deviceID,
			"message", "device may reject connection")
	}
}
