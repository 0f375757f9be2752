// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package southbound

import (
	"time"

	"github.com/netascode/go-gnmi-southbound/capability"
	"github.com/netascode/go-gnmi-southbound/schema"
)

// Device configuration options using the functional options pattern

// Username sets the username for gNMI authentication
func Username(username string) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.username = username
	}
}

// Password sets the password for gNMI authentication
func Password(password string) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.password = password
	}
}

// TLSCert sets the client certificate file. It requires TLSKey.
func TLSCert(certPath string) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.tlsCert = certPath
	}
}

// TLSKey sets the client private key file. It requires TLSCert.
func TLSKey(keyPath string) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.tlsKey = keyPath
	}
}

// TLSCA sets the CA file used to verify the device certificate.
func TLSCA(caPath string) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.tlsCA = caPath
	}
}

// Port sets the gNMI port (default: 57400). A port in the address wins.
func Port(port int) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.Port = port
	}
}

// TLS enables or disables TLS (default: true)
//
// WARNING: Disabling TLS exposes credentials and data on the wire. Only use
// it in isolated test environments.
func TLS(enabled bool) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.UseTLS = enabled
	}
}

// VerifyCertificate enables or disables TLS certificate verification (default: true)
//
// WARNING: Disabling verification allows Man-in-the-Middle attacks.
func VerifyCertificate(verify bool) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.VerifyCertificate = verify
	}
}

// ConnectTimeout bounds dialing and the wait for the READY state (default: 30s)
func ConnectTimeout(duration time.Duration) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.ConnectTimeout = duration
	}
}

// OperationTimeout bounds a single RPC attempt (default: 15s)
func OperationTimeout(duration time.Duration) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.OperationTimeout = duration
	}
}

// MaxRetries sets the maximum number of retry attempts for transient errors (default: 3)
func MaxRetries(retries int) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.MaxRetries = retries
	}
}

// BackoffMinDelay sets the minimum backoff delay (default: 1s)
func BackoffMinDelay(duration time.Duration) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.BackoffMinDelay = duration
	}
}

// BackoffMaxDelay sets the maximum backoff delay (default: 60s)
func BackoffMaxDelay(duration time.Duration) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.BackoffMaxDelay = duration
	}
}

// BackoffDelayFactor sets the backoff multiplication factor (default: 2.0)
func BackoffDelayFactor(factor float64) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.BackoffDelayFactor = factor
	}
}

// ForceCapabilities replaces the device's advertised models for schema
// resolution. Use it for devices with incomplete Capabilities responses.
func ForceCapabilities(caps ...capability.DeviceCapability) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.ForceCapabilities = append([]capability.DeviceCapability(nil), caps...)
	}
}

// PrefixModuleNames qualifies request paths and values with module names.
func PrefixModuleNames(enabled bool) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.PrefixModuleNames = enabled
	}
}

// OverwriteDatastore selects replace (true, default) or update for Write.
func OverwriteDatastore(enabled bool) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.OverwriteDatastore = enabled
	}
}

// PathTarget sets the prefix target of every request.
func PathTarget(target string) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.PathTarget = target
	}
}

// WithPrettyPrintLogs indents JSON payloads in debug logs.
func WithPrettyPrintLogs(enabled bool) func(*DeviceConfig) {
	return func(c *DeviceConfig) {
		c.prettyPrintLogs = enabled
	}
}

// Manager options

// WithLogger configures the logger of the manager and of every connection
// it creates. The default is NoOpLogger.
//
// JSON payloads logged at Debug level are redacted (passwords, secrets,
// keys, tokens).
func WithLogger(logger Logger) func(*Manager) {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDialer replaces the gRPC dialer, mainly for tests.
func WithDialer(d Dialer) func(*Manager) {
	return func(m *Manager) {
		if d != nil {
			m.dialer = d
		}
	}
}

// WithSchemaSource sets where model schemas are loaded from. Without a
// source every connect attempt fails schema resolution.
func WithSchemaSource(src schema.Source) func(*Manager) {
	return func(m *Manager) {
		m.negotiator.Source = src
	}
}

// WithMountPointRegistry registers connected devices with r.
func WithMountPointRegistry(r MountPointRegistry) func(*Manager) {
	return func(m *Manager) {
		if r != nil {
			m.mounts = r
		}
	}
}

// WithOperationalStore persists negotiated capabilities to s.
func WithOperationalStore(s OperationalStore) func(*Manager) {
	return func(m *Manager) {
		if s != nil {
			m.opstate = s
		}
	}
}

// WithStatusListener adds a listener notified on every state change.
func WithStatusListener(l StatusListener) func(*Manager) {
	return func(m *Manager) {
		if l != nil {
			m.listeners = append(m.listeners, l)
		}
	}
}

// MaxConcurrentConnects limits how many connect attempts run at once.
// Zero or less means no limit.
func MaxConcurrentConnects(n int) func(*Manager) {
	return func(m *Manager) {
		m.maxConnects = n
	}
}

// Request modifiers for individual operations

// Timeout sets the timeout of each attempt of one operation. It takes
// precedence over the context deadline and the device's OperationTimeout.
func Timeout(duration time.Duration) func(*Req) {
	return func(req *Req) {
		req.Timeout = duration
	}
}

// GetEncoding sets the encoding of a string-path Get.
func GetEncoding(encoding string) func(*Req) {
	return func(req *Req) {
		req.Encoding = encoding
	}
}

// SetEncoding sets the encoding of one string-path Set operation.
func SetEncoding(encoding string) func(*SetOperation) {
	return func(op *SetOperation) {
		if encoding != "" {
			op.Encoding = encoding
		}
	}
}
