// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package southbound

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc/status"

	"github.com/netascode/go-gnmi-southbound/capability"
	"github.com/netascode/go-gnmi-southbound/codec"
	"github.com/netascode/go-gnmi-southbound/datatree"
	"github.com/netascode/go-gnmi-southbound/schema"
)

// Security limits for JSON processing and logging
const (
	MaxJSONSizeForLogging = 1 * 1024 * 1024 // 1MB limit to prevent ReDoS attacks
	MaxSensitiveFields    = 1000            // Max redaction operations to prevent DoS
)

// Logging message constants
const (
	JSONTooLargeMessage     = "[JSON TOO LARGE FOR LOGGING]"
	JSONTooManySensitiveMsg = "[JSON CONTAINS TOO MANY SENSITIVE FIELDS]"
)

var sensitiveFields = []string{"password", "secret", "key", "community", "token", "auth"}

// defaultRedactionPatterns match "<field>": "<value>" for every sensitive
// field, with or without a module prefix on the field name.
var defaultRedactionPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(sensitiveFields))
	for i, f := range sensitiveFields {
		out[i] = regexp.MustCompile(`"((?:[A-Za-z0-9_.-]+:)?` + f + `)"\s*:\s*"[^"]*"`)
	}
	return out
}()

// DeviceConnection is the data access point of one Ready device. It
// translates identifiers and data nodes with the device's schema and sends
// them as gNMI Get and Set requests.
//
// A DeviceConnection never reconnects. When the transport fails, requests
// fail until the device is connected again through the Manager.
type DeviceConnection struct {
	deviceID  string
	cfg       *DeviceConfig
	transport Transport
	schema    *schema.Context
	caps      []capability.DeviceCapability
	paths     codec.PathCodec
	values    codec.ValueCodec
	logger    Logger

	// serializes Set requests of this device
	setMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

var _ datatree.Store = (*DeviceConnection)(nil)

func newDeviceConnection(deviceID string, cfg *DeviceConfig, t Transport, sc *schema.Context, caps []capability.DeviceCapability, logger Logger) *DeviceConnection {
	if logger == nil {
		logger = NoOpLogger{}
	}
	return &DeviceConnection{
		deviceID:  deviceID,
		cfg:       cfg,
		transport: t,
		schema:    sc,
		caps:      caps,
		paths:     codec.PathCodec{PrefixFirstElement: cfg.PrefixModuleNames},
		values:    codec.ValueCodec{PrefixModuleNames: cfg.PrefixModuleNames},
		logger:    logger,
		closed:    make(chan struct{}),
	}
}

// DeviceID returns the ID the device was connected under.
func (c *DeviceConnection) DeviceID() string { return c.deviceID }

// Schema returns the negotiated schema context.
func (c *DeviceConnection) Schema() *schema.Context { return c.schema }

// Capabilities returns the models the schema was built from.
func (c *DeviceConnection) Capabilities() []capability.DeviceCapability {
	return append([]capability.DeviceCapability(nil), c.caps...)
}

// Config returns the device configuration.
func (c *DeviceConnection) Config() *DeviceConfig { return c.cfg }

// Done is closed when the connection is closed.
func (c *DeviceConnection) Done() <-chan struct{} { return c.closed }

// Close closes the transport. In-flight requests fail with the transport.
// Close is idempotent.
func (c *DeviceConnection) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.transport.Close()
		c.logger.Debug(context.Background(), "device connection closed", "device", c.deviceID)
	})
	return c.closeErr
}

func (c *DeviceConnection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Backoff returns the delay before retry attempt (0-indexed): the minimum
// delay multiplied by the delay factor per attempt, capped at the maximum
// delay, plus up to 10% random jitter.
func (c *DeviceConnection) Backoff(attempt int) time.Duration {
	delay := float64(c.cfg.BackoffMinDelay) * math.Pow(c.cfg.BackoffDelayFactor, float64(attempt))
	if math.IsInf(delay, 1) || delay > float64(c.cfg.BackoffMaxDelay) {
		delay = float64(c.cfg.BackoffMaxDelay)
	}

	jitterMax := int64(delay * 0.1)
	var jitterVal int64
	if jitterMax > 0 {
		var jitterBytes [8]byte
		if _, err := rand.Read(jitterBytes[:]); err == nil {
			//nolint:gosec // G115: masked to a non-negative int64
			jitterVal = int64(binary.BigEndian.Uint64(jitterBytes[:])&0x7FFFFFFFFFFFFFFF) % jitterMax
		} else {
			jitterVal = (time.Now().UnixNano()%jitterMax + jitterMax) % jitterMax
			c.logger.Warn(context.Background(), "crypto/rand failed, using timestamp-based jitter",
				"error", err.Error(),
				"attempt", attempt)
		}
	}
	return time.Duration(delay) + time.Duration(jitterVal)
}

// prepareJSONForLogging redacts sensitive fields and optionally indents
// the JSON. Oversized input and input with too many sensitive fields are
// replaced by a marker.
func (c *DeviceConnection) prepareJSONForLogging(jsonStr string) string {
	if len(jsonStr) > MaxJSONSizeForLogging {
		return JSONTooLargeMessage
	}

	sensitiveCount := 0
	for _, f := range sensitiveFields {
		sensitiveCount += strings.Count(jsonStr, f+`"`)
	}
	if sensitiveCount > MaxSensitiveFields {
		c.logger.Warn(context.Background(), "Too many sensitive fields detected",
			"count", sensitiveCount,
			"max", MaxSensitiveFields)
		return JSONTooManySensitiveMsg
	}

	redacted := c.redactSensitiveData(jsonStr)

	if c.cfg.prettyPrintLogs {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(redacted), "", "  "); err == nil {
			return buf.String()
		}
	}
	return redacted
}

// redactSensitiveData replaces the values of sensitive fields with
// [REDACTED], keeping the (possibly module-qualified) field name.
func (c *DeviceConnection) redactSensitiveData(s string) string {
	patterns := c.cfg.redactionPatterns
	if patterns == nil {
		patterns = defaultRedactionPatterns
	}
	for _, pattern := range patterns {
		s = pattern.ReplaceAllString(s, `"$1":"[REDACTED]"`)
	}
	return s
}

// checkTransientError reports whether err carries a gRPC code listed in
// TransientErrors.
func (c *DeviceConnection) checkTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	code := uint32(st.Code())
	for _, pattern := range TransientErrors {
		if pattern.Code == code {
			c.logger.Debug(context.Background(), "Error matches transient pattern",
				"device", c.deviceID,
				"code", st.Code().String())
			return true
		}
	}
	return false
}

// checkTransientErrorModels reports whether any error model is transient.
func checkTransientErrorModels(errs []ErrorModel) bool {
	for _, err := range errs {
		for _, pattern := range TransientErrors {
			if pattern.Code == err.Code {
				return true
			}
		}
	}
	return false
}

// extractErrorDetails converts an RPC error into error models.
func extractErrorDetails(err error) []ErrorModel {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok {
		return []ErrorModel{{
			Code:    uint32(st.Code()),
			Message: st.Message(),
			Details: st.String(),
		}}
	}
	return []ErrorModel{{Message: err.Error()}}
}
