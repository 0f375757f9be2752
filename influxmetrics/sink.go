// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package influxmetrics records the connection lifecycle of devices in
// InfluxDB.
//
// One point is written per state change. It is tagged with the device and
// its new state and carries how long the device stayed in the previous
// state.
package influxmetrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	southbound "github.com/netascode/go-gnmi-southbound"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultBatchSize      = 100
	defaultMeasurement    = "device_connection"
)

var ErrConnectionFailed = errors.New("influxmetrics: connection failed")

// PointWriter queues points for writing. api.WriteAPI implements it.
type PointWriter interface {
	WritePoint(point *write.Point)
}

// Config configures the InfluxDB connection.
type Config struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
	// FlushInterval is how often buffered points are sent (default: 1s).
	FlushInterval time.Duration
}

// Client owns the InfluxDB client and its asynchronous write API.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   zerolog.Logger
}

// Connect creates the client and checks that the server is healthy.
// Write errors reported by the server are logged to logger.
func Connect(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	opts := influxdb2.DefaultOptions().SetBatchSize(defaultBatchSize)
	if cfg.FlushInterval > 0 {
		opts.SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{client: client, writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket), logger: logger}
	go func(errs <-chan error) {
		for err := range errs {
			c.logger.Warn().Err(err).Msg("InfluxDB write failed")
		}
	}(c.writeAPI.Errors())
	return c, nil
}

// Writer returns the write API points are queued on.
func (c *Client) Writer() PointWriter { return c.writeAPI }

// Close flushes queued points and closes the client.
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}

// Sink is a southbound.StatusListener writing one point per state change.
type Sink struct {
	w           PointWriter
	measurement string

	mu   sync.Mutex
	last map[string]southbound.DeviceStatus
}

var _ southbound.StatusListener = (*Sink)(nil)

// NewSink writes to w. An empty measurement selects "device_connection".
func NewSink(w PointWriter, measurement string) *Sink {
	if measurement == "" {
		measurement = defaultMeasurement
	}
	return &Sink{w: w, measurement: measurement, last: make(map[string]southbound.DeviceStatus)}
}

// StatusChanged implements southbound.StatusListener.
//
// Fields: up (1 when ready, else 0), previous_state, previous_duration_ms
// (both only after a previous change was seen) and error in the error
// state.
func (s *Sink) StatusChanged(_ context.Context, status southbound.DeviceStatus) {
	at := status.Since
	if at.IsZero() {
		at = time.Now()
	}

	fields := map[string]interface{}{"up": 0}
	if status.State == southbound.StateReady {
		fields["up"] = 1
	}
	if status.Err != nil {
		fields["error"] = status.Err.Error()
	}

	s.mu.Lock()
	prev, seen := s.last[status.DeviceID]
	if status.State == southbound.StateIdle {
		delete(s.last, status.DeviceID)
	} else {
		s.last[status.DeviceID] = southbound.DeviceStatus{DeviceID: status.DeviceID, State: status.State, Since: at}
	}
	s.mu.Unlock()

	if seen {
		fields["previous_state"] = prev.State.String()
		if d := at.Sub(prev.Since); d >= 0 {
			fields["previous_duration_ms"] = d.Milliseconds()
		}
	}

	s.w.WritePoint(write.NewPoint(
		s.measurement,
		map[string]string{
			"device_id": status.DeviceID,
			"state":     status.State.String(),
		},
		fields,
		at,
	))
}
