// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package mqttstatus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/sjson"

	southbound "github.com/netascode/go-gnmi-southbound"
)

const defaultQueueSize = 256

// StatusPublisher is a southbound.StatusListener publishing every status
// change. Publishing happens on a separate goroutine in notification order
// so that the manager is never blocked by the broker. When the queue is
// full the change is dropped and logged.
type StatusPublisher struct {
	pub    Publisher
	prefix string
	qos    byte
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan southbound.DeviceStatus
	done   chan struct{}
}

var _ southbound.StatusListener = (*StatusPublisher)(nil)

// Option configures a StatusPublisher.
type Option func(*StatusPublisher)

// WithLogger sets the logger for publish failures.
func WithLogger(l zerolog.Logger) Option {
	return func(p *StatusPublisher) { p.logger = l }
}

// WithQueueSize sets how many changes may wait for the broker (default: 256).
func WithQueueSize(n int) Option {
	return func(p *StatusPublisher) {
		if n > 0 {
			p.queue = make(chan southbound.DeviceStatus, n)
		}
	}
}

// NewStatusPublisher starts a publisher sending to pub below prefix.
func NewStatusPublisher(pub Publisher, prefix string, qos byte, opts ...Option) *StatusPublisher {
	p := &StatusPublisher{
		pub:    pub,
		prefix: prefix,
		qos:    qos,
		logger: zerolog.Nop(),
		queue:  make(chan southbound.DeviceStatus, defaultQueueSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

// StatusChanged implements southbound.StatusListener.
func (p *StatusPublisher) StatusChanged(_ context.Context, status southbound.DeviceStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- status:
	default:
		p.logger.Warn().Str("device_id", status.DeviceID).Stringer("state", status.State).
			Msg("Status queue full, dropping change")
	}
}

// Close publishes the queued changes and stops the publisher. It does not
// close the underlying Publisher.
func (p *StatusPublisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
}

func (p *StatusPublisher) run() {
	defer close(p.done)
	for status := range p.queue {
		payload, err := Payload(status)
		if err != nil {
			p.logger.Error().Err(err).Str("device_id", status.DeviceID).Msg("Encoding status failed")
			continue
		}
		topic := DeviceTopic(p.prefix, status.DeviceID)
		if err := p.pub.Publish(topic, payload, p.qos, true); err != nil {
			p.logger.Warn().Err(err).Str("topic", topic).Msg("Publishing status failed")
			continue
		}
		p.logger.Debug().Str("topic", topic).Stringer("state", status.State).Msg("Published status")
	}
}

// Payload renders status as
//
//	{"device_id":"r1","state":"error","since":"2025-01-02T15:04:05Z","error":"..."}
//
// The error member is only present in the error state.
func Payload(status southbound.DeviceStatus) ([]byte, error) {
	out := []byte(`{}`)
	var err error
	if out, err = sjson.SetBytes(out, "device_id", status.DeviceID); err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "state", status.State.String()); err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "since", status.Since.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}
	if status.Err != nil {
		if out, err = sjson.SetBytes(out, "error", status.Err.Error()); err != nil {
			return nil, err
		}
	}
	return out, nil
}
