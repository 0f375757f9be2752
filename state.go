// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package southbound

import (
	"context"
	"fmt"
	"time"
)

// State is the lifecycle state of a device session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAwaitingCapabilities
	StateReady
	StateClosing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAwaitingCapabilities:
		return "awaiting-capabilities"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// InProgress reports whether a connect attempt is running.
func (s State) InProgress() bool {
	return s == StateConnecting || s == StateAwaitingCapabilities
}

// Terminal reports whether no attempt or connection exists in this state.
func (s State) Terminal() bool {
	return s == StateIdle || s == StateClosed || s == StateError
}

// DeviceStatus is a snapshot of one device's state.
type DeviceStatus struct {
	DeviceID string
	State    State
	// Err is set in StateError.
	Err   error
	Since time.Time
}

// StatusListener is notified after every state change. Calls for one
// device arrive in order; listeners must not block.
type StatusListener interface {
	StatusChanged(ctx context.Context, status DeviceStatus)
}

// StatusListenerFunc adapts a function to StatusListener.
type StatusListenerFunc func(ctx context.Context, status DeviceStatus)

func (f StatusListenerFunc) StatusChanged(ctx context.Context, status DeviceStatus) {
	f(ctx, status)
}
