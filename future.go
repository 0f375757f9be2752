// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package southbound

import (
	"context"
	"sync"
)

// ConnectFuture is the pending result of Manager.Connect. All callers that
// connect the same device while an attempt runs share one future.
type ConnectFuture struct {
	deviceID string
	done     chan struct{}
	once     sync.Once
	conn     *DeviceConnection
	err      error
}

func newConnectFuture(deviceID string) *ConnectFuture {
	return &ConnectFuture{deviceID: deviceID, done: make(chan struct{})}
}

func completedFuture(deviceID string, conn *DeviceConnection, err error) *ConnectFuture {
	f := newConnectFuture(deviceID)
	f.complete(conn, err)
	return f
}

// complete resolves the future once; later calls are ignored.
func (f *ConnectFuture) complete(conn *DeviceConnection, err error) {
	f.once.Do(func() {
		f.conn, f.err = conn, err
		close(f.done)
	})
}

// DeviceID returns the device the future belongs to.
func (f *ConnectFuture) DeviceID() string { return f.deviceID }

// Done is closed when the attempt finished.
func (f *ConnectFuture) Done() <-chan struct{} { return f.done }

// Wait blocks until the attempt finished or ctx ends. Ending ctx does not
// cancel the attempt; use Manager.Disconnect for that.
func (f *ConnectFuture) Wait(ctx context.Context) (*DeviceConnection, error) {
	select {
	case <-f.done:
		return f.conn, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome without blocking. ok is false while the
// attempt is running.
func (f *ConnectFuture) Result() (conn *DeviceConnection, ok bool, err error) {
	select {
	case <-f.done:
		return f.conn, true, f.err
	default:
		return nil, false, nil
	}
}
