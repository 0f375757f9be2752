// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package southbound

import (
	"context"
	"sort"
	"sync"
	"time"
)

// attempt is one in-flight connect of a device.
type attempt struct {
	deviceID string
	cfg      *DeviceConfig
	future   *ConnectFuture
	cancel   context.CancelCauseFunc
}

// registry tracks, per device, either a connect attempt or an active
// connection, never both. One mutex guards both maps so promotion from
// attempt to connection is atomic.
type registry struct {
	mu         sync.Mutex
	connecting map[string]*attempt
	active     map[string]*DeviceConnection
	statuses   map[string]DeviceStatus
}

func newRegistry() *registry {
	return &registry{
		connecting: make(map[string]*attempt),
		active:     make(map[string]*DeviceConnection),
		statuses:   make(map[string]DeviceStatus),
	}
}

// begin returns the active connection or the running attempt of deviceID.
// When neither exists it registers the attempt built by newAttempt and
// reports created.
func (r *registry) begin(deviceID string, newAttempt func() *attempt) (conn *DeviceConnection, a *attempt, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.active[deviceID]; ok {
		return conn, nil, false
	}
	if a, ok := r.connecting[deviceID]; ok {
		return nil, a, false
	}
	a = newAttempt()
	r.connecting[deviceID] = a
	return nil, a, true
}

// promote replaces attempt a by conn. It returns false when a is no longer
// registered, for example because it was disconnected.
func (r *registry) promote(a *attempt, conn *DeviceConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connecting[a.deviceID] != a {
		return false
	}
	delete(r.connecting, a.deviceID)
	r.active[a.deviceID] = conn
	return true
}

// dropAttempt removes a if it is still registered.
func (r *registry) dropAttempt(a *attempt) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connecting[a.deviceID] != a {
		return false
	}
	delete(r.connecting, a.deviceID)
	return true
}

// dropActive removes conn if it is still the device's active connection.
func (r *registry) dropActive(conn *DeviceConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[conn.deviceID] != conn {
		return false
	}
	delete(r.active, conn.deviceID)
	return true
}

// take removes and returns whatever is registered for deviceID.
func (r *registry) take(deviceID string) (*attempt, *DeviceConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.connecting[deviceID]
	conn := r.active[deviceID]
	delete(r.connecting, deviceID)
	delete(r.active, deviceID)
	return a, conn
}

func (r *registry) all() ([]*attempt, []*DeviceConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	as := make([]*attempt, 0, len(r.connecting))
	for _, a := range r.connecting {
		as = append(as, a)
	}
	cs := make([]*DeviceConnection, 0, len(r.active))
	for _, c := range r.active {
		cs = append(cs, c)
	}
	return as, cs
}

// setStatus records a state change made by owner, an *attempt or a
// *DeviceConnection. Changes by an owner that has been replaced by a newer
// attempt or connection are ignored.
func (r *registry) setStatus(deviceID string, owner any, state State, err error) (DeviceStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, hasAttempt := r.connecting[deviceID]
	c, hasConn := r.active[deviceID]
	switch o := owner.(type) {
	case *attempt:
		if (hasAttempt && a != o) || hasConn {
			return DeviceStatus{}, false
		}
	case *DeviceConnection:
		if (hasConn && c != o) || hasAttempt {
			return DeviceStatus{}, false
		}
	}
	if prev, ok := r.statuses[deviceID]; ok && prev.State == state && prev.Err == nil && err == nil {
		return DeviceStatus{}, false
	}
	st := DeviceStatus{DeviceID: deviceID, State: state, Err: err, Since: time.Now()}
	r.statuses[deviceID] = st
	return st, true
}

func (r *registry) status(deviceID string) DeviceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.statuses[deviceID]; ok {
		return st
	}
	return DeviceStatus{DeviceID: deviceID, State: StateIdle}
}

// devices returns the IDs with an attempt or an active connection.
func (r *registry) devices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.connecting)+len(r.active))
	for id := range r.connecting {
		out = append(out, id)
	}
	for id := range r.active {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
