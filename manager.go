// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package southbound

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openconfig/gnmic/pkg/api"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc/connectivity"

	"github.com/netascode/go-gnmi-southbound/capability"
)

// Manager owns the sessions to all devices.
//
// Each Connect runs in its own goroutine: dial, wait for READY, request
// capabilities, negotiate the schema, register the mount point, persist the
// capabilities and promote the attempt to an active connection. Devices
// progress independently of each other.
type Manager struct {
	logger     Logger
	dialer     Dialer
	negotiator capability.Negotiator
	mounts     MountPointRegistry
	opstate    OperationalStore
	listeners  []StatusListener

	maxConnects int
	sem         *semaphore.Weighted

	reg *registry

	// orders status notifications
	notifyMu sync.Mutex

	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager. Without options it dials with GRPCDialer,
// keeps mount points and capabilities in memory and logs nothing.
func NewManager(opts ...func(*Manager)) *Manager {
	m := &Manager{
		logger:  NoOpLogger{},
		dialer:  GRPCDialer{},
		mounts:  NewMountPoints(),
		opstate: NewMemoryOperationalStore(),
		reg:     newRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.maxConnects > 0 {
		m.sem = semaphore.NewWeighted(int64(m.maxConnects))
	}
	m.ctx, m.cancel = context.WithCancelCause(context.Background())
	return m
}

// MountPoints returns the registry connected devices are registered with.
func (m *Manager) MountPoints() MountPointRegistry { return m.mounts }

// OperationalStore returns where negotiated capabilities are persisted.
func (m *Manager) OperationalStore() OperationalStore { return m.opstate }

// Connect connects deviceID with cfg.
//
// A device that is already Ready yields a completed future. A device with
// a running attempt yields that attempt's future; cfg is then ignored and
// no second transport is opened. Otherwise a new attempt starts.
func (m *Manager) Connect(deviceID string, cfg *DeviceConfig) *ConnectFuture {
	if deviceID == "" {
		return completedFuture(deviceID, nil, errors.New("southbound: device ID cannot be empty"))
	}
	if cfg == nil {
		return completedFuture(deviceID, nil, errors.New("southbound: device configuration cannot be nil"))
	}
	if m.ctx.Err() != nil {
		return completedFuture(deviceID, nil, ErrManagerClosed)
	}

	var attemptCtx context.Context
	conn, a, created := m.reg.begin(deviceID, func() *attempt {
		ctx, cancel := context.WithCancelCause(m.ctx)
		attemptCtx = ctx
		return &attempt{deviceID: deviceID, cfg: cfg, future: newConnectFuture(deviceID), cancel: cancel}
	})
	if conn != nil {
		return completedFuture(deviceID, conn, nil)
	}
	if !created {
		m.logger.Debug(m.ctx, "connect attempt already running", "device", deviceID)
		return a.future
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(attemptCtx, a)
	}()
	return a.future
}

// run drives one connect attempt to Ready or to a failure.
func (m *Manager) run(ctx context.Context, a *attempt) {
	log := m.logger
	log.Info(ctx, "connecting device", "device", a.deviceID, "target", a.cfg.Target())
	a.cfg.warnInsecure(ctx, log, a.deviceID)
	m.setStatus(ctx, a.deviceID, a, StateConnecting, nil)

	if m.sem != nil {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			m.fail(ctx, a, nil, attemptErr(ctx, err))
			return
		}
		defer m.sem.Release(1)
	}

	t, err := m.dialer.Dial(ctx, a.deviceID, a.cfg)
	if err != nil {
		var terr *TransportError
		if !errors.As(err, &terr) {
			err = &TransportError{DeviceID: a.deviceID, Op: "dial", Err: err}
		}
		m.fail(ctx, a, nil, attemptErr(ctx, err))
		return
	}
	t.Connect()

	if err := m.awaitReady(ctx, a, t); err != nil {
		m.fail(ctx, a, t, err)
		return
	}

	conn, err := m.negotiate(ctx, a, t)
	if err != nil {
		m.fail(ctx, a, t, err)
		return
	}

	if !m.reg.promote(a, conn) {
		m.rollback(ctx, conn)
		m.fail(ctx, a, nil, ErrConnectCanceled)
		return
	}
	m.setStatus(ctx, a.deviceID, conn, StateReady, nil)
	log.Info(ctx, "device ready",
		"device", a.deviceID,
		"models", len(conn.caps))
	a.future.complete(conn, nil)
	a.cancel(nil)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.monitor(conn)
	}()
}

// awaitReady waits until the transport is READY. A transport that fails
// or shuts down before that, or does not get ready within the connect
// timeout, fails the attempt.
func (m *Manager) awaitReady(ctx context.Context, a *attempt, t Transport) error {
	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.ConnectTimeout)
	defer cancel()
	for {
		s := t.State()
		switch s {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return &ConnectionStatusError{DeviceID: a.deviceID, State: s}
		case connectivity.TransientFailure:
			return &TransportError{DeviceID: a.deviceID, Op: "connect", Err: fmt.Errorf("connection failed (state %s)", s)}
		case connectivity.Idle:
			t.Connect()
		}
		if !t.WaitForStateChange(waitCtx, s) {
			if err := context.Cause(ctx); err != nil {
				return err
			}
			return &TransportError{DeviceID: a.deviceID, Op: "connect",
				Err: fmt.Errorf("not ready after %s (state %s): %w", a.cfg.ConnectTimeout, t.State(), context.DeadlineExceeded)}
		}
	}
}

// negotiate requests capabilities, builds the schema and registers the
// connection. The transport must stay READY throughout; a state change
// cancels the sequence with a ConnectionStatusError.
func (m *Manager) negotiate(ctx context.Context, a *attempt, t Transport) (*DeviceConnection, error) {
	watchCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)
	go watchReady(watchCtx, stop, a.deviceID, t)

	m.setStatus(ctx, a.deviceID, a, StateAwaitingCapabilities, nil)

	capReq, err := api.NewCapabilitiesRequest()
	if err != nil {
		return nil, err
	}
	rpcCtx, cancel := context.WithTimeout(watchCtx, a.cfg.OperationTimeout)
	resp, err := t.Capabilities(rpcCtx, capReq)
	cancel()
	if err != nil {
		if cause := context.Cause(watchCtx); cause != nil {
			return nil, cause
		}
		return nil, &TransportError{DeviceID: a.deviceID, Op: "capabilities", Err: err}
	}
	m.logger.Debug(ctx, "gNMI Capabilities response",
		"device", a.deviceID,
		"version", resp.GetGNMIVersion(),
		"encodings", encodingNames(resp.GetSupportedEncodings()),
		"models", len(resp.GetSupportedModels()))

	if len(a.cfg.ForceCapabilities) > 0 {
		m.logger.Info(ctx, "using forced capabilities",
			"device", a.deviceID,
			"models", len(a.cfg.ForceCapabilities))
	}
	sc, caps, err := m.negotiator.Negotiate(resp, a.cfg.ForceCapabilities)
	if err != nil {
		return nil, err
	}
	if cause := context.Cause(watchCtx); cause != nil {
		return nil, cause
	}

	conn := newDeviceConnection(a.deviceID, a.cfg, t, sc, caps, m.logger)
	if err := m.mounts.RegisterMountPoint(ctx, a.deviceID, sc, conn); err != nil {
		return nil, fmt.Errorf("southbound: register mount point %s: %w", a.deviceID, err)
	}
	if err := m.opstate.PutCapabilities(ctx, a.deviceID, caps); err != nil {
		m.unregister(ctx, a.deviceID)
		return nil, fmt.Errorf("southbound: persist capabilities of %s: %w", a.deviceID, err)
	}
	if cause := context.Cause(watchCtx); cause != nil {
		m.unregister(ctx, a.deviceID)
		return nil, cause
	}
	return conn, nil
}

// watchReady cancels ctx with a ConnectionStatusError as soon as the
// transport leaves READY.
func watchReady(ctx context.Context, cancel context.CancelCauseFunc, deviceID string, t Transport) {
	for {
		s := t.State()
		if s != connectivity.Ready {
			cancel(&ConnectionStatusError{DeviceID: deviceID, State: s})
			return
		}
		if !t.WaitForStateChange(ctx, s) {
			return
		}
	}
}

// monitor tears down an active connection whose transport shuts down.
func (m *Manager) monitor(conn *DeviceConnection) {
	ctx, cancel := context.WithCancel(m.ctx)
	defer cancel()
	go func() {
		select {
		case <-conn.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	t := conn.transport
	for {
		s := t.State()
		switch s {
		case connectivity.Shutdown:
			if !m.reg.dropActive(conn) {
				return
			}
			err := &ConnectionStatusError{DeviceID: conn.deviceID, State: s}
			m.logger.Error(ctx, "device connection shut down", "device", conn.deviceID)
			m.unregister(ctx, conn.deviceID)
			_ = conn.Close()
			m.setStatus(ctx, conn.deviceID, conn, StateError, err)
			return
		case connectivity.TransientFailure:
			m.logger.Warn(ctx, "device connection failing", "device", conn.deviceID, "state", s.String())
		}
		if !t.WaitForStateChange(ctx, s) {
			return
		}
	}
}

// fail ends attempt a with err. The transport, if any, is closed.
func (m *Manager) fail(ctx context.Context, a *attempt, t Transport, err error) {
	if t != nil {
		_ = t.Close()
	}
	state, statusErr := StateError, err
	if errors.Is(err, ErrConnectCanceled) {
		state, statusErr = StateClosed, nil
		m.logger.Info(ctx, "connect attempt canceled", "device", a.deviceID)
	} else {
		m.logger.Error(ctx, "connect attempt failed", "device", a.deviceID, "error", err)
	}
	m.reg.dropAttempt(a)
	m.setStatus(ctx, a.deviceID, a, state, statusErr)
	a.cancel(err)
	a.future.complete(nil, err)
}

// rollback undoes a connection that could not be promoted.
func (m *Manager) rollback(ctx context.Context, conn *DeviceConnection) {
	m.unregister(ctx, conn.deviceID)
	_ = conn.Close()
}

func (m *Manager) unregister(ctx context.Context, deviceID string) {
	if err := m.mounts.UnregisterMountPoint(ctx, deviceID); err != nil {
		m.logger.Warn(ctx, "unregister mount point failed", "device", deviceID, "error", err)
	}
}

// attemptErr prefers the cancellation cause of ctx over err.
func attemptErr(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return err
}

// Disconnect cancels the running attempt of deviceID, waiting until it has
// released its transport, or closes the active connection and unregisters
// its mount point. Disconnecting an unknown device succeeds.
//
// In-flight requests on a closed connection fail with the transport.
func (m *Manager) Disconnect(ctx context.Context, deviceID string) error {
	a, conn := m.reg.take(deviceID)
	switch {
	case a != nil:
		m.setStatus(ctx, deviceID, a, StateClosing, nil)
		a.cancel(ErrConnectCanceled)
		select {
		case <-a.future.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		// no-op unless the attempt failed for another reason first
		m.setStatus(ctx, deviceID, a, StateClosed, nil)
		m.logger.Info(ctx, "device disconnected", "device", deviceID, "phase", "connecting")
		return nil
	case conn != nil:
		m.setStatus(ctx, deviceID, conn, StateClosing, nil)
		m.unregister(ctx, deviceID)
		err := conn.Close()
		m.setStatus(ctx, deviceID, conn, StateClosed, nil)
		m.logger.Info(ctx, "device disconnected", "device", deviceID, "phase", "ready")
		if err != nil {
			return &TransportError{DeviceID: deviceID, Op: "close", Err: err}
		}
		return nil
	}
	m.logger.Debug(ctx, "disconnect of unknown device", "device", deviceID)
	return nil
}

// Status returns the current state of deviceID. Unknown devices are Idle.
func (m *Manager) Status(deviceID string) DeviceStatus {
	return m.reg.status(deviceID)
}

// Connection returns the active connection of deviceID.
func (m *Manager) Connection(deviceID string) (*DeviceConnection, bool) {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	conn, ok := m.reg.active[deviceID]
	return conn, ok
}

// Devices returns the IDs of devices that are connecting or Ready.
func (m *Manager) Devices() []string {
	return m.reg.devices()
}

// Close disconnects every device and waits for all attempts and monitors
// to finish. Connect fails with ErrManagerClosed afterwards.
func (m *Manager) Close() error {
	m.cancel(ErrConnectCanceled)
	as, cs := m.reg.all()
	var errs []error
	for _, a := range as {
		if err := m.Disconnect(context.Background(), a.deviceID); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range cs {
		if err := m.Disconnect(context.Background(), c.deviceID); err != nil {
			errs = append(errs, err)
		}
	}
	m.wg.Wait()
	return errors.Join(errs...)
}

func (m *Manager) setStatus(ctx context.Context, deviceID string, owner any, state State, err error) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	st, ok := m.reg.setStatus(deviceID, owner, state, err)
	if !ok {
		return
	}
	m.logger.Debug(ctx, "device state changed", "device", deviceID, "state", state.String())
	for _, l := range m.listeners {
		l.StatusChanged(ctx, st)
	}
}
