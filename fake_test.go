// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package southbound

import (
	"context"
	"sync"
	"testing"
	"time"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"google.golang.org/grpc/connectivity"

	"github.com/netascode/go-gnmi-southbound/internal/testmodels"
)

// fakeTransport is an in-memory Transport with a settable connectivity
// state.
type fakeTransport struct {
	mu        sync.Mutex
	state     connectivity.State
	changed   chan struct{}
	onConnect connectivity.State
	closes    int

	capsResp *gnmipb.CapabilityResponse
	capsErr  error
	// capsHook runs inside Capabilities before the response is returned
	capsHook func(ctx context.Context, t *fakeTransport) error

	getFn func(context.Context, *gnmipb.GetRequest) (*gnmipb.GetResponse, error)
	setFn func(context.Context, *gnmipb.SetRequest) (*gnmipb.SetResponse, error)

	getReqs []*gnmipb.GetRequest
	setReqs []*gnmipb.SetRequest
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		state:     connectivity.Idle,
		changed:   make(chan struct{}),
		onConnect: connectivity.Ready,
		capsResp:  testCapabilities(),
	}
}

// testCapabilities advertises the interface and VLAN test models.
func testCapabilities() *gnmipb.CapabilityResponse {
	return &gnmipb.CapabilityResponse{
		SupportedModels: []*gnmipb.ModelData{
			{Name: "test-interfaces", Organization: "Test", Version: "2.4.3"},
			{Name: "test-vlan", Organization: "Test", Version: "2020-06-01"},
		},
		SupportedEncodings: []gnmipb.Encoding{gnmipb.Encoding_JSON, gnmipb.Encoding_JSON_IETF},
		GNMIVersion:        "0.8.0",
	}
}

func (f *fakeTransport) setState(s connectivity.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == s {
		return
	}
	f.state = s
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *fakeTransport) Capabilities(ctx context.Context, _ *gnmipb.CapabilityRequest) (*gnmipb.CapabilityResponse, error) {
	if f.capsHook != nil {
		if err := f.capsHook(ctx, f); err != nil {
			return nil, err
		}
	}
	return f.capsResp, f.capsErr
}

func (f *fakeTransport) Get(ctx context.Context, req *gnmipb.GetRequest) (*gnmipb.GetResponse, error) {
	f.mu.Lock()
	f.getReqs = append(f.getReqs, req)
	fn := f.getFn
	f.mu.Unlock()
	if fn == nil {
		return &gnmipb.GetResponse{}, nil
	}
	return fn(ctx, req)
}

func (f *fakeTransport) Set(ctx context.Context, req *gnmipb.SetRequest) (*gnmipb.SetResponse, error) {
	f.mu.Lock()
	f.setReqs = append(f.setReqs, req)
	fn := f.setFn
	f.mu.Unlock()
	if fn == nil {
		return &gnmipb.SetResponse{}, nil
	}
	return fn(ctx, req)
}

func (f *fakeTransport) State() connectivity.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) WaitForStateChange(ctx context.Context, source connectivity.State) bool {
	for {
		f.mu.Lock()
		if f.state != source {
			f.mu.Unlock()
			return true
		}
		ch := f.changed
		f.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return false
		}
	}
}

func (f *fakeTransport) Connect() {
	f.mu.Lock()
	idle := f.state == connectivity.Idle
	next := f.onConnect
	f.mu.Unlock()
	if idle {
		f.setState(next)
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.setState(connectivity.Shutdown)
	return nil
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// fakeDialer hands out fakeTransports and counts dials.
type fakeDialer struct {
	mu         sync.Mutex
	dials      int
	gate       chan struct{}
	err        error
	configure  func(*fakeTransport)
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(ctx context.Context, _ string, _ *DeviceConfig) (Transport, error) {
	d.mu.Lock()
	d.dials++
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	t := newFakeTransport()
	if d.configure != nil {
		d.configure(t)
	}
	d.mu.Lock()
	d.transports = append(d.transports, t)
	d.mu.Unlock()
	return t, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[i]
}

// statusRecorder collects status notifications.
type statusRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *statusRecorder) StatusChanged(_ context.Context, st DeviceStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st.State)
}

func (r *statusRecorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func newTestManager(t *testing.T, d Dialer, opts ...func(*Manager)) *Manager {
	t.Helper()
	all := append([]func(*Manager){
		WithDialer(d),
		WithSchemaSource(testmodels.Source(t)),
	}, opts...)
	m := NewManager(all...)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func testDeviceConfig(t *testing.T, opts ...func(*DeviceConfig)) *DeviceConfig {
	t.Helper()
	all := append([]func(*DeviceConfig){
		TLS(false),
		Username("admin"),
		Password("admin"),
		ConnectTimeout(2 * time.Second),
		OperationTimeout(2 * time.Second),
		MaxRetries(1),
		BackoffMinDelay(time.Millisecond),
		BackoffMaxDelay(5 * time.Millisecond),
	}, opts...)
	cfg, err := NewDeviceConfig("192.0.2.1", all...)
	if err != nil {
		t.Fatalf("NewDeviceConfig() error = %v", err)
	}
	return cfg
}

// testConnection returns a DeviceConnection over a ready fake transport.
func testConnection(t *testing.T, opts ...func(*DeviceConfig)) (*DeviceConnection, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	ft.Connect()
	conn := newDeviceConnection("r1", testDeviceConfig(t, opts...), ft, testmodels.Context(t), nil, NoOpLogger{})
	return conn, ft
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
