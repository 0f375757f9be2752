// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package southbound

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Transport is an open gNMI session to one device.
//
// The RPC methods block until the response arrives or ctx ends. State,
// WaitForStateChange and Connect follow grpc.ClientConn.
type Transport interface {
	Capabilities(ctx context.Context, req *gnmipb.CapabilityRequest) (*gnmipb.CapabilityResponse, error)
	Get(ctx context.Context, req *gnmipb.GetRequest) (*gnmipb.GetResponse, error)
	Set(ctx context.Context, req *gnmipb.SetRequest) (*gnmipb.SetResponse, error)

	State() connectivity.State
	// WaitForStateChange blocks until the state differs from source or ctx
	// ends, and reports whether the state changed.
	WaitForStateChange(ctx context.Context, source connectivity.State) bool
	// Connect leaves the IDLE state without waiting.
	Connect()
	Close() error
}

// Dialer opens transports. Dial must not wait for the connection to become
// ready.
type Dialer interface {
	Dial(ctx context.Context, deviceID string, cfg *DeviceConfig) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, deviceID string, cfg *DeviceConfig) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, deviceID string, cfg *DeviceConfig) (Transport, error) {
	return f(ctx, deviceID, cfg)
}

// GRPCDialer creates gRPC client connections.
type GRPCDialer struct {
	// Options are appended to the dial options derived from the device
	// configuration.
	Options []grpc.DialOption
}

// Dial builds the transport credentials of cfg and creates the client
// connection. No network traffic happens until Connect or the first RPC.
func (d GRPCDialer) Dial(_ context.Context, deviceID string, cfg *DeviceConfig) (Transport, error) {
	creds, err := transportCredentials(cfg)
	if err != nil {
		return nil, &TransportError{DeviceID: deviceID, Op: "dial", Err: err}
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if cfg.username != "" || cfg.password != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(basicAuth{
			username: cfg.username,
			password: cfg.password,
			secure:   cfg.UseTLS,
		}))
	}
	opts = append(opts, d.Options...)

	cc, err := grpc.NewClient(cfg.Target(), opts...)
	if err != nil {
		return nil, &TransportError{DeviceID: deviceID, Op: "dial", Err: err}
	}
	return &grpcTransport{cc: cc, client: gnmipb.NewGNMIClient(cc)}, nil
}

func transportCredentials(cfg *DeviceConfig) (credentials.TransportCredentials, error) {
	if !cfg.UseTLS {
		return insecure.NewCredentials(), nil
	}
	//nolint:gosec // G402: verification is disabled only on explicit request
	tc := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !cfg.VerifyCertificate,
	}
	if cfg.tlsCert != "" {
		cert, err := tls.LoadX509KeyPair(cfg.tlsCert, cfg.tlsKey)
		if err != nil {
			return nil, fmt.Errorf("load TLS key pair %s: %w", filepath.Base(cfg.tlsCert), err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	if cfg.tlsCA != "" {
		pem, err := os.ReadFile(cfg.tlsCA)
		if err != nil {
			return nil, fmt.Errorf("read TLS CA %s: %w", filepath.Base(cfg.tlsCA), err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("TLS CA %s contains no certificates", filepath.Base(cfg.tlsCA))
		}
		tc.RootCAs = pool
	}
	return credentials.NewTLS(tc), nil
}

// basicAuth sends the username and password as request metadata, the way
// gNMI targets expect them.
type basicAuth struct {
	username string
	password string
	secure   bool
}

func (a basicAuth) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"username": a.username, "password": a.password}, nil
}

func (a basicAuth) RequireTransportSecurity() bool { return a.secure }

type grpcTransport struct {
	cc     *grpc.ClientConn
	client gnmipb.GNMIClient
}

func (t *grpcTransport) Capabilities(ctx context.Context, req *gnmipb.CapabilityRequest) (*gnmipb.CapabilityResponse, error) {
	return t.client.Capabilities(ctx, req)
}

func (t *grpcTransport) Get(ctx context.Context, req *gnmipb.GetRequest) (*gnmipb.GetResponse, error) {
	return t.client.Get(ctx, req)
}

func (t *grpcTransport) Set(ctx context.Context, req *gnmipb.SetRequest) (*gnmipb.SetResponse, error) {
	return t.client.Set(ctx, req)
}

func (t *grpcTransport) State() connectivity.State { return t.cc.GetState() }

func (t *grpcTransport) WaitForStateChange(ctx context.Context, source connectivity.State) bool {
	return t.cc.WaitForStateChange(ctx, source)
}

func (t *grpcTransport) Connect() { t.cc.Connect() }

func (t *grpcTransport) Close() error { return t.cc.Close() }
