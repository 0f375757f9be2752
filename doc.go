// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package southbound manages gNMI sessions to network devices and exposes
// each connected device as a schema-aware data store.
//
// A Manager owns the lifecycle of every device session. Connecting a device
// dials the gRPC transport, waits for it to become ready, asks the device
// for its capabilities, loads the schema of every advertised model and only
// then registers the resulting DeviceConnection as the device's mount point.
//
// # Quick Start
//
//	src, err := schema.NewDirSource("/etc/gnmi-southbound/models")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mgr := southbound.NewManager(
//	    southbound.WithSchemaSource(src),
//	    southbound.WithLogger(southbound.NewDefaultLogger(southbound.LogLevelInfo)),
//	)
//	defer mgr.Close()
//
//	cfg, err := southbound.NewDeviceConfig("192.168.1.1",
//	    southbound.Username("admin"),
//	    southbound.Password("secret"),
//	)
//	if err != nil {
//	    log.Fatal(err) // configuration error
//	}
//
//	conn, err := mgr.Connect("router1", cfg).Wait(ctx)
//	if err != nil {
//	    log.Fatal(err) // transport, capability or schema error
//	}
//
//	id := datatree.NodeIdentifier{datatree.Step("openconfig-system", "system")}
//	node, found, err := conn.Read(ctx, datatree.Config, id)
//
// # Connection States
//
// Every device moves through Idle, Connecting, AwaitingCapabilities and
// Ready. Disconnect moves it through Closing to Closed. Any failure ends in
// Error. Concurrent Connect calls for the same device share one attempt and
// one transport.
//
// # Error Handling
//
// Connect attempts fail with *TransportError, *ConnectionStatusError,
// *capability.CapabilityError or *capability.SchemaResolutionError. Data
// operations translate through the codec package and fail with
// *codec.Error or *codec.LookupError before anything is sent. RPC failures
// are retried with exponential backoff when their gRPC code is listed in
// TransientErrors.
//
// # Thread Safety
//
// Manager and DeviceConnection are safe for concurrent use. The schema
// context of a connection never changes after the connection is returned.
package southbound
