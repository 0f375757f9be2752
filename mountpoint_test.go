// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package southbound

import (
	"context"
	"testing"

	"github.com/netascode/go-gnmi-southbound/capability"
)

func TestMountPoints(t *testing.T) {
	ctx := context.Background()
	m := NewMountPoints()
	conn, _ := testConnection(t)

	if err := m.RegisterMountPoint(ctx, "r2", conn.Schema(), conn); err != nil {
		t.Fatalf("RegisterMountPoint() error = %v", err)
	}
	if err := m.RegisterMountPoint(ctx, "r1", conn.Schema(), conn); err != nil {
		t.Fatalf("RegisterMountPoint() error = %v", err)
	}
	if err := m.RegisterMountPoint(ctx, "r1", conn.Schema(), conn); err == nil {
		t.Errorf("duplicate RegisterMountPoint() succeeded")
	}
	if got := m.Devices(); len(got) != 2 || got[0] != "r1" {
		t.Errorf("Devices() = %v", got)
	}

	if err := m.UnregisterMountPoint(ctx, "r1"); err != nil {
		t.Fatalf("UnregisterMountPoint() error = %v", err)
	}
	if err := m.UnregisterMountPoint(ctx, "r1"); err != nil {
		t.Errorf("second UnregisterMountPoint() error = %v", err)
	}
	if _, ok := m.Lookup("r1"); ok {
		t.Errorf("Lookup() found unregistered device")
	}
	if mp, ok := m.Lookup("r2"); !ok || mp.Schema != conn.Schema() {
		t.Errorf("Lookup(r2) = %+v, %v", mp, ok)
	}
}

func TestMemoryOperationalStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryOperationalStore()

	if _, ok, err := s.Capabilities(ctx, "r1"); ok || err != nil {
		t.Fatalf("Capabilities() of unknown device = %v, %v", ok, err)
	}
	caps := []capability.DeviceCapability{{Name: "test-interfaces", Organization: "Test", Version: "2.4.3"}}
	if err := s.PutCapabilities(ctx, "r1", caps); err != nil {
		t.Fatalf("PutCapabilities() error = %v", err)
	}
	caps[0].Name = "mutated"

	got, ok, err := s.Capabilities(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("Capabilities() = %v, %v", ok, err)
	}
	if len(got) != 1 || got[0].Name != "test-interfaces" {
		t.Errorf("Capabilities() = %v, want stored copy", got)
	}
}

func TestSetOperationBuilders(t *testing.T) {
	tests := []struct {
		name string
		op   SetOperation
		want SetOperation
	}{
		{
			name: "update defaults to json_ietf",
			op:   Update("/a", "1"),
			want: SetOperation{OperationType: OperationUpdate, Path: "/a", Value: "1", Encoding: EncodingJSONIETF},
		},
		{
			name: "replace with encoding",
			op:   Replace("/a", `{"b":1}`, SetEncoding(EncodingJSON)),
			want: SetOperation{OperationType: OperationReplace, Path: "/a", Value: `{"b":1}`, Encoding: EncodingJSON},
		},
		{
			name: "delete",
			op:   Delete("/a"),
			want: SetOperation{OperationType: OperationDelete, Path: "/a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.op != tt.want {
				t.Errorf("got %+v, want %+v", tt.op, tt.want)
			}
		})
	}
}

func TestValidateEncoding(t *testing.T) {
	for _, enc := range []string{"json", "JSON_IETF", "proto", "ascii", "bytes"} {
		if err := ValidateEncoding(enc); err != nil {
			t.Errorf("ValidateEncoding(%q) error = %v", enc, err)
		}
	}
	for _, enc := range []string{"", "xml", "json-ietf"} {
		if err := ValidateEncoding(enc); err == nil {
			t.Errorf("ValidateEncoding(%q) succeeded", enc)
		}
	}
}
