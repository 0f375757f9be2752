// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package opstate

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/netascode/go-gnmi-southbound/capability"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "state", "opstate.db"), WALMode: true, BusyTimeout: time.Second})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var testCaps = []capability.DeviceCapability{
	{Name: "test-interfaces", Organization: "Test", Version: "2.4.3"},
	{Name: "test-vlan", Version: "2020-06-01"},
}

func TestStore_PutAndRead(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.now = func() time.Time { return time.UnixMilli(1000) }

	if _, ok, err := s.Capabilities(ctx, "r1"); ok || err != nil {
		t.Fatalf("Capabilities() of unknown device = %v, %v", ok, err)
	}
	if err := s.PutCapabilities(ctx, "r1", testCaps); err != nil {
		t.Fatalf("PutCapabilities() error = %v", err)
	}
	got, ok, err := s.Capabilities(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("Capabilities() = %v, %v", ok, err)
	}
	if len(got) != 2 || got[0] != testCaps[0] || got[1] != testCaps[1] {
		t.Errorf("Capabilities() = %+v", got)
	}

	s.now = func() time.Time { return time.UnixMilli(2000) }
	if err := s.PutCapabilities(ctx, "r1", testCaps[:1]); err != nil {
		t.Fatalf("PutCapabilities() error = %v", err)
	}
	got, _, _ = s.Capabilities(ctx, "r1")
	if len(got) != 1 {
		t.Errorf("Capabilities() after upsert = %+v", got)
	}
	if at, ok, err := s.UpdatedAt(ctx, "r1"); err != nil || !ok || at.UnixMilli() != 2000 {
		t.Errorf("UpdatedAt() = %v, %v, %v", at, ok, err)
	}
}

func TestStore_DevicesAndForget(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	for _, id := range []string{"r2", "r1", "r3"} {
		if err := s.PutCapabilities(ctx, id, testCaps); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Forget(ctx, "r2"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	ids, err := s.Devices(ctx)
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "r1" || ids[1] != "r3" {
		t.Errorf("Devices() = %v", ids)
	}
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "opstate.db")
	s, err := Open(Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PutCapabilities(ctx, "r1", testCaps); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if got, ok, err := s.Capabilities(ctx, "r1"); err != nil || !ok || len(got) != 2 {
		t.Errorf("Capabilities() after reopen = %+v, %v, %v", got, ok, err)
	}
}

func TestCapabilityEncodingIsDeterministic(t *testing.T) {
	enc := func(caps []capability.DeviceCapability) []byte {
		recs := make([]capabilityRecord, len(caps))
		for i, c := range caps {
			recs[i] = capabilityRecord(c)
		}
		b, err := encMode.Marshal(recs)
		if err != nil {
			t.Fatal(err)
		}
		return b
	}
	a, b := enc(testCaps), enc(append([]capability.DeviceCapability(nil), testCaps...))
	if !bytes.Equal(a, b) {
		t.Errorf("encodings differ")
	}
	got, err := decodeCapabilities(a)
	if err != nil || len(got) != 2 || got[1] != testCaps[1] {
		t.Errorf("decodeCapabilities() = %+v, %v", got, err)
	}
	if _, err := decodeCapabilities([]byte{0xff}); err == nil {
		t.Errorf("decodeCapabilities() of garbage succeeded")
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Errorf("Open() without path succeeded")
	}
}
