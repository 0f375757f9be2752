// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package southbound

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/netascode/go-gnmi-southbound/capability"
	"github.com/netascode/go-gnmi-southbound/datatree"
	"github.com/netascode/go-gnmi-southbound/schema"
)

// MountPointRegistry makes connected devices addressable by upper layers.
// A device is registered only after its schema has been negotiated.
type MountPointRegistry interface {
	RegisterMountPoint(ctx context.Context, deviceID string, sc *schema.Context, access datatree.Store) error
	UnregisterMountPoint(ctx context.Context, deviceID string) error
}

// MountPoint is one registered device.
type MountPoint struct {
	DeviceID string
	Schema   *schema.Context
	Access   datatree.Store
}

// MountPoints is an in-memory MountPointRegistry.
type MountPoints struct {
	mu     sync.RWMutex
	points map[string]MountPoint
}

func NewMountPoints() *MountPoints {
	return &MountPoints{points: make(map[string]MountPoint)}
}

// RegisterMountPoint fails if deviceID is already registered.
func (m *MountPoints) RegisterMountPoint(_ context.Context, deviceID string, sc *schema.Context, access datatree.Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.points[deviceID]; ok {
		return fmt.Errorf("mount point %s already registered", deviceID)
	}
	m.points[deviceID] = MountPoint{DeviceID: deviceID, Schema: sc, Access: access}
	return nil
}

// UnregisterMountPoint removes deviceID. Removing an absent device is not
// an error.
func (m *MountPoints) UnregisterMountPoint(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.points, deviceID)
	return nil
}

// Lookup returns the mount point of deviceID.
func (m *MountPoints) Lookup(deviceID string) (MountPoint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.points[deviceID]
	return p, ok
}

// Devices returns the registered device IDs in order.
func (m *MountPoints) Devices() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.points))
	for id := range m.points {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// OperationalStore persists the capabilities negotiated per device.
type OperationalStore interface {
	PutCapabilities(ctx context.Context, deviceID string, caps []capability.DeviceCapability) error
	Capabilities(ctx context.Context, deviceID string) ([]capability.DeviceCapability, bool, error)
}

// MemoryOperationalStore is an OperationalStore without persistence.
type MemoryOperationalStore struct {
	mu   sync.RWMutex
	caps map[string][]capability.DeviceCapability
}

func NewMemoryOperationalStore() *MemoryOperationalStore {
	return &MemoryOperationalStore{caps: make(map[string][]capability.DeviceCapability)}
}

func (s *MemoryOperationalStore) PutCapabilities(_ context.Context, deviceID string, caps []capability.DeviceCapability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps[deviceID] = append([]capability.DeviceCapability(nil), caps...)
	return nil
}

func (s *MemoryOperationalStore) Capabilities(_ context.Context, deviceID string) ([]capability.DeviceCapability, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	caps, ok := s.caps[deviceID]
	return append([]capability.DeviceCapability(nil), caps...), ok, nil
}
