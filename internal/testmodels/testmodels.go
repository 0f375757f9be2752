// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package testmodels holds the model set shared by the package tests.
package testmodels

import (
	"testing"

	"github.com/netascode/go-gnmi-southbound/schema"
)

// RootModel1 and RootModel2 both define a top-level root-container.
const RootModel1 = `
module: root-model-1
prefix: rm1
namespace: urn:test:root-model-1
organization: Test
revision: "2023-01-01"
nodes:
  - container: root-container
    children:
      - leaf: name
        type: string
      - leaf-list: tags
        type: string
`

const RootModel2 = `
module: root-model-2
prefix: rm2
namespace: urn:test:root-model-2
organization: Test
revision: "2023-02-01"
semver: "1.0.0"
nodes:
  - container: root-container
    children:
      - leaf: id
        type: uint32
`

const IfTypes = `
module: test-if-types
prefix: tift
namespace: urn:test:if-types
organization: Test
revision: "2022-01-01"
identities:
  - name: INTERFACE_TYPE
  - name: IF_ETHERNET
    base: INTERFACE_TYPE
  - name: IF_LOOPBACK
    base: tift:INTERFACE_TYPE
  - name: IF_AGGREGATE
    base: IF_ETHERNET
`

const Interfaces = `
module: test-interfaces
prefix: tif
namespace: urn:test:interfaces
organization: Test
revision: "2021-04-06"
semver: "2.4.3"
imports: [test-if-types]
nodes:
  - container: interfaces
    children:
      - list: interface
        key: [name]
        children:
          - leaf: name
            type: leafref
            path: ../config/name
          - container: config
            children:
              - leaf: name
                type: string
              - leaf: type
                type: identityref
                base: tift:INTERFACE_TYPE
              - leaf: mtu
                type: uint16
              - leaf: enabled
                type: boolean
              - leaf: description
                type: string
              - leaf: loopback-mode
                type: empty
              - leaf-list: tags
                type: string
          - container: state
            config: false
            children:
              - leaf: counter
                type: uint64
              - leaf: load
                type: decimal64
                fraction-digits: 2
              - leaf: offset
                type: int64
              - leaf: oper-status
                type: enumeration
                enum: [UP, DOWN]
  - container: qos
    children:
      - list: queue
        key: [id]
        children:
          - leaf: id
            type: uint8
          - leaf: weight
            type: int32
      - list: class
        key: [type]
        children:
          - leaf: type
            type: identityref
            base: tift:INTERFACE_TYPE
          - leaf: rate
            type: decimal64
            fraction-digits: 3
      - list: rule
        key: [priority, direction]
        children:
          - leaf: priority
            type: uint8
          - leaf: direction
            type: enumeration
            enum: [in, out]
          - leaf: active
            type: boolean
`

const Vlan = `
module: test-vlan
prefix: tvlan
namespace: urn:test:vlan
organization: Test
revision: "2020-06-01"
imports: [test-interfaces]
augments:
  - target: /tif:interfaces/tif:interface
    children:
      - container: vlan
        children:
          - leaf: vlan-id
            type: uint16
          - leaf-list: trunk
            type: uint16
`

// All returns every model document.
func All() []string {
	return []string{RootModel1, RootModel2, IfTypes, Interfaces, Vlan}
}

// Source returns a memory source serving all models.
func Source(t testing.TB) *schema.MemorySource {
	t.Helper()
	src, err := schema.NewMemorySource(All()...)
	if err != nil {
		t.Fatalf("NewMemorySource() error = %v", err)
	}
	return src
}

// Context returns a schema context with every model loaded.
func Context(t testing.TB) *schema.Context {
	t.Helper()
	src := Source(t)
	var mods []*schema.Module
	for _, name := range src.Names() {
		m, err := src.Load(name, "")
		if err != nil {
			t.Fatalf("Load(%s) error = %v", name, err)
		}
		mods = append(mods, m)
	}
	ctx, err := schema.NewContext(mods...)
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	return ctx
}
