// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package schema describes the typed data models a device exposes.
//
// A Context is the resolved, immutable set of modules negotiated for one
// device: containers, lists with ordered keys, leaves and leaf-lists with
// their base types, identities, and augmentations already attached to the
// nodes they augment. A Context never changes after NewContext returns and
// may be read from any number of goroutines.
//
// Modules are obtained from a Source. The package ships DirSource, which
// reads YAML model descriptions named after the YANG convention
// (name@revision.yaml), and MemorySource for tests and embedded models:
//
//	module: openconfig-interfaces
//	prefix: oc-if
//	namespace: http://openconfig.net/yang/interfaces
//	revision: "2021-04-06"
//	semver: "2.4.3"
//	nodes:
//	  - container: interfaces
//	    children:
//	      - list: interface
//	        key: [name]
//	        children:
//	          - leaf: name
//	            type: string
package schema
