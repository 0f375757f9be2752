// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package southbound

import "time"

// Req carries per-request modifiers of DeviceConnection operations.
//
// Example:
//
//	res, err := conn.Get(ctx, paths,
//	    southbound.GetEncoding("json"),
//	    southbound.Timeout(30*time.Second))
type Req struct {
	// Encoding of string-path Get requests. Typed operations always use
	// json_ietf.
	Encoding string

	// Timeout of a single attempt. Overrides the device's operation timeout.
	Timeout time.Duration
}

// SetOperationType represents the type of Set operation
type SetOperationType string

const (
	// OperationUpdate merges the value into existing configuration
	OperationUpdate SetOperationType = "update"

	// OperationReplace replaces existing configuration with the value
	OperationReplace SetOperationType = "replace"

	// OperationDelete removes configuration at the path
	OperationDelete SetOperationType = "delete"
)

// SetOperation is one entry of a string-path Set request.
type SetOperation struct {
	OperationType SetOperationType

	// Path in gNMI string form, e.g. /interfaces/interface[name=eth0]/config
	Path string

	// Value is the encoded value for update and replace, empty for delete
	Value string

	// Encoding of Value; json_ietf when empty
	Encoding string
}

// Update creates an update SetOperation.
func Update(path, value string, opts ...func(*SetOperation)) SetOperation {
	op := SetOperation{OperationType: OperationUpdate, Path: path, Value: value, Encoding: EncodingJSONIETF}
	for _, opt := range opts {
		opt(&op)
	}
	return op
}

// Replace creates a replace SetOperation.
func Replace(path, value string, opts ...func(*SetOperation)) SetOperation {
	op := SetOperation{OperationType: OperationReplace, Path: path, Value: value, Encoding: EncodingJSONIETF}
	for _, opt := range opts {
		opt(&op)
	}
	return op
}

// Delete creates a delete SetOperation.
func Delete(path string) SetOperation {
	return SetOperation{OperationType: OperationDelete, Path: path}
}
