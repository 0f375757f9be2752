// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package codec translates between gNMI paths and values and schema-aware
// data trees.
//
// PathCodec maps *gnmipb.Path to datatree.NodeIdentifier and back.
// ValueCodec maps datatree.DataNode to *gnmipb.TypedValue and back, using
// JSON_IETF for structured values and the scalar variants for leaves.
// Both are stateless value types and safe for concurrent use.
package codec

import (
	"fmt"

	"github.com/netascode/go-gnmi-southbound/schema"
)

// LookupError is returned when a path element names no schema node, or
// names one in several modules.
type LookupError = schema.LookupError

// Error is a path or value translation failure.
type Error struct {
	Op   string
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := "codec: " + e.Op
	if e.Path != "" {
		s += " " + e.Path
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(op, path, format string, args ...any) *Error {
	return &Error{Op: op, Path: path, Msg: fmt.Sprintf(format, args...)}
}
