// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package southbound

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/status"
)

// ErrConnectCanceled is the cause of a connect attempt stopped by Disconnect
// or Manager.Close. It matches context.Canceled.
var ErrConnectCanceled = fmt.Errorf("southbound: connect attempt canceled: %w", context.Canceled)

// ErrManagerClosed is returned by futures created after Manager.Close.
var ErrManagerClosed = errors.New("southbound: manager closed")

// ErrConnectionClosed is returned by data operations on a closed connection.
var ErrConnectionClosed = errors.New("southbound: connection closed")

// TransportError reports a failure to open or use the transport session of
// a device, for example a refused connection or a failed TLS handshake.
// The manager never retries it; callers reconnect explicitly.
type TransportError struct {
	DeviceID string
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("southbound: %s %s: %v", e.DeviceID, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConnectionStatusError reports that the transport left the READY state
// while the device was being negotiated, or shut down while active.
type ConnectionStatusError struct {
	DeviceID string
	State    connectivity.State
}

func (e *ConnectionStatusError) Error() string {
	return fmt.Sprintf("southbound: %s: unexpected connection state %s", e.DeviceID, e.State)
}

// GnmiError represents a structured gNMI error with operation context
type GnmiError struct {
	// Operation name that failed
	Operation string

	// Errors from gNMI error details
	Errors []ErrorModel

	// Human-readable error message
	Message string

	// InternalMsg contains detailed error information for internal logging
	InternalMsg string

	// Number of retry attempts made
	Retries int

	// IsTransient indicates if the error is transient and was retried
	IsTransient bool

	// Err is the last RPC error
	Err error
}

// Error implements the error interface
func (e *GnmiError) Error() string {
	if e.Retries > 0 {
		return fmt.Sprintf("gnmi: %s failed: %s (retries: %d)", e.Operation, e.Message, e.Retries)
	}
	return fmt.Sprintf("gnmi: %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the last RPC error so status.Code and errors.Is see it.
func (e *GnmiError) Unwrap() error { return e.Err }

// GRPCStatus exposes the status of the last RPC error.
func (e *GnmiError) GRPCStatus() *status.Status {
	st, _ := status.FromError(e.Err)
	return st
}

// DetailedError returns the full error message including internal details
//
// This should only be used in secure logging contexts where sensitive information
// disclosure is acceptable (e.g., server-side logs, debug output).
//
// Example:
//
//	var gnmiErr *southbound.GnmiError
//	if errors.As(err, &gnmiErr) {
//	    log.Debug(gnmiErr.DetailedError()) // internal logging
//	    return gnmiErr.Error()             // client-facing error
//	}
func (e *GnmiError) DetailedError() string {
	if e.InternalMsg == "" {
		return e.Error()
	}
	if e.Retries > 0 {
		return fmt.Sprintf("gnmi: %s failed: %s (internal: %s, retries: %d)",
			e.Operation, e.Message, e.InternalMsg, e.Retries)
	}
	return fmt.Sprintf("gnmi: %s failed: %s (internal: %s)",
		e.Operation, e.Message, e.InternalMsg)
}

// ErrorModel represents a gNMI error with gRPC status code
type ErrorModel struct {
	// Code is the gRPC status code
	Code uint32

	// Message is the error message
	Message string

	// Details contains additional error information
	Details string
}

// TransientError defines patterns for detecting transient errors that should be retried
type TransientError struct {
	// Code is the gRPC status code to match
	Code uint32
}

// TransientErrors defines the list of gRPC status codes that trigger a
// retry of Get and Set requests.
//
// codes.Internal is not listed: it covers many permanent failures and
// retrying it hides real problems.
var TransientErrors = []TransientError{
	// Service temporarily unavailable
	{Code: uint32(codes.Unavailable)},

	// Rate limiting or quota exceeded
	{Code: uint32(codes.ResourceExhausted)},

	// Timeout or deadline exceeded
	{Code: uint32(codes.DeadlineExceeded)},

	// Transaction aborted, may succeed on retry
	{Code: uint32(codes.Aborted)},
}
