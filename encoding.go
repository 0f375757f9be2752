// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package southbound

import (
	"fmt"
	"slices"
	"strings"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
)

// Encoding names accepted by the string-path Get and Set operations.
const (
	EncodingJSON     = "json"
	EncodingJSONIETF = "json_ietf" // default; the only encoding typed operations use
	EncodingProto    = "proto"
	EncodingASCII    = "ascii"
	EncodingBytes    = "bytes"
)

// ValidEncodings contains the list of valid encoding values
var ValidEncodings = []string{
	EncodingJSON,
	EncodingJSONIETF,
	EncodingProto,
	EncodingASCII,
	EncodingBytes,
}

// ValidateEncoding checks if the encoding is valid. Names are matched case
// insensitively.
func ValidateEncoding(enc string) error {
	if slices.Contains(ValidEncodings, strings.ToLower(enc)) {
		return nil
	}
	return fmt.Errorf("invalid encoding: %s (valid values: %s)", enc, strings.Join(ValidEncodings, ", "))
}

// encodingNames renders advertised encodings for logging.
func encodingNames(encs []gnmipb.Encoding) []string {
	out := make([]string, len(encs))
	for i, e := range encs {
		out[i] = strings.ToLower(e.String())
	}
	return out
}
