// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package southbound

import (
	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"google.golang.org/protobuf/encoding/protojson"
)

// GetRes represents the result of a string-path Get.
type GetRes struct {
	Notifications []*gnmipb.Notification

	// Timestamp is the local receive time (nanoseconds since Unix epoch)
	Timestamp int64

	OK     bool
	Errors []ErrorModel
}

// GetValue queries the protojson form of the response with a gjson path.
//
// Example paths:
//   - "notification.0.timestamp"
//   - "notification.0.update.0.path.elem.0.name"
//   - "notification.0.update.0.val.jsonIetfVal" (base64 encoded)
func (r GetRes) GetValue(path string) gjson.Result {
	jsonStr := r.JSON()
	if jsonStr == "" {
		return gjson.Result{}
	}
	return gjson.Get(jsonStr, path)
}

// JSON returns the notifications in protojson form, or "" when there are
// none. The local receive time is added as the top-level "timestamp".
func (r GetRes) JSON() string {
	if r.Notifications == nil {
		return ""
	}
	data, err := protojson.Marshal(&gnmipb.GetResponse{Notification: r.Notifications})
	if err != nil {
		return ""
	}
	if data, err = sjson.SetBytes(data, "timestamp", r.Timestamp); err != nil {
		return ""
	}
	return string(data)
}

// SetRes represents the result of a string-path Set.
type SetRes struct {
	Response *gnmipb.SetResponse

	// Timestamp is the local receive time (nanoseconds since Unix epoch)
	Timestamp int64

	OK     bool
	Errors []ErrorModel
}

// GetValue queries the protojson form of the SetResponse, e.g.
// "response.0.op".
func (r SetRes) GetValue(path string) gjson.Result {
	jsonStr := r.JSON()
	if jsonStr == "" {
		return gjson.Result{}
	}
	return gjson.Get(jsonStr, path)
}

// JSON returns the SetResponse in protojson form.
func (r SetRes) JSON() string {
	if r.Response == nil {
		return ""
	}
	data, err := protojson.Marshal(r.Response)
	if err != nil {
		return ""
	}
	return string(data)
}
