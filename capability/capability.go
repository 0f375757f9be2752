// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package capability negotiates the schema a device is managed with.
package capability

import (
	"errors"
	"fmt"
	"strings"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"golang.org/x/mod/semver"

	"github.com/netascode/go-gnmi-southbound/schema"
)

// DeviceCapability is one model advertised by, or forced for, a device.
type DeviceCapability struct {
	Name         string `yaml:"name"`
	Organization string `yaml:"organization,omitempty"`
	Version      string `yaml:"version,omitempty"`
}

// Equal compares name and version. The organization is informational.
func (c DeviceCapability) Equal(o DeviceCapability) bool {
	return c.Name == o.Name && c.Version == o.Version
}

// IsSemVer reports whether Version is a semantic version rather than a
// revision date.
func (c DeviceCapability) IsSemVer() bool {
	if c.Version == "" {
		return false
	}
	return semver.IsValid("v" + strings.TrimPrefix(c.Version, "v"))
}

func (c DeviceCapability) String() string {
	if c.Version == "" {
		return c.Name
	}
	return c.Name + "@" + c.Version
}

// FromModelData converts advertised models, dropping duplicates.
func FromModelData(models []*gnmipb.ModelData) []DeviceCapability {
	out := make([]DeviceCapability, 0, len(models))
	for _, m := range models {
		c := DeviceCapability{Name: m.GetName(), Organization: m.GetOrganization(), Version: m.GetVersion()}
		if c.Name == "" || contains(out, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func contains(list []DeviceCapability, c DeviceCapability) bool {
	for _, x := range list {
		if x.Equal(c) {
			return true
		}
	}
	return false
}

// CapabilityError reports a device that cannot be managed, for example
// because it does not support JSON_IETF.
type CapabilityError struct {
	Reason    string
	Encodings []gnmipb.Encoding
}

func (e *CapabilityError) Error() string {
	if len(e.Encodings) == 0 {
		return "capability: " + e.Reason
	}
	names := make([]string, len(e.Encodings))
	for i, enc := range e.Encodings {
		names[i] = enc.String()
	}
	return fmt.Sprintf("capability: %s (device supports %s)", e.Reason, strings.Join(names, ", "))
}

// SchemaResolutionError lists the models for which no schema could be
// loaded, or carries the loader failure.
type SchemaResolutionError struct {
	Missing []string
	Err     error
}

func (e *SchemaResolutionError) Error() string {
	if len(e.Missing) > 0 {
		return "capability: no schema for models: " + strings.Join(e.Missing, ", ")
	}
	return "capability: schema resolution failed: " + e.Err.Error()
}

func (e *SchemaResolutionError) Unwrap() error { return e.Err }

// Negotiator builds a schema context from a device's capabilities.
type Negotiator struct {
	Source schema.Source
}

// Negotiate checks that the device supports JSON_IETF and loads the schema
// of every advertised model, or of the forced models when forced is not
// empty. Imports of the selected models are loaded as well.
func (n Negotiator) Negotiate(resp *gnmipb.CapabilityResponse, forced []DeviceCapability) (*schema.Context, []DeviceCapability, error) {
	if !supportsJSONIETF(resp.GetSupportedEncodings()) {
		return nil, nil, &CapabilityError{
			Reason:    "device does not support JSON_IETF encoding",
			Encodings: resp.GetSupportedEncodings(),
		}
	}
	if n.Source == nil {
		return nil, nil, &SchemaResolutionError{Err: errors.New("no schema source configured")}
	}

	caps := FromModelData(resp.GetSupportedModels())
	if len(forced) > 0 {
		caps = make([]DeviceCapability, 0, len(forced))
		for _, c := range forced {
			if !contains(caps, c) {
				caps = append(caps, c)
			}
		}
	}

	// a schema context holds one version per module
	refs := make(map[string]string, len(caps))
	var conflicts []string
	for _, c := range caps {
		if v, ok := refs[c.Name]; ok && v != c.Version {
			conflicts = append(conflicts, fmt.Sprintf("%s (%s, %s)", c.Name, v, c.Version))
			continue
		}
		refs[c.Name] = c.Version
	}
	if len(conflicts) > 0 {
		return nil, nil, &CapabilityError{
			Reason: "models advertised in more than one version: " + strings.Join(conflicts, "; "),
		}
	}
	modules, err := schema.LoadAll(n.Source, refs)
	if err != nil {
		var missing *schema.MissingModulesError
		if errors.As(err, &missing) {
			return nil, nil, &SchemaResolutionError{Missing: missing.Modules, Err: err}
		}
		return nil, nil, &SchemaResolutionError{Err: err}
	}
	ctx, err := schema.NewContext(modules...)
	if err != nil {
		return nil, nil, &SchemaResolutionError{Err: err}
	}
	return ctx, caps, nil
}

func supportsJSONIETF(encs []gnmipb.Encoding) bool {
	for _, e := range encs {
		if e == gnmipb.Encoding_JSON_IETF {
			return true
		}
	}
	return false
}
