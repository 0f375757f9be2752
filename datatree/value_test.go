// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package datatree_test

import (
	"testing"

	"github.com/netascode/go-gnmi-southbound/datatree"
	"github.com/netascode/go-gnmi-southbound/schema"
)

func TestDecimal64(t *testing.T) {
	tests := []struct {
		description string
		input       string
		fd          uint8
		want        datatree.Decimal64
		wantString  string
		wantErr     bool
	}{
		{description: "padded fraction", input: "1.5", fd: 2, want: datatree.Decimal64{Digits: 150, FractionDigits: 2}, wantString: "1.50"},
		{description: "integer", input: "2", fd: 2, want: datatree.Decimal64{Digits: 200, FractionDigits: 2}, wantString: "2.00"},
		{description: "negative small", input: "-0.05", fd: 2, want: datatree.Decimal64{Digits: -5, FractionDigits: 2}, wantString: "-0.05"},
		{description: "trailing zeros beyond precision", input: "3.1400", fd: 2, want: datatree.Decimal64{Digits: 314, FractionDigits: 2}, wantString: "3.14"},
		{description: "exponent", input: "1.5e1", fd: 1, want: datatree.Decimal64{Digits: 150, FractionDigits: 1}, wantString: "15.0"},
		{description: "leading dot", input: ".5", fd: 1, want: datatree.Decimal64{Digits: 5, FractionDigits: 1}, wantString: "0.5"},
		{description: "too precise", input: "1.234", fd: 2, wantErr: true},
		{description: "garbage", input: "1.2x", fd: 2, wantErr: true},
		{description: "empty", input: "", fd: 2, wantErr: true},
		{description: "overflow", input: "99999999999999999999", fd: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			got, err := datatree.ParseDecimal64(tt.input, tt.fd)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDecimal64() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecimal64() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseDecimal64() = %+v, want %+v", got, tt.want)
			}
			if got.String() != tt.wantString {
				t.Errorf("String() = %s, want %s", got.String(), tt.wantString)
			}
		})
	}
}

func TestParseScalar(t *testing.T) {
	identities := []*schema.Identity{
		{Name: "IF_LOOPBACK", Module: &schema.Module{Name: "test-if-types"}},
	}

	tests := []struct {
		description string
		typ         *schema.Type
		raw         string
		want        any
		wantErr     bool
	}{
		{description: "string", typ: &schema.Type{Base: schema.String}, raw: "eth0", want: "eth0"},
		{description: "bool true", typ: &schema.Type{Base: schema.Boolean}, raw: "true", want: true},
		{description: "bool invalid", typ: &schema.Type{Base: schema.Boolean}, raw: "yes", wantErr: true},
		{description: "int8", typ: &schema.Type{Base: schema.Int8}, raw: "-12", want: int64(-12)},
		{description: "int8 overflow", typ: &schema.Type{Base: schema.Int8}, raw: "200", wantErr: true},
		{description: "uint16", typ: &schema.Type{Base: schema.Uint16}, raw: "1400", want: uint64(1400)},
		{description: "uint negative", typ: &schema.Type{Base: schema.Uint32}, raw: "-1", wantErr: true},
		{description: "uint64 max", typ: &schema.Type{Base: schema.Uint64}, raw: "18446744073709551615", want: uint64(18446744073709551615)},
		{description: "decimal64", typ: &schema.Type{Base: schema.Decimal64, FractionDigits: 3}, raw: "1.25", want: datatree.Decimal64{Digits: 1250, FractionDigits: 3}},
		{description: "identity qualified", typ: &schema.Type{Base: schema.IdentityRef, Identities: identities}, raw: "test-if-types:IF_LOOPBACK", want: datatree.IdentityRef{Module: "test-if-types", Name: "IF_LOOPBACK"}},
		{description: "identity by prefix", typ: &schema.Type{Base: schema.IdentityRef, Identities: identities}, raw: "tift:IF_LOOPBACK", want: datatree.IdentityRef{Module: "test-if-types", Name: "IF_LOOPBACK"}},
		{description: "identity unknown", typ: &schema.Type{Base: schema.IdentityRef, Identities: identities}, raw: "IF_OTHER", wantErr: true},
		{description: "enum", typ: &schema.Type{Base: schema.Enumeration, Enum: []string{"UP", "DOWN"}}, raw: "UP", want: "UP"},
		{description: "enum invalid", typ: &schema.Type{Base: schema.Enumeration, Enum: []string{"UP", "DOWN"}}, raw: "SIDEWAYS", wantErr: true},
		{description: "empty", typ: &schema.Type{Base: schema.Empty}, raw: "", want: datatree.Empty{}},
		{description: "unresolved leafref", typ: &schema.Type{Base: schema.Leafref}, raw: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			got, err := datatree.ParseScalar(tt.typ, tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseScalar() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseScalar() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseScalar() = %#v, want %#v", got, tt.want)
			}
			canonical := tt.typ.Base != schema.IdentityRef && tt.typ.Base != schema.Decimal64
			if back := datatree.FormatScalar(got); canonical && back != tt.raw {
				t.Errorf("FormatScalar() = %q, want %q", back, tt.raw)
			}
		})
	}
}
