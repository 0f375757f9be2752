// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package datatree

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/netascode/go-gnmi-southbound/schema"
)

// Decimal64 is a fixed point number: Digits / 10^FractionDigits.
type Decimal64 struct {
	Digits         int64
	FractionDigits uint8
}

// String formats the value with exactly FractionDigits decimals.
func (d Decimal64) String() string {
	neg := d.Digits < 0
	u := uint64(d.Digits)
	if neg {
		u = -u
	}
	s := strconv.FormatUint(u, 10)
	fd := int(d.FractionDigits)
	if fd > 0 {
		if len(s) <= fd {
			s = strings.Repeat("0", fd-len(s)+1) + s
		}
		s = s[:len(s)-fd] + "." + s[len(s)-fd:]
	}
	if neg {
		s = "-" + s
	}
	return s
}

// ParseDecimal64 parses s with the given number of fraction digits. Extra
// fraction digits are accepted only when they are zero.
func ParseDecimal64(s string, fractionDigits uint8) (Decimal64, error) {
	orig := s
	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Decimal64{}, fmt.Errorf("invalid decimal64 %q", orig)
		}
		s = strconv.FormatFloat(f, 'f', int(fractionDigits), 64)
	}
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	if intPart == "" && frac == "" {
		return Decimal64{}, fmt.Errorf("invalid decimal64 %q", orig)
	}
	fd := int(fractionDigits)
	if len(frac) > fd {
		if strings.Trim(frac[fd:], "0") != "" {
			return Decimal64{}, fmt.Errorf("decimal64 %q has more than %d fraction digits", orig, fd)
		}
		frac = frac[:fd]
	}
	frac += strings.Repeat("0", fd-len(frac))
	for _, r := range intPart + frac {
		if r < '0' || r > '9' {
			return Decimal64{}, fmt.Errorf("invalid decimal64 %q", orig)
		}
	}
	digits := strings.TrimLeft(intPart+frac, "0")
	if digits == "" {
		digits = "0"
	}
	if neg {
		digits = "-" + digits
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return Decimal64{}, fmt.Errorf("decimal64 %q out of range", orig)
	}
	return Decimal64{Digits: v, FractionDigits: fractionDigits}, nil
}

// IdentityRef is a value of an identityref leaf.
type IdentityRef struct {
	Module string
	Name   string
}

// String returns module:name.
func (r IdentityRef) String() string { return r.Module + ":" + r.Name }

// Empty is the value of a leaf of type empty.
type Empty struct{}

// FormatScalar renders a typed value in its canonical string form, as used
// in path keys.
func FormatScalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case Decimal64:
		return x.String()
	case IdentityRef:
		return x.String()
	case Empty:
		return ""
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// ParseValue converts the canonical string form of a value of node into
// its typed form. Leafrefs are followed to their target type.
func ParseValue(ctx *schema.Context, node *schema.Node, raw string) (any, error) {
	if node.Type == nil {
		return nil, fmt.Errorf("%s %s has no type", node.Kind, node.Path())
	}
	if node.Type.Base == schema.Leafref {
		target, err := ctx.ResolveLeafref(node)
		if err != nil {
			return nil, err
		}
		node = target
	}
	return ParseScalar(node.Type, raw)
}

// ParseScalar converts raw according to a non-leafref type.
func ParseScalar(t *schema.Type, raw string) (any, error) {
	switch b := t.Base; {
	case b == schema.String || b == schema.Binary:
		return raw, nil
	case b == schema.Enumeration:
		if len(t.Enum) > 0 && !contains(t.Enum, raw) {
			return nil, fmt.Errorf("%q is not a valid enum value", raw)
		}
		return raw, nil
	case b == schema.Boolean:
		switch raw {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean %q", raw)
	case b.IsSigned():
		v, err := strconv.ParseInt(raw, 10, b.BitSize())
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", b, raw)
		}
		return v, nil
	case b.IsUnsigned():
		v, err := strconv.ParseUint(raw, 10, b.BitSize())
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", b, raw)
		}
		return v, nil
	case b == schema.Decimal64:
		return ParseDecimal64(raw, t.FractionDigits)
	case b == schema.IdentityRef:
		id := t.Identity(raw)
		if id == nil {
			return nil, fmt.Errorf("unknown identity %q", raw)
		}
		return IdentityRef{Module: id.Module.Name, Name: id.Name}, nil
	case b == schema.Empty:
		if raw != "" {
			return nil, fmt.Errorf("invalid empty value %q", raw)
		}
		return Empty{}, nil
	}
	return nil, fmt.Errorf("unsupported type %s", t.Base)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
