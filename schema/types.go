// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package schema

import (
	"fmt"
	"strings"
)

// BaseType is a built-in YANG type.
type BaseType int

const (
	String BaseType = iota
	Boolean
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Decimal64
	IdentityRef
	Leafref
	Enumeration
	Empty
	Binary
)

var baseTypeNames = map[BaseType]string{
	String:      "string",
	Boolean:     "boolean",
	Int8:        "int8",
	Int16:       "int16",
	Int32:       "int32",
	Int64:       "int64",
	Uint8:       "uint8",
	Uint16:      "uint16",
	Uint32:      "uint32",
	Uint64:      "uint64",
	Decimal64:   "decimal64",
	IdentityRef: "identityref",
	Leafref:     "leafref",
	Enumeration: "enumeration",
	Empty:       "empty",
	Binary:      "binary",
}

func (b BaseType) String() string {
	if s, ok := baseTypeNames[b]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", int(b))
}

// ParseBaseType maps a YANG built-in type name to a BaseType.
func ParseBaseType(s string) (BaseType, error) {
	if s == "bool" {
		return Boolean, nil
	}
	for b, name := range baseTypeNames {
		if name == s {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown base type %q", s)
}

// IsSigned reports whether the type is one of the signed integer types.
func (b BaseType) IsSigned() bool { return b >= Int8 && b <= Int64 }

// IsUnsigned reports whether the type is one of the unsigned integer types.
func (b BaseType) IsUnsigned() bool { return b >= Uint8 && b <= Uint64 }

// BitSize returns the width of an integer type, 0 otherwise.
func (b BaseType) BitSize() int {
	switch b {
	case Int8, Uint8:
		return 8
	case Int16, Uint16:
		return 16
	case Int32, Uint32:
		return 32
	case Int64, Uint64:
		return 64
	}
	return 0
}

// Type is the resolved type of a leaf or leaf-list.
type Type struct {
	Base           BaseType
	FractionDigits uint8
	// Path is the reference path of a leafref.
	Path string
	// IdentityBase is the qualified base of an identityref.
	IdentityBase string
	// Identities holds every identity derived from IdentityBase. Filled by NewContext.
	Identities []*Identity
	Enum       []string
}

// Identity returns the identity of an identityref type matching a value in
// name, module:name or prefix:name form. Only the part after the last colon
// selects the identity.
func (t *Type) Identity(value string) *Identity {
	name := value
	if i := strings.LastIndexByte(value, ':'); i >= 0 {
		name = value[i+1:]
	}
	for _, id := range t.Identities {
		if id.Name == name {
			return id
		}
	}
	return nil
}

const maxLeafrefDepth = 16

// ResolveLeafref follows leafref indirections starting at n and returns the
// node whose type is not a leafref. Relative paths exit one level on each
// ".." and enter the named child otherwise; absolute paths start at the top
// of the schema tree. Predicates in the path are ignored.
func (c *Context) ResolveLeafref(n *Node) (*Node, error) {
	cur := n
	for depth := 0; cur.Type != nil && cur.Type.Base == Leafref; depth++ {
		if depth >= maxLeafrefDepth {
			return nil, fmt.Errorf("schema: %s: leafref chain too deep", n.Path())
		}
		next, err := c.followLeafref(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func (c *Context) followLeafref(n *Node) (*Node, error) {
	p := stripPredicates(n.Type.Path)
	if p == "" {
		return nil, fmt.Errorf("schema: %s: leafref without path", n.Path())
	}
	var cur *Node
	if strings.HasPrefix(p, "/") {
		cur = nil
	} else {
		// relative paths are evaluated from the leaf itself
		cur = n
	}
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if cur == nil {
				return nil, fmt.Errorf("schema: %s: leafref %q leaves the schema tree", n.Path(), n.Type.Path)
			}
			cur = cur.Parent
			continue
		}
		prefix, name := splitQName(seg)
		if prefix == "" {
			prefix = n.Module.Name
		}
		var err error
		if cur == nil {
			cur, err = c.ResolveTopLevel(prefix, name)
		} else {
			cur, err = c.ResolveChild(cur, prefix, name)
		}
		if err != nil {
			return nil, fmt.Errorf("schema: %s: leafref %q: %w", n.Path(), n.Type.Path, err)
		}
	}
	if cur == nil || (cur.Kind != KindLeaf && cur.Kind != KindLeafList) {
		return nil, fmt.Errorf("schema: %s: leafref %q does not point at a leaf", n.Path(), n.Type.Path)
	}
	return cur, nil
}

func stripPredicates(p string) string {
	var b strings.Builder
	depth := 0
	for _, r := range p {
		switch {
		case r == '[':
			depth++
		case r == ']':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
