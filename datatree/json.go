// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package datatree

import (
	"errors"
	"fmt"
	"strings"

	"github.com/netascode/go-gnmi-southbound/schema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MarshalMember encodes n as a single-member JSON object {"<name>": value}.
// With qualify the member name carries the module prefix. Nested members
// are prefixed only when their module differs from their parent's. A list
// entry is encoded as a one-element array.
func MarshalMember(n DataNode, qualify bool) ([]byte, error) {
	parentModule := n.NodeName().Module
	if qualify {
		parentModule = ""
	}
	return marshalMembers("{}", []DataNode{n}, parentModule)
}

// MarshalValue encodes the JSON value of n. The root container (zero
// QName) encodes as an object of module-qualified top-level members.
func MarshalValue(n DataNode) ([]byte, error) {
	switch v := n.(type) {
	case *Container:
		return marshalMembers("{}", v.Children, v.Module)
	case *ListEntry:
		return marshalMembers("{}", v.Children, v.Module)
	case *Augmentation:
		return marshalMembers("{}", v.Children, "")
	case *Leaf:
		return scalarJSON(v.Value)
	case *LeafList:
		s, err := leafListJSON(v.Values)
		return []byte(s), err
	}
	return nil, fmt.Errorf("datatree: cannot marshal %T", n)
}

func marshalMembers(doc string, children []DataNode, parentModule string) ([]byte, error) {
	arrays := make(map[string]bool)
	for _, c := range Flatten(children) {
		q := c.NodeName()
		name := q.Name
		if q.Module != parentModule {
			name = q.String()
		}
		key := EscapeKey(name)
		var err error
		switch v := c.(type) {
		case *Leaf:
			doc, err = setScalar(doc, key, v.Value)
		case *LeafList:
			var raw string
			if raw, err = leafListJSON(v.Values); err == nil {
				doc, err = sjson.SetRaw(doc, key, raw)
			}
		case *Container:
			var raw []byte
			if raw, err = marshalMembers("{}", v.Children, q.Module); err == nil {
				doc, err = sjson.SetRaw(doc, key, string(raw))
			}
		case *ListEntry:
			var raw []byte
			if raw, err = marshalMembers("{}", v.Children, q.Module); err != nil {
				break
			}
			if arrays[key] {
				doc, err = sjson.SetRaw(doc, key+".-1", string(raw))
			} else {
				arrays[key] = true
				doc, err = sjson.SetRaw(doc, key, "["+string(raw)+"]")
			}
		default:
			err = fmt.Errorf("unexpected node %T", c)
		}
		if err != nil {
			return nil, fmt.Errorf("datatree: encoding %s: %w", q, err)
		}
	}
	return []byte(doc), nil
}

func leafListJSON(values []any) (string, error) {
	arr := "[]"
	for _, v := range values {
		var err error
		if arr, err = setScalar(arr, "-1", v); err != nil {
			return "", err
		}
	}
	return arr, nil
}

func setScalar(doc, path string, v any) (string, error) {
	switch x := v.(type) {
	case string, bool, int64, uint64:
		return sjson.Set(doc, path, x)
	case Decimal64:
		return sjson.SetRaw(doc, path, x.String())
	case IdentityRef:
		return sjson.Set(doc, path, x.String())
	case Empty:
		return sjson.SetRaw(doc, path, "[null]")
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}

func scalarJSON(v any) ([]byte, error) {
	doc, err := setScalar(`{}`, "v", v)
	if err != nil {
		return nil, err
	}
	return []byte(gjson.Get(doc, "v").Raw), nil
}

// EscapeKey escapes a member name for use as a gjson/sjson path component.
func EscapeKey(name string) string {
	var b strings.Builder
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == ':') {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Reader parses RFC 7951 JSON against a schema context.
type Reader struct {
	Context *schema.Context
	// WrapAugmentations groups the top-level members contributed by an
	// augmentation into *Augmentation nodes.
	WrapAugmentations bool
}

// ReadMembers parses a JSON object whose members are children of parent,
// or top-level nodes when parent is nil. A list member yields one ListEntry
// per array element.
func (r Reader) ReadMembers(parent *schema.Node, data []byte) ([]DataNode, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("datatree: invalid JSON")
	}
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return nil, errors.New("datatree: expected a JSON object")
	}
	return r.members(parent, res, r.WrapAugmentations)
}

// ReadRoot parses a JSON object of top-level members into a root container.
func (r Reader) ReadRoot(data []byte) (*Container, error) {
	children, err := Reader{Context: r.Context}.ReadMembers(nil, data)
	if err != nil {
		return nil, err
	}
	return &Container{Children: children}, nil
}

func (r Reader) members(parent *schema.Node, obj gjson.Result, wrap bool) ([]DataNode, error) {
	var (
		out    []DataNode
		err    error
		groups map[*schema.Augment]*Augmentation
	)
	obj.ForEach(func(k, v gjson.Result) bool {
		prefix, name := splitMember(k.String())
		var sn *schema.Node
		if parent == nil {
			sn, err = r.Context.ResolveTopLevel(prefix, name)
		} else {
			sn, err = r.Context.ResolveChild(parent, prefix, name)
		}
		if err != nil {
			return false
		}
		var nodes []DataNode
		if nodes, err = r.node(sn, v); err != nil {
			err = fmt.Errorf("%s: %w", k.String(), err)
			return false
		}
		if wrap && sn.Augment != nil {
			if groups == nil {
				groups = make(map[*schema.Augment]*Augmentation)
			}
			g, ok := groups[sn.Augment]
			if !ok {
				g = &Augmentation{Augment: sn.Augment}
				groups[sn.Augment] = g
				out = append(out, g)
			}
			g.Children = append(g.Children, nodes...)
			return true
		}
		out = append(out, nodes...)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r Reader) node(sn *schema.Node, v gjson.Result) ([]DataNode, error) {
	q := QName{Module: sn.Module.Name, Name: sn.Name}
	switch sn.Kind {
	case schema.KindContainer:
		if !v.IsObject() {
			return nil, errors.New("expected an object for container")
		}
		children, err := r.members(sn, v, false)
		if err != nil {
			return nil, err
		}
		return []DataNode{&Container{QName: q, Children: children}}, nil

	case schema.KindList:
		var elems []gjson.Result
		switch {
		case v.IsArray():
			elems = v.Array()
		case v.IsObject():
			elems = []gjson.Result{v}
		default:
			return nil, errors.New("expected an array for list")
		}
		out := make([]DataNode, 0, len(elems))
		for _, el := range elems {
			if !el.IsObject() {
				return nil, errors.New("expected an object for list entry")
			}
			children, err := r.members(sn, el, false)
			if err != nil {
				return nil, err
			}
			keys, err := entryKeys(sn, children)
			if err != nil {
				return nil, err
			}
			out = append(out, &ListEntry{QName: q, Keys: keys, Children: children})
		}
		return out, nil

	case schema.KindLeaf:
		val, err := r.scalar(sn, v)
		if err != nil {
			return nil, err
		}
		return []DataNode{&Leaf{QName: q, Value: val}}, nil

	case schema.KindLeafList:
		elems := []gjson.Result{v}
		if v.IsArray() {
			elems = v.Array()
		}
		ll := &LeafList{QName: q, Values: make([]any, 0, len(elems))}
		for _, el := range elems {
			val, err := r.scalar(sn, el)
			if err != nil {
				return nil, err
			}
			ll.Values = append(ll.Values, val)
		}
		return []DataNode{ll}, nil
	}
	return nil, fmt.Errorf("unsupported schema node kind %s", sn.Kind)
}

func entryKeys(list *schema.Node, children []DataNode) ([]KeyValue, error) {
	keys := make([]KeyValue, 0, len(list.Keys))
	for _, k := range list.Keys {
		leaf, ok := Find(children, Step(list.Module.Name, k)).(*Leaf)
		if !ok {
			return nil, fmt.Errorf("list entry without key %q", k)
		}
		keys = append(keys, KeyValue{Name: k, Value: leaf.Value})
	}
	return keys, nil
}

func (r Reader) scalar(sn *schema.Node, v gjson.Result) (any, error) {
	if sn.Type != nil && sn.Type.Base == schema.Leafref {
		target, err := r.Context.ResolveLeafref(sn)
		if err != nil {
			return nil, err
		}
		sn = target
	}
	t := sn.Type
	switch v.Type {
	case gjson.String:
		return ParseScalar(t, v.Str)
	case gjson.Number:
		if t.Base.IsSigned() || t.Base.IsUnsigned() || t.Base == schema.Decimal64 {
			return ParseScalar(t, v.Raw)
		}
	case gjson.True, gjson.False:
		if t.Base == schema.Boolean {
			return v.Bool(), nil
		}
	case gjson.JSON:
		if t.Base == schema.Empty && v.IsArray() {
			arr := v.Array()
			if len(arr) == 1 && arr[0].Type == gjson.Null {
				return Empty{}, nil
			}
		}
	}
	return nil, fmt.Errorf("value %s does not match type %s", v.Raw, t.Base)
}

func splitMember(s string) (prefix, name string) {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}
