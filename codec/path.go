// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package codec

import (
	"fmt"
	"strings"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/openconfig/ygot/ygot"

	"github.com/netascode/go-gnmi-southbound/datatree"
	"github.com/netascode/go-gnmi-southbound/schema"
)

// PathCodec converts between node identifiers and gNMI paths.
type PathCodec struct {
	// PrefixFirstElement qualifies the first path element with its module
	// name (module:name).
	PrefixFirstElement bool
}

// IdentifierToPath converts id into a gNMI path. A list step and the keyed
// step after it become one element carrying the keys. A leaf-list value step
// becomes an element named after the value.
func (c PathCodec) IdentifierToPath(id datatree.NodeIdentifier) (*gnmipb.Path, error) {
	p := &gnmipb.Path{}
	for i, s := range id {
		switch s.Kind {
		case datatree.StepNode:
			p.Elem = append(p.Elem, &gnmipb.PathElem{Name: s.Name})
		case datatree.StepKeyed:
			var elem *gnmipb.PathElem
			if i > 0 && id[i-1].Kind == datatree.StepNode && id[i-1].QName == s.QName {
				elem = p.Elem[len(p.Elem)-1]
			} else {
				elem = &gnmipb.PathElem{Name: s.Name}
				p.Elem = append(p.Elem, elem)
			}
			if elem.Key != nil {
				return nil, errorf("encode path", id.String(), "list %s keyed twice", s.Name)
			}
			elem.Key = make(map[string]string, len(s.Keys))
			for _, k := range s.Keys {
				elem.Key[k.Name] = datatree.FormatScalar(k.Value)
			}
		case datatree.StepValue:
			p.Elem = append(p.Elem, &gnmipb.PathElem{Name: datatree.FormatScalar(s.Value)})
		default:
			return nil, errorf("encode path", id.String(), "unknown step kind %d", s.Kind)
		}
	}
	if c.PrefixFirstElement && len(p.Elem) > 0 && id[0].Module != "" {
		p.Elem[0].Name = id[0].Module + ":" + p.Elem[0].Name
	}
	return p, nil
}

// PathToIdentifier resolves a gNMI path against ctx. The first element is
// searched across all modules unless it carries a module name or prefix,
// or the path origin names a module. Keyed elements are split into a list
// step and a keyed step with typed key values. A nil or empty path is the
// root.
func (c PathCodec) PathToIdentifier(p *gnmipb.Path, ctx *schema.Context) (datatree.NodeIdentifier, error) {
	elems := p.GetElem()
	id := make(datatree.NodeIdentifier, 0, len(elems)+1)
	var (
		cur      *schema.Node
		leafList *schema.Node
	)
	for i, e := range elems {
		if leafList != nil {
			if i != len(elems)-1 {
				return nil, errorf("decode path", PathString(p), "leaf-list value %q must be the last element", e.GetName())
			}
			v, err := datatree.ParseValue(ctx, leafList, e.GetName())
			if err != nil {
				return nil, &Error{Op: "decode path", Path: PathString(p), Err: err}
			}
			id = append(id, datatree.ValueStep(leafList.Module.Name, leafList.Name, v))
			break
		}

		prefix, name := splitElem(e.GetName())
		var (
			n   *schema.Node
			err error
		)
		if i == 0 {
			if prefix == "" && p.GetOrigin() != "" && ctx.Module(p.GetOrigin()) != nil {
				prefix = p.GetOrigin()
			}
			n, err = ctx.ResolveTopLevel(prefix, name)
		} else {
			n, err = ctx.ResolveChild(cur, prefix, name)
		}
		if err != nil {
			return nil, err
		}

		id = append(id, datatree.Step(n.Module.Name, n.Name))
		switch n.Kind {
		case schema.KindList:
			if len(e.GetKey()) > 0 {
				keys, err := coerceKeys(ctx, n, e.GetKey())
				if err != nil {
					return nil, &Error{Op: "decode path", Path: PathString(p), Err: err}
				}
				id = append(id, datatree.KeyedStep(n.Module.Name, n.Name, keys...))
			}
		case schema.KindLeafList:
			leafList = n
		default:
			if len(e.GetKey()) > 0 {
				return nil, errorf("decode path", PathString(p), "%s %s cannot have keys", n.Kind, n.Name)
			}
		}
		cur = n
	}
	return id, nil
}

func coerceKeys(ctx *schema.Context, list *schema.Node, raw map[string]string) ([]datatree.KeyValue, error) {
	if len(raw) != len(list.Keys) {
		return nil, fmt.Errorf("list %s expects keys %v, got %d", list.Name, list.Keys, len(raw))
	}
	keys := make([]datatree.KeyValue, 0, len(list.Keys))
	for _, k := range list.Keys {
		s, ok := raw[k]
		if !ok {
			return nil, fmt.Errorf("list %s: missing key %q", list.Name, k)
		}
		v, err := CoerceKey(ctx, list, k, s)
		if err != nil {
			return nil, err
		}
		keys = append(keys, datatree.KeyValue{Name: k, Value: v})
	}
	return keys, nil
}

// CoerceKey converts the string form of key of list into its typed value.
// Leafref keys are followed through the schema to their target type.
func CoerceKey(ctx *schema.Context, list *schema.Node, key, raw string) (any, error) {
	kn := list.KeyNode(key)
	if kn == nil {
		return nil, fmt.Errorf("list %s has no key %q", list.Name, key)
	}
	v, err := datatree.ParseValue(ctx, kn, raw)
	if err != nil {
		return nil, fmt.Errorf("key %s of list %s: %w", key, list.Name, err)
	}
	return v, nil
}

func splitElem(s string) (prefix, name string) {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}

// ParsePath parses a gNMI path string such as
// /interfaces/interface[name=eth0]/config.
func ParsePath(s string) (*gnmipb.Path, error) {
	if s == "" || s == "/" {
		return &gnmipb.Path{}, nil
	}
	p, err := ygot.StringToStructuredPath(s)
	if err != nil {
		return nil, &Error{Op: "parse path", Path: s, Err: err}
	}
	return p, nil
}

// PathString renders p for logs and error messages.
func PathString(p *gnmipb.Path) string {
	if len(p.GetElem()) == 0 {
		return "/"
	}
	s, err := ygot.PathToString(p)
	if err != nil {
		return fmt.Sprintf("%v", p.GetElem())
	}
	return s
}

// JoinPaths prepends the elements of prefix to p. Origin and target come
// from p when set, from prefix otherwise.
func JoinPaths(prefix, p *gnmipb.Path) *gnmipb.Path {
	if len(prefix.GetElem()) == 0 && prefix.GetOrigin() == "" && prefix.GetTarget() == "" {
		return p
	}
	out := &gnmipb.Path{
		Origin: p.GetOrigin(),
		Target: p.GetTarget(),
		Elem:   make([]*gnmipb.PathElem, 0, len(prefix.GetElem())+len(p.GetElem())),
	}
	if out.Origin == "" {
		out.Origin = prefix.GetOrigin()
	}
	if out.Target == "" {
		out.Target = prefix.GetTarget()
	}
	out.Elem = append(out.Elem, prefix.GetElem()...)
	out.Elem = append(out.Elem, p.GetElem()...)
	return out
}
