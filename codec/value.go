// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package codec

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/netascode/go-gnmi-southbound/datatree"
	"github.com/netascode/go-gnmi-southbound/schema"
)

// ValueCodec converts between data nodes and gNMI typed values.
type ValueCodec struct {
	// PrefixModuleNames qualifies the top-level JSON member with its module
	// name before structured values are unwrapped.
	PrefixModuleNames bool
}

// Encode converts node, addressed by id, into a typed value.
//
// A list entry is sent as {"<list>":[entry]}. A container is sent as its
// body, one level below the wrapping member. A leaf is sent as a scalar
// value and a leaf-list in its full {"<name>":[...]} form. The root
// (empty id) is sent as an object of module-qualified top-level members.
func (c ValueCodec) Encode(id datatree.NodeIdentifier, node datatree.DataNode, ctx *schema.Context) (*gnmipb.TypedValue, error) {
	if len(id) == 0 {
		root, ok := node.(*datatree.Container)
		if !ok {
			return nil, errorf("encode", "/", "root must be a container, got %T", node)
		}
		raw, err := datatree.MarshalValue(root)
		if err != nil {
			return nil, &Error{Op: "encode", Path: "/", Err: err}
		}
		return jsonIETF(raw), nil
	}

	if err := checkNode(id, node, ctx); err != nil {
		return nil, err
	}
	if l, ok := node.(*datatree.Leaf); ok {
		if d, ok := l.Value.(datatree.Decimal64); ok && !exactAsDouble(d) {
			return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_StringVal{StringVal: d.String()}}, nil
		}
	}

	raw, err := datatree.MarshalMember(node, c.PrefixModuleNames)
	if err != nil {
		return nil, &Error{Op: "encode", Path: id.String(), Err: err}
	}
	switch node.(type) {
	case *datatree.ListEntry, *datatree.LeafList:
		return jsonIETF(raw), nil
	case *datatree.Container:
		inner, err := unwrapObject(raw)
		if err != nil {
			return nil, &Error{Op: "encode", Path: id.String(), Err: err}
		}
		return jsonIETF(inner), nil
	case *datatree.Leaf:
		return leafValue(raw)
	}
	return nil, errorf("encode", id.String(), "unsupported node %T", node)
}

// checkNode verifies that node is the kind of node the schema defines at
// id and that it is the node named by the last step of id.
func checkNode(id datatree.NodeIdentifier, node datatree.DataNode, ctx *schema.Context) error {
	sn, err := datatree.SchemaNode(ctx, id)
	if err != nil {
		return &Error{Op: "encode", Path: id.String(), Err: err}
	}
	last, _ := id.Last()
	var ok bool
	switch node.(type) {
	case *datatree.Container:
		ok = sn.Kind == schema.KindContainer
	case *datatree.ListEntry:
		ok = sn.Kind == schema.KindList && last.Kind == datatree.StepKeyed
	case *datatree.Leaf:
		ok = sn.Kind == schema.KindLeaf
	case *datatree.LeafList:
		ok = sn.Kind == schema.KindLeafList
	}
	if !ok {
		return errorf("encode", id.String(), "%T does not match %s %s", node, sn.Kind, sn.Name)
	}
	if last.Kind == datatree.StepValue {
		last.Kind = datatree.StepNode
	}
	if !datatree.Matches(node, last) {
		return errorf("encode", id.String(), "node %s does not match %s", node.NodeName(), last)
	}
	return nil
}

// maxExactDigits bounds the decimal64 digits that survive a trip through
// a float64 unchanged (15 significant decimal digits).
const maxExactDigits = 999_999_999_999_999

// exactAsDouble reports whether d can be sent as double_val. Larger values
// are sent as their decimal string.
func exactAsDouble(d datatree.Decimal64) bool {
	return d.Digits >= -maxExactDigits && d.Digits <= maxExactDigits
}

// unwrapObject returns the value of the single member of obj. An object
// without members passes through unchanged.
func unwrapObject(obj []byte) ([]byte, error) {
	res := gjson.ParseBytes(obj)
	var (
		count int
		inner string
	)
	res.ForEach(func(_, v gjson.Result) bool {
		count++
		inner = v.Raw
		return true
	})
	switch count {
	case 0:
		return obj, nil
	case 1:
		return []byte(inner), nil
	}
	return nil, errorf("unwrap", "", "object has %d members, expected one", count)
}

func leafValue(member []byte) (*gnmipb.TypedValue, error) {
	var v gjson.Result
	gjson.ParseBytes(member).ForEach(func(_, val gjson.Result) bool {
		v = val
		return false
	})
	switch v.Type {
	case gjson.String:
		return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_StringVal{StringVal: v.Str}}, nil
	case gjson.True, gjson.False:
		return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_BoolVal{BoolVal: v.Bool()}}, nil
	case gjson.Number:
		return numberValue(v), nil
	}
	// empty leaves have no scalar form
	return jsonIETF(member), nil
}

// numberValue classifies a JSON number: integral values become int_val,
// or uint_val beyond the int64 range, anything else double_val. A double
// keeps about 15 significant digits; Encode sends longer decimal64 values
// as strings before they get here.
func numberValue(v gjson.Result) *gnmipb.TypedValue {
	if i, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
		return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_IntVal{IntVal: i}}
	}
	if u, err := strconv.ParseUint(v.Raw, 10, 64); err == nil {
		return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_UintVal{UintVal: u}}
	}
	f := v.Float()
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_IntVal{IntVal: int64(f)}}
	}
	return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_DoubleVal{DoubleVal: f}}
}

func jsonIETF(raw []byte) *gnmipb.TypedValue {
	return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_JsonIetfVal{JsonIetfVal: raw}}
}

// Decode converts a typed value received for id into a data node.
//
// Scalars are wrapped as {"<name>": value}. JSON values are normalized
// against the last step of id (see Normalize) and parsed against the
// schema. An augmentation result is unwrapped to the node named by id.
func (c ValueCodec) Decode(id datatree.NodeIdentifier, val *gnmipb.TypedValue, ctx *schema.Context) (datatree.DataNode, error) {
	raw, isJSON, err := valueJSON(val)
	if err != nil {
		return nil, &Error{Op: "decode", Path: id.String(), Err: err}
	}
	if len(id) == 0 {
		if !isJSON {
			return nil, errorf("decode", "/", "root value must be JSON")
		}
		root, err := datatree.Reader{Context: ctx}.ReadRoot(raw)
		if err != nil {
			return nil, &Error{Op: "decode", Path: "/", Err: err}
		}
		return root, nil
	}

	last, _ := id.Last()
	var doc []byte
	if isJSON {
		doc, err = Normalize(id, raw)
	} else {
		doc, err = wrap(last, raw, false)
	}
	if err != nil {
		return nil, &Error{Op: "decode", Path: id.String(), Err: err}
	}

	var parent *schema.Node
	if pid := id.Parent(); len(pid) > 0 {
		if parent, err = datatree.SchemaNode(ctx, pid); err != nil {
			return nil, err
		}
	}
	nodes, err := datatree.Reader{Context: ctx, WrapAugmentations: true}.ReadMembers(parent, doc)
	if err != nil {
		return nil, &Error{Op: "decode", Path: id.String(), Err: err}
	}
	n, err := pick(id, nodes)
	if err != nil {
		return nil, &Error{Op: "decode", Path: id.String(), Err: err}
	}
	return n, nil
}

// pick selects the node addressed by the last step of id among the parsed
// top-level nodes, unwrapping augmentations.
func pick(id datatree.NodeIdentifier, nodes []datatree.DataNode) (datatree.DataNode, error) {
	last, _ := id.Last()
	if last.Kind == datatree.StepValue {
		last.Kind = datatree.StepNode
	}
	for _, n := range nodes {
		if aug, ok := n.(*datatree.Augmentation); ok {
			child, err := unwrapAugmentation(aug, last)
			if err != nil {
				return nil, err
			}
			n = child
		}
		if datatree.Matches(n, last) {
			return n, nil
		}
	}
	return nil, errorf("decode", id.String(), "value does not contain %s", last)
}

// unwrapAugmentation returns the augmentation's only child when the
// augmentation defines exactly one, else the child matching step.
func unwrapAugmentation(aug *datatree.Augmentation, step datatree.PathStep) (datatree.DataNode, error) {
	if aug.Augment != nil && len(aug.Augment.Children) == 1 && len(aug.Children) == 1 {
		return aug.Children[0], nil
	}
	for _, c := range aug.Children {
		if datatree.Matches(c, step) {
			return c, nil
		}
	}
	return nil, errorf("unwrap", "", "augmentation from %s has no child %s", aug.NodeName().Module, step.QName)
}

// valueJSON returns the JSON text of val and whether val was a JSON value.
func valueJSON(val *gnmipb.TypedValue) ([]byte, bool, error) {
	switch v := val.GetValue().(type) {
	case *gnmipb.TypedValue_JsonIetfVal:
		return v.JsonIetfVal, true, nil
	case *gnmipb.TypedValue_JsonVal:
		return v.JsonVal, true, nil
	case *gnmipb.TypedValue_StringVal:
		s, err := sjson.Set(`{}`, "v", v.StringVal)
		return []byte(gjson.Get(s, "v").Raw), false, err
	case *gnmipb.TypedValue_AsciiVal:
		s, err := sjson.Set(`{}`, "v", v.AsciiVal)
		return []byte(gjson.Get(s, "v").Raw), false, err
	case *gnmipb.TypedValue_IntVal:
		return []byte(strconv.FormatInt(v.IntVal, 10)), false, nil
	case *gnmipb.TypedValue_UintVal:
		return []byte(strconv.FormatUint(v.UintVal, 10)), false, nil
	case *gnmipb.TypedValue_BoolVal:
		return []byte(strconv.FormatBool(v.BoolVal)), false, nil
	case *gnmipb.TypedValue_DoubleVal:
		return []byte(strconv.FormatFloat(v.DoubleVal, 'f', -1, 64)), false, nil
	case *gnmipb.TypedValue_FloatVal: //nolint:staticcheck
		return []byte(strconv.FormatFloat(float64(v.FloatVal), 'f', -1, 32)), false, nil
	case *gnmipb.TypedValue_DecimalVal: //nolint:staticcheck
		d := datatree.Decimal64{Digits: v.DecimalVal.GetDigits(), FractionDigits: uint8(v.DecimalVal.GetPrecision())}
		return []byte(d.String()), false, nil
	case *gnmipb.TypedValue_LeaflistVal:
		arr := "[]"
		for _, el := range v.LeaflistVal.GetElement() {
			raw, _, err := valueJSON(el)
			if err != nil {
				return nil, false, err
			}
			if arr, err = sjson.SetRaw(arr, "-1", string(raw)); err != nil {
				return nil, false, err
			}
		}
		return []byte(arr), false, nil
	case nil:
		return nil, false, errors.New("empty typed value")
	}
	return nil, false, fmt.Errorf("unsupported typed value %T", val.GetValue())
}

// Normalize returns a JSON object rooted at the member named by the last
// step of id:
//
//   - an object whose single member is the addressed node is returned as is;
//   - an object rooted one level higher, at the parent, is descended into;
//   - anything else is wrapped under the addressed member, as a one-element
//     array when id ends in a keyed step.
//
// Module prefixes are ignored when comparing member names.
func Normalize(id datatree.NodeIdentifier, raw []byte) ([]byte, error) {
	last, ok := id.Last()
	if !ok {
		return raw, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, errorf("normalize", id.String(), "invalid JSON")
	}
	res := gjson.ParseBytes(raw)
	if !res.IsObject() {
		return wrap(last, raw, last.Kind == datatree.StepKeyed && !res.IsArray())
	}

	keys := members(res)
	if len(keys) == 1 {
		_, name := splitElem(keys[0])
		if name == last.Name {
			return raw, nil
		}
		if parent := id.Parent(); len(parent) > 0 {
			pl, _ := parent.Last()
			if name == pl.Name {
				inner := res.Get(datatree.EscapeKey(keys[0]))
				if inner.IsArray() && len(inner.Array()) == 1 {
					inner = inner.Array()[0]
				}
				if inner.IsObject() {
					for _, k := range members(inner) {
						if _, n := splitElem(k); n == last.Name {
							return sjson.SetRawBytes([]byte(`{}`), datatree.EscapeKey(k), []byte(inner.Get(datatree.EscapeKey(k)).Raw))
						}
					}
				}
			}
		}
	}
	return wrap(last, raw, last.Kind == datatree.StepKeyed)
}

func members(obj gjson.Result) []string {
	var keys []string
	obj.ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	return keys
}

// wrap places raw under the module-qualified member of step.
func wrap(step datatree.PathStep, raw []byte, asArray bool) ([]byte, error) {
	value := raw
	if asArray {
		value = make([]byte, 0, len(raw)+2)
		value = append(value, '[')
		value = append(value, raw...)
		value = append(value, ']')
	}
	return sjson.SetRawBytes([]byte(`{}`), datatree.EscapeKey(step.QName.String()), value)
}

// EncodeEntries encodes the entries of the list addressed by id, which ends
// in a plain list step, as {"<list>":[entry, ...]}.
func (c ValueCodec) EncodeEntries(id datatree.NodeIdentifier, entries []*datatree.ListEntry) (*gnmipb.TypedValue, error) {
	last, ok := id.Last()
	if !ok || last.Kind != datatree.StepNode {
		return nil, errorf("encode", id.String(), "identifier does not end in a list")
	}
	arr := "[]"
	for _, e := range entries {
		raw, err := datatree.MarshalMember(e, c.PrefixModuleNames)
		if err != nil {
			return nil, &Error{Op: "encode", Path: id.String(), Err: err}
		}
		var entry gjson.Result
		gjson.ParseBytes(raw).ForEach(func(_, v gjson.Result) bool {
			entry = v.Get("0")
			return false
		})
		if arr, err = sjson.SetRaw(arr, "-1", entry.Raw); err != nil {
			return nil, &Error{Op: "encode", Path: id.String(), Err: err}
		}
	}
	name := last.Name
	if c.PrefixModuleNames {
		name = last.QName.String()
	}
	doc, err := sjson.SetRawBytes([]byte(`{}`), datatree.EscapeKey(name), []byte(arr))
	if err != nil {
		return nil, &Error{Op: "encode", Path: id.String(), Err: err}
	}
	return jsonIETF(doc), nil
}

// DecodeEntries decodes a JSON value addressed at a whole list into its
// entries. The value may be rooted at the list, be a bare array of entries
// or a single entry object.
func (c ValueCodec) DecodeEntries(id datatree.NodeIdentifier, val *gnmipb.TypedValue, ctx *schema.Context) ([]*datatree.ListEntry, error) {
	last, ok := id.Last()
	if !ok || last.Kind != datatree.StepNode {
		return nil, errorf("decode", id.String(), "identifier does not end in a list")
	}
	raw, isJSON, err := valueJSON(val)
	if err != nil {
		return nil, &Error{Op: "decode", Path: id.String(), Err: err}
	}
	if !isJSON {
		return nil, errorf("decode", id.String(), "list value must be JSON")
	}
	if res := gjson.ParseBytes(raw); res.IsObject() && !hasMember(res, last.Name) {
		pl, _ := id.Parent().Last()
		if pl.Name == "" || !hasMember(res, pl.Name) {
			raw = append(append([]byte{'['}, raw...), ']')
		}
	}
	doc, err := Normalize(id, raw)
	if err != nil {
		return nil, err
	}

	var parent *schema.Node
	if pid := id.Parent(); len(pid) > 0 {
		if parent, err = datatree.SchemaNode(ctx, pid); err != nil {
			return nil, err
		}
	}
	nodes, err := datatree.Reader{Context: ctx}.ReadMembers(parent, doc)
	if err != nil {
		return nil, &Error{Op: "decode", Path: id.String(), Err: err}
	}
	var out []*datatree.ListEntry
	for _, n := range nodes {
		if e, ok := n.(*datatree.ListEntry); ok && datatree.Matches(e, last) {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, errorf("decode", id.String(), "value contains no %s entries", last.Name)
	}
	return out, nil
}

func hasMember(obj gjson.Result, name string) bool {
	for _, k := range members(obj) {
		if _, n := splitElem(k); n == name {
			return true
		}
	}
	return false
}
