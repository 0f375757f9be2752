// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package datatree_test

import (
	"testing"

	"github.com/netascode/go-gnmi-southbound/datatree"
	"github.com/netascode/go-gnmi-southbound/internal/testmodels"
	"github.com/tidwall/gjson"
)

const (
	tif   = "test-interfaces"
	tvlan = "test-vlan"
	tift  = "test-if-types"
)

func sampleInterface() *datatree.ListEntry {
	return &datatree.ListEntry{
		QName: datatree.QName{Module: tif, Name: "interface"},
		Keys:  []datatree.KeyValue{{Name: "name", Value: "eth0"}},
		Children: []datatree.DataNode{
			&datatree.Leaf{QName: datatree.QName{Module: tif, Name: "name"}, Value: "eth0"},
			&datatree.Container{
				QName: datatree.QName{Module: tif, Name: "config"},
				Children: []datatree.DataNode{
					&datatree.Leaf{QName: datatree.QName{Module: tif, Name: "name"}, Value: "eth0"},
					&datatree.Leaf{QName: datatree.QName{Module: tif, Name: "mtu"}, Value: uint64(1500)},
					&datatree.Leaf{QName: datatree.QName{Module: tif, Name: "enabled"}, Value: true},
					&datatree.Leaf{QName: datatree.QName{Module: tif, Name: "type"}, Value: datatree.IdentityRef{Module: tift, Name: "IF_ETHERNET"}},
					&datatree.Leaf{QName: datatree.QName{Module: tif, Name: "loopback-mode"}, Value: datatree.Empty{}},
					&datatree.LeafList{QName: datatree.QName{Module: tif, Name: "tags"}, Values: []any{"a", "b"}},
				},
			},
			&datatree.Container{
				QName: datatree.QName{Module: tvlan, Name: "vlan"},
				Children: []datatree.DataNode{
					&datatree.Leaf{QName: datatree.QName{Module: tvlan, Name: "vlan-id"}, Value: uint64(10)},
				},
			},
		},
	}
}

func TestMarshalMember(t *testing.T) {
	entry := sampleInterface()

	raw, err := datatree.MarshalMember(entry, true)
	if err != nil {
		t.Fatalf("MarshalMember() error = %v", err)
	}
	doc := gjson.ParseBytes(raw)

	checks := []struct {
		path string
		want string
	}{
		{path: `test-interfaces:interface.#`, want: "1"},
		{path: `test-interfaces:interface.0.name`, want: "eth0"},
		{path: `test-interfaces:interface.0.config.mtu`, want: "1500"},
		{path: `test-interfaces:interface.0.config.enabled`, want: "true"},
		{path: `test-interfaces:interface.0.config.type`, want: "test-if-types:IF_ETHERNET"},
		{path: `test-interfaces:interface.0.config.loopback-mode`, want: "[null]"},
		{path: `test-interfaces:interface.0.config.tags.1`, want: "b"},
		{path: `test-interfaces:interface.0.test-vlan:vlan.vlan-id`, want: "10"},
	}
	for _, c := range checks {
		if got := doc.Get(c.path).String(); got != c.want {
			t.Errorf("%s = %q, want %q (doc %s)", c.path, got, c.want, raw)
		}
	}

	bare, err := datatree.MarshalMember(entry, false)
	if err != nil {
		t.Fatal(err)
	}
	if !gjson.GetBytes(bare, "interface").IsArray() {
		t.Errorf("unqualified member missing: %s", bare)
	}
}

func TestReadMembersRoundTrip(t *testing.T) {
	ctx := testmodels.Context(t)
	entry := sampleInterface()
	root := &datatree.Container{
		Children: []datatree.DataNode{
			&datatree.Container{
				QName:    datatree.QName{Module: tif, Name: "interfaces"},
				Children: []datatree.DataNode{entry},
			},
		},
	}

	raw, err := datatree.MarshalValue(root)
	if err != nil {
		t.Fatalf("MarshalValue() error = %v", err)
	}
	got, err := datatree.Reader{Context: ctx}.ReadRoot(raw)
	if err != nil {
		t.Fatalf("ReadRoot() error = %v (doc %s)", err, raw)
	}
	if !datatree.Equal(root, got) {
		t.Errorf("round trip mismatch\n doc: %s", raw)
	}
}

func TestReadMembersWrapsAugmentations(t *testing.T) {
	ctx := testmodels.Context(t)
	ifaces, _ := ctx.ResolveTopLevel("", "interfaces")
	list, _ := ctx.ResolveChild(ifaces, "", "interface")

	doc := []byte(`{"test-vlan:vlan":{"vlan-id":20,"trunk":[1,2]}}`)

	nodes, err := datatree.Reader{Context: ctx, WrapAugmentations: true}.ReadMembers(list, doc)
	if err != nil {
		t.Fatalf("ReadMembers() error = %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("got %d nodes, want 1", len(nodes))
	}
	aug, ok := nodes[0].(*datatree.Augmentation)
	if !ok {
		t.Fatalf("node = %T, want *Augmentation", nodes[0])
	}
	if aug.NodeName().Module != tvlan || len(aug.Children) != 1 {
		t.Errorf("augmentation = %+v", aug)
	}

	plain, err := datatree.Reader{Context: ctx}.ReadMembers(list, doc)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := plain[0].(*datatree.Container); !ok {
		t.Errorf("unwrapped read returned %T", plain[0])
	}
}

func TestReadMembersErrors(t *testing.T) {
	ctx := testmodels.Context(t)

	tests := []struct {
		description string
		doc         string
	}{
		{description: "invalid json", doc: `{"interfaces":`},
		{description: "not an object", doc: `[1]`},
		{description: "ambiguous top level", doc: `{"root-container":{}}`},
		{description: "unknown member", doc: `{"interfaces":{"nope":1}}`},
		{description: "container as scalar", doc: `{"interfaces":1}`},
		{description: "entry without key", doc: `{"interfaces":{"interface":[{"config":{}}]}}`},
		{description: "wrong scalar type", doc: `{"interfaces":{"interface":[{"name":"e","config":{"mtu":"big"}}]}}`},
		{description: "bool as number", doc: `{"interfaces":{"interface":[{"name":"e","config":{"enabled":1}}]}}`},
		{description: "uint16 overflow", doc: `{"interfaces":{"interface":[{"name":"e","config":{"mtu":70000}}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			if _, err := (datatree.Reader{Context: ctx}).ReadRoot([]byte(tt.doc)); err == nil {
				t.Errorf("ReadRoot() error = nil, want error")
			}
		})
	}
}

func TestReadNumbersAsStrings(t *testing.T) {
	ctx := testmodels.Context(t)

	doc := []byte(`{"interfaces":{"interface":[{"name":"e","state":{"counter":"18446744073709551615","load":"0.75","offset":"-3"}}]}}`)
	root, err := datatree.Reader{Context: ctx}.ReadRoot(doc)
	if err != nil {
		t.Fatalf("ReadRoot() error = %v", err)
	}
	id := datatree.NodeIdentifier{
		datatree.Step(tif, "interfaces"),
		datatree.Step(tif, "interface"),
		datatree.KeyedStep(tif, "interface", datatree.KeyValue{Name: "name", Value: "e"}),
		datatree.Step(tif, "state"),
	}
	var cur datatree.DataNode = root
	for _, s := range id {
		if s.Kind == datatree.StepNode && s.Name == "interface" {
			continue
		}
		cur = datatree.Find(datatree.Children(cur), s)
		if cur == nil {
			t.Fatalf("step %s not found", s)
		}
	}
	want := map[string]any{
		"counter": uint64(18446744073709551615),
		"load":    datatree.Decimal64{Digits: 75, FractionDigits: 2},
		"offset":  int64(-3),
	}
	for name, v := range want {
		leaf, ok := datatree.Find(datatree.Children(cur), datatree.Step(tif, name)).(*datatree.Leaf)
		if !ok {
			t.Fatalf("leaf %s missing", name)
		}
		if leaf.Value != v {
			t.Errorf("%s = %#v, want %#v", name, leaf.Value, v)
		}
	}
}
