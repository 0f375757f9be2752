// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package schema_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/netascode/go-gnmi-southbound/internal/testmodels"
	"github.com/netascode/go-gnmi-southbound/schema"
)

func TestResolveTopLevel(t *testing.T) {
	ctx := testmodels.Context(t)

	tests := []struct {
		description string
		prefix      string
		name        string
		wantModule  string
		wantErr     bool
		ambiguous   bool
	}{
		{description: "unique bare name", name: "interfaces", wantModule: "test-interfaces"},
		{description: "ambiguous bare name", name: "root-container", wantErr: true, ambiguous: true},
		{description: "module name prefix", prefix: "root-model-2", name: "root-container", wantModule: "root-model-2"},
		{description: "yang prefix", prefix: "rm1", name: "root-container", wantModule: "root-model-1"},
		{description: "unknown name", name: "nope", wantErr: true},
		{description: "unknown module", prefix: "nope", name: "interfaces", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			n, err := ctx.ResolveTopLevel(tt.prefix, tt.name)
			if tt.wantErr {
				var lerr *schema.LookupError
				if !errors.As(err, &lerr) {
					t.Fatalf("ResolveTopLevel() error = %v, want *LookupError", err)
				}
				if lerr.Ambiguous() != tt.ambiguous {
					t.Errorf("Ambiguous() = %v, want %v", lerr.Ambiguous(), tt.ambiguous)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveTopLevel() error = %v", err)
			}
			if n.Module.Name != tt.wantModule {
				t.Errorf("module = %s, want %s", n.Module.Name, tt.wantModule)
			}
		})
	}
}

func TestAugmentAttached(t *testing.T) {
	ctx := testmodels.Context(t)

	iface, err := ctx.ResolveTopLevel("", "interfaces")
	if err != nil {
		t.Fatal(err)
	}
	list, err := ctx.ResolveChild(iface, "", "interface")
	if err != nil {
		t.Fatal(err)
	}
	vlan, err := ctx.ResolveChild(list, "", "vlan")
	if err != nil {
		t.Fatalf("ResolveChild(vlan) error = %v", err)
	}
	if vlan.Module.Name != "test-vlan" {
		t.Errorf("vlan module = %s, want test-vlan", vlan.Module.Name)
	}
	if vlan.Augment == nil || vlan.Augment.TargetNode() != list {
		t.Errorf("vlan augment not attached to interface list")
	}
	if vlan.Parent != list {
		t.Errorf("vlan parent = %v, want interface list", vlan.Parent)
	}
	if got := vlan.Path(); got != "/tif:interfaces/tif:interface/tvlan:vlan" {
		t.Errorf("Path() = %s", got)
	}
}

func TestIdentityRefResolution(t *testing.T) {
	ctx := testmodels.Context(t)

	n, err := ctx.ResolveTopLevel("", "interfaces")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"interface", "config", "type"} {
		if n, err = ctx.ResolveChild(n, "", name); err != nil {
			t.Fatal(err)
		}
	}
	var names []string
	for _, id := range n.Type.Identities {
		names = append(names, id.Name)
	}
	want := map[string]bool{"IF_ETHERNET": true, "IF_LOOPBACK": true, "IF_AGGREGATE": true}
	if len(names) != len(want) {
		t.Fatalf("identities = %v, want %d entries", names, len(want))
	}
	for _, nm := range names {
		if !want[nm] {
			t.Errorf("unexpected identity %s", nm)
		}
	}
	id := n.Type.Identity("test-if-types:IF_LOOPBACK")
	if id == nil || id.Module.Name != "test-if-types" {
		t.Errorf("Identity(IF_LOOPBACK) = %v", id)
	}
	if n.Type.Identity("INTERFACE_TYPE") != nil {
		t.Errorf("base identity must not be part of the derived set")
	}
}

func TestResolveLeafref(t *testing.T) {
	ctx := testmodels.Context(t)

	n, _ := ctx.ResolveTopLevel("", "interfaces")
	list, _ := ctx.ResolveChild(n, "", "interface")
	key := list.KeyNode("name")
	if key == nil {
		t.Fatal("KeyNode(name) = nil")
	}
	target, err := ctx.ResolveLeafref(key)
	if err != nil {
		t.Fatalf("ResolveLeafref() error = %v", err)
	}
	if target.Type.Base != schema.String {
		t.Errorf("target type = %v, want string", target.Type.Base)
	}
	if target.Parent.Name != "config" {
		t.Errorf("target parent = %s, want config", target.Parent.Name)
	}
}

func TestNewContextErrors(t *testing.T) {
	tests := []struct {
		description string
		docs        []string
	}{
		{
			description: "duplicate module",
			docs:        []string{testmodels.RootModel1, testmodels.RootModel1},
		},
		{
			description: "augment of unknown target",
			docs:        []string{testmodels.Vlan},
		},
		{
			description: "identityref base missing",
			docs:        []string{testmodels.Interfaces},
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			var mods []*schema.Module
			for _, d := range tt.docs {
				m, err := schema.ParseModule([]byte(d))
				if err != nil {
					t.Fatal(err)
				}
				mods = append(mods, m)
			}
			if _, err := schema.NewContext(mods...); err == nil {
				t.Errorf("NewContext() error = nil, want error")
			}
		})
	}
}

func TestParseModuleErrors(t *testing.T) {
	tests := []struct {
		description string
		doc         string
	}{
		{description: "missing name", doc: "prefix: x\n"},
		{description: "unknown type", doc: "module: m\nnodes:\n  - leaf: a\n    type: float\n"},
		{description: "missing key leaf", doc: "module: m\nnodes:\n  - list: l\n    key: [id]\n    children:\n      - leaf: name\n        type: string\n"},
		{description: "decimal64 without fraction digits", doc: "module: m\nnodes:\n  - leaf: a\n    type: decimal64\n"},
		{description: "invalid yaml", doc: "module: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			if _, err := schema.ParseModule([]byte(tt.doc)); err == nil {
				t.Errorf("ParseModule() error = nil, want error")
			}
		})
	}
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"test-interfaces@2021-04-06.yaml": testmodels.Interfaces,
		"test-if-types.yml":               testmodels.IfTypes,
		"root-model-2@2023-02-01.yaml":    testmodels.RootModel2,
		"root-model-2@2024-01-01.yaml":    "module: root-model-2\nrevision: \"2024-01-01\"\nsemver: \"1.1.0\"\n",
		"broken.yaml":                     "module: [\n",
		"README.md":                       "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	src, err := schema.NewDirSource(dir)
	if err != nil {
		t.Fatalf("NewDirSource() error = %v", err)
	}

	tests := []struct {
		description string
		name        string
		version     string
		wantVersion string
		wantErr     error
		anyErr      bool
	}{
		{description: "semver match", name: "test-interfaces", version: "2.4.3", wantVersion: "2.4.3"},
		{description: "revision match", name: "test-interfaces", version: "2021-04-06", wantVersion: "2.4.3"},
		{description: "newest by semver", name: "root-model-2", wantVersion: "1.1.0"},
		{description: "explicit older", name: "root-model-2", version: "1.0.0", wantVersion: "1.0.0"},
		{description: "revision only module", name: "test-if-types", wantVersion: "2022-01-01"},
		{description: "version mismatch", name: "test-interfaces", version: "9.9.9", wantErr: schema.ErrModuleNotFound},
		{description: "unknown module", name: "nope", wantErr: schema.ErrModuleNotFound},
		{description: "unparsable model", name: "broken", anyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			m, err := src.Load(tt.name, tt.version)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Load() error = %v, want %v", err, tt.wantErr)
				}
				return
			case tt.anyErr:
				if err == nil || errors.Is(err, schema.ErrModuleNotFound) {
					t.Fatalf("Load() error = %v, want parse error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if m.Version() != tt.wantVersion {
				t.Errorf("Version() = %s, want %s", m.Version(), tt.wantVersion)
			}
		})
	}

	names, err := src.Names()
	if err != nil {
		t.Fatalf("Names() error = %v", err)
	}
	if got := strings.Join(names, ","); got != "broken,root-model-2,test-if-types,test-interfaces" {
		t.Errorf("Names() = %s", got)
	}
}

func TestLoadAllFollowsImports(t *testing.T) {
	src := testmodels.Source(t)

	mods, err := schema.LoadAll(src, map[string]string{"test-vlan": ""})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	var names []string
	for _, m := range mods {
		names = append(names, m.Name)
	}
	want := []string{"test-if-types", "test-interfaces", "test-vlan"}
	if len(names) != len(want) {
		t.Fatalf("modules = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("modules[%d] = %s, want %s", i, names[i], want[i])
		}
	}

	_, err = schema.LoadAll(src, map[string]string{"a": "", "b": "1.0.0"})
	var merr *schema.MissingModulesError
	if !errors.As(err, &merr) {
		t.Fatalf("LoadAll() error = %v, want *MissingModulesError", err)
	}
	if len(merr.Modules) != 2 {
		t.Errorf("missing = %v, want 2 entries", merr.Modules)
	}
}
