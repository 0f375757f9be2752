// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package crud_test

import (
	"context"
	"errors"
	"sort"
	"testing"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/tidwall/gjson"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/netascode/go-gnmi-southbound/codec"
	"github.com/netascode/go-gnmi-southbound/crud"
	"github.com/netascode/go-gnmi-southbound/datatree"
	"github.com/netascode/go-gnmi-southbound/internal/testmodels"
)

func newService(t *testing.T) (*crud.Service, *crud.MemoryStore) {
	t.Helper()
	store := crud.NewMemoryStore()
	return crud.NewService(testmodels.Context(t), store), store
}

func mustPath(t *testing.T, s string) *gnmipb.Path {
	t.Helper()
	p, err := codec.ParsePath(s)
	if err != nil {
		t.Fatalf("ParsePath(%q) error = %v", s, err)
	}
	return p
}

func jsonVal(s string) *gnmipb.TypedValue {
	return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_JsonIetfVal{JsonIetfVal: []byte(s)}}
}

func uintVal(v uint64) *gnmipb.TypedValue {
	return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_UintVal{UintVal: v}}
}

func upd(t *testing.T, path string, val *gnmipb.TypedValue) *gnmipb.Update {
	return &gnmipb.Update{Path: mustPath(t, path), Val: val}
}

func getOne(t *testing.T, svc *crud.Service, path string) (*gnmipb.TypedValue, bool) {
	t.Helper()
	updates, err := svc.Get(context.Background(), []*gnmipb.Path{mustPath(t, path)}, datatree.Config)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", path, err)
	}
	if len(updates) == 0 {
		return nil, false
	}
	return updates[0].GetVal(), true
}

func TestService_SetGetConsistency(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	const path = "/interfaces/interface[name=updated-config]/config"
	payload := `{"config":{"enabled":false,"name":"updated-config","type":"IF_LOOPBACK","mtu":1400}}`

	results, err := svc.Set(ctx, []*gnmipb.Update{upd(t, path, jsonVal(payload))}, nil, nil)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if len(results) != 1 || results[0].Err != nil || results[0].Op != gnmipb.UpdateResult_REPLACE {
		t.Fatalf("results = %+v", results)
	}

	val, ok := getOne(t, svc, path)
	if !ok {
		t.Fatalf("Get() returned no data")
	}
	raw := val.GetJsonIetfVal()
	want := map[string]string{
		"enabled": "false",
		"name":    "updated-config",
		"type":    "test-if-types:IF_LOOPBACK",
		"mtu":     "1400",
	}
	for k, v := range want {
		if got := gjson.GetBytes(raw, k).String(); got != v {
			t.Errorf("%s = %q, want %q (%s)", k, got, v, raw)
		}
	}
	if gjson.GetBytes(raw, "config").Exists() {
		t.Errorf("container returned with its wrapper: %s", raw)
	}

	// The returned body decodes back to what was written.
	id := ifaceID("updated-config", datatree.Step(tif, "config"))
	sc := svc.Schema()
	got, err := codec.ValueCodec{}.Decode(id, val, sc)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	sent, err := codec.ValueCodec{}.Decode(id, jsonVal(payload), sc)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !datatree.Equal(got, sent) {
		t.Errorf("read back %#v, wrote %#v", got, sent)
	}
}

func interfaceNames(t *testing.T, svc *crud.Service) []string {
	t.Helper()
	val, ok := getOne(t, svc, "/interfaces")
	if !ok {
		return nil
	}
	var names []string
	for _, n := range gjson.GetBytes(val.GetJsonIetfVal(), "interface.#.name").Array() {
		names = append(names, n.String())
	}
	sort.Strings(names)
	return names
}

func TestService_ListReplaceVersusUpdate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	const list = "/interfaces/interface"

	if _, err := svc.Set(ctx, []*gnmipb.Update{upd(t, list, jsonVal(`[{"name":"INTERFACE_10"}]`))}, nil, nil); err != nil {
		t.Fatalf("Set(replace) error = %v", err)
	}
	results, err := svc.Set(ctx, nil, []*gnmipb.Update{upd(t, list, jsonVal(`[{"name":"INTERFACE_20"}]`))}, nil)
	if err != nil || results[0].Err != nil {
		t.Fatalf("Set(update) = %+v, %v", results, err)
	}
	if got := interfaceNames(t, svc); len(got) != 2 || got[0] != "INTERFACE_10" || got[1] != "INTERFACE_20" {
		t.Errorf("entries after update = %v", got)
	}

	val, ok := getOne(t, svc, list)
	if !ok || gjson.GetBytes(val.GetJsonIetfVal(), "interface.#").Int() != 2 {
		t.Errorf("Get(list) = %v", val)
	}

	if _, err := svc.Set(ctx, []*gnmipb.Update{upd(t, list, jsonVal(`{"interface":[{"name":"INTERFACE_30"}]}`))}, nil, nil); err != nil {
		t.Fatalf("Set(replace) error = %v", err)
	}
	if got := interfaceNames(t, svc); len(got) != 1 || got[0] != "INTERFACE_30" {
		t.Errorf("entries after replace = %v", got)
	}
}

func TestService_UpdateOfMissingLeaf(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	const mtu = "/interfaces/interface[name=eth0]/config/mtu"

	results, err := svc.Set(ctx, nil, []*gnmipb.Update{upd(t, mtu, uintVal(1500))}, nil)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("Set(update) error = %v, want NotFound", err)
	}
	if results != nil {
		t.Errorf("results = %+v, want none", results)
	}

	// Replacing through the parent container works.
	results, err = svc.Set(ctx, []*gnmipb.Update{upd(t, "/interfaces/interface[name=eth0]/config", jsonVal(`{"mtu":1500}`))}, nil, nil)
	if err != nil || results[0].Err != nil {
		t.Fatalf("Set(replace) = %+v, %v", results, err)
	}
	if _, err := svc.Set(ctx, nil, []*gnmipb.Update{upd(t, mtu, uintVal(9000))}, nil); err != nil {
		t.Fatalf("Set(update) after replace error = %v", err)
	}
	val, ok := getOne(t, svc, mtu)
	if !ok || val.GetIntVal() != 9000 {
		t.Errorf("mtu = %v", val)
	}
}

func TestService_UpdateOfMissingLeafRollsBack(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Set(ctx,
		[]*gnmipb.Update{upd(t, "/interfaces/interface[name=eth1]/config", jsonVal(`{"mtu":1}`))},
		[]*gnmipb.Update{upd(t, "/interfaces/interface[name=eth1]/config/description", &gnmipb.TypedValue{Value: &gnmipb.TypedValue_StringVal{StringVal: "x"}})},
		nil)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("Set() error = %v, want NotFound", err)
	}
	if _, ok := getOne(t, svc, "/interfaces/interface[name=eth1]/config"); ok {
		t.Errorf("replace of the failed call was kept")
	}
}

func TestService_SetOrderAndResults(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.Set(ctx, []*gnmipb.Update{upd(t, "/interfaces/interface[name=eth0]/config", jsonVal(`{"mtu":1500,"description":"old"}`))}, nil, nil); err != nil {
		t.Fatal(err)
	}

	// The delete runs after the replace and before the update.
	results, err := svc.Set(ctx,
		[]*gnmipb.Update{upd(t, "/interfaces/interface[name=eth0]/config", jsonVal(`{"mtu":1600,"description":"new"}`))},
		[]*gnmipb.Update{upd(t, "/interfaces/interface[name=eth0]/config/mtu", uintVal(1700))},
		[]*gnmipb.Path{mustPath(t, "/interfaces/interface[name=eth0]/config/description")})
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	wantOps := []gnmipb.UpdateResult_Operation{gnmipb.UpdateResult_REPLACE, gnmipb.UpdateResult_DELETE, gnmipb.UpdateResult_UPDATE}
	if len(results) != len(wantOps) {
		t.Fatalf("results = %+v", results)
	}
	for i, op := range wantOps {
		if results[i].Op != op || results[i].Err != nil {
			t.Errorf("result %d = %+v, want %s", i, results[i], op)
		}
	}
	if _, ok := getOne(t, svc, "/interfaces/interface[name=eth0]/config/description"); ok {
		t.Errorf("description not deleted")
	}
	if val, _ := getOne(t, svc, "/interfaces/interface[name=eth0]/config/mtu"); val.GetIntVal() != 1700 {
		t.Errorf("mtu = %v, want 1700", val)
	}
}

func TestService_PerPathErrors(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	results, err := svc.Set(ctx, []*gnmipb.Update{
		upd(t, "/root-container/name", &gnmipb.TypedValue{Value: &gnmipb.TypedValue_StringVal{StringVal: "a"}}),
		upd(t, "/root-model-1:root-container/name", &gnmipb.TypedValue{Value: &gnmipb.TypedValue_StringVal{StringVal: "a"}}),
		upd(t, "/interfaces/interface[name=eth0]/config/mtu", &gnmipb.TypedValue{Value: &gnmipb.TypedValue_StringVal{StringVal: "big"}}),
	}, nil, nil)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %+v", results)
	}
	var lerr *codec.LookupError
	if !errors.As(results[0].Err, &lerr) || !lerr.Ambiguous() {
		t.Errorf("bare root-container error = %v, want ambiguous lookup", results[0].Err)
	}
	if results[1].Err != nil {
		t.Errorf("qualified root-container error = %v", results[1].Err)
	}
	if results[2].Err == nil {
		t.Errorf("invalid mtu accepted")
	}

	val, ok := getOne(t, svc, "/root-model-1:root-container/name")
	if !ok || val.GetStringVal() != "a" {
		t.Errorf("Get(root-model-1 name) = %v", val)
	}
	if _, ok := getOne(t, svc, "/root-container/name"); ok {
		t.Errorf("ambiguous path answered")
	}
	if _, ok := getOne(t, svc, "/root-model-2:root-container/id"); ok {
		t.Errorf("root-model-2 returned data")
	}
}

func TestService_SetAll(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.SetAll(ctx, []*gnmipb.Update{
		upd(t, "/interfaces/interface[name=eth0]/config", jsonVal(`{"mtu":1500}`)),
		upd(t, "/root-container/name", &gnmipb.TypedValue{Value: &gnmipb.TypedValue_StringVal{StringVal: "a"}}),
	}, nil, nil)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("SetAll() error = %v, want NotFound", err)
	}
	if _, ok := getOne(t, svc, "/interfaces/interface[name=eth0]/config"); ok {
		t.Errorf("first replace kept after a failed SetAll")
	}

	_, err = svc.SetAll(ctx, []*gnmipb.Update{
		upd(t, "/interfaces/interface[name=eth0]", jsonVal(`{"interface":[{"name":"eth1"}]}`)),
	}, nil, nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("SetAll() with mismatching keys error = %v, want InvalidArgument", err)
	}
}

func TestService_GetDatastores(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	id := ifaceID("eth0", datatree.Step(tif, "state"), datatree.Step(tif, "counter"))
	counter := &datatree.Leaf{QName: datatree.QName{Module: tif, Name: "counter"}, Value: uint64(42)}
	if err := store.Write(ctx, datatree.State, id, counter); err != nil {
		t.Fatal(err)
	}
	p := mustPath(t, "/interfaces/interface[name=eth0]/state/counter")

	updates, err := svc.Get(ctx, []*gnmipb.Path{p}, datatree.State)
	if err != nil || len(updates) != 1 || updates[0].GetVal().GetIntVal() != 42 {
		t.Fatalf("Get(state) = %v, %v", updates, err)
	}
	if updates, _ := svc.Get(ctx, []*gnmipb.Path{p}, datatree.Config); len(updates) != 0 {
		t.Errorf("Get(config) = %v", updates)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := svc.Get(cctx, []*gnmipb.Path{p}, datatree.State); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() with canceled context error = %v", err)
	}
}

func TestService_Identityref(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	const path = "/interfaces/interface[name=eth0]/config/type"

	if _, err := svc.Set(ctx, []*gnmipb.Update{upd(t, path, &gnmipb.TypedValue{Value: &gnmipb.TypedValue_StringVal{StringVal: "tift:IF_ETHERNET"}})}, nil, nil); err != nil {
		t.Fatal(err)
	}
	val, ok := getOne(t, svc, path)
	if !ok || val.GetStringVal() != tift+":IF_ETHERNET" {
		t.Errorf("type = %v", val)
	}
}
