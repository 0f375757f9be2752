// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package crud answers gNMI Get and Set requests against a schema-aware data
// store.
//
// A Service translates wire paths and values with the codec package and
// applies them to a datatree.Store. Server exposes a Service as a gNMI
// target; the device simulator and the end-to-end tests of the connector
// are built on it.
package crud

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/netascode/go-gnmi-southbound/codec"
	"github.com/netascode/go-gnmi-southbound/datatree"
	"github.com/netascode/go-gnmi-southbound/schema"
)

// Result is the outcome of one path of a Set.
type Result struct {
	Path *gnmipb.Path
	Op   gnmipb.UpdateResult_Operation
	Err  error
}

// Snapshotter is implemented by stores that can roll back a failed Set.
type Snapshotter interface {
	Snapshot() (restore func())
}

// Service applies gNMI Get and Set requests to a store.
type Service struct {
	schema *schema.Context
	store  datatree.Store
	paths  codec.PathCodec
	values codec.ValueCodec
	logger zerolog.Logger

	// serializes Set
	mu sync.Mutex
}

// NewService creates a service for store, resolving paths against sc.
func NewService(sc *schema.Context, store datatree.Store, opts ...func(*Service)) *Service {
	s := &Service{
		schema: sc,
		store:  store,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) func(*Service) {
	return func(s *Service) {
		s.logger = l
	}
}

// PrefixModuleNames qualifies the first element of returned JSON values
// with its module name.
func PrefixModuleNames(enabled bool) func(*Service) {
	return func(s *Service) {
		s.values.PrefixModuleNames = enabled
	}
}

// Schema returns the schema context requests are resolved against.
func (s *Service) Schema() *schema.Context { return s.schema }

// Get reads every path from ds. Paths that cannot be resolved or hold no
// data are logged and skipped. Errors of the store abort the call.
func (s *Service) Get(ctx context.Context, paths []*gnmipb.Path, ds datatree.Datastore) ([]*gnmipb.Update, error) {
	updates := make([]*gnmipb.Update, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, err := s.paths.PathToIdentifier(p, s.schema)
		if err != nil {
			s.logger.Error().Err(err).Str("path", codec.PathString(p)).Msg("cannot resolve get path")
			continue
		}
		val, found, err := s.read(ctx, ds, id)
		if err != nil {
			var cerr *codec.Error
			if errors.As(err, &cerr) {
				s.logger.Error().Err(err).Str("path", codec.PathString(p)).Msg("cannot encode value")
				continue
			}
			return nil, err
		}
		if !found {
			s.logger.Debug().Str("path", codec.PathString(p)).Str("datastore", ds.String()).Msg("no data")
			continue
		}
		updates = append(updates, &gnmipb.Update{Path: p, Val: val})
	}
	return updates, nil
}

func (s *Service) read(ctx context.Context, ds datatree.Datastore, id datatree.NodeIdentifier) (*gnmipb.TypedValue, bool, error) {
	if s.isList(id) {
		entries, err := s.entries(ctx, ds, id)
		if err != nil || len(entries) == 0 {
			return nil, false, err
		}
		val, err := s.values.EncodeEntries(id, entries)
		return val, err == nil, err
	}
	node, found, err := s.store.Read(ctx, ds, id)
	if err != nil || !found {
		return nil, false, err
	}
	val, err := s.values.Encode(id, node, s.schema)
	return val, err == nil, err
}

// Set applies replace, then delete, then update entries to the config
// datastore and reports a result per path. A path that fails is reported
// in its result and does not stop the others.
//
// An update of a scalar leaf that holds no value fails the whole call with
// codes.NotFound; changes made by the call are rolled back when the store
// is a Snapshotter.
func (s *Service) Set(ctx context.Context, replace, update []*gnmipb.Update, del []*gnmipb.Path) ([]Result, error) {
	return s.set(ctx, replace, update, del, false)
}

// SetAll is Set with all-or-nothing semantics: the first failing path
// rolls back the call and its error is returned as a gRPC status.
func (s *Service) SetAll(ctx context.Context, replace, update []*gnmipb.Update, del []*gnmipb.Path) ([]Result, error) {
	return s.set(ctx, replace, update, del, true)
}

func (s *Service) set(ctx context.Context, replace, update []*gnmipb.Update, del []*gnmipb.Path, atomic bool) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restore := func() {}
	if sn, ok := s.store.(Snapshotter); ok {
		restore = sn.Snapshot()
	}

	results := make([]Result, 0, len(replace)+len(update)+len(del))
	fail := func(err error) ([]Result, error) {
		restore()
		return nil, err
	}
	record := func(r Result) error {
		results = append(results, r)
		if r.Err == nil {
			return nil
		}
		s.logger.Error().Err(r.Err).Str("path", codec.PathString(r.Path)).Str("op", r.Op.String()).Msg("set failed")
		if atomic {
			return toStatus(r.Err)
		}
		return nil
	}

	for _, u := range replace {
		if err := record(Result{Path: u.GetPath(), Op: gnmipb.UpdateResult_REPLACE, Err: s.replace(ctx, u)}); err != nil {
			return fail(err)
		}
	}
	for _, p := range del {
		if err := record(Result{Path: p, Op: gnmipb.UpdateResult_DELETE, Err: s.delete(ctx, p)}); err != nil {
			return fail(err)
		}
	}
	for _, u := range update {
		err := s.update(ctx, u)
		var nf *notFoundError
		if errors.As(err, &nf) {
			s.logger.Error().Str("path", codec.PathString(u.GetPath())).Msg("update of a leaf without value")
			return fail(status.Error(codes.NotFound, nf.Error()))
		}
		if err := record(Result{Path: u.GetPath(), Op: gnmipb.UpdateResult_UPDATE, Err: err}); err != nil {
			return fail(err)
		}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	return results, nil
}

func (s *Service) replace(ctx context.Context, u *gnmipb.Update) error {
	id, err := s.paths.PathToIdentifier(u.GetPath(), s.schema)
	if err != nil {
		return err
	}
	if s.isList(id) {
		entries, err := s.values.DecodeEntries(id, u.GetVal(), s.schema)
		if err != nil {
			return err
		}
		if err := s.store.Delete(ctx, datatree.Config, id); err != nil {
			return err
		}
		for _, e := range entries {
			if err := s.store.Write(ctx, datatree.Config, entryID(id, e), e); err != nil {
				return err
			}
		}
		return nil
	}
	node, err := s.decode(id, u.GetVal())
	if err != nil {
		return err
	}
	return s.store.Write(ctx, datatree.Config, id, node)
}

func (s *Service) update(ctx context.Context, u *gnmipb.Update) error {
	id, err := s.paths.PathToIdentifier(u.GetPath(), s.schema)
	if err != nil {
		return err
	}
	if s.isList(id) {
		entries, err := s.values.DecodeEntries(id, u.GetVal(), s.schema)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := s.store.Merge(ctx, datatree.Config, entryID(id, e), e); err != nil {
				return err
			}
		}
		return nil
	}
	if sn, err := datatree.SchemaNode(s.schema, id); err == nil && sn.IsScalar() {
		_, found, err := s.store.Read(ctx, datatree.Config, id)
		if err != nil {
			return err
		}
		if !found {
			return &notFoundError{path: id.String()}
		}
	}
	node, err := s.decode(id, u.GetVal())
	if err != nil {
		return err
	}
	return s.store.Merge(ctx, datatree.Config, id, node)
}

func (s *Service) delete(ctx context.Context, p *gnmipb.Path) error {
	id, err := s.paths.PathToIdentifier(p, s.schema)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, datatree.Config, id)
}

// decode decodes a value for id. A list entry must carry the keys of the
// path.
func (s *Service) decode(id datatree.NodeIdentifier, val *gnmipb.TypedValue) (datatree.DataNode, error) {
	node, err := s.values.Decode(id, val, s.schema)
	if err != nil {
		return nil, err
	}
	if last, ok := id.Last(); ok && last.Kind == datatree.StepKeyed && !datatree.Matches(node, last) {
		return nil, fmt.Errorf("crud: entry keys do not match path %s", id)
	}
	return node, nil
}

// isList reports whether id addresses a whole list.
func (s *Service) isList(id datatree.NodeIdentifier) bool {
	last, ok := id.Last()
	if !ok || last.Kind != datatree.StepNode {
		return false
	}
	sn, err := datatree.SchemaNode(s.schema, id)
	return err == nil && sn.IsList()
}

// entries returns the stored entries of the list addressed by id.
func (s *Service) entries(ctx context.Context, ds datatree.Datastore, id datatree.NodeIdentifier) ([]*datatree.ListEntry, error) {
	parent, found, err := s.store.Read(ctx, ds, id.Parent())
	if err != nil || !found {
		return nil, err
	}
	last, _ := id.Last()
	var out []*datatree.ListEntry
	for _, c := range datatree.Children(parent) {
		if e, ok := c.(*datatree.ListEntry); ok && e.QName == last.QName {
			out = append(out, e)
		}
	}
	return out, nil
}

func entryID(list datatree.NodeIdentifier, e *datatree.ListEntry) datatree.NodeIdentifier {
	return list.Append(datatree.KeyedStep(e.Module, e.Name, e.Keys...))
}

type notFoundError struct {
	path string
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("crud: %s has no value to update", e.path)
}

// toStatus maps a per-path error to a gRPC status error.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	var lerr *codec.LookupError
	if errors.As(err, &lerr) {
		return status.Error(codes.NotFound, err.Error())
	}
	return status.Error(codes.InvalidArgument, err.Error())
}
