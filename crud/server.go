// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package crud

import (
	"context"
	"time"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/netascode/go-gnmi-southbound/codec"
	"github.com/netascode/go-gnmi-southbound/datatree"
)

// GNMIVersion is the protocol version reported by Capabilities.
const GNMIVersion = "0.10.0"

// Server is a gNMI target backed by a Service. Subscribe is not
// implemented.
type Server struct {
	gnmipb.UnimplementedGNMIServer

	svc      *Service
	username string
	password string
	logger   zerolog.Logger
	now      func() time.Time
}

var _ gnmipb.GNMIServer = (*Server)(nil)

// ServerOption configures a Server.
type ServerOption func(*Server)

// Credentials makes the server require a username and password in the
// request metadata.
func Credentials(username, password string) ServerOption {
	return func(s *Server) {
		s.username = username
		s.password = password
	}
}

// ServerLogger sets the server logger.
func ServerLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a gNMI server answering from svc.
func NewServer(svc *Service, opts ...ServerOption) *Server {
	s := &Server{
		svc:    svc,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capabilities lists the modules of the service schema.
func (s *Server) Capabilities(ctx context.Context, _ *gnmipb.CapabilityRequest) (*gnmipb.CapabilityResponse, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	modules := s.svc.Schema().Modules()
	models := make([]*gnmipb.ModelData, 0, len(modules))
	for _, m := range modules {
		models = append(models, &gnmipb.ModelData{
			Name:         m.Name,
			Organization: m.Organization,
			Version:      m.Version(),
		})
	}
	return &gnmipb.CapabilityResponse{
		SupportedModels:    models,
		SupportedEncodings: []gnmipb.Encoding{gnmipb.Encoding_JSON, gnmipb.Encoding_JSON_IETF},
		GNMIVersion:        GNMIVersion,
	}, nil
}

// Get answers with one notification carrying an update per path that holds
// data. STATE and OPERATIONAL requests read the state datastore, all others
// the config datastore.
func (s *Server) Get(ctx context.Context, req *gnmipb.GetRequest) (*gnmipb.GetResponse, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	switch req.GetEncoding() {
	case gnmipb.Encoding_JSON, gnmipb.Encoding_JSON_IETF:
	default:
		return nil, status.Errorf(codes.Unimplemented, "unsupported encoding %s", req.GetEncoding())
	}
	ds := datatree.Config
	switch req.GetType() {
	case gnmipb.GetRequest_STATE, gnmipb.GetRequest_OPERATIONAL:
		ds = datatree.State
	}

	var updates []*gnmipb.Update
	for _, p := range req.GetPath() {
		got, err := s.svc.Get(ctx, []*gnmipb.Path{codec.JoinPaths(req.GetPrefix(), p)}, ds)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "get %s: %v", codec.PathString(p), err)
		}
		for _, u := range got {
			updates = append(updates, &gnmipb.Update{Path: p, Val: u.GetVal()})
		}
	}
	if len(updates) == 0 {
		return nil, status.Error(codes.NotFound, "no data for the requested paths")
	}
	s.logger.Debug().Int("paths", len(req.GetPath())).Str("datastore", ds.String()).Msg("get")
	return &gnmipb.GetResponse{Notification: []*gnmipb.Notification{{
		Timestamp: s.now().UnixNano(),
		Prefix:    req.GetPrefix(),
		Update:    updates,
	}}}, nil
}

// Set applies the request to the config datastore as one transaction.
func (s *Server) Set(ctx context.Context, req *gnmipb.SetRequest) (*gnmipb.SetResponse, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	prefix := req.GetPrefix()
	join := func(us []*gnmipb.Update) []*gnmipb.Update {
		out := make([]*gnmipb.Update, len(us))
		for i, u := range us {
			out[i] = &gnmipb.Update{Path: codec.JoinPaths(prefix, u.GetPath()), Val: u.GetVal()}
		}
		return out
	}
	del := make([]*gnmipb.Path, len(req.GetDelete()))
	for i, p := range req.GetDelete() {
		del[i] = codec.JoinPaths(prefix, p)
	}

	results, err := s.svc.SetAll(ctx, join(req.GetReplace()), join(req.GetUpdate()), del)
	if err != nil {
		return nil, err
	}

	// Results follow the order replace, delete, update.
	originals := make([]*gnmipb.Path, 0, len(results))
	for _, u := range req.GetReplace() {
		originals = append(originals, u.GetPath())
	}
	originals = append(originals, req.GetDelete()...)
	for _, u := range req.GetUpdate() {
		originals = append(originals, u.GetPath())
	}
	resp := &gnmipb.SetResponse{Prefix: prefix, Timestamp: s.now().UnixNano()}
	for i, r := range results {
		resp.Response = append(resp.Response, &gnmipb.UpdateResult{Path: originals[i], Op: r.Op})
	}
	s.logger.Debug().
		Int("replace", len(req.GetReplace())).
		Int("delete", len(req.GetDelete())).
		Int("update", len(req.GetUpdate())).
		Msg("set")
	return resp, nil
}

func (s *Server) authorize(ctx context.Context) error {
	if s.username == "" && s.password == "" {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing credentials")
	}
	if first(md.Get("username")) != s.username || first(md.Get("password")) != s.password {
		return status.Error(codes.Unauthenticated, "invalid username or password")
	}
	return nil
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
