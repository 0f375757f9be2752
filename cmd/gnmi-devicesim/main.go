// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Command gnmi-devicesim serves an in-memory gNMI device for the models in
// a directory. It answers Capabilities, Get and Set and is meant for lab
// and integration testing of the connector.
//
// Usage:
//
//	gnmi-devicesim --models ./models --listen :57400 --username admin --password admin
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/netascode/go-gnmi-southbound/config"
	"github.com/netascode/go-gnmi-southbound/crud"
	"github.com/netascode/go-gnmi-southbound/schema"
)

type options struct {
	listen            string
	modelsDir         string
	modules           []string
	username          string
	password          string
	tlsCert           string
	tlsKey            string
	prefixModuleNames bool
	log               config.LogConfig
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var o options
	flagSet := pflag.NewFlagSet("gnmi-devicesim", pflag.ContinueOnError)
	flagSet.StringVar(&o.listen, "listen", ":57400", "address to serve gNMI on")
	flagSet.StringVar(&o.modelsDir, "models", "./models", "directory with the model descriptions")
	flagSet.StringSliceVar(&o.modules, "module", nil, "module to serve as name or name@version (repeatable, default: all in --models)")
	flagSet.StringVar(&o.username, "username", "", "required username (empty disables authentication)")
	flagSet.StringVar(&o.password, "password", "", "required password")
	flagSet.StringVar(&o.tlsCert, "tls-cert", "", "server certificate file (enables TLS)")
	flagSet.StringVar(&o.tlsKey, "tls-key", "", "server private key file")
	flagSet.BoolVar(&o.prefixModuleNames, "prefix-module-names", false, "qualify returned paths with module names")
	flagSet.StringVar(&o.log.Level, "log-level", "info", "log level (debug, info, warn, error)")
	flagSet.StringVar(&o.log.Format, "log-format", "console", "log format (json or console)")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if (o.tlsCert == "") != (o.tlsKey == "") {
		return errors.New("--tls-cert and --tls-key must be given together")
	}
	logger := o.log.Logger(os.Stderr)

	sc, err := loadSchema(o.modelsDir, o.modules)
	if err != nil {
		return err
	}

	svc := crud.NewService(sc, crud.NewMemoryStore(),
		crud.WithLogger(logger),
		crud.PrefixModuleNames(o.prefixModuleNames))
	var srvOpts []crud.ServerOption
	srvOpts = append(srvOpts, crud.ServerLogger(logger))
	if o.username != "" {
		srvOpts = append(srvOpts, crud.Credentials(o.username, o.password))
	}

	var grpcOpts []grpc.ServerOption
	if o.tlsCert != "" {
		creds, err := credentials.NewServerTLSFromFile(o.tlsCert, o.tlsKey)
		if err != nil {
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		grpcOpts = append(grpcOpts, grpc.Creds(creds))
	}
	gs := grpc.NewServer(grpcOpts...)
	gnmipb.RegisterGNMIServer(gs, crud.NewServer(svc, srvOpts...))

	lis, err := net.Listen("tcp", o.listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", o.listen, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info().Msg("Shutting down")
		gs.GracefulStop()
	}()

	var names []string
	for _, m := range sc.Modules() {
		names = append(names, m.Name+"@"+m.Version())
	}
	logger.Info().Str("listen", lis.Addr().String()).Bool("tls", o.tlsCert != "").
		Strs("modules", names).Msg("Serving gNMI")
	return gs.Serve(lis)
}

// loadSchema builds the served schema from the named modules and their
// imports, or from every module in dir when none is named.
func loadSchema(dir string, modules []string) (*schema.Context, error) {
	src, err := schema.NewDirSource(dir)
	if err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		if modules, err = src.Names(); err != nil {
			return nil, err
		}
		if len(modules) == 0 {
			return nil, fmt.Errorf("no models found in %s", dir)
		}
	}
	refs := make(map[string]string, len(modules))
	for _, m := range modules {
		name, version, _ := strings.Cut(m, "@")
		refs[name] = version
	}
	mods, err := schema.LoadAll(src, refs)
	if err != nil {
		return nil, err
	}
	return schema.NewContext(mods...)
}
