// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Command gnmi-southbound connects to the devices listed in its
// configuration file and keeps their sessions until it is stopped.
//
// Usage:
//
//	gnmi-southbound --config /etc/gnmi-southbound/config.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	southbound "github.com/netascode/go-gnmi-southbound"
	"github.com/netascode/go-gnmi-southbound/config"
	"github.com/netascode/go-gnmi-southbound/influxmetrics"
	"github.com/netascode/go-gnmi-southbound/mqttstatus"
	"github.com/netascode/go-gnmi-southbound/opstate"
	"github.com/netascode/go-gnmi-southbound/schema"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath, logLevel string
	flagSet := pflag.NewFlagSet("gnmi-southbound", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	flagSet.StringVar(&logLevel, "log-level", "", "override log.level of the configuration")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger := cfg.Log.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := schema.NewDirSource(cfg.Schema.Dir)
	if err != nil {
		return err
	}
	store, err := opstate.Open(opstate.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []func(*southbound.Manager){
		southbound.WithLogger(southbound.NewZerologLogger(logger)),
		southbound.WithSchemaSource(src),
		southbound.WithOperationalStore(store),
		southbound.MaxConcurrentConnects(cfg.Southbound.MaxConcurrentConnects),
	}

	if cfg.MQTT.Enabled {
		client, err := mqttstatus.Connect(mqttstatus.ClientConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		})
		if err != nil {
			return err
		}
		defer client.Close()
		pub := mqttstatus.NewStatusPublisher(client, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS,
			mqttstatus.WithLogger(component(logger, "mqtt")))
		defer pub.Close()
		opts = append(opts, southbound.WithStatusListener(pub))
		logger.Info().Str("broker", cfg.MQTT.Broker).Msg("Publishing device status")
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxmetrics.Connect(ctx, influxmetrics.Config{
			URL:           cfg.InfluxDB.URL,
			Token:         cfg.InfluxDB.Token,
			Org:           cfg.InfluxDB.Org,
			Bucket:        cfg.InfluxDB.Bucket,
			FlushInterval: cfg.InfluxDB.FlushEvery,
		}, component(logger, "influxdb"))
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, southbound.WithStatusListener(
			influxmetrics.NewSink(client.Writer(), cfg.InfluxDB.Measurement)))
		logger.Info().Str("url", cfg.InfluxDB.URL).Msg("Recording connection metrics")
	}

	m := southbound.NewManager(opts...)

	for _, d := range cfg.Devices {
		dc, err := d.SouthboundConfig()
		if err != nil {
			_ = m.Close()
			return fmt.Errorf("device %s: %w", d.ID, err)
		}
		f := m.Connect(d.ID, dc)
		go func(id string) {
			conn, err := f.Wait(ctx)
			if err != nil {
				logger.Error().Err(err).Str("device_id", id).Msg("Connecting failed")
				return
			}
			logger.Info().Str("device_id", id).Int("capabilities", len(conn.Capabilities())).Msg("Device connected")
		}(d.ID)
	}
	logger.Info().Int("devices", len(cfg.Devices)).Msg("Started")

	<-ctx.Done()
	logger.Info().Msg("Shutting down")
	return m.Close()
}

func component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
