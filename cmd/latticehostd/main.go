// Command latticehostd is the composition-root binary for the lattice
// host: it parses flags and an optional YAML config file, wires a
// NatsHostBuilder, and runs the host until an interrupt signal arrives,
// with graceful stop on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/latticehost/hostcore/hostbuilder"
	"github.com/latticehost/hostcore/hostlog"
	"github.com/latticehost/hostcore/telemetry"
	"github.com/latticehost/hostcore/transport/natsconn"
)

func main() {
	natsURL := flag.String("nats-url", "", "NATS server URL (default: nats.DefaultURL)")
	lattice := flag.String("lattice", "default", "lattice name")
	hostID := flag.String("host-id", "", "host public-key identity (required)")
	prefix := flag.String("prefix", "wasmbus.ctl", "control-interface subject prefix")
	configPath := flag.String("config", "", "optional YAML host config file")
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics on, empty disables")
	jaegerEndpoint := flag.String("otlp-endpoint", "", "OTLP/gRPC trace collector endpoint, empty disables tracing")
	flag.Parse()

	log := hostlog.New(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	fileCfg, err := loadFileConfig(*configPath)
	if err != nil {
		log.Error("invalid config file", "error", err)
		os.Exit(1)
	}

	effectiveHostID := *hostID
	effectiveLattice := *lattice
	effectivePrefix := *prefix
	effectiveNATSURL := *natsURL
	var labels map[string]string
	if fileCfg != nil {
		if fileCfg.HostKey != "" {
			effectiveHostID = fileCfg.HostKey
		}
		if fileCfg.Lattice != "" {
			effectiveLattice = fileCfg.Lattice
		}
		if fileCfg.Prefix != "" {
			effectivePrefix = fileCfg.Prefix
		}
		if fileCfg.NATSURL != "" {
			effectiveNATSURL = fileCfg.NATSURL
		}
		labels = fileCfg.Labels
	}
	if effectiveHostID == "" {
		log.Error("-host-id is required (or host_key in config file)")
		os.Exit(1)
	}

	if *jaegerEndpoint != "" {
		shutdownTracer, err := telemetry.InitTracer(telemetry.TracerConfig{
			ServiceName: "latticehostd",
			HostVersion: "0.1.0",
			Endpoint:    *jaegerEndpoint,
		})
		if err != nil {
			log.Warn("tracer init failed, continuing without tracing", "error", err)
		} else {
			defer shutdownTracer(context.Background())
		}
	}
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, log)
	}

	builder, closeConn, err := hostbuilder.NewNatsHostBuilder(hostbuilder.NatsConfig{
		HostID:             effectiveHostID,
		Lattice:            effectiveLattice,
		Prefix:             effectivePrefix,
		Labels:             labels,
		NATS:               natsconn.Config{URL: effectiveNATSURL, Name: "latticehostd"},
		AttachBusPublisher: true,
		Log:                log,
	})
	if err != nil {
		log.Error("failed to build host", "error", err)
		os.Exit(1)
	}
	defer closeConn()

	if fileCfg != nil {
		for _, f := range fileCfg.Features {
			builder = builder.WithExperimentalFeature(f, true)
		}
	}

	instance, err := builder.Build()
	if err != nil {
		log.Error("failed to wire host", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		instance.Host.Stop().Fire(time.Now().Add(5 * time.Second))
		cancel()
	}()

	log.Info("lattice host starting", "host_id", effectiveHostID, "lattice", effectiveLattice)
	if err := instance.Run(ctx); err != nil {
		log.Error("host terminated with error", "error", err)
		os.Exit(1)
	}
	log.Info("lattice host stopped")
}
