package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimbuscore/sandboxcore/internal/metrics"
	"github.com/nimbuscore/sandboxcore/internal/orchestrator"
	"github.com/nimbuscore/sandboxcore/internal/sandboxdb"
	"github.com/nimbuscore/sandboxcore/internal/supervisor"
	"github.com/nimbuscore/sandboxcore/pkg/logging"
)

// runSupervise is the re-exec target the orchestrator spawns for one
// sandbox: it reads back the supervisor.Config the orchestrator wrote
// to --state, runs the startup sequence, and blocks until shutdown.
func runSupervise(argv []string) int {
	fs := flag.NewFlagSet("supervise", flag.ContinueOnError)
	statePath := fs.String("state", "", "path to the launch spec written by the orchestrator (required)")
	metricsPort := fs.Int("metrics-port", 0, "port to serve Prometheus metrics on; 0 disables metrics")
	jsonLogs := fs.Bool("json-logs", false, "emit operator-facing logs as JSON")
	if err := fs.Parse(argv); err != nil {
		return 2
	}

	log := logging.Operational(*jsonLogs)
	if *statePath == "" {
		log.Error("missing required flag: -state")
		return 2
	}

	cfg, err := orchestrator.ReadLaunchSpec(*statePath)
	if err != nil {
		log.WithError(err).Error("read launch spec")
		return 1
	}

	db, err := sandboxdb.Open(cfg.DBPath)
	if err != nil {
		log.WithError(err).Error("open active-sandbox database")
		return 1
	}
	defer db.Close()

	childLog := logging.Stdout(logging.Info)
	sup := supervisor.New(cfg, db, childLog)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if *metricsPort > 0 {
		collector, err := metrics.NewCollector(&metrics.Config{
			Enabled: true, Port: *metricsPort, Path: "/metrics", Namespace: "sandboxcore",
			Subsystem: "supervisor", UpdateInterval: 30 * time.Second,
		})
		if err != nil {
			log.WithError(err).Error("configure metrics collector")
			return 1
		}
		if err := collector.Start(ctx); err != nil {
			log.WithError(err).Error("start metrics collector")
			return 1
		}
		defer collector.Stop(context.Background())
		sup.SetMetrics(collector)
	}

	if err := sup.Start(ctx); err != nil {
		log.WithError(err).Error("supervisor startup failed")
		return 1
	}

	if err := sup.Run(ctx); err != nil {
		log.WithError(err).Error("microvm exited with an error")
		return 1
	}
	return 0
}
