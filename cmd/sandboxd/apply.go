package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/nimbuscore/sandboxcore/internal/config"
	"github.com/nimbuscore/sandboxcore/internal/metrics"
	"github.com/nimbuscore/sandboxcore/internal/orchestrator"
	"github.com/nimbuscore/sandboxcore/internal/registry"
	"github.com/nimbuscore/sandboxcore/internal/sandboxdb"
	"github.com/nimbuscore/sandboxcore/internal/store"
	"github.com/nimbuscore/sandboxcore/pkg/errs"
	"github.com/nimbuscore/sandboxcore/pkg/logging"
)

// runApply loads a declaration and reconciles it against the running
// set, per spec §4.J. It exits 0 only if every declared sandbox that
// needed starting did so without error; a per-sandbox failure still
// reports every other sandbox's outcome before exiting nonzero.
func runApply(argv []string) int {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	project := fs.String("project", "", "project name (required)")
	projectDir := fs.String("project-dir", "", "directory holding the reconcile lock and per-sandbox state (required)")
	declarationPath := fs.String("declaration", "", "path to the YAML sandbox declaration (required)")
	supervisorExe := fs.String("supervisor-exe", "", "path to the sandboxd binary, re-exec'd as the supervisor (defaults to the running binary)")
	logDir := fs.String("log-dir", "", "base directory for per-sandbox child logs (required)")
	storeDir := fs.String("store-dir", "", "base directory for per-sandbox NFS content (required)")
	mountDir := fs.String("mount-dir", "", "base directory for per-sandbox NFS mount points (required)")
	dbPath := fs.String("db-path", "", "path to the active-sandbox database (required)")
	registryEndpoint := fs.String("registry-endpoint", "", "S3-compatible endpoint for image_reference layer pulls; sandboxes without a local_root_path need this set")
	registryRegion := fs.String("registry-region", "", "region for the layer-cache S3 client (defaults to registry.DefaultConfig's)")
	registryPathStyle := fs.Bool("registry-force-path-style", false, "use path-style S3 addressing, for endpoints like minio")
	metricsPort := fs.Int("metrics-port", 0, "port to serve Prometheus metrics on; 0 disables metrics")
	jsonLogs := fs.Bool("json-logs", false, "emit operator-facing logs as JSON")
	if err := fs.Parse(argv); err != nil {
		return 2
	}

	log := logging.Operational(*jsonLogs)

	if *project == "" || *projectDir == "" || *declarationPath == "" || *logDir == "" || *storeDir == "" || *mountDir == "" || *dbPath == "" {
		log.Error("missing required flag")
		fs.PrintDefaults()
		return 2
	}

	if *supervisorExe == "" {
		exe, err := os.Executable()
		if err != nil {
			log.WithError(err).Error("resolve own executable path")
			return 1
		}
		*supervisorExe = exe
	}

	declared, err := config.Load(*declarationPath)
	if err != nil {
		log.WithError(err).Error("load declaration")
		return 1
	}

	db, err := sandboxdb.Open(*dbPath)
	if err != nil {
		log.WithError(err).Error("open active-sandbox database")
		return 1
	}
	defer db.Close()

	var puller registry.Puller
	if *registryEndpoint != "" {
		cfg := registry.DefaultConfig()
		cfg.Endpoint = *registryEndpoint
		cfg.ForcePathStyle = *registryPathStyle
		if *registryRegion != "" {
			cfg.Region = *registryRegion
		}
		s3Puller, err := registry.NewS3Puller(context.Background(), cfg, *project)
		if err != nil {
			log.WithError(err).Error("configure registry puller")
			return 1
		}
		puller = s3Puller
	}

	var collector *metrics.Collector
	if *metricsPort > 0 {
		collector, err = metrics.NewCollector(&metrics.Config{
			Enabled: true, Port: *metricsPort, Path: "/metrics", Namespace: "sandboxcore",
			Subsystem: "orchestrator", UpdateInterval: 30 * time.Second,
		})
		if err != nil {
			log.WithError(err).Error("configure metrics collector")
			return 1
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := collector.Start(ctx); err != nil {
			log.WithError(err).Error("start metrics collector")
			return 1
		}
		defer collector.Stop(context.Background())
	}

	orch := orchestrator.New(orchestrator.Config{
		Project:              *project,
		ProjectDir:           *projectDir,
		SupervisorExecutable: *supervisorExe,
		LogDir:               *logDir,
		StoreDir:             *storeDir,
		MountDir:             *mountDir,
		DBPath:               *dbPath,
		Store:                store.NewMemStore(store.Config{}),
		Puller:               puller,
		Metrics:              collector,
	}, db, logging.Stdout(logging.Info))

	result, err := orch.Apply(context.Background(), declared)
	if err != nil {
		log.WithError(err).Error("apply failed")
		return 1
	}

	for _, name := range result.Started {
		log.WithField("sandbox", name).Info("started")
	}
	for _, name := range result.Stopped {
		log.WithField("sandbox", name).Info("stopped")
	}

	if len(result.Errors) == 0 {
		return 0
	}
	for name, sandboxErr := range result.Errors {
		code, _ := errs.CodeOf(sandboxErr)
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", name, code, sandboxErr.Error())
	}
	return 1
}
