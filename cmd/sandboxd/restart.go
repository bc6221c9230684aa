package main

import (
	"context"
	"flag"
	"os"

	"github.com/nimbuscore/sandboxcore/internal/orchestrator"
	"github.com/nimbuscore/sandboxcore/internal/sandboxdb"
	"github.com/nimbuscore/sandboxcore/internal/store"
	"github.com/nimbuscore/sandboxcore/pkg/logging"
)

// runRestart implements spec's explicit restart entry point: stop one
// running sandbox and start it again from its last-declared config,
// without touching any other sandbox apply would otherwise reconcile.
func runRestart(argv []string) int {
	fs := flag.NewFlagSet("restart", flag.ContinueOnError)
	project := fs.String("project", "", "project name (required)")
	projectDir := fs.String("project-dir", "", "directory holding the reconcile lock and per-sandbox state (required)")
	sandbox := fs.String("sandbox", "", "name of the sandbox to restart (required)")
	supervisorExe := fs.String("supervisor-exe", "", "path to the sandboxd binary, re-exec'd as the supervisor (defaults to the running binary)")
	logDir := fs.String("log-dir", "", "base directory for per-sandbox child logs (required)")
	storeDir := fs.String("store-dir", "", "base directory for per-sandbox NFS content (required)")
	mountDir := fs.String("mount-dir", "", "base directory for per-sandbox NFS mount points (required)")
	dbPath := fs.String("db-path", "", "path to the active-sandbox database (required)")
	jsonLogs := fs.Bool("json-logs", false, "emit operator-facing logs as JSON")
	if err := fs.Parse(argv); err != nil {
		return 2
	}

	log := logging.Operational(*jsonLogs)

	if *project == "" || *projectDir == "" || *sandbox == "" || *logDir == "" || *storeDir == "" || *mountDir == "" || *dbPath == "" {
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

	db, err := sandboxdb.Open(*dbPath)
	if err != nil {
		log.WithError(err).Error("open active-sandbox database")
		return 1
	}
	defer db.Close()

	orch := orchestrator.New(orchestrator.Config{
		Project:              *project,
		ProjectDir:           *projectDir,
		SupervisorExecutable: *supervisorExe,
		LogDir:               *logDir,
		StoreDir:             *storeDir,
		MountDir:             *mountDir,
		DBPath:               *dbPath,
		Store:                store.NewMemStore(store.Config{}),
	}, db, logging.Stdout(logging.Info))

	pid, err := orch.Restart(context.Background(), *sandbox)
	if err != nil {
		log.WithError(err).Error("restart failed")
		return 1
	}
	log.WithField("sandbox", *sandbox).WithField("pid", pid).Info("restarted")
	return 0
}
