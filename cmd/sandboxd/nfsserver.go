package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/nimbuscore/sandboxcore/internal/nfsadapter"
	"github.com/nimbuscore/sandboxcore/internal/vfs"
	"github.com/nimbuscore/sandboxcore/pkg/logging"
)

// runNFSServer implements the nfs-server spawn contract of spec §6:
// argv {nfs-server, --host=H, --port=P, --store-dir=S}. It exports S as
// a live directory tree and serves NFSv3 on H:P until signaled.
func runNFSServer(argv []string) int {
	fs := flag.NewFlagSet("nfs-server", flag.ContinueOnError)
	host := fs.String("host", "127.0.0.1", "address to bind")
	port := fs.Int("port", 0, "port to bind (required)")
	storeDir := fs.String("store-dir", "", "directory to export over NFS (required)")
	jsonLogs := fs.Bool("json-logs", false, "emit operator-facing logs as JSON")
	if err := fs.Parse(argv); err != nil {
		return 2
	}

	log := logging.Operational(*jsonLogs)
	if *port == 0 || *storeDir == "" {
		log.Error("missing required flag: -port and -store-dir")
		return 2
	}

	root, err := vfs.NewOSFS(*storeDir)
	if err != nil {
		log.WithError(err).Error("prepare export root")
		return 1
	}

	srv, err := nfsadapter.Listen(*host, *port, root)
	if err != nil {
		log.WithError(err).Error("bind nfs listener")
		return 1
	}
	defer srv.Close()

	log.WithField("addr", srv.Addr().String()).Info("nfs server listening")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("nfs server exited with an error")
		return 1
	}
	return 0
}
