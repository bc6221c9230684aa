package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nimbuscore/sandboxcore/internal/childio"
	"github.com/nimbuscore/sandboxcore/internal/metrics"
	"github.com/nimbuscore/sandboxcore/internal/sandboxdb"
	"github.com/nimbuscore/sandboxcore/pkg/errs"
	"github.com/nimbuscore/sandboxcore/pkg/logging"
)

// exitReason identifies which event ended the run loop.
type exitReason int

const (
	reasonMicroVMExited exitReason = iota
	reasonNFSExited
	reasonSignal
)

// Supervisor owns one sandbox's NFS server and microVM children for
// their entire lifetime, per spec §4.I.
type Supervisor struct {
	cfg Config
	db  *sandboxdb.DB
	log *logging.Logger

	nfsMux     *childio.Multiplexer
	microvmMux *childio.Multiplexer
	cgroupDone func()

	nfsPort int
	metrics *metrics.Collector

	// teardown holds, in execution order, the undo for each completed
	// startup step; Start runs it in reverse on any later failure, and
	// Shutdown runs the full stack in reverse on a clean run.
	teardown []func(context.Context) error
}

// New prepares a Supervisor; Start performs the fallible startup
// sequence.
func New(cfg Config, db *sandboxdb.DB, log *logging.Logger) *Supervisor {
	return &Supervisor{cfg: cfg.withDefaults(), db: db, log: log}
}

// SetMetrics attaches a metrics collector for child-exit reporting. A
// supervisor with none attached records nothing.
func (s *Supervisor) SetMetrics(m *metrics.Collector) {
	s.metrics = m
}

// Start executes spec §4.I's seven startup steps. On failure it tears
// down whichever steps had already completed, then returns the first
// error.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.step1ResolvePaths(); err != nil {
		return s.failStartup(ctx, err)
	}
	if err := s.step2ChoosePort(); err != nil {
		return s.failStartup(ctx, err)
	}
	if err := s.step3SpawnNFSServer(ctx); err != nil {
		return s.failStartup(ctx, err)
	}
	if err := s.step4RecordRow(ctx); err != nil {
		return s.failStartup(ctx, err)
	}
	if err := s.step5Mount(ctx); err != nil {
		return s.failStartup(ctx, err)
	}
	if err := s.step6SpawnMicroVM(ctx); err != nil {
		return s.failStartup(ctx, err)
	}
	s.step7RegisterSignals()

	if err := s.db.UpdateStatus(ctx, s.cfg.Project, s.cfg.Sandbox, sandboxdb.StatusRunning); err != nil {
		s.log.Warn("status transition to running failed", map[string]interface{}{"error": err.Error()})
	}

	return nil
}

func (s *Supervisor) failStartup(ctx context.Context, cause error) error {
	for i := len(s.teardown) - 1; i >= 0; i-- {
		if err := s.teardown[i](ctx); err != nil {
			s.log.Warn("teardown step failed during startup rollback", map[string]interface{}{"error": err.Error()})
		}
	}
	s.teardown = nil
	return cause
}

func (s *Supervisor) step1ResolvePaths() error {
	if s.cfg.ExecutablePath == "" {
		exe, err := os.Executable()
		if err != nil {
			return errs.Wrap(errs.CodeInternal, err, "resolve executable path").WithComponent("supervisor", "step1")
		}
		s.cfg.ExecutablePath = exe
	}
	if err := os.MkdirAll(s.cfg.LogDir, 0o755); err != nil {
		return errs.Wrap(errs.CodeInternal, err, "create log directory").WithComponent("supervisor", "step1")
	}
	if err := os.MkdirAll(s.cfg.StoreDir, 0o755); err != nil {
		return errs.Wrap(errs.CodeInternal, err, "create store directory").WithComponent("supervisor", "step1")
	}
	if err := os.MkdirAll(s.cfg.MountPoint, 0o755); err != nil {
		return errs.Wrap(errs.CodeInternal, err, "create mount point").WithComponent("supervisor", "step1")
	}
	return nil
}

func (s *Supervisor) step2ChoosePort() error {
	port, err := findAvailablePort(s.cfg.NFSHost, s.cfg.NFSPortStart, s.cfg.NFSPortRange)
	if err != nil {
		return err
	}
	s.nfsPort = port
	return nil
}

func (s *Supervisor) step3SpawnNFSServer(ctx context.Context) error {
	args := []string{"nfs-server",
		"--host=" + s.cfg.NFSHost,
		"--port=" + strconv.Itoa(s.nfsPort),
		"--store-dir=" + s.cfg.StoreDir,
	}
	cmd := newChildCommand(ctx, s.cfg.ExecutablePath, args, nil)

	pid, _, mux, err := s.spawnChild(ctx, cmd, "nfs")
	if err != nil {
		return err
	}
	s.nfsMux = mux
	s.teardown = append(s.teardown, func(ctx context.Context) error {
		return terminateAndWait(mux, pid)
	})
	return nil
}

func (s *Supervisor) step4RecordRow(ctx context.Context) error {
	supervisorPID := os.Getpid()
	nfsPID := s.nfsMux.Pid()

	if err := s.db.Insert(ctx, sandboxdb.Filesystem{
		Project:       s.cfg.Project,
		Name:          s.cfg.Sandbox,
		MountDir:      s.cfg.MountPoint,
		LogPath:       s.cfg.LogDir,
		SupervisorPID: supervisorPID,
		NFSServerPID:  nfsPID,
		Status:        sandboxdb.StatusStarting,
		CreatedAt:     time.Now(),
	}); err != nil {
		return errs.Wrap(errs.CodeInternal, err, "record filesystem row").WithComponent("supervisor", "step4")
	}

	s.teardown = append(s.teardown, func(ctx context.Context) error {
		if err := s.db.Delete(ctx, s.cfg.Project, s.cfg.Sandbox); err != nil {
			s.log.Warn("delete filesystem row failed", map[string]interface{}{"error": err.Error()})
		}
		return nil
	})
	return nil
}

func (s *Supervisor) step5Mount(ctx context.Context) error {
	if err := mountNFS(ctx, s.cfg.NFSHost, s.nfsPort, s.cfg.MountPoint); err != nil {
		return err
	}
	s.teardown = append(s.teardown, func(ctx context.Context) error {
		return unmountNFS(ctx, s.cfg.MountPoint)
	})
	return nil
}

func (s *Supervisor) step6SpawnMicroVM(ctx context.Context) error {
	args := composeMicroVMArgs(s.cfg)
	cmd := newChildCommand(ctx, s.cfg.ExecutablePath, args, envSlice(s.cfg.Env))

	pid, _, mux, err := s.spawnChild(ctx, cmd, "microvm")
	if err != nil {
		return err
	}
	s.microvmMux = mux
	s.cgroupDone = applyResourceLimits(s.log, s.cfg.Sandbox, pid, s.cfg.RAMMiB, s.cfg.NumVCPUs)

	if err := s.db.UpdateMicroVMPID(ctx, s.cfg.Project, s.cfg.Sandbox, pid); err != nil {
		s.log.Warn("record microvm pid failed", map[string]interface{}{"error": err.Error()})
	}

	s.teardown = append(s.teardown, func(ctx context.Context) error {
		if s.cgroupDone != nil {
			s.cgroupDone()
		}
		return terminateAndWait(mux, pid)
	})
	return nil
}

func (s *Supervisor) step7RegisterSignals() {
	// handled by Run's signal.Notify; nothing to do at Start time beyond
	// documenting the step for teardown-ordering purposes.
}

// composeMicroVMArgs builds the argv spec §6 specifies for the microVM
// child, mirroring the Rust original's compose_microvm_args.
func composeMicroVMArgs(cfg Config) []string {
	args := []string{"microvm",
		"--root-path=" + cfg.RootPath,
		"--num-vcpus=" + strconv.Itoa(cfg.NumVCPUs),
		"--ram-mib=" + strconv.Itoa(cfg.RAMMiB),
		"--workdir-path=" + cfg.Workdir,
		"--exec-path=" + cfg.ExecPath,
	}
	if len(cfg.Env) > 0 {
		pairs := make([]string, 0, len(cfg.Env))
		for k, v := range cfg.Env {
			pairs = append(pairs, k+"="+v)
		}
		args = append(args, "--env="+strings.Join(pairs, ","))
	}
	if len(cfg.MappedDirs) > 0 {
		pairs := make([]string, 0, len(cfg.MappedDirs))
		for host, guest := range cfg.MappedDirs {
			pairs = append(pairs, host+":"+guest)
		}
		args = append(args, "--mapped-dirs="+strings.Join(pairs, ","))
	}
	if len(cfg.PortMap) > 0 {
		pairs := make([]string, 0, len(cfg.PortMap))
		for host, guest := range cfg.PortMap {
			pairs = append(pairs, fmt.Sprintf("%d:%d", host, guest))
		}
		args = append(args, "--port-map="+strings.Join(pairs, ","))
	}
	args = append(args, "--")
	args = append(args, cfg.Args...)
	return args
}

// Run blocks until the microVM child exits, the NFS child exits, or a
// shutdown signal arrives, then executes the shutdown sequence.
func (s *Supervisor) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	microDone := make(chan error, 1)
	nfsDone := make(chan error, 1)
	go func() { microDone <- s.microvmMux.Wait() }()
	go func() { nfsDone <- s.nfsMux.Wait() }()

	var reason exitReason
	var microErr error
	select {
	case microErr = <-microDone:
		reason = reasonMicroVMExited
	case <-nfsDone:
		reason = reasonNFSExited
	case <-sigCh:
		reason = reasonSignal
	case <-ctx.Done():
		reason = reasonSignal
	}

	if err := s.db.UpdateStatus(ctx, s.cfg.Project, s.cfg.Sandbox, sandboxdb.StatusStopping); err != nil {
		s.log.Warn("status transition to stopping failed", map[string]interface{}{"error": err.Error()})
	}

	s.shutdown(ctx, reason)

	if s.metrics != nil && reason != reasonSignal {
		kind, clean := "nfs", true
		if reason == reasonMicroVMExited {
			kind, clean = "microvm", microErr == nil
		}
		s.metrics.RecordChildExit(kind, clean)
	}

	if reason == reasonMicroVMExited && microErr != nil {
		return microErr
	}
	return nil
}

// shutdown runs spec §4.I's explicit shutdown sequence: terminate the
// microVM child, unmount, terminate the NFS server child, delete the
// row. This is not a strict reverse of the startup steps (spec records
// the row at startup step 4, right after spawning the NFS server at
// step 3, but deletes it last at shutdown, after the NFS server child
// is gone) so it runs independently of the generic teardown stack
// failStartup uses for a partial-startup rollback.
func (s *Supervisor) shutdown(ctx context.Context, reason exitReason) {
	if s.cgroupDone != nil {
		s.cgroupDone()
	}
	if err := terminateAndWait(s.microvmMux, 0); err != nil {
		s.log.Warn("terminate microvm child failed", map[string]interface{}{"error": err.Error(), "reason": int(reason)})
	}
	if err := unmountNFS(ctx, s.cfg.MountPoint); err != nil {
		s.log.Warn("unmount failed", map[string]interface{}{"error": err.Error(), "reason": int(reason)})
	}
	if err := terminateAndWait(s.nfsMux, 0); err != nil {
		s.log.Warn("terminate nfs server child failed", map[string]interface{}{"error": err.Error(), "reason": int(reason)})
	}
	if err := s.db.Delete(ctx, s.cfg.Project, s.cfg.Sandbox); err != nil {
		s.log.Warn("delete filesystem row failed", map[string]interface{}{"error": err.Error(), "reason": int(reason)})
	}
	s.teardown = nil
}
