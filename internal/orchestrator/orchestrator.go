// Package orchestrator implements spec §4.J: the reconcile loop that
// diffs a declared set of sandboxes against the running set recorded in
// the active-sandbox database, starts what's missing, signals what's no
// longer declared, and leaves the rest alone.
//
// Grounded on monocore/lib/orchestration/up.rs's Orchestrator::up/
// start_service/assign_group_ip, generalized from its implicit-restart-
// on-field-change behavior into spec §4.J's explicit model: Apply never
// restarts a sandbox that is both declared and running. Restart is the
// separate, deliberate operation for that.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	sconfig "github.com/nimbuscore/sandboxcore/internal/config"
	"github.com/nimbuscore/sandboxcore/internal/metrics"
	"github.com/nimbuscore/sandboxcore/internal/registry"
	"github.com/nimbuscore/sandboxcore/internal/sandboxdb"
	"github.com/nimbuscore/sandboxcore/internal/store"
	"github.com/nimbuscore/sandboxcore/internal/store/chunk"
	"github.com/nimbuscore/sandboxcore/internal/store/layout"
	"github.com/nimbuscore/sandboxcore/internal/supervisor"
	"github.com/nimbuscore/sandboxcore/pkg/errs"
	"github.com/nimbuscore/sandboxcore/pkg/logging"
)

const lockFileName = ".sandboxcore.lock"

// Config is the orchestrator's own wiring, independent of any one
// apply's declared sandboxes.
type Config struct {
	Project              string
	ProjectDir           string // holds the advisory lock file and per-sandbox state
	SupervisorExecutable string
	LogDir               string
	StoreDir             string
	MountDir             string
	DBPath               string
	MaxParallelStarts    int

	Puller  registry.Puller // nil if no sandbox uses a registry reference
	Store   store.Store
	Chunker chunk.Chunker
	Layout  layout.Layout

	Metrics *metrics.Collector // nil disables operation/lifecycle metrics
}

func (c Config) withDefaults() Config {
	if c.MaxParallelStarts <= 0 {
		c.MaxParallelStarts = 4
	}
	if c.Chunker == nil {
		c.Chunker = chunk.NewFixedSizeChunker(1 << 20)
	}
	if c.Layout == nil {
		c.Layout = layout.FlatLayout{}
	}
	return c
}

// Orchestrator owns the group-IP map and the advisory reconcile lock for
// one project, per spec §5 ("the group-IP map is owned by the
// orchestrator; supervisors do not mutate it").
type Orchestrator struct {
	cfg Config
	db  *sandboxdb.DB
	log *logging.Logger

	mu   sync.Mutex
	pool *ipPool
}

// New builds an Orchestrator. db is the shared active-sandbox database.
// If cfg.ProjectDir already holds state from a prior orchestrator
// process, each sandbox's group IP is reattached so this process hands
// out the same addresses the last one did.
func New(cfg Config, db *sandboxdb.DB, log *logging.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	o := &Orchestrator{cfg: cfg, db: db, log: log, pool: newIPPool()}

	stateDir := filepath.Join(cfg.ProjectDir, "state")
	for _, st := range loadResolvedStates(stateDir) {
		ip := net.ParseIP(st.GroupIP)
		if ip == nil {
			continue
		}
		octet := ip.To4()
		if octet == nil {
			continue
		}
		group := st.Sandbox.Group
		if group == "" {
			group = st.Sandbox.Name
		}
		o.pool.Reattach(group, int(octet[3]))
	}
	return o
}

// Result summarizes one apply call: which sandboxes started, which were
// signaled to stop, and any per-sandbox error.
type Result struct {
	Started []string
	Stopped []string
	Errors  map[string]error
}

// Apply performs spec §4.J's reconcile algorithm under an advisory file
// lock scoped to the project directory. Concurrent Apply calls fail
// immediately with CodeReconcileLocked rather than blocking.
func (o *Orchestrator) Apply(ctx context.Context, declared sconfig.Declaration) (res *Result, outErr error) {
	start := time.Now()
	defer func() { o.recordOperation("apply", start, outErr) }()

	if err := declared.Validate(); err != nil {
		return nil, err
	}

	if err := cleanupOldLogs(o.cfg.LogDir, declared.ResolvedLogRetention()); err != nil {
		o.log.Warn("log retention cleanup failed", map[string]interface{}{"error": err.Error()})
	}

	if err := os.MkdirAll(o.cfg.ProjectDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.CodeInternal, err, "create project directory").WithComponent("orchestrator", "apply")
	}
	lock := flock.New(filepath.Join(o.cfg.ProjectDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, err, "acquire reconcile lock").WithComponent("orchestrator", "apply")
	}
	if !locked {
		return nil, errs.New(errs.CodeReconcileLocked, "another apply is already running for this project").
			WithComponent("orchestrator", "apply").WithDetail("project", o.cfg.Project)
	}
	defer lock.Unlock()

	running, err := o.db.ListByProject(ctx, o.cfg.Project)
	if err != nil {
		return nil, err
	}
	runningByName := make(map[string]sandboxdb.Filesystem, len(running))
	for _, fs := range running {
		runningByName[fs.Name] = fs
	}

	declaredByName := make(map[string]sconfig.Sandbox, len(declared.Sandboxes))
	for _, sb := range declared.Sandboxes {
		declaredByName[sb.Name] = sb
	}

	result := &Result{Errors: make(map[string]error)}

	// n ∈ D \ R: start, in declaration order.
	var toStart []sconfig.Sandbox
	for _, sb := range declared.Sandboxes {
		if _, alreadyRunning := runningByName[sb.Name]; !alreadyRunning {
			toStart = append(toStart, sb)
		}
	}

	// n ∈ R \ D: signal, in reverse of the order the database returned
	// (its ListByProject query orders by name; spec's "reverse
	// declaration order" tie-break has no prior declaration to consult
	// once a sandbox has dropped out of the new one).
	var toStop []sandboxdb.Filesystem
	for _, fs := range running {
		if _, stillDeclared := declaredByName[fs.Name]; !stillDeclared {
			toStop = append(toStop, fs)
		}
	}
	sort.Slice(toStop, func(i, j int) bool { return toStop[i].Name > toStop[j].Name })

	for _, fs := range toStop {
		if err := syscall.Kill(fs.SupervisorPID, syscall.SIGTERM); err != nil {
			result.Errors[fs.Name] = errs.Wrap(errs.CodeInternal, err, "signal supervisor").
				WithComponent("orchestrator", "apply").WithSandbox(fs.Name)
			continue
		}
		// A stopped sandbox is no longer declared, so its group comes from
		// the state startSandbox persisted for it.
		group := fs.Name
		if st, err := readState(filepath.Join(o.cfg.ProjectDir, "state"), fs.Name); err == nil && st.Sandbox.Group != "" {
			group = st.Sandbox.Group
		}
		o.mu.Lock()
		o.pool.Release(group)
		o.mu.Unlock()
		if err := removeState(filepath.Join(o.cfg.ProjectDir, "state"), fs.Name); err != nil {
			o.log.Warn("remove sandbox state failed", map[string]interface{}{"sandbox": fs.Name, "error": err.Error()})
		}
		result.Stopped = append(result.Stopped, fs.Name)
	}

	if len(toStart) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.MaxParallelStarts)
		var mu sync.Mutex
		for _, sb := range toStart {
			sb := sb
			g.Go(func() error {
				pid, startErr := o.startSandbox(gctx, sb)
				mu.Lock()
				defer mu.Unlock()
				if startErr != nil {
					result.Errors[sb.Name] = startErr
					return nil // per-sandbox errors don't abort siblings
				}
				_ = pid
				result.Started = append(result.Started, sb.Name)
				return nil
			})
		}
		// errgroup's own error is unused: every g.Go function returns nil
		// (per-sandbox errors go to result.Errors), so Wait returns nil.
		_ = g.Wait()
	}

	if o.cfg.Metrics != nil {
		o.cfg.Metrics.SetActiveSandboxes(len(runningByName) - len(result.Stopped) + len(result.Started))
	}
	return result, nil
}

// recordOperation reports one Apply call's outcome to the metrics
// collector, if one is configured. A nil Metrics leaves apply's cost
// identical to not having a collector at all.
func (o *Orchestrator) recordOperation(name string, start time.Time, err error) {
	if o.cfg.Metrics == nil {
		return
	}
	o.cfg.Metrics.RecordOperation(name, time.Since(start), err == nil)
	if err != nil {
		o.cfg.Metrics.RecordError(name, err)
	}
}

// Restart stops name's running supervisor and starts it again from its
// last-declared configuration. Spec §4.J's reconcile is pure diff-and-
// converge: it never restarts a sandbox that is both declared and
// running, even if the declaration's fields for it changed since the
// last apply. Restart is the explicit escape hatch for that case.
//
// Grounded on monocore/lib/orchestration/up.rs's implicit restart-on-
// field-change, reshaped into an explicit entry point since spec §4.J
// requires a restart to never happen as a side effect of apply.
func (o *Orchestrator) Restart(ctx context.Context, name string) (pid int, outErr error) {
	start := time.Now()
	defer func() { o.recordOperation("restart", start, outErr) }()

	fs, err := o.db.Get(ctx, o.cfg.Project, name)
	if err != nil {
		return 0, err
	}

	stateDir := filepath.Join(o.cfg.ProjectDir, "state")
	st, err := readState(stateDir, name)
	if err != nil {
		return 0, errs.Wrap(errs.CodeInternal, err, "read last-declared config for restart").
			WithComponent("orchestrator", "restart").WithSandbox(name)
	}

	if err := syscall.Kill(fs.SupervisorPID, syscall.SIGTERM); err != nil {
		return 0, errs.Wrap(errs.CodeInternal, err, "signal supervisor").
			WithComponent("orchestrator", "restart").WithSandbox(name)
	}

	// Delete the old row now rather than waiting for the signaled
	// supervisor's own shutdown to do it: startSandbox's Insert below
	// would otherwise race the old process's exit on the (project, name)
	// primary key. db.Delete is a no-op if the row is already gone by
	// the time the old supervisor gets there itself.
	if err := o.db.Delete(ctx, o.cfg.Project, name); err != nil {
		return 0, err
	}

	group := st.Sandbox.Group
	if group == "" {
		group = st.Sandbox.Name
	}
	o.mu.Lock()
	o.pool.Release(group)
	o.mu.Unlock()
	if err := removeState(stateDir, name); err != nil {
		o.log.Warn("remove sandbox state failed", map[string]interface{}{"sandbox": name, "error": err.Error()})
	}

	return o.startSandbox(ctx, st.Sandbox)
}

// startSandbox resolves the rootfs, assigns the group IP, persists the
// resolved state, spawns the supervisor and records its database row, and
// returns the spawned supervisor's PID. It prepares no per-sandbox
// overlay: the supervisor is handed the resolved root path as is.
func (o *Orchestrator) startSandbox(ctx context.Context, sb sconfig.Sandbox) (int, error) {
	rootPath, err := o.resolveRootfs(ctx, sb)
	if err != nil {
		return 0, err
	}

	group := sb.Group
	if group == "" {
		group = sb.Name
	}
	o.mu.Lock()
	ip, err := o.pool.Assign(group)
	o.mu.Unlock()
	if err != nil {
		return 0, err
	}

	stateDir := filepath.Join(o.cfg.ProjectDir, "state")
	if _, err := writeState(stateDir, resolvedState{Sandbox: sb, GroupIP: ip.String()}); err != nil {
		return 0, err
	}

	mappedDirs, err := sb.MappedDirs()
	if err != nil {
		return 0, err
	}
	portMap, err := sb.PortMap()
	if err != nil {
		return 0, err
	}

	if rootPath == "" {
		rootPath = "/"
	}
	supCfg := supervisor.Config{
		Project:        o.cfg.Project,
		Sandbox:        sb.Name,
		ExecutablePath: o.cfg.SupervisorExecutable,
		LogDir:         filepath.Join(o.cfg.LogDir, sb.Name),
		StoreDir:       filepath.Join(o.cfg.StoreDir, sb.Name),
		MountPoint:     filepath.Join(o.cfg.MountDir, sb.Name),
		DBPath:         o.cfg.DBPath,
		RootPath:       rootPath,
		RAMMiB:         sb.RAMMiB,
		NumVCPUs:       sb.NumVCPUs,
		Workdir:        sb.Workdir,
		ExecPath:       sb.ExecPath,
		Env:            sb.Env,
		MappedDirs:     mappedDirs,
		PortMap:        portMap,
		Args:           sb.Args,
	}

	launchPath, err := writeLaunchSpec(stateDir, sb.Name, supCfg)
	if err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(context.Background(), o.cfg.SupervisorExecutable, "supervise", "--state="+launchPath)
	if err := cmd.Start(); err != nil {
		return 0, errs.Wrap(errs.CodeSpawnFailed, err, "spawn supervisor").
			WithComponent("orchestrator", "start_sandbox").WithSandbox(sb.Name)
	}
	pid := cmd.Process.Pid

	if err := o.db.Insert(ctx, sandboxdb.Filesystem{
		Project:       o.cfg.Project,
		Name:          sb.Name,
		MountDir:      supCfg.MountPoint,
		LogPath:       supCfg.LogDir,
		SupervisorPID: pid,
		Status:        sandboxdb.StatusStarting,
		CreatedAt:     time.Now(),
	}); err != nil {
		o.log.Warn("record filesystem row after spawn failed", map[string]interface{}{"sandbox": sb.Name, "error": err.Error()})
	}

	return pid, nil
}

// resolveRootfs implements spec §4.J start-sequence step 1: materialize
// a registry reference into the block store, or use a local path as-is.
func (o *Orchestrator) resolveRootfs(ctx context.Context, sb sconfig.Sandbox) (string, error) {
	if sb.LocalRootPath != "" {
		return sb.LocalRootPath, nil
	}
	if sb.ImageReference == "" {
		return "", nil
	}
	if o.cfg.Puller == nil {
		return "", errs.New(errs.CodeConfigValidation, "sandbox declares an image reference but no puller is configured").
			WithComponent("orchestrator", "resolve_rootfs").WithSandbox(sb.Name)
	}
	ref := parseLayerRef(sb.ImageReference)
	cid, err := registry.Materialize(ctx, o.cfg.Puller, ref, o.cfg.Store, o.cfg.Chunker, o.cfg.Layout)
	if err != nil {
		return "", err
	}
	return cid.String(), nil
}

// parseLayerRef splits an "image_reference" of the form "bucket/key"
// into the registry's LayerRef. Image tag/digest resolution beyond a
// single layer object is a registry-side concern spec leaves unspecified
// past "ensure the image's layers are in the block store".
func parseLayerRef(ref string) registry.LayerRef {
	for i := 0; i < len(ref); i++ {
		if ref[i] == '/' {
			return registry.LayerRef{Bucket: ref[:i], Key: ref[i+1:]}
		}
	}
	return registry.LayerRef{Bucket: ref}
}

func groupOf(declared map[string]sconfig.Sandbox, name string) string {
	if sb, ok := declared[name]; ok && sb.Group != "" {
		return sb.Group
	}
	return name
}

// writeLaunchSpec persists the resolved supervisor.Config the re-exec'd
// "supervise" subcommand reads, so the spawn argv stays short (spec §6's
// contract is for the NFS-server/microVM children, not the supervisor
// itself, which this project launches via a state file rather than a
// long flag list).
func writeLaunchSpec(stateDir, name string, cfg supervisor.Config) (string, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return "", errs.Wrap(errs.CodeInternal, err, "create state directory").WithComponent("orchestrator", "write_launch_spec")
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", errs.Wrap(errs.CodeInternal, err, "marshal supervisor config").WithComponent("orchestrator", "write_launch_spec")
	}
	path := filepath.Join(stateDir, fmt.Sprintf("%s.supervisor.json", name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errs.Wrap(errs.CodeInternal, err, "write supervisor config").WithComponent("orchestrator", "write_launch_spec")
	}
	return path, nil
}

// ReadLaunchSpec reads back what writeLaunchSpec wrote; used by the
// "supervise" subcommand to rebuild the Config it was spawned with.
func ReadLaunchSpec(path string) (supervisor.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return supervisor.Config{}, errs.Wrap(errs.CodeInternal, err, "read supervisor config").WithComponent("orchestrator", "read_launch_spec")
	}
	var cfg supervisor.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return supervisor.Config{}, errs.Wrap(errs.CodeInternal, err, "unmarshal supervisor config").WithComponent("orchestrator", "read_launch_spec")
	}
	return cfg, nil
}

// IsAlive probes whether pid is still a live process via a signal-0
// send, spec's testable property 12 ("process is still alive").
func IsAlive(pid int) bool {
	return syscall.Kill(pid, syscall.Signal(0)) == nil
}
