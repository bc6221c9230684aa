package supervisor

import (
	"context"
	"os/exec"
	"syscall"
	"time"

	"github.com/nimbuscore/sandboxcore/internal/childio"
	"github.com/nimbuscore/sandboxcore/pkg/logging"
)

// newChildCommand builds the exec.Cmd for a re-exec'd subcommand of the
// supervisor's own binary (the NFS server and microVM "children" are
// both argv-selected modes of the same executable, mirroring the Rust
// original's env::current_exe() pattern).
func newChildCommand(ctx context.Context, executable string, args []string, env []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, executable, args...)
	cmd.Env = env
	return cmd
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// spawnChild starts cmd in piped mode (children run headless; TTY mode
// is reserved for an operator attaching interactively, which this
// always-detached supervision path does not do), attaches a rotating
// log named per spec §6, and returns the child's PID.
func (s *Supervisor) spawnChild(ctx context.Context, cmd *exec.Cmd, prefix string) (int, *logging.Logger, *childio.Multiplexer, error) {
	mux, err := childio.Start(ctx, cmd, childio.Piped)
	if err != nil {
		return 0, nil, nil, err
	}

	pid := mux.Pid()
	childLog, logErr := logging.NewChildLogger(s.cfg.LogDir, prefix, s.cfg.Sandbox, pid, time.Now().Unix())
	if logErr != nil {
		s.log.Warn("per-child log setup failed, forwarding to supervisor log instead", map[string]interface{}{"error": logErr.Error()})
		childLog = s.log
	}
	mux.BeginForwarding(childLog)
	return pid, childLog, mux, nil
}

// terminateAndWait sends SIGTERM and waits for the child to exit,
// implementing the "send signal; wait; no mandated timeout" steps of
// spec §4.I's shutdown sequence.
func terminateAndWait(mux *childio.Multiplexer, pid int) error {
	if err := mux.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	return mux.Wait()
}
