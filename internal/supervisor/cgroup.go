package supervisor

import (
	"fmt"

	"github.com/containerd/cgroups/v3/cgroup2"

	"github.com/nimbuscore/sandboxcore/pkg/logging"
)

const cpuPeriodMicros = 100000

// applyResourceLimits creates a cgroup capping the microVM child to
// ramMiB of memory and numVCPUs worth of CPU time, then adds pid to it.
// Cgroup setup is best-effort: a host without a delegated cgroup v2
// hierarchy (common in containerized CI) logs a warning and lets the
// child run unconfined rather than failing the sandbox start, since
// spec §4.I's startup sequence does not name resource limiting as a
// fallible step.
func applyResourceLimits(log *logging.Logger, sandbox string, pid, ramMiB, numVCPUs int) func() {
	memMax := int64(ramMiB) * 1024 * 1024
	quota := int64(numVCPUs) * cpuPeriodMicros
	period := uint64(cpuPeriodMicros)

	res := &cgroup2.Resources{
		Memory: &cgroup2.Memory{Max: &memMax},
		CPU:    &cgroup2.CPU{Max: cgroup2.NewCPUMax(&quota, &period)},
	}

	group := fmt.Sprintf("/sandboxcore/%s", sandbox)
	mgr, err := cgroup2.NewManager("/sys/fs/cgroup", group, res)
	if err != nil {
		log.Warn("cgroup setup failed, running microvm child unconfined", map[string]interface{}{"error": err.Error()})
		return func() {}
	}

	if err := mgr.AddProc(uint64(pid)); err != nil {
		log.Warn("cgroup AddProc failed, running microvm child unconfined", map[string]interface{}{"error": err.Error()})
	}

	return func() {
		if err := mgr.Delete(); err != nil {
			log.Warn("cgroup cleanup failed", map[string]interface{}{"error": err.Error()})
		}
	}
}
