package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/nimbuscore/sandboxcore/pkg/logging"
)

// runMicroVM implements the microvm spawn contract of spec §6: argv
// {microvm, --root-path=R, --num-vcpus=N, --ram-mib=M, --workdir-path=W,
// --exec-path=E, --env=…, --mapped-dirs=…, --port-map=…, --, arg1, …}.
//
// Real virtualization is out of scope (spec's Non-goals exclude the
// hypervisor itself); what stands in for the microVM is the workload
// process itself, started with the declared workdir and environment
// and resource-limited by the supervisor's cgroup, exactly as the real
// VM's guest process would be from the host's point of view. Mapped
// directories and the port map are spec §4.A path/port contracts the
// guest kernel would apply; there is no guest kernel here to apply them
// against, so they are parsed and validated but not enforced.
func runMicroVM(argv []string) int {
	flagArgs, workloadArgs := splitFlagsAndArgs(argv)

	fs := flag.NewFlagSet("microvm", flag.ContinueOnError)
	rootPath := fs.String("root-path", "/", "guest-side root path")
	numVCPUs := fs.Int("num-vcpus", 1, "virtual CPU count")
	ramMiB := fs.Int("ram-mib", 256, "memory limit in MiB")
	workdirPath := fs.String("workdir-path", "", "working directory for the workload")
	execPath := fs.String("exec-path", "", "workload executable (required)")
	env := fs.String("env", "", "comma-separated K=V pairs")
	mappedDirs := fs.String("mapped-dirs", "", "comma-separated host:guest directory pairs")
	portMap := fs.String("port-map", "", "comma-separated host:guest port pairs")
	jsonLogs := fs.Bool("json-logs", false, "emit operator-facing logs as JSON")
	if err := fs.Parse(flagArgs); err != nil {
		return 2
	}

	log := logging.Operational(*jsonLogs)
	if *execPath == "" {
		log.Error("missing required flag: -exec-path")
		return 2
	}
	if _, err := parseCommaSeparatedPairs(*mappedDirs); err != nil {
		log.WithError(err).Error("parse -mapped-dirs")
		return 2
	}
	if _, err := parseCommaSeparatedPairs(*portMap); err != nil {
		log.WithError(err).Error("parse -port-map")
		return 2
	}
	log.WithFields(map[string]interface{}{
		"root_path": *rootPath, "num_vcpus": *numVCPUs, "ram_mib": *ramMiB,
	}).Debug("resource limits are the supervisor's cgroup's job, not this process's")

	environ := os.Environ()
	for _, pair := range strings.Split(*env, ",") {
		if pair == "" {
			continue
		}
		environ = append(environ, pair)
	}

	if *workdirPath != "" {
		if err := os.Chdir(*workdirPath); err != nil {
			log.WithError(err).Error("change to workdir-path")
			return 1
		}
	}

	args := append([]string{*execPath}, workloadArgs...)
	if err := syscall.Exec(*execPath, args, environ); err != nil {
		log.WithError(err).Error("exec workload")
		return 1
	}
	return 0 // unreachable: a successful Exec replaces this process image
}

// parseCommaSeparatedPairs validates spec §6's "a:b,c:d" list shape
// without interpreting what each pair means; mapped-dirs validates its
// paths via config.ParsePathPair and port-map via config.ParsePortPair
// upstream, in the orchestrator, before this argv is ever composed.
func parseCommaSeparatedPairs(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	pairs := strings.Split(s, ",")
	for _, p := range pairs {
		if !strings.Contains(p, ":") {
			return nil, fmt.Errorf("malformed pair %q", p)
		}
	}
	return pairs, nil
}
