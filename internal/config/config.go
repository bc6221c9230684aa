// Package config is the declared-state half of the orchestrator: the
// sandboxes and groups a project wants running, loaded from YAML, plus
// the log retention policy applied at the start of a reconcile.
//
// Grounded on monocore/lib/config/monocore/builder.rs (Sandbox/Group
// field set) and monocore/lib/orchestration/log_policy.rs (retention),
// with the teacher's gopkg.in/yaml.v2 loader kept as the serialization
// mechanism.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

// Sandbox is one declared sandbox: its image source, resource limits,
// and host/guest mappings. Field names mirror monocore's SandboxBuilder
// (image, ram, cpus, volumes, ports, envs, workdir, group).
type Sandbox struct {
	Name           string            `yaml:"name"`
	ImageReference string            `yaml:"image"`
	LocalRootPath  string            `yaml:"local_root_path,omitempty"`
	RAMMiB         int               `yaml:"ram_mib"`
	NumVCPUs       int               `yaml:"num_vcpus"`
	Volumes        []string          `yaml:"volumes,omitempty"` // "host:guest" or "path"
	Ports          []string          `yaml:"ports,omitempty"`   // "host:guest" or "port"
	Env            map[string]string `yaml:"env,omitempty"`
	Workdir        string            `yaml:"workdir,omitempty"`
	ExecPath       string            `yaml:"exec_path,omitempty"`
	Args           []string          `yaml:"args,omitempty"`
	Group          string            `yaml:"group,omitempty"`
}

// Group is a declared network namespace shared by the sandboxes that
// reference it by name.
type Group struct {
	Name string `yaml:"name"`
}

// LogRetentionPolicy governs the cleanup apply runs before reconciling,
// layered onto the rotating log's own size/age/backup-count rotation.
// Grounded on monocore/lib/orchestration/log_policy.rs's cleanup_old_logs.
type LogRetentionPolicy struct {
	MaxAge      time.Duration `yaml:"max_age"`
	MaxBackups  int           `yaml:"max_backups"`
	AutoCleanup bool          `yaml:"auto_cleanup"`
}

// DefaultLogRetentionPolicy mirrors the original's defaults: keep seven
// days, thirty backups, clean up automatically on apply.
func DefaultLogRetentionPolicy() LogRetentionPolicy {
	return LogRetentionPolicy{
		MaxAge:      7 * 24 * time.Hour,
		MaxBackups:  30,
		AutoCleanup: true,
	}
}

// Declaration is the full set of sandboxes and groups a project wants
// running, the input to the orchestrator's apply.
type Declaration struct {
	Sandboxes    []Sandbox          `yaml:"sandboxes"`
	Groups       []Group            `yaml:"groups,omitempty"`
	LogRetention LogRetentionPolicy `yaml:"log_retention,omitempty"`
}

// ResolvedLogRetention returns d's log retention policy, falling back to
// DefaultLogRetentionPolicy when the declaration left it unset (the zero
// value has AutoCleanup false, which is itself a valid opt-out, so the
// fallback only applies when every field is still zero).
func (d Declaration) ResolvedLogRetention() LogRetentionPolicy {
	if d.LogRetention == (LogRetentionPolicy{}) {
		return DefaultLogRetentionPolicy()
	}
	return d.LogRetention
}

// Load reads and validates a declaration from a YAML file.
func Load(path string) (Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Declaration{}, errs.Wrap(errs.CodeInternal, err, "read declaration file").WithComponent("config", "load")
	}
	var d Declaration
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Declaration{}, errs.Wrap(errs.CodeConfigValidation, err, "parse declaration yaml").WithComponent("config", "load")
	}
	if err := d.Validate(); err != nil {
		return Declaration{}, err
	}
	return d, nil
}

// Validate checks sandbox-name uniqueness (spec §4.J step 1) and that
// every path/port pair parses.
func (d Declaration) Validate() error {
	seen := make(map[string]bool, len(d.Sandboxes))
	for _, sb := range d.Sandboxes {
		if sb.Name == "" {
			return errs.New(errs.CodeConfigValidation, "sandbox name is empty").WithComponent("config", "validate")
		}
		if seen[sb.Name] {
			return errs.New(errs.CodeDuplicateSandbox, fmt.Sprintf("sandbox %q declared more than once", sb.Name)).
				WithComponent("config", "validate").WithDetail("name", sb.Name)
		}
		seen[sb.Name] = true

		if sb.ImageReference == "" && sb.LocalRootPath == "" {
			return errs.New(errs.CodeConfigValidation, "sandbox has neither image nor local_root_path").
				WithComponent("config", "validate").WithDetail("name", sb.Name)
		}
		for _, v := range sb.Volumes {
			if _, err := ParsePathPair(v); err != nil {
				return err
			}
		}
		for _, p := range sb.Ports {
			if _, err := ParsePortPair(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// MappedDirs parses Volumes into the host->guest map the supervisor's
// argv contract expects.
func (s Sandbox) MappedDirs() (map[string]string, error) {
	out := make(map[string]string, len(s.Volumes))
	for _, v := range s.Volumes {
		pair, err := ParsePathPair(v)
		if err != nil {
			return nil, err
		}
		out[pair.Host] = pair.Guest
	}
	return out, nil
}

// PortMap parses Ports into the host->guest map the supervisor's argv
// contract expects.
func (s Sandbox) PortMap() (map[int]int, error) {
	out := make(map[int]int, len(s.Ports))
	for _, p := range s.Ports {
		pair, err := ParsePortPair(p)
		if err != nil {
			return nil, err
		}
		out[pair.Host] = pair.Guest
	}
	return out, nil
}
