// Package supervisor implements the per-sandbox supervisor runtime of
// spec §4.I: it spawns the NFS server child, mounts its export as the
// sandbox's root, spawns the microVM child, monitors both, and tears
// everything down in reverse order on exit.
//
// Grounded on original_source/monocore/lib/management/supervise.rs's
// start_supervision/bootstrap_microvm, generalized from a single always-
// on-interactive-terminal path into the full startup/shutdown sequence
// spec §4.I spells out.
package supervisor

// Config is everything one sandbox's supervisor needs to start. It is
// JSON-serializable so the orchestrator can hand it to a re-exec'd
// supervisor process as a state file rather than a long argv.
type Config struct {
	Project string `json:"project"`
	Sandbox string `json:"sandbox"`

	ExecutablePath string `json:"executable_path"` // re-exec target for the nfs-server and microvm subcommands
	LogDir         string `json:"log_dir"`
	StoreDir       string `json:"store_dir"`
	MountPoint     string `json:"mount_point"`
	DBPath         string `json:"db_path"`

	NFSHost      string `json:"nfs_host"`
	NFSPortStart int    `json:"nfs_port_start"`
	NFSPortRange int    `json:"nfs_port_range"`

	RootPath   string            `json:"root_path"`
	RAMMiB     int               `json:"ram_mib"`
	NumVCPUs   int               `json:"num_vcpus"`
	Workdir    string            `json:"workdir"`
	ExecPath   string            `json:"exec_path"`
	Env        map[string]string `json:"env,omitempty"`
	MappedDirs map[string]string `json:"mapped_dirs,omitempty"`
	PortMap    map[int]int       `json:"port_map,omitempty"`
	Args       []string          `json:"args,omitempty"`
}

// withDefaults fills in zero-valued fields spec §6 gives a default for.
func (c Config) withDefaults() Config {
	if c.NFSHost == "" {
		c.NFSHost = "127.0.0.1"
	}
	if c.NFSPortStart == 0 {
		c.NFSPortStart = 2049
	}
	if c.NFSPortRange == 0 {
		c.NFSPortRange = 100
	}
	return c
}
