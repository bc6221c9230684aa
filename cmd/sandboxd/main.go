// Command sandboxd is the single binary spec §6 spawns under five
// different argv-selected modes: "apply" reconciles a declared set of
// sandboxes (the operator-facing entry point), "restart" is the explicit
// stop-then-start escape hatch for one sandbox, "supervise" is the
// re-exec target the orchestrator spawns per sandbox, and "nfs-server"/
// "microvm" are the re-exec targets the supervisor itself spawns as its
// two children.
//
// Grounded on original_source/monocore/lib/cli: a single executable
// dispatching on argv[1], the same pattern the Rust original uses for
// its own --run-supervisor/--run-microvm flags, adapted to Go's
// convention of a verb-first subcommand rather than a flag.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: sandboxd <apply|restart|supervise|nfs-server|microvm> [flags]")
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var code int
	switch cmd {
	case "apply":
		code = runApply(args)
	case "restart":
		code = runRestart(args)
	case "supervise":
		code = runSupervise(args)
	case "nfs-server":
		code = runNFSServer(args)
	case "microvm":
		code = runMicroVM(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", cmd)
		code = 2
	}
	os.Exit(code)
}

// splitFlagsAndArgs separates argv at a bare "--" terminator, the
// convention spec §6's microVM spawn contract uses to separate the
// VM's own flags from the workload's argv. flag.FlagSet treats a lone
// "-" or "--" as an ordinary positional argument rather than a
// terminator, so this is done by hand before handing args to flag.Parse.
func splitFlagsAndArgs(argv []string) (flags, rest []string) {
	for i, a := range argv {
		if a == "--" {
			return argv[:i], argv[i+1:]
		}
	}
	return argv, nil
}
