package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/nimbuscore/sandboxcore/internal/config"
	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

// resolvedState is what gets persisted to stateDir for one sandbox: its
// declared config plus the group IP the orchestrator assigned, so a
// restarted orchestrator can reconstruct assigned_ips without relying on
// the caller re-supplying an identical declaration immediately.
//
// Grounded on monocore/lib/orchestration/up.rs's store_service_details,
// which persists service.json/group.json for the same reason.
type resolvedState struct {
	Sandbox config.Sandbox `json:"sandbox"`
	GroupIP string         `json:"group_ip,omitempty"`
}

func statePath(stateDir, name string) string {
	return filepath.Join(stateDir, name+".json")
}

func writeState(stateDir string, st resolvedState) (string, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return "", errs.Wrap(errs.CodeInternal, err, "create state directory").WithComponent("orchestrator", "write_state")
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return "", errs.Wrap(errs.CodeInternal, err, "marshal sandbox state").WithComponent("orchestrator", "write_state")
	}
	path := statePath(stateDir, st.Sandbox.Name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errs.Wrap(errs.CodeInternal, err, "write sandbox state").WithComponent("orchestrator", "write_state")
	}
	return path, nil
}

func readState(stateDir, name string) (resolvedState, error) {
	data, err := os.ReadFile(statePath(stateDir, name))
	if err != nil {
		return resolvedState{}, errs.Wrap(errs.CodeInternal, err, "read sandbox state").WithComponent("orchestrator", "read_state")
	}
	var st resolvedState
	if err := json.Unmarshal(data, &st); err != nil {
		return resolvedState{}, errs.Wrap(errs.CodeInternal, err, "unmarshal sandbox state").WithComponent("orchestrator", "read_state")
	}
	return st, nil
}

func removeState(stateDir, name string) error {
	if err := os.Remove(statePath(stateDir, name)); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.CodeInternal, err, "remove sandbox state").WithComponent("orchestrator", "remove_state")
	}
	return nil
}

// loadResolvedStates reads every persisted sandbox state in stateDir,
// skipping launch specs (*.supervisor.json) and any file that fails to
// parse — a corrupt state file should not block the orchestrator from
// starting, only cost that one sandbox its group-IP reattachment.
func loadResolvedStates(stateDir string) []resolvedState {
	entries, err := os.ReadDir(stateDir)
	if err != nil {
		return nil
	}
	var out []resolvedState
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, ".supervisor.json") || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(stateDir, name))
		if err != nil {
			continue
		}
		var st resolvedState
		if err := json.Unmarshal(data, &st); err != nil {
			continue
		}
		out = append(out, st)
	}
	return out
}
