package orchestrator

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	sconfig "github.com/nimbuscore/sandboxcore/internal/config"
)

// cleanupOldLogs sweeps every per-sandbox subdirectory of logDir, per
// policy's MaxAge/MaxBackups, mirroring the rotator's own excess-then-age
// ordering. Run once at the start of apply. It does not check whether a
// sandbox is still running: a running sandbox's directory, including the
// files its children's rotators still write to, is swept like any other.
//
// Grounded on monocore/lib/orchestration/log_policy.rs's cleanup_old_logs,
// called from up.rs before reconciling.
func cleanupOldLogs(logDir string, policy sconfig.LogRetentionPolicy) error {
	if !policy.AutoCleanup {
		return nil
	}
	sandboxDirs, err := os.ReadDir(logDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, d := range sandboxDirs {
		if !d.IsDir() {
			continue
		}
		if err := cleanupSandboxLogDir(filepath.Join(logDir, d.Name()), policy); err != nil {
			return err
		}
	}
	return nil
}

func cleanupSandboxLogDir(dir string, policy sconfig.LogRetentionPolicy) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	files := make([]fileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	var toDelete []string
	if policy.MaxBackups > 0 && len(files) > policy.MaxBackups {
		excess := len(files) - policy.MaxBackups
		for i := 0; i < excess; i++ {
			toDelete = append(toDelete, files[i].path)
		}
		files = files[excess:]
	}

	if policy.MaxAge > 0 {
		cutoff := time.Now().Add(-policy.MaxAge)
		for _, f := range files {
			if f.modTime.Before(cutoff) {
				toDelete = append(toDelete, f.path)
			}
		}
	}

	for _, path := range toDelete {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
