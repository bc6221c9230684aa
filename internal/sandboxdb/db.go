// Package sandboxdb is the active-sandbox database: the single `filesystems`
// table rows are created by supervisors on startup, deleted by supervisors
// on shutdown, and queried by the orchestrator's reconcile loop.
//
// Grounded on original_source/monofs/lib/management/db.rs: a SQLite pool
// capped at 5 connections, schema ensured on open rather than a separate
// migration step (this domain has one table and no migration history to
// carry).
package sandboxdb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

const maxPoolConnections = 5

const schema = `
CREATE TABLE IF NOT EXISTS filesystems (
	project         TEXT NOT NULL,
	name            TEXT NOT NULL,
	mount_dir       TEXT NOT NULL,
	log_path        TEXT NOT NULL,
	supervisor_pid  INTEGER NOT NULL,
	nfsserver_pid   INTEGER NOT NULL,
	microvm_pid     INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	PRIMARY KEY (project, name)
);
`

// Status is the supervisor-record lifecycle state spec §3 defines.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusExited   Status = "exited"
)

// Filesystem is a row of the filesystems table: the runtime state of one
// sandbox's supervisor, as recorded for the orchestrator to query.
type Filesystem struct {
	Project       string
	Name          string
	MountDir      string
	LogPath       string
	SupervisorPID int
	NFSServerPID  int
	MicroVMPID    int
	Status        Status
	CreatedAt     time.Time
}

// DB wraps a pooled SQLite connection to the active-sandbox database.
type DB struct {
	conn *sql.DB
}

// Open creates the parent directory and database file if absent, ensures
// the schema, and returns a pool capped at maxPoolConnections — the same
// ceiling the Rust original applies to its sqlx pool.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.Wrap(errs.CodeInternal, err, "create database directory").WithComponent("sandboxdb", "open")
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, err, "open database").WithComponent("sandboxdb", "open")
	}
	conn.SetMaxOpenConns(maxPoolConnections)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, errs.Wrap(errs.CodeInternal, err, "ensure schema").WithComponent("sandboxdb", "open")
	}

	return &DB{conn: conn}, nil
}

// Close releases the pool.
func (db *DB) Close() error { return db.conn.Close() }

// Insert records a new supervisor's filesystem row. Used by supervisor
// startup step 4.
func (db *DB) Insert(ctx context.Context, fs Filesystem) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO filesystems
			(project, name, mount_dir, log_path, supervisor_pid, nfsserver_pid, microvm_pid, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fs.Project, fs.Name, fs.MountDir, fs.LogPath,
		fs.SupervisorPID, fs.NFSServerPID, fs.MicroVMPID, string(fs.Status), fs.CreatedAt.Unix())
	if err != nil {
		return errs.Wrap(errs.CodeInternal, err, "insert filesystem row").WithComponent("sandboxdb", "insert")
	}
	return nil
}

// UpdateStatus transitions a row's status, e.g. starting -> running.
func (db *DB) UpdateStatus(ctx context.Context, project, name string, status Status) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE filesystems SET status = ? WHERE project = ? AND name = ?`,
		string(status), project, name)
	if err != nil {
		return errs.Wrap(errs.CodeInternal, err, "update filesystem status").WithComponent("sandboxdb", "update_status")
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return errs.New(errs.CodeNotFound, "filesystem row not found").WithComponent("sandboxdb", "update_status").
			WithDetail("project", project).WithDetail("name", name)
	}
	return nil
}

// UpdateMicroVMPID records the microVM child's PID after it is spawned
// (startup step 6 happens after the row is inserted in step 4).
func (db *DB) UpdateMicroVMPID(ctx context.Context, project, name string, pid int) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE filesystems SET microvm_pid = ? WHERE project = ? AND name = ?`,
		pid, project, name)
	if err != nil {
		return errs.Wrap(errs.CodeInternal, err, "update microvm pid").WithComponent("sandboxdb", "update_microvm_pid")
	}
	return nil
}

// Delete removes a sandbox's row. Supervisor shutdown step 4; a failure
// here is logged by the caller, not fatal, per spec.
func (db *DB) Delete(ctx context.Context, project, name string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM filesystems WHERE project = ? AND name = ?`, project, name)
	if err != nil {
		return errs.Wrap(errs.CodeInternal, err, "delete filesystem row").WithComponent("sandboxdb", "delete")
	}
	return nil
}

// ListByProject returns the set of currently running sandboxes for a
// project, the orchestrator's reconcile-loop query (step 2).
func (db *DB) ListByProject(ctx context.Context, project string) ([]Filesystem, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT project, name, mount_dir, log_path, supervisor_pid, nfsserver_pid, microvm_pid, status, created_at
		FROM filesystems WHERE project = ? ORDER BY name`, project)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, err, "query filesystems by project").WithComponent("sandboxdb", "list_by_project")
	}
	defer rows.Close()

	var out []Filesystem
	for rows.Next() {
		var fs Filesystem
		var status string
		var createdAt int64
		if err := rows.Scan(&fs.Project, &fs.Name, &fs.MountDir, &fs.LogPath,
			&fs.SupervisorPID, &fs.NFSServerPID, &fs.MicroVMPID, &status, &createdAt); err != nil {
			return nil, errs.Wrap(errs.CodeInternal, err, "scan filesystem row").WithComponent("sandboxdb", "list_by_project")
		}
		fs.Status = Status(status)
		fs.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.CodeInternal, err, "iterate filesystem rows").WithComponent("sandboxdb", "list_by_project")
	}
	return out, nil
}

// Get fetches a single sandbox's row, or CodeNotFound if absent.
func (db *DB) Get(ctx context.Context, project, name string) (Filesystem, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT project, name, mount_dir, log_path, supervisor_pid, nfsserver_pid, microvm_pid, status, created_at
		FROM filesystems WHERE project = ? AND name = ?`, project, name)

	var fs Filesystem
	var status string
	var createdAt int64
	err := row.Scan(&fs.Project, &fs.Name, &fs.MountDir, &fs.LogPath,
		&fs.SupervisorPID, &fs.NFSServerPID, &fs.MicroVMPID, &status, &createdAt)
	if err == sql.ErrNoRows {
		return Filesystem{}, errs.New(errs.CodeNotFound, "filesystem row not found").WithComponent("sandboxdb", "get").
			WithDetail("project", project).WithDetail("name", name)
	}
	if err != nil {
		return Filesystem{}, errs.Wrap(errs.CodeInternal, err, "get filesystem row").WithComponent("sandboxdb", "get")
	}
	fs.Status = Status(status)
	fs.CreatedAt = time.Unix(createdAt, 0)
	return fs, nil
}
