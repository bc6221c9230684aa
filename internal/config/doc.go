// Package config holds the declared-state types an operator writes by
// hand: which sandboxes should exist, what resources and mappings each
// gets, which network group it belongs to, and how aggressively old
// child logs get cleaned up before a reconcile runs.
//
// It deliberately knows nothing about running state — that lives in
// internal/sandboxdb — so a Declaration can be loaded, diffed, and
// discarded without touching the database.
package config
