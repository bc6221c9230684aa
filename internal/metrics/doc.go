// Package metrics is the Prometheus surface for the sandbox core:
// operation counters/histograms for the orchestrator's apply and restart
// calls, a child-exit counter labeled by kind
// and cleanliness, and an active-sandbox gauge the orchestrator updates
// after each apply.
//
// Serves /metrics (Prometheus exposition), /health, and two debug
// endpoints (/debug/metrics as JSON, /debug/operations as a text table)
// for operators without a Prometheus scraper handy.
package metrics
