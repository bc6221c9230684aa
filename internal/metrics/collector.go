package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is the Prometheus-backed metrics surface for one
// orchestrator/supervisor process: sandbox lifecycle counters, child
// exit reasons, and generic operation timing for the store/registry/
// mount collaborators.
//
// Grounded on the teacher's internal/metrics/collector.go, stripped of
// its cache-tier metrics (this domain has no weighted-LRU cache) and
// given sandbox-lifecycle metrics in their place.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorCounter      *prometheus.CounterVec
	activeSandboxes   prometheus.Gauge
	childExitCounter  *prometheus.CounterVec

	operations map[string]*OperationMetrics
	lastReset  time.Time

	server *http.Server
}

// Config configures the metrics collector.
type Config struct {
	Enabled        bool              `yaml:"enabled"`
	Port           int               `yaml:"port"`
	Path           string            `yaml:"path"`
	Labels         map[string]string `yaml:"labels"`
	Namespace      string            `yaml:"namespace"`
	Subsystem      string            `yaml:"subsystem"`
	UpdateInterval time.Duration     `yaml:"update_interval"`
}

// OperationMetrics tracks in-process stats for one operation kind,
// mirrored into Prometheus and also available via GetMetrics for the
// debug endpoints.
type OperationMetrics struct {
	Count         int64
	TotalDuration time.Duration
	Errors        int64
	LastOperation time.Time
	AvgDuration   time.Duration
}

// NewCollector builds a Collector. A nil config gets domain defaults.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:        true,
			Port:           9090,
			Path:           "/metrics",
			Namespace:      "sandboxcore",
			UpdateInterval: 30 * time.Second,
			Labels:         make(map[string]string),
		}
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	registry := prometheus.NewRegistry()
	collector := &Collector{
		config:     config,
		registry:   registry,
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}

	collector.initMetrics()
	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	return collector, nil
}

// Start serves /metrics, /health, and two debug endpoints, and kicks off
// the periodic-update loop.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/metrics", c.debugMetricsHandler)
	mux.HandleFunc("/debug/operations", c.debugOperationsHandler)

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()
	go c.updateLoop(ctx)

	return nil
}

// Stop shuts down the metrics HTTP server, if one was started.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// RecordOperation tracks one operation's outcome: a supervisor startup
// step, a reconcile pass, a layer materialization, an NFS request.
func (c *Collector) RecordOperation(operation string, duration time.Duration, success bool) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	m, exists := c.operations[operation]
	if !exists {
		m = &OperationMetrics{}
		c.operations[operation] = m
	}
	m.Count++
	m.TotalDuration += duration
	if !success {
		m.Errors++
	}
	m.LastOperation = time.Now()
	m.AvgDuration = time.Duration(int64(m.TotalDuration) / m.Count)

	status := "success"
	if !success {
		status = "error"
	}
	c.operationCounter.With(prometheus.Labels{"operation": operation, "status": status}).Inc()
	c.operationDuration.With(prometheus.Labels{"operation": operation}).Observe(duration.Seconds())
}

// RecordError records a classified error against an operation kind.
func (c *Collector) RecordError(operation string, err error) {
	if !c.config.Enabled {
		return
	}
	c.errorCounter.With(prometheus.Labels{"operation": operation, "type": classifyError(err)}).Inc()
}

// RecordChildExit records a supervised child (nfs-server or microvm)
// exiting, labeled by kind and whether the exit was clean.
func (c *Collector) RecordChildExit(kind string, clean bool) {
	if !c.config.Enabled {
		return
	}
	status := "clean"
	if !clean {
		status = "error"
	}
	c.childExitCounter.With(prometheus.Labels{"kind": kind, "status": status}).Inc()
}

// SetActiveSandboxes reports the current count of running sandboxes, set
// by the orchestrator after each apply.
func (c *Collector) SetActiveSandboxes(count int) {
	if !c.config.Enabled {
		return
	}
	c.activeSandboxes.Set(float64(count))
}

// GetMetrics returns a snapshot of the in-process operation tracking.
func (c *Collector) GetMetrics() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	operations := make(map[string]*OperationMetrics, len(c.operations))
	for k, v := range c.operations {
		cp := *v
		operations[k] = &cp
	}

	return map[string]interface{}{
		"operations": operations,
		"last_reset": c.lastReset,
		"uptime":     time.Since(c.lastReset),
	}
}

// ResetMetrics clears the in-process operation tracking (Prometheus
// counters are cumulative and untouched).
func (c *Collector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

func (c *Collector) initMetrics() {
	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace, Subsystem: c.config.Subsystem,
			Name: "operations_total", Help: "Total number of operations",
		},
		[]string{"operation", "status"},
	)
	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.config.Namespace, Subsystem: c.config.Subsystem,
			Name: "operation_duration_seconds", Help: "Duration of operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"operation"},
	)
	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace, Subsystem: c.config.Subsystem,
			Name: "errors_total", Help: "Total number of errors",
		},
		[]string{"operation", "type"},
	)
	c.activeSandboxes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace, Subsystem: c.config.Subsystem,
			Name: "active_sandboxes", Help: "Number of sandboxes currently running",
		},
	)
	c.childExitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace, Subsystem: c.config.Subsystem,
			Name: "child_exits_total", Help: "Total number of supervised child process exits",
		},
		[]string{"kind", "status"},
	)
}

func (c *Collector) registerMetrics() error {
	for _, m := range []prometheus.Collector{
		c.operationCounter, c.operationDuration, c.errorCounter, c.activeSandboxes, c.childExitCounter,
	} {
		if err := c.registry.Register(m); err != nil {
			return err
		}
	}
	return nil
}

func classifyError(err error) string {
	s := err.Error()
	switch {
	case strings.Contains(s, "timeout"):
		return "timeout"
	case strings.Contains(s, "connection"):
		return "connection"
	case strings.Contains(s, "not found"):
		return "not_found"
	case strings.Contains(s, "permission"):
		return "permission"
	default:
		return "other"
	}
}

func (c *Collector) updateLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"sandboxcore-metrics"}`))
}

func (c *Collector) debugMetricsHandler(w http.ResponseWriter, r *http.Request) {
	metrics := c.GetMetrics()
	w.Header().Set("Content-Type", "application/json")
	writef := func(format string, args ...interface{}) { _, _ = fmt.Fprintf(w, format, args...) }

	writef("{\n  \"uptime\": \"%v\",\n  \"last_reset\": \"%v\",\n  \"operations\": {\n",
		metrics["uptime"], metrics["last_reset"])
	if operations, ok := metrics["operations"].(map[string]*OperationMetrics); ok {
		first := true
		for name, op := range operations {
			if !first {
				writef(",\n")
			}
			writef("    \"%s\": {\"count\": %d, \"errors\": %d, \"avg_duration\": \"%v\"}", name, op.Count, op.Errors, op.AvgDuration)
			first = false
		}
	}
	writef("\n  }\n}\n")
}

func (c *Collector) debugOperationsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain")
	writef := func(format string, args ...interface{}) { _, _ = fmt.Fprintf(w, format, args...) }

	writef("Sandbox Core Operations Summary\n================================\n\n")
	writef("Uptime: %v\nLast Reset: %v\n\n", time.Since(c.lastReset), c.lastReset)
	if len(c.operations) == 0 {
		writef("No operations recorded.\n")
		return
	}
	writef("%-24s %10s %10s %14s %10s\n", "Operation", "Count", "Errors", "Avg Duration", "Last Op")
	for name, op := range c.operations {
		writef("%-24s %10d %10d %14v %10s\n", name, op.Count, op.Errors, op.AvgDuration, op.LastOperation.Format("15:04:05"))
	}
}
