package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector_NilConfigGetsDefaults(t *testing.T) {
	c, err := NewCollector(nil)
	require.NoError(t, err)
	assert.True(t, c.config.Enabled)
	assert.Equal(t, "sandboxcore", c.config.Namespace)
}

func TestNewCollector_DisabledSkipsRegistration(t *testing.T) {
	c, err := NewCollector(&Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, c.registry)
}

func TestRecordOperation_TracksCountAndErrors(t *testing.T) {
	c, err := NewCollector(nil)
	require.NoError(t, err)

	c.RecordOperation("reconcile", 10*time.Millisecond, true)
	c.RecordOperation("reconcile", 20*time.Millisecond, false)

	metrics := c.GetMetrics()
	ops := metrics["operations"].(map[string]*OperationMetrics)
	require.Contains(t, ops, "reconcile")
	assert.EqualValues(t, 2, ops["reconcile"].Count)
	assert.EqualValues(t, 1, ops["reconcile"].Errors)
}

func TestRecordOperation_DisabledIsNoop(t *testing.T) {
	c, err := NewCollector(&Config{Enabled: false})
	require.NoError(t, err)
	c.RecordOperation("reconcile", time.Millisecond, true)
	assert.Empty(t, c.GetMetrics()["operations"].(map[string]*OperationMetrics))
}

func TestResetMetrics_ClearsOperations(t *testing.T) {
	c, err := NewCollector(nil)
	require.NoError(t, err)
	c.RecordOperation("reconcile", time.Millisecond, true)
	c.ResetMetrics()
	assert.Empty(t, c.GetMetrics()["operations"].(map[string]*OperationMetrics))
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "timeout", classifyError(errors.New("dial timeout")))
	assert.Equal(t, "not_found", classifyError(errors.New("row not found")))
	assert.Equal(t, "other", classifyError(errors.New("boom")))
}

func TestRecordChildExit_IncrementsCounter(t *testing.T) {
	c, err := NewCollector(nil)
	require.NoError(t, err)
	c.RecordChildExit("microvm", false)

	got := testutil.ToFloat64(c.childExitCounter.With(map[string]string{"kind": "microvm", "status": "error"}))
	assert.Equal(t, 1.0, got)
}

func TestSetActiveSandboxes_UpdatesGauge(t *testing.T) {
	c, err := NewCollector(nil)
	require.NoError(t, err)
	c.SetActiveSandboxes(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(c.activeSandboxes))
}

func TestStartStop_DisabledCollectorIsNoop(t *testing.T) {
	c, err := NewCollector(&Config{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, c.Start(nil))
	require.NoError(t, c.Stop(nil))
}
