package childio

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbuscore/sandboxcore/pkg/logging"
)

func TestStart_Piped_ForwardsStdoutAndStderr(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, logging.Info, logging.FormatText)

	cmd := exec.Command("sh", "-c", "echo out-line; echo err-line >&2")
	mux, err := Start(context.Background(), cmd, Piped)
	require.NoError(t, err)
	mux.BeginForwarding(log)

	require.NoError(t, mux.Wait())

	output := buf.String()
	assert.Contains(t, output, "out-line")
	assert.Contains(t, output, "err-line")
}

func TestStart_Piped_StdinIsWritable(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, logging.Info, logging.FormatText)

	cmd := exec.Command("cat")
	mux, err := Start(context.Background(), cmd, Piped)
	require.NoError(t, err)
	mux.BeginForwarding(log)

	_, err = mux.Stdin().Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, mux.Stdin().Close())

	require.NoError(t, mux.Wait())
	assert.Contains(t, buf.String(), "hello")
}

func TestStart_Piped_NonZeroExitIsReturnedByWait(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, logging.Info, logging.FormatText)

	cmd := exec.Command("sh", "-c", "exit 3")
	mux, err := Start(context.Background(), cmd, Piped)
	require.NoError(t, err)
	mux.BeginForwarding(log)

	err = mux.Wait()
	require.Error(t, err)
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
}

func TestForward_ForwardsOutputLongerThanOneChunk(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, logging.Info, logging.FormatText)

	long := strings.Repeat("a", forwardChunkSize*3+17)
	cmd := exec.Command("printf", "%s", long)
	mux, err := Start(context.Background(), cmd, Piped)
	require.NoError(t, err)
	mux.BeginForwarding(log)
	require.NoError(t, mux.Wait())

	assert.Contains(t, buf.String(), strings.Repeat("a", 10))
}

func TestPid_MatchesSpawnedProcess(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, logging.Info, logging.FormatText)

	cmd := exec.Command("sh", "-c", "exit 0")
	mux, err := Start(context.Background(), cmd, Piped)
	require.NoError(t, err)
	mux.BeginForwarding(log)
	pid := mux.Pid()
	require.NoError(t, mux.Wait())

	assert.Greater(t, pid, 0)
}

func TestClose_NoopWithoutTTY(t *testing.T) {
	m := &Multiplexer{mode: Piped}
	require.NoError(t, m.Close())
}

func TestIsInteractive_FalseForRegularFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "childio")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, IsInteractive(f.Fd()))
}
