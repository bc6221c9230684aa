package supervisor

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, "127.0.0.1", cfg.NFSHost)
	assert.Equal(t, 2049, cfg.NFSPortStart)
	assert.Equal(t, 100, cfg.NFSPortRange)
}

func TestConfig_WithDefaults_PreservesSetFields(t *testing.T) {
	cfg := Config{NFSHost: "0.0.0.0", NFSPortStart: 9000, NFSPortRange: 5}.withDefaults()
	assert.Equal(t, "0.0.0.0", cfg.NFSHost)
	assert.Equal(t, 9000, cfg.NFSPortStart)
	assert.Equal(t, 5, cfg.NFSPortRange)
}

func TestFindAvailablePort_ReturnsBoundablePort(t *testing.T) {
	port, err := findAvailablePort("127.0.0.1", 20480, 50)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 20480)
	assert.Less(t, port, 20480+50)
}

func TestFindAvailablePort_ExhaustedRangeErrors(t *testing.T) {
	// Occupy the single port in range, then confirm the scan reports
	// NoAvailablePorts rather than retrying forever.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	port := l.Addr().(*net.TCPAddr).Port
	_, err = findAvailablePort("127.0.0.1", port, 1)
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeNoAvailablePorts, code)
}

func TestComposeMicroVMArgs_IncludesCoreFlags(t *testing.T) {
	cfg := Config{
		RootPath: "/images/root", NumVCPUs: 2, RAMMiB: 512,
		Workdir: "/work", ExecPath: "/bin/app", Args: []string{"serve"},
	}
	args := composeMicroVMArgs(cfg)
	assert.Equal(t, "microvm", args[0])
	assert.Contains(t, args, "--root-path=/images/root")
	assert.Contains(t, args, "--num-vcpus=2")
	assert.Contains(t, args, "--ram-mib=512")
	assert.Contains(t, args, "--workdir-path=/work")
	assert.Contains(t, args, "--exec-path=/bin/app")
	assert.Equal(t, []string{"serve"}, args[len(args)-1:])
}

func TestComposeMicroVMArgs_OmitsEmptyMaps(t *testing.T) {
	args := composeMicroVMArgs(Config{})
	for _, a := range args {
		assert.NotContains(t, a, "--env=")
		assert.NotContains(t, a, "--mapped-dirs=")
		assert.NotContains(t, a, "--port-map=")
	}
}

func TestMountNFS_FailsWhenMountPointNotEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing"), []byte("x"), 0o644))

	err := mountNFS(context.Background(), "127.0.0.1", 2049, dir)
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeMountPointNotEmpty, code)
}

func TestUnmountNFS_EscalatesThroughNormalForceLazy(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("umount escalation test assumes a POSIX umount binary on PATH")
	}
	bindir := t.TempDir()
	// Fails the normal and force attempts; only the lazy unmount succeeds.
	writeFakeBinary(t, bindir, "umount", "[ \"$1\" = \"-l\" ] && exit 0\nexit 1\n")
	t.Setenv("PATH", bindir+string(os.PathListSeparator)+os.Getenv("PATH"))

	err := unmountNFS(context.Background(), t.TempDir())
	require.NoError(t, err)
}

func writeFakeBinary(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
}
