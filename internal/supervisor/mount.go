package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

// mountNFS issues the host mount command spec §6 specifies:
// mount -t nfs -o nolocks,vers=3,tcp,port=P,mountport=P,soft H:/ <mount_point>
func mountNFS(ctx context.Context, host string, port int, mountPoint string) error {
	entries, err := os.ReadDir(mountPoint)
	if err != nil {
		if !os.IsNotExist(err) {
			return errs.Wrap(errs.CodeMountFailed, err, "stat mount point").WithComponent("supervisor", "mount_nfs")
		}
		if err := os.MkdirAll(mountPoint, 0o755); err != nil {
			return errs.Wrap(errs.CodeMountFailed, err, "create mount point").WithComponent("supervisor", "mount_nfs")
		}
	} else if len(entries) > 0 {
		return errs.New(errs.CodeMountPointNotEmpty, "mount point is not empty").
			WithComponent("supervisor", "mount_nfs").WithDetail("mount_point", mountPoint)
	}

	opts := fmt.Sprintf("nolocks,vers=3,tcp,port=%d,mountport=%d,soft", port, port)
	cmd := exec.CommandContext(ctx, "mount", "-t", "nfs", "-o", opts, fmt.Sprintf("%s:/", host), mountPoint)
	if out, err := cmd.CombinedOutput(); err != nil {
		return errs.Wrap(errs.CodeMountFailed, err, "mount command failed").
			WithComponent("supervisor", "mount_nfs").WithDetail("output", string(out))
	}
	return nil
}

// unmountNFS implements the normal -> force -> lazy escalation of spec
// §4.I shutdown step 2. A failed force-unmount is not itself fatal;
// lazy-unmount may still release the mount point.
func unmountNFS(ctx context.Context, mountPoint string) error {
	if err := exec.CommandContext(ctx, "umount", mountPoint).Run(); err == nil {
		return nil
	}

	if err := exec.CommandContext(ctx, "umount", "-f", mountPoint).Run(); err == nil {
		return nil
	}

	if err := exec.CommandContext(ctx, "umount", "-l", mountPoint).Run(); err != nil {
		return errs.Wrap(errs.CodeUnmountFailed, err, "normal, force, and lazy unmount all failed").
			WithComponent("supervisor", "unmount_nfs").WithDetail("mount_point", mountPoint)
	}
	return nil
}
