package supervisor

import (
	"fmt"
	"net"

	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

// findAvailablePort scans [start, start+count) on host and returns the
// first port that successfully binds, per spec §4.I step 2. The probe
// bind is closed immediately; the actual NFS server bind still races
// with another process. The supervisor scans once: if the NFS server
// child's own bind then fails, the scan is not repeated.
func findAvailablePort(host string, start, count int) (int, error) {
	for port := start; port < start+count; port++ {
		addr := fmt.Sprintf("%s:%d", host, port)
		l, err := net.Listen("tcp", addr)
		if err != nil {
			continue
		}
		l.Close()
		return port, nil
	}
	return 0, errs.New(errs.CodeNoAvailablePorts, "no available port in range").
		WithComponent("supervisor", "find_available_port").
		WithDetail("host", host).WithDetail("start", start).WithDetail("count", count)
}
