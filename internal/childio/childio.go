// Package childio implements the supervisor's child-I/O multiplexer (spec
// §4.H): choosing a pseudo-terminal or piped I/O shape at spawn time and
// forwarding a child's stdout/stderr to a rotating log in 1-KiB chunks.
//
// Grounded on original_source/monocore/lib/management/supervise.rs's
// bootstrap_microvm: TTY mode allocates a pty pair, puts the master side
// in non-blocking mode, and has the child claim a controlling terminal in
// its pre-exec hook; piped mode uses three anonymous pipes.
package childio

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/nimbuscore/sandboxcore/pkg/errs"
	"github.com/nimbuscore/sandboxcore/pkg/logging"
)

const forwardChunkSize = 1024

// IsInteractive reports whether fd refers to a controlling terminal, the
// test the supervisor uses to pick TTY vs Piped mode.
func IsInteractive(fd uintptr) bool {
	_, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	return err == nil
}

// Mode selects the child's I/O shape.
type Mode int

const (
	Piped Mode = iota
	TTY
)

// Multiplexer owns a spawned child's I/O and forwards stdout/stderr to a
// rotating log. Stdin is retained but may go unused, matching spec §4.H.
type Multiplexer struct {
	mode   Mode
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	master *os.File // TTY mode only

	outputs []namedReader // pending until BeginForwarding, so callers can
	// learn the child's PID (needed to name its rotating log) before
	// forwarding starts.

	wg sync.WaitGroup
}

type namedReader struct {
	r      io.Reader
	stream string
}

// Start spawns cmd with the I/O shape mode dictates. Forwarding does not
// begin until BeginForwarding is called, so a caller can read the
// child's PID first and use it to name the rotating log it forwards to.
func Start(ctx context.Context, cmd *exec.Cmd, mode Mode) (*Multiplexer, error) {
	m := &Multiplexer{mode: mode, cmd: cmd}

	switch mode {
	case TTY:
		master, err := pty.Start(cmd)
		if err != nil {
			return nil, errs.Wrap(errs.CodeSpawnFailed, err, "allocate pty and start child").WithComponent("childio", "start")
		}
		m.master = master
		m.stdin = master
		m.outputs = append(m.outputs, namedReader{master, "stdout"})

	default:
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, errs.Wrap(errs.CodeSpawnFailed, err, "attach stdout pipe").WithComponent("childio", "start")
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, errs.Wrap(errs.CodeSpawnFailed, err, "attach stderr pipe").WithComponent("childio", "start")
		}
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, errs.Wrap(errs.CodeSpawnFailed, err, "attach stdin pipe").WithComponent("childio", "start")
		}
		m.stdin = stdin

		if err := cmd.Start(); err != nil {
			return nil, errs.Wrap(errs.CodeSpawnFailed, err, "start child").WithComponent("childio", "start")
		}

		m.outputs = append(m.outputs, namedReader{stdout, "stdout"}, namedReader{stderr, "stderr"})
	}

	return m, nil
}

// BeginForwarding starts copying stdout/stderr to log in forwardChunkSize
// chunks. Write errors on the log are logged but do not kill the child.
func (m *Multiplexer) BeginForwarding(log *logging.Logger) {
	for _, o := range m.outputs {
		m.forward(o.r, log, o.stream)
	}
	m.outputs = nil
}

// forward copies r into log in forwardChunkSize chunks until EOF. It runs
// in its own goroutine so stdout and stderr forwarding interleave freely
// while each preserves its own per-stream byte order.
func (m *Multiplexer) forward(r io.Reader, log *logging.Logger, stream string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		buf := make([]byte, forwardChunkSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				log.Info(string(buf[:n]), map[string]interface{}{"stream": stream})
			}
			if err != nil {
				return
			}
		}
	}()
}

// Wait blocks for the child to exit and for forwarding to drain.
func (m *Multiplexer) Wait() error {
	err := m.cmd.Wait()
	m.wg.Wait()
	return err
}

// Stdin returns the child's retained stdin, for callers that need it.
func (m *Multiplexer) Stdin() io.WriteCloser { return m.stdin }

// Pid returns the spawned child's process ID.
func (m *Multiplexer) Pid() int { return m.cmd.Process.Pid }

// Signal delivers sig to the child process.
func (m *Multiplexer) Signal(sig os.Signal) error { return m.cmd.Process.Signal(sig) }

// Close releases the TTY master, if any.
func (m *Multiplexer) Close() error {
	if m.master != nil {
		return m.master.Close()
	}
	return nil
}
