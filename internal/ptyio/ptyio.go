// Package ptyio implements the PTY Handle: scoped ownership of one OS
// pseudo-terminal plus its child process, with guaranteed release on
// every exit path.
//
// Grounded on kojo's internal/session manager.go/pty.go (pty.StartWithSize,
// pty.Setsize) generalized from a single hardcoded tool-spawn path into a
// reusable handle any caller can spawn, resize, write to, and kill.
package ptyio

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty/v2"

	"github.com/fugue-mux/fugue/internal/muxerr"
)

// Size is the PTY window size in character cells.
type Size struct {
	Cols uint16
	Rows uint16
}

// Spawn describes the child process to start under a fresh PTY.
type Spawn struct {
	Command []string          // argv[0] + args; argv[0] is resolved via exec.LookPath if not absolute
	Env     map[string]string // merged over os.Environ()
	Cwd     string
	Size    Size
}

// Handle owns one PTY/child pair. The zero value is not usable; use Start.
type Handle struct {
	mu     sync.Mutex
	ptmx   *os.File
	cmd    *exec.Cmd
	closed bool

	exitOnce sync.Once
	exitCh   chan struct{}
	exitCode int
}

// Start spawns the child under a new PTY sized per spawn.Size. On any
// failure the PTY and child are fully torn down before returning, so no
// session record need be kept by the caller (per spec §4.6's
// create_session atomicity requirement).
func Start(sp Spawn) (*Handle, error) {
	if len(sp.Command) == 0 {
		return nil, muxerr.New(muxerr.InvalidArgument, "empty command")
	}

	cmd := exec.Command(sp.Command[0], sp.Command[1:]...)
	cmd.Dir = sp.Cwd

	env := os.Environ()
	for k, v := range sp.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	ws := &pty.Winsize{Cols: sp.Size.Cols, Rows: sp.Size.Rows}
	ptmx, err := pty.StartWithSize(cmd, ws)
	if err != nil {
		return nil, muxerr.Wrap(muxerr.SpawnFailed, fmt.Sprintf("start %q", sp.Command[0]), err)
	}

	h := &Handle{
		ptmx:   ptmx,
		cmd:    cmd,
		exitCh: make(chan struct{}),
	}
	go h.waitLoop()
	return h, nil
}

func (h *Handle) waitLoop() {
	err := h.cmd.Wait()
	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	h.exitOnce.Do(func() {
		h.mu.Lock()
		h.exitCode = code
		h.mu.Unlock()
		close(h.exitCh)
	})
}

// Done returns a channel closed once the child has exited.
func (h *Handle) Done() <-chan struct{} { return h.exitCh }

// ExitCode returns the child's exit code. Valid only after Done() has
// fired; returns (0, false) otherwise.
func (h *Handle) ExitCode() (int, bool) {
	select {
	case <-h.exitCh:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.exitCode, true
	default:
		return 0, false
	}
}

// Read reads raw bytes from the PTY master. A read of (0, io.EOF) signals
// the child has exited and all data has been drained; this is distinct
// from a transient zero-byte read, which Go's os.File.Read does not
// produce (the underlying read blocks until data or EOF), so callers can
// treat any EOF here as terminal per spec §4.1.
func (h *Handle) Read(p []byte) (int, error) {
	h.mu.Lock()
	ptmx := h.ptmx
	closed := h.closed
	h.mu.Unlock()
	if closed || ptmx == nil {
		return 0, muxerr.New(muxerr.PtyClosed, "read after close")
	}
	return ptmx.Read(p)
}

// Write forwards bytes to the PTY master (i.e. to the child's stdin).
func (h *Handle) Write(p []byte) (int, error) {
	h.mu.Lock()
	ptmx := h.ptmx
	closed := h.closed
	h.mu.Unlock()
	if closed || ptmx == nil {
		return 0, muxerr.New(muxerr.PtyClosed, "write after close")
	}
	n, err := ptmx.Write(p)
	if err != nil {
		return n, muxerr.Wrap(muxerr.PtyClosed, "write", err)
	}
	return n, nil
}

// Resize sets the PTY window size and delivers SIGWINCH to the child.
func (h *Handle) Resize(sz Size) error {
	h.mu.Lock()
	ptmx := h.ptmx
	closed := h.closed
	h.mu.Unlock()
	if closed || ptmx == nil {
		return muxerr.New(muxerr.PtyClosed, "resize after close")
	}
	if err := pty.Setsize(ptmx, &pty.Winsize{Cols: sz.Cols, Rows: sz.Rows}); err != nil {
		return muxerr.Wrap(muxerr.ResizeFailed, "setsize", err)
	}
	return nil
}

// Kill terminates the child (SIGTERM, then SIGKILL after a short grace
// period if it hasn't exited) and reaps it, releasing the PTY file
// descriptor regardless of whether the child had already exited.
func (h *Handle) Kill() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	ptmx := h.ptmx
	cmd := h.cmd
	h.mu.Unlock()

	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-h.exitCh:
		case <-time.After(500 * time.Millisecond):
			_ = cmd.Process.Kill()
			<-h.exitCh
		}
	}

	if ptmx != nil {
		_ = ptmx.Close()
	}
	return nil
}
