//go:build !windows

package ptyadapter

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// unixHandle wraps a creack/pty master file descriptor the same way the
// teacher's TerminalSession does, but drops the teacher's separate
// "watch shell exit" goroutine (which called a ShellDone method the
// teacher never actually defined) in favor of the single read-error
// end-of-stream path spec.md's pump open question asks for: the pump
// goroutine's own blocking Read already observes process exit.
type unixHandle struct {
	ptmx    *os.File
	cmd     *exec.Cmd
	usePgrp bool

	mu         sync.Mutex
	terminated bool
	reaped     bool
}

func spawn(shell, cwd string, env map[string]string, cols, rows uint16) (Handle, error) {
	if shell == "" {
		shell = os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
	}

	cmd := exec.Command(shell)
	if cwd != "" {
		cmd.Dir = cwd
	}
	cmd.Env = mergeEnv(os.Environ(), env)

	// Process groups let us terminate the shell and every descendant it
	// spawned in one signal. macOS sandboxes can deny Setpgid with
	// "operation not permitted", so this is Linux-only, as in the teacher.
	usePgrp := runtime.GOOS == "linux"
	if usePgrp {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("ptyadapter: spawn %s: %w", shell, err)
	}

	h := &unixHandle{ptmx: ptmx, cmd: cmd, usePgrp: usePgrp}
	return h, nil
}

func (h *unixHandle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *unixHandle) Read(p []byte) (int, error) {
	return h.ptmx.Read(p)
}

func (h *unixHandle) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := h.ptmx.Write(p[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (h *unixHandle) Resize(cols, rows uint16) error {
	return pty.Setsize(h.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// Terminate sends SIGTERM to the shell (or its process group) and closes
// the PTY master so a blocked pump Read unblocks with EOF. Idempotent.
func (h *unixHandle) Terminate() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.terminated {
		return nil
	}
	h.terminated = true

	_ = h.ptmx.Close()

	if h.cmd.Process != nil {
		pid := h.cmd.Process.Pid
		if h.usePgrp {
			_ = syscall.Kill(-pid, syscall.SIGTERM)
		} else {
			_ = h.cmd.Process.Signal(syscall.SIGTERM)
		}
	}

	if !h.reaped {
		h.reaped = true
		go func() {
			_ = h.cmd.Wait()
		}()
	}

	return nil
}
