//go:build windows

package ptyadapter

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// windowsHandle wraps creack/pty's ConPTY-backed pseudo console. Unlike
// Unix, Windows has no SIGTERM; Terminate calls Process.Kill, which the
// Go runtime implements via TerminateProcess — the nearest equivalent to
// "signal the child to exit" this platform offers.
type windowsHandle struct {
	ptmx *os.File
	cmd  *exec.Cmd

	mu         sync.Mutex
	terminated bool
}

func spawn(shell, cwd string, env map[string]string, cols, rows uint16) (Handle, error) {
	if shell == "" {
		shell = "powershell.exe"
	}

	cmd := exec.Command(shell)
	if cwd != "" {
		cmd.Dir = cwd
	}
	cmd.Env = mergeEnv(os.Environ(), env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("ptyadapter: spawn %s: %w", shell, err)
	}

	return &windowsHandle{ptmx: ptmx, cmd: cmd}, nil
}

func (h *windowsHandle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *windowsHandle) Read(p []byte) (int, error) {
	return h.ptmx.Read(p)
}

func (h *windowsHandle) Write(p []byte) (int, error) {
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

func (h *windowsHandle) Resize(cols, rows uint16) error {
	return pty.Setsize(h.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

func (h *windowsHandle) Terminate() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.terminated {
		return nil
	}
	h.terminated = true

	_ = h.ptmx.Close()
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
	go func() {
		_ = h.cmd.Wait()
	}()
	return nil
}
