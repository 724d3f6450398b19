//go:build !windows

package ptyadapter

import (
	"strings"
	"testing"
	"time"
)

func TestSpawnReadWrite(t *testing.T) {
	h, err := Spawn("/bin/sh", "", nil, 80, 24)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer h.Terminate()

	if h.Pid() <= 0 {
		t.Errorf("Pid() = %d, want > 0", h.Pid())
	}

	if _, err := h.Write([]byte("echo spawned-ok\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var sb strings.Builder
	deadline := time.Now().Add(2 * time.Second)
	buf := make([]byte, 4096)
	for time.Now().Before(deadline) {
		n, err := h.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if n > 0 {
			sb.Write(buf[:n])
			if strings.Contains(sb.String(), "spawned-ok") {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("output %q never contained the echoed marker", sb.String())
}

func TestResizeDoesNotError(t *testing.T) {
	h, err := Spawn("/bin/sh", "", nil, 80, 24)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer h.Terminate()

	if err := h.Resize(120, 40); err != nil {
		t.Fatalf("Resize: %v", err)
	}
}

func TestTerminateIsIdempotent(t *testing.T) {
	h, err := Spawn("/bin/sh", "", nil, 80, 24)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if err := h.Terminate(); err != nil {
		t.Fatalf("first Terminate: %v", err)
	}
	if err := h.Terminate(); err != nil {
		t.Fatalf("second Terminate should not error: %v", err)
	}
}

func TestMergeEnvOverridesAndDefaultsTerm(t *testing.T) {
	system := []string{"PATH=/usr/bin", "HOME=/home/user"}
	merged := mergeEnv(system, map[string]string{"HOME": "/custom/home"})

	var sawHome, sawTerm, sawPath bool
	for _, kv := range merged {
		switch {
		case kv == "HOME=/custom/home":
			sawHome = true
		case strings.HasPrefix(kv, "HOME="):
			t.Errorf("unexpected un-overridden HOME entry: %s", kv)
		case kv == "PATH=/usr/bin":
			sawPath = true
		case strings.HasPrefix(kv, "TERM="):
			sawTerm = true
		}
	}
	if !sawHome {
		t.Error("expected overridden HOME to be present")
	}
	if !sawPath {
		t.Error("expected inherited PATH to be present")
	}
	if !sawTerm {
		t.Error("expected a default TERM to be set when the caller didn't supply one")
	}
}
