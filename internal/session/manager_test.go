package session

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hearthlane/termbroker/internal/brokererr"
	"github.com/hearthlane/termbroker/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.sqlite3"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st)
}

// drainUntil polls fn until it returns true or the deadline passes,
// matching this codebase's general approach to asserting on
// eventually-consistent pump state without a synthetic clock.
func drainUntil(t *testing.T, timeout time.Duration, fn func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fn()
}

func readFromSubscriber(t *testing.T, sub *Subscriber, timeout time.Duration) string {
	t.Helper()
	var sb strings.Builder
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case chunk := <-sub.Chan():
			sb.WriteString(chunk)
		case <-time.After(50 * time.Millisecond):
		}
	}
	return sb.String()
}

// TestCreateAndEcho is the seed suite's scenario 1: create, attach,
// write "echo hi\n", observe an output frame containing "hi".
func TestCreateAndEcho(t *testing.T) {
	m := newTestManager(t)

	id, err := m.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Kill(id)

	sub, _, err := m.Attach(id)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer m.Detach(id, sub)

	if err := m.Write(id, []byte("echo hi\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	output := readFromSubscriber(t, sub, 2*time.Second)
	if !strings.Contains(output, "hi") {
		t.Errorf("output %q does not contain %q", output, "hi")
	}
}

// TestMultiViewerFanOut is the seed suite's scenario 2: two attached
// viewers both observe the shell's output.
func TestMultiViewerFanOut(t *testing.T) {
	m := newTestManager(t)

	id, err := m.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Kill(id)

	subA, _, err := m.Attach(id)
	if err != nil {
		t.Fatalf("Attach A: %v", err)
	}
	defer m.Detach(id, subA)

	subB, _, err := m.Attach(id)
	if err != nil {
		t.Fatalf("Attach B: %v", err)
	}
	defer m.Detach(id, subB)

	if err := m.Write(id, []byte("echo marker\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	outA := readFromSubscriber(t, subA, 2*time.Second)
	outB := readFromSubscriber(t, subB, 2*time.Second)

	if !strings.Contains(outA, "marker") {
		t.Errorf("viewer A output %q missing marker", outA)
	}
	if !strings.Contains(outB, "marker") {
		t.Errorf("viewer B output %q missing marker", outB)
	}
}

// TestReplayOnLateAttach is the seed suite's scenario 3: output emitted
// before a client attaches is visible via the replay snapshot.
func TestReplayOnLateAttach(t *testing.T) {
	m := newTestManager(t)

	id, err := m.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Kill(id)

	if err := m.Write(id, []byte("echo first\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	time.Sleep(500 * time.Millisecond)

	_, replay, err := m.Attach(id)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if !strings.Contains(replay, "first") {
		t.Errorf("replay %q does not contain %q", replay, "first")
	}
}

// TestCapacityExceeded is the seed suite's scenario 4: at max_sessions,
// a further create fails; killing one frees a slot for the next create.
func TestCapacityExceeded(t *testing.T) {
	m := newTestManager(t)
	if err := m.storeForTest().SetSetting("max_sessions", 2); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}

	id1, err := m.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create 1: %v", err)
	}
	defer m.Kill(id1)

	id2, err := m.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create 2: %v", err)
	}
	defer m.Kill(id2)

	_, err = m.Create("", "/bin/sh", 80, 24)
	kind, tagged := brokererr.Of(err)
	if !tagged || kind != brokererr.CapacityExceeded {
		t.Fatalf("expected CapacityExceeded, got kind=%v tagged=%v err=%v", kind, tagged, err)
	}

	if err := m.Kill(id1); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	id3, err := m.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create after kill: %v", err)
	}
	defer m.Kill(id3)
}

// TestKillIsIdempotent is the seed suite's idempotence property for kill.
func TestKillIsIdempotent(t *testing.T) {
	m := newTestManager(t)

	id, err := m.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.Kill(id); err != nil {
		t.Fatalf("first Kill: %v", err)
	}
	if err := m.Kill(id); err != nil {
		t.Fatalf("second Kill should not error: %v", err)
	}
}

// TestKillEvictsFromLiveMap checks that, within a bounded grace period,
// a killed session no longer appears in List() and the persisted row
// reflects status=killed.
func TestKillEvictsFromLiveMap(t *testing.T) {
	m := newTestManager(t)

	id, err := m.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.Kill(id); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	for _, v := range m.List() {
		if v.ID == id {
			t.Fatalf("killed session %s still present in List()", id)
		}
	}

	row, ok, err := m.storeForTest().GetSession(id)
	if err != nil || !ok {
		t.Fatalf("GetSession: ok=%v err=%v", ok, err)
	}
	if row.Status != string(StatusKilled) {
		t.Errorf("persisted status = %q, want %q", row.Status, StatusKilled)
	}
}

// TestDetachIsIdempotent is the seed suite's idempotence property for detach.
func TestDetachIsIdempotent(t *testing.T) {
	m := newTestManager(t)

	id, err := m.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Kill(id)

	sub, _, err := m.Attach(id)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	m.Detach(id, sub)
	m.Detach(id, sub) // must not panic or error
}

// TestResizeUpdatesDimensions covers the round-trip law: resize followed
// by a query reflects the new dimensions.
func TestResizeUpdatesDimensions(t *testing.T) {
	m := newTestManager(t)

	id, err := m.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Kill(id)

	if err := m.Resize(id, 120, 40); err != nil {
		t.Fatalf("Resize: %v", err)
	}

	found := drainUntil(t, time.Second, func() bool {
		for _, v := range m.List() {
			if v.ID == id {
				return v.Cols == 120 && v.Rows == 40
			}
		}
		return false
	})
	if !found {
		t.Error("resized dimensions not reflected in List()")
	}
}

// TestAttachUnknownSessionNotFound covers attach's error path.
func TestAttachUnknownSessionNotFound(t *testing.T) {
	m := newTestManager(t)

	_, _, err := m.Attach("does-not-exist")
	kind, tagged := brokererr.Of(err)
	if !tagged || kind != brokererr.NotFound {
		t.Fatalf("expected NotFound, got kind=%v tagged=%v err=%v", kind, tagged, err)
	}
}

// TestListOnlyReturnsRunning ensures a killed session is excluded from List.
func TestListOnlyReturnsRunning(t *testing.T) {
	m := newTestManager(t)

	id, err := m.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, v := range m.List() {
		if v.ID == id && v.Status != string(StatusRunning) {
			t.Errorf("listed view has status %q, want running", v.Status)
		}
	}

	if err := m.Kill(id); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	for _, v := range m.List() {
		if v.ID == id {
			t.Errorf("killed session %s should not be listed", id)
		}
	}
}

// TestIdleTTLKillsSession is the seed suite's scenario 5: with a short
// idle_ttl_seconds and no input, the session transitions out of running
// on its own.
func TestIdleTTLKillsSession(t *testing.T) {
	m := newTestManager(t)
	if err := m.storeForTest().SetSetting("idle_ttl_seconds", 1); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}

	id, err := m.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Kill(id)

	expired := drainUntil(t, 2*time.Second, func() bool {
		for _, v := range m.List() {
			if v.ID == id {
				return false
			}
		}
		return true
	})
	if !expired {
		t.Error("expected idle session to leave the running set within 2s")
	}
}

// TestRestartRecoveryMarksRunningStale is the seed suite's scenario 6:
// after a (simulated) restart, no row stays "running" and it does not
// appear in List().
func TestRestartRecoveryMarksRunningStale(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "restart.sqlite3"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()

	if err := st.UpsertSession(store.SessionRow{
		ID:             "leftover",
		Cwd:            "/home/user",
		Shell:          "/bin/bash",
		Status:         "running",
		CreatedAt:      1,
		LastActivityAt: 1,
		Cols:           80,
		Rows:           24,
	}); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	m := New(st)
	if err := m.RestartRecovery(); err != nil {
		t.Fatalf("RestartRecovery: %v", err)
	}

	for _, v := range m.List() {
		if v.ID == "leftover" {
			t.Error("a recovered row must never be listed as running")
		}
	}

	row, ok, err := st.GetSession("leftover")
	if err != nil || !ok {
		t.Fatalf("GetSession: ok=%v err=%v", ok, err)
	}
	if row.Status != string(StatusStale) {
		t.Errorf("status = %q, want %q", row.Status, StatusStale)
	}
}

// storeForTest exposes the manager's backing store to tests in this
// package, without widening Manager's exported surface.
func (m *Manager) storeForTest() *store.Store { return m.store }
