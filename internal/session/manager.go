package session

import (
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hearthlane/termbroker/internal/brokererr"
	"github.com/hearthlane/termbroker/internal/ptyadapter"
	"github.com/hearthlane/termbroker/internal/settings"
	"github.com/hearthlane/termbroker/internal/store"
)

// flushInterval is the "every ≥0.5s" periodic persistence cadence from
// spec.md §4.3 step 5.
const flushInterval = 500 * time.Millisecond

// pumpTick is the pump's housekeeping cadence (idle-TTL checks, noticing
// an externally requested status change), matching spec.md §4.3 step 7's
// "sleep briefly (≈20ms)".
const pumpTick = 20 * time.Millisecond

// pumpDrainTimeout bounds how long Kill waits for the pump to observe a
// terminal status and evict the session before giving up and evicting
// itself — the "brief grace period" of spec.md §4.3's kill operation.
const pumpDrainTimeout = 2 * time.Second

// Manager owns the set of live sessions. All of its fields listed below
// are guarded by mu; PTY I/O is always performed with mu released,
// matching spec.md §4.3's concurrency discipline.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	store    *store.Store
}

// New creates a Manager backed by the given persistence adapter. Callers
// should follow construction with RestartRecovery before serving traffic.
func New(st *store.Store) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		store:    st,
	}
}

// RestartRecovery is the startup operation of spec.md §4.3: every row
// persisted as "running" is rewritten "stale" (a restarted broker never
// resumes a previously-running PTY), then every row is loaded into the
// live map with no handle and no pump — grounded on the original
// implementation's mark_db_sessions_stale_on_start / load_sessions_from_db.
func (m *Manager) RestartRecovery() error {
	if err := m.store.MarkRunningStale(); err != nil {
		return err
	}

	rows, err := m.store.ListSessions()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		m.sessions[row.ID] = &Session{
			ID:             row.ID,
			Cwd:            row.Cwd,
			Shell:          row.Shell,
			Pid:            row.Pid,
			Cols:           row.Cols,
			Rows:           row.Rows,
			CreatedAt:      row.CreatedAt,
			LastActivityAt: row.LastActivityAt,
			Status:         Status(row.Status),
			Scrollback:     row.Scrollback,
			subscribers:    make(map[*Subscriber]struct{}),
		}
	}
	return nil
}

// Create spawns a new PTY-backed session. Either the session ends up
// fully registered (row persisted as running, pump launched) or nothing
// is left behind — spec.md §4.3's atomicity requirement for create.
func (m *Manager) Create(cwd, shell string, cols, rows uint16) (string, error) {
	eff, err := settings.Resolve(m.store)
	if err != nil {
		return "", err
	}

	cwd = resolveCwd(cwd)
	shell = resolveShell(shell, eff)

	m.mu.Lock()
	if m.countRunningLocked() >= eff.MaxSessions {
		m.mu.Unlock()
		return "", brokererr.New(brokererr.CapacityExceeded, "session capacity reached")
	}

	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	handle, err := ptyadapter.Spawn(shell, cwd, nil, cols, rows)
	if err != nil {
		m.mu.Unlock()
		return "", brokererr.Wrap(brokererr.PtySpawnFailure, "failed to spawn pty", err)
	}

	now := time.Now().Unix()
	sess := &Session{
		ID:             id,
		Cwd:            cwd,
		Shell:          shell,
		Pid:            handle.Pid(),
		Cols:           cols,
		Rows:           rows,
		CreatedAt:      now,
		LastActivityAt: now,
		Status:         StatusRunning,
		handle:         handle,
		pumpDone:       make(chan struct{}),
		subscribers:    make(map[*Subscriber]struct{}),
	}
	m.sessions[id] = sess
	row := rowOfLocked(sess)
	m.mu.Unlock()

	if err := m.store.UpsertSession(row); err != nil {
		// Creation must be atomic: roll back the in-memory registration
		// and the spawned process rather than leave an unpersisted
		// "running" session that restart recovery would never see.
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		handle.Terminate()
		return "", brokererr.Wrap(brokererr.PtySpawnFailure, "failed to persist new session", err)
	}

	go m.runPump(sess)
	logrus.WithFields(logrus.Fields{"session": id, "shell": shell, "cwd": cwd}).Info("session created")
	return id, nil
}

// resolveCwd falls back to the user's home directory if cwd is empty or
// not a directory, per spec.md §4.3's create() defaults.
func resolveCwd(cwd string) string {
	if cwd != "" {
		if fi, err := os.Stat(cwd); err == nil && fi.IsDir() {
			return cwd
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return cwd
}

// resolveShell applies the caller's shell if given, otherwise the
// OS-appropriate default from effective settings, and (on Windows) the
// original implementation's "wsl"/"wsl.exe" alias normalization.
func resolveShell(shell string, eff settings.Effective) string {
	if shell == "" {
		if runtime.GOOS == "windows" {
			shell = eff.DefaultWindowsShell
		} else {
			shell = eff.DefaultUnixShell
		}
	}
	if runtime.GOOS == "windows" && strings.EqualFold(shell, "wsl") {
		shell = "wsl.exe"
	}
	return shell
}

// countRunningLocked requires mu to be held.
func (m *Manager) countRunningLocked() int {
	n := 0
	for _, s := range m.sessions {
		if s.Status == StatusRunning {
			n++
		}
	}
	return n
}

// rowOfLocked builds a persistable snapshot of sess. Requires mu held.
func rowOfLocked(sess *Session) store.SessionRow {
	return store.SessionRow{
		ID:             sess.ID,
		Cwd:            sess.Cwd,
		Shell:          sess.Shell,
		Pid:            sess.Pid,
		Status:         string(sess.Status),
		CreatedAt:      sess.CreatedAt,
		LastActivityAt: sess.LastActivityAt,
		Cols:           sess.Cols,
		Rows:           sess.Rows,
		Scrollback:     sess.Scrollback,
	}
}

// Attach registers a new subscriber for id and returns it along with a
// snapshot of current scrollback for replay. Fails with NotFound if the
// session is unknown.
func (m *Manager) Attach(id string) (*Subscriber, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, "", brokererr.New(brokererr.NotFound, "no such session: "+id)
	}

	sub := &Subscriber{ch: make(chan string, subscriberQueueCapacity)}
	sess.subscribers[sub] = struct{}{}
	return sub, sess.Scrollback, nil
}

// Detach removes sub from id's subscriber set. Idempotent: detaching an
// already-removed subscriber, or one for an unknown/evicted session, is
// not an error.
func (m *Manager) Detach(id string, sub *Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return
	}
	delete(sess.subscribers, sub)
}

// Chan exposes the subscriber's output channel to the connection bridge.
func (s *Subscriber) Chan() <-chan string { return s.ch }

// Write forwards data to the PTY. No-op if the session is not running.
// A write error transitions the session to exited.
func (m *Manager) Write(id string, data []byte) error {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.RUnlock()
		return brokererr.New(brokererr.NotFound, "no such session: "+id)
	}
	if sess.Status != StatusRunning {
		m.mu.RUnlock()
		return nil
	}
	handle := sess.handle
	m.mu.RUnlock()

	if _, err := handle.Write(data); err != nil {
		m.markNonRunning(sess, StatusExited, false)
		return brokererr.Wrap(brokererr.PtyIoError, "pty write failed", err)
	}

	m.touchActivity(sess)
	return nil
}

// Resize updates the session's terminal dimensions. No-op if not running.
func (m *Manager) Resize(id string, cols, rows uint16) error {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.RUnlock()
		return brokererr.New(brokererr.NotFound, "no such session: "+id)
	}
	if sess.Status != StatusRunning {
		m.mu.RUnlock()
		return nil
	}
	handle := sess.handle
	m.mu.RUnlock()

	if err := handle.Resize(cols, rows); err != nil {
		return brokererr.Wrap(brokererr.PtyIoError, "pty resize failed", err)
	}

	m.mu.Lock()
	sess.Cols, sess.Rows = cols, rows
	m.mu.Unlock()
	m.touchActivity(sess)
	return nil
}

func (m *Manager) touchActivity(sess *Session) {
	m.mu.Lock()
	sess.LastActivityAt = time.Now().Unix()
	m.mu.Unlock()
}

// List returns the view of every running session, newest first —
// spec.md §4.3's list() operation.
func (m *Manager) List() []View {
	m.mu.RLock()
	defer m.mu.RUnlock()

	views := make([]View, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.Status == StatusRunning {
			views = append(views, viewOf(s))
		}
	}
	for i := 0; i < len(views); i++ {
		for j := i + 1; j < len(views); j++ {
			if views[j].CreatedAt > views[i].CreatedAt {
				views[i], views[j] = views[j], views[i]
			}
		}
	}
	return views
}

// Kill terminates a session: it marks the session killed, persists that
// transition, terminates the PTY, then waits for the session's own pump
// to observe the new status and evict it from the live map — the
// deterministic drain spec.md §9's "session cleanup after kill" open
// question asks for, in place of the original implementation's fixed
// sleep(0.1). Idempotent: killing an unknown id whose row is already in
// a terminal state is not an error; killing a truly unknown id is
// NotFound.
func (m *Manager) Kill(id string) error {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		if row, found, err := m.store.GetSession(id); err == nil && found && row.Status != string(StatusRunning) {
			return nil
		}
		return brokererr.New(brokererr.NotFound, "no such session: "+id)
	}

	m.mu.RLock()
	alreadyTerminal := sess.Status != StatusRunning
	pumpDone := sess.pumpDone
	m.mu.RUnlock()
	if alreadyTerminal {
		return nil
	}

	m.markNonRunning(sess, StatusKilled, true)

	select {
	case <-pumpDone:
	case <-time.After(pumpDrainTimeout):
		logrus.WithField("session", id).Warn("pump drain timed out, evicting anyway")
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
	}

	logrus.WithField("session", id).Info("session killed")
	return nil
}

// markNonRunning transitions sess out of running (if it still is),
// persists the transition, and optionally terminates its PTY handle.
// Safe to call from any goroutine, including the pump's own, and a
// no-op if the session already left the running state — this is what
// lets write errors, explicit kills, and idle-TTL expiry all funnel
// through one place instead of three divergent code paths.
func (m *Manager) markNonRunning(sess *Session, status Status, terminate bool) {
	m.mu.Lock()
	if sess.Status != StatusRunning {
		m.mu.Unlock()
		return
	}
	sess.Status = status
	handle := sess.handle
	sess.handle = nil
	row := rowOfLocked(sess)
	m.mu.Unlock()

	if err := m.store.UpsertSession(row); err != nil {
		logrus.WithError(err).WithField("session", sess.ID).Warn("failed to persist status transition")
	}

	if terminate && handle != nil {
		handle.Terminate()
	}
}

// periodicFlush persists sess's current state. Failures are logged but
// non-fatal, per spec.md §7's "Persistence failures during the periodic
// flush are logged but non-fatal — the next flush retries."
func (m *Manager) periodicFlush(sess *Session) {
	m.mu.RLock()
	row := rowOfLocked(sess)
	m.mu.RUnlock()

	if err := m.store.UpsertSession(row); err != nil {
		logrus.WithError(err).WithField("session", sess.ID).Warn("periodic flush failed")
	}
}

// broadcast copies the subscriber set under the lock, then enqueues
// without holding it — spec.md §4.3's required discipline. A full
// subscriber queue drops the chunk for that subscriber only.
func (m *Manager) broadcast(sess *Session, chunk string) {
	m.mu.RLock()
	subs := make([]*Subscriber, 0, len(sess.subscribers))
	for s := range sess.subscribers {
		subs = append(subs, s)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- chunk:
		default:
		}
	}
}
