// Package session is the session manager: the core component that owns
// PTY lifecycles, fans output out to subscribers, persists session state,
// and enforces capacity and idle-timeout policy. It is grounded on the
// teacher's handler/terminal package (ManagedSession/SessionManager) for
// its concurrency idiom, generalized to the data model and operations
// spec.md §3-4.3 and §9 describe, including both Open Question
// resolutions (a single pump exit path; deterministic drain-then-evict).
package session

import (
	"time"

	"github.com/hearthlane/termbroker/internal/ptyadapter"
)

// Status is one of the four lifecycle states a Session can occupy.
type Status string

const (
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusKilled  Status = "killed"
	StatusStale   Status = "stale"
)

// Subscriber is one attached client's bounded output queue. Identity is
// the pointer itself, matching the teacher's map[*Subscriber]struct{}
// idiom in session_manager.go.
type Subscriber struct {
	ch chan string
}

// subscriberQueueCapacity is spec.md §4.3's "bounded (capacity ≈ 300
// chunks)" subscriber queue size.
const subscriberQueueCapacity = 300

// Session is the live, in-memory entity. Every mutable field is guarded
// by the owning Manager's lock — spec.md §4.3's "Concurrency discipline"
// calls for a single lock over the manager's structural state, and
// folds scrollback/status/activity into that same discipline rather than
// per-session locks, unlike the teacher's per-ManagedSession mutexes.
type Session struct {
	ID    string
	Cwd   string
	Shell string

	Cols, Rows     uint16
	CreatedAt      int64
	LastActivityAt int64
	Status         Status
	Scrollback     string
	Pid            int

	handle   ptyadapter.Handle
	pumpDone chan struct{}

	subscribers map[*Subscriber]struct{}
}

// View is the public, read-only projection of a Session returned by List
// and used to build HTTP responses — it excludes the live handle and
// subscriber set.
type View struct {
	ID             string `json:"id"`
	Cwd            string `json:"cwd"`
	Shell          string `json:"shell"`
	Pid            int    `json:"pid"`
	Cols           uint16 `json:"cols"`
	Rows           uint16 `json:"rows"`
	CreatedAt      int64  `json:"createdAt"`
	LastActivityAt int64  `json:"lastActivityAt"`
	Status         string `json:"status"`
}

func viewOf(s *Session) View {
	return View{
		ID:             s.ID,
		Cwd:            s.Cwd,
		Shell:          s.Shell,
		Pid:            s.Pid,
		Cols:           s.Cols,
		Rows:           s.Rows,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		Status:         string(s.Status),
	}
}

// idleSeconds reports how long s has gone without activity, as of now.
func idleSeconds(s *Session, now time.Time) int64 {
	return now.Unix() - s.LastActivityAt
}
