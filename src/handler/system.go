package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hearthlane/termbroker/internal/session"
)

// Build information - set via ldflags at build time
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var startTime = time.Now()

// SystemHandler serves the broker's own health, as distinct from session
// lifecycle — adapted from the teacher's SystemHandler, minus the
// sandbox's process-state-save-and-restart flow, which has no analogue
// here: a terminal broker's running PTYs are exactly the state that
// cannot be preserved across a restart (spec.md §4.3's RestartRecovery
// marks them stale, it does not resume them).
type SystemHandler struct {
	*BaseHandler
	manager *session.Manager
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(manager *session.Manager) *SystemHandler {
	return &SystemHandler{
		BaseHandler: NewBaseHandler(),
		manager:     manager,
	}
}

// HealthResponse is the response body for the health endpoint.
type HealthResponse struct {
	Status          string  `json:"status"`
	Version         string  `json:"version"`
	GitCommit       string  `json:"gitCommit"`
	BuildTime       string  `json:"buildTime"`
	GoVersion       string  `json:"goVersion"`
	OS              string  `json:"os"`
	Arch            string  `json:"arch"`
	Uptime          string  `json:"uptime"`
	UptimeSeconds   float64 `json:"uptimeSeconds"`
	StartedAt       string  `json:"startedAt"`
	RunningSessions int     `json:"runningSessions"`
} // @name HealthResponse

// HandleHealth handles GET requests to /health.
func (h *SystemHandler) HandleHealth(c *gin.Context) {
	uptime := time.Since(startTime)

	h.SendJSON(c, http.StatusOK, HealthResponse{
		Status:          "ok",
		Version:         Version,
		GitCommit:       GitCommit,
		BuildTime:       BuildTime,
		GoVersion:       runtime.Version(),
		OS:              runtime.GOOS,
		Arch:            runtime.GOARCH,
		Uptime:          uptime.Round(time.Second).String(),
		UptimeSeconds:   uptime.Seconds(),
		StartedAt:       startTime.Format(time.RFC3339),
		RunningSessions: len(h.manager.List()),
	})
}
