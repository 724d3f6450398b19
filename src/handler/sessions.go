package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hearthlane/termbroker/internal/authn"
	"github.com/hearthlane/termbroker/internal/brokererr"
	"github.com/hearthlane/termbroker/internal/session"
	"github.com/hearthlane/termbroker/internal/settings"
	"github.com/hearthlane/termbroker/internal/store"
)

// defaultCols and defaultRows are spec.md §6's documented defaults for
// POST /api/sessions when the caller omits them.
const (
	defaultCols = 120
	defaultRows = 30
)

// SessionHandler serves the core-facing HTTP surface: list/create/kill
// sessions, and the settings CRUD surface spec.md's distillation omitted
// but the original implementation exposes (see SPEC_FULL.md's
// "Settings CRUD surface" supplement).
type SessionHandler struct {
	*BaseHandler
	manager *session.Manager
	store   *store.Store
	authn   authn.Authenticator
}

func NewSessionHandler(manager *session.Manager, st *store.Store, auth authn.Authenticator) *SessionHandler {
	return &SessionHandler{
		BaseHandler: NewBaseHandler(),
		manager:     manager,
		store:       st,
		authn:       auth,
	}
}

// sessionsListResponse is the body of GET /api/sessions.
type sessionsListResponse struct {
	Sessions []session.View `json:"sessions"`
}

// HandleListSessions serves GET /api/sessions: only running sessions,
// newest first.
func (h *SessionHandler) HandleListSessions(c *gin.Context) {
	h.SendJSON(c, http.StatusOK, sessionsListResponse{Sessions: h.manager.List()})
}

type createSessionRequest struct {
	Cwd   string `json:"cwd"`
	Shell string `json:"shell"`
	Cols  uint16 `json:"cols"`
	Rows  uint16 `json:"rows"`
}

type createSessionResponse struct {
	ID string `json:"id"`
}

// HandleCreateSession serves POST /api/sessions.
func (h *SessionHandler) HandleCreateSession(c *gin.Context) {
	eff, err := settings.Resolve(h.store)
	if err != nil {
		h.SendError(c, http.StatusInternalServerError, err)
		return
	}

	if _, err := authn.Gate(eff, h.authn, c.Request); err != nil {
		h.sendKindError(c, err)
		return
	}

	var req createSessionRequest
	// A missing or empty body is fine — every field has a default.
	_ = c.ShouldBindJSON(&req)

	cols, rows := req.Cols, req.Rows
	if cols == 0 {
		cols = defaultCols
	}
	if rows == 0 {
		rows = defaultRows
	}

	id, err := h.manager.Create(req.Cwd, req.Shell, cols, rows)
	if err != nil {
		h.sendKindError(c, err)
		return
	}

	h.SendJSON(c, http.StatusOK, createSessionResponse{ID: id})
}

// HandleKillSession serves DELETE /api/sessions/:id.
func (h *SessionHandler) HandleKillSession(c *gin.Context) {
	id, err := h.GetPathParam(c, "id")
	if err != nil {
		h.SendError(c, http.StatusBadRequest, err)
		return
	}

	if err := h.manager.Kill(id); err != nil {
		h.sendKindError(c, err)
		return
	}

	h.SendJSON(c, http.StatusOK, gin.H{"ok": true})
}

// sendKindError maps a brokererr.Kind to the HTTP status spec.md §7's
// error taxonomy prescribes.
func (h *SessionHandler) sendKindError(c *gin.Context, err error) {
	kind, tagged := brokererr.Of(err)
	if !tagged {
		h.SendError(c, http.StatusInternalServerError, err)
		return
	}

	switch kind {
	case brokererr.CapacityExceeded, brokererr.InvalidArgument:
		h.SendError(c, http.StatusBadRequest, err)
	case brokererr.NotFound:
		h.SendError(c, http.StatusNotFound, err)
	case brokererr.PtySpawnFailure:
		h.SendError(c, http.StatusInternalServerError, err)
	case brokererr.PtyIoError:
		h.SendError(c, http.StatusBadGateway, err)
	case brokererr.Unauthorized:
		h.SendError(c, http.StatusUnauthorized, err)
	case brokererr.Forbidden:
		h.SendError(c, http.StatusForbidden, err)
	default:
		h.SendError(c, http.StatusInternalServerError, err)
	}
}

// settingsResponse is the body of GET /api/settings.
type settingsResponse struct {
	settings.Effective
}

// HandleGetSettings serves GET /api/settings — the effective settings
// snapshot, not the raw override rows.
func (h *SessionHandler) HandleGetSettings(c *gin.Context) {
	eff, err := settings.Resolve(h.store)
	if err != nil {
		h.SendError(c, http.StatusInternalServerError, err)
		return
	}
	h.SendJSON(c, http.StatusOK, settingsResponse{eff})
}

// updateSettingsRequest accepts a partial set of overrides; only
// non-nil fields are written.
type updateSettingsRequest struct {
	AuthRequired           *bool   `json:"auth_required"`
	AllowAnonymousTerminal *bool   `json:"allow_anonymous_terminal"`
	MaxSessions            *int    `json:"max_sessions"`
	IdleTTLSeconds         *int    `json:"idle_ttl_seconds"`
	ScrollbackLimitChars   *int    `json:"scrollback_limit_chars"`
	DefaultUnixShell       *string `json:"default_unix_shell"`
	DefaultWindowsShell    *string `json:"default_windows_shell"`
}

// HandlePutSettings serves PUT /api/settings. Per SPEC_FULL.md's settings
// supplement, writes are admin-only when auth is required.
func (h *SessionHandler) HandlePutSettings(c *gin.Context) {
	eff, err := settings.Resolve(h.store)
	if err != nil {
		h.SendError(c, http.StatusInternalServerError, err)
		return
	}

	principal, err := authn.Gate(eff, h.authn, c.Request)
	if err != nil {
		h.sendKindError(c, err)
		return
	}
	if eff.AuthRequired && !principal.IsAdmin {
		h.sendKindError(c, brokererr.New(brokererr.Forbidden, "settings changes require an admin principal"))
		return
	}

	var req updateSettingsRequest
	if err := h.BindJSON(c, &req); err != nil {
		h.SendError(c, http.StatusBadRequest, err)
		return
	}

	updates := map[string]interface{}{}
	if req.AuthRequired != nil {
		updates["auth_required"] = *req.AuthRequired
	}
	if req.AllowAnonymousTerminal != nil {
		updates["allow_anonymous_terminal"] = *req.AllowAnonymousTerminal
	}
	if req.MaxSessions != nil {
		updates["max_sessions"] = *req.MaxSessions
	}
	if req.IdleTTLSeconds != nil {
		updates["idle_ttl_seconds"] = *req.IdleTTLSeconds
	}
	if req.ScrollbackLimitChars != nil {
		updates["scrollback_limit_chars"] = *req.ScrollbackLimitChars
	}
	if req.DefaultUnixShell != nil {
		updates["default_unix_shell"] = *req.DefaultUnixShell
	}
	if req.DefaultWindowsShell != nil {
		updates["default_windows_shell"] = *req.DefaultWindowsShell
	}

	for key, value := range updates {
		if err := h.store.SetSetting(key, value); err != nil {
			h.SendError(c, http.StatusInternalServerError, err)
			return
		}
	}

	eff, err = settings.Resolve(h.store)
	if err != nil {
		h.SendError(c, http.StatusInternalServerError, err)
		return
	}
	h.SendJSON(c, http.StatusOK, settingsResponse{eff})
}
