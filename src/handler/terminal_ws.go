package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/hearthlane/termbroker/internal/authn"
	"github.com/hearthlane/termbroker/internal/brokererr"
	"github.com/hearthlane/termbroker/internal/session"
	"github.com/hearthlane/termbroker/internal/settings"
	"github.com/hearthlane/termbroker/internal/store"
)

const closeWriteWait = 2 * time.Second

// Close codes spec.md §6 defines for the attach channel's gate step.
const (
	closeUnauthenticated   = 4401
	closeAnonymousDisabled = 4403
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// inboundFrame is a client->server wire frame (§6 "Wire protocol").
type inboundFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// outboundFrame is a server->client wire frame.
type outboundFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// TerminalBridgeHandler implements the connection bridge of spec.md §4.4:
// gate, accept, replay, subscribe, then a sender/receiver pair that runs
// until either side tears down. It never kills the session itself —
// disconnecting a viewer must not affect other attached viewers or the
// shell's lifetime.
type TerminalBridgeHandler struct {
	manager *session.Manager
	store   *store.Store
	authn   authn.Authenticator
}

func NewTerminalBridgeHandler(manager *session.Manager, st *store.Store, auth authn.Authenticator) *TerminalBridgeHandler {
	return &TerminalBridgeHandler{manager: manager, store: st, authn: auth}
}

// HandleAttach serves the WS /ws/terminal/:id route.
func (h *TerminalBridgeHandler) HandleAttach(c *gin.Context) {
	id := c.Param("id")

	// 1. Gate.
	eff, err := settings.Resolve(h.store)
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if _, err := authn.Gate(eff, h.authn, c.Request); err != nil {
		code := closeAnonymousDisabled
		if kind, ok := brokererr.Of(err); ok && kind == brokererr.Unauthorized {
			code = closeUnauthenticated
		}
		h.rejectBeforeUpgrade(c, code, err.Error())
		return
	}

	// 2. Accept.
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// 3. Replay + 4. Subscribe.
	sub, replay, err := h.manager.Attach(id)
	if err != nil {
		h.closeWithError(conn, err)
		return
	}
	defer h.manager.Detach(id, sub)

	if replay != "" {
		if err := conn.WriteJSON(outboundFrame{Type: "replay", Data: replay}); err != nil {
			return
		}
	}

	// 5. Sender/receiver loops, until either completes. Closing the
	// connection (not just the done channel) is what unblocks a
	// receiver parked in ReadMessage when the sender exits first.
	done := make(chan struct{})
	var once sync.Once
	closeDone := func() {
		once.Do(func() {
			close(done)
			conn.Close()
		})
	}

	go h.senderLoop(conn, sub, done, closeDone)
	h.receiverLoop(conn, id, done, closeDone)
}

// senderLoop dequeues subscriber output and emits "output" frames until
// the session's fan-out channel closes or the receiver side tears down.
func (h *TerminalBridgeHandler) senderLoop(conn *websocket.Conn, sub *session.Subscriber, done chan struct{}, closeDone func()) {
	defer closeDone()
	for {
		select {
		case chunk, ok := <-sub.Chan():
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundFrame{Type: "output", Data: chunk}); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// receiverLoop reads client frames one at a time, forwarding recognized
// types to the manager; any other type is silently ignored per §4.4 step 5.
func (h *TerminalBridgeHandler) receiverLoop(conn *websocket.Conn, id string, done chan struct{}, closeDone func()) {
	defer closeDone()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case "input":
			if err := h.manager.Write(id, []byte(frame.Data)); err != nil {
				logrus.WithError(err).WithField("session", id).Debug("write to session failed")
				return
			}
		case "resize":
			if err := h.manager.Resize(id, frame.Cols, frame.Rows); err != nil {
				logrus.WithError(err).WithField("session", id).Debug("resize of session failed")
			}
		}

		select {
		case <-done:
			return
		default:
		}
	}
}

// rejectBeforeUpgrade upgrades just far enough to send a close frame with
// the gate's close code, since spec.md §6 specifies WS close codes (not
// pre-upgrade HTTP statuses) for 4401/4403.
func (h *TerminalBridgeHandler) rejectBeforeUpgrade(c *gin.Context, code int, reason string) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
}

// closeWithError closes an already-upgraded connection, mapping the
// manager error to a close code where one applies.
func (h *TerminalBridgeHandler) closeWithError(conn *websocket.Conn, err error) {
	code := websocket.CloseInternalServerErr
	if kind, ok := brokererr.Of(err); ok && kind == brokererr.NotFound {
		code = websocket.ClosePolicyViolation
	}
	msg := websocket.FormatCloseMessage(code, err.Error())
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
}
