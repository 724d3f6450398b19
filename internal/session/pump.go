package session

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hearthlane/termbroker/internal/settings"
)

// readResult is one outcome of the reader goroutine's blocking Read call.
type readResult struct {
	data []byte
	err  error
}

// runPump is the output pump of spec.md §4.3: a long-lived task that
// reads from the PTY and fans output out to subscribers. The actual
// blocking Read is offloaded to a dedicated goroutine (reader below) —
// the Go equivalent of spec.md §4.3 step 2's "offload a blocking read to
// a worker thread" — so this loop's select can also service a ticker
// for the periodic flush and idle-TTL checks spec.md requires, even
// while no output is arriving.
//
// There is a single exit point: the ticker branch, reached once the
// session's status is no longer "running" (observed here, caused
// elsewhere — by a write error, an explicit kill, or idle-TTL expiry
// detected in this same loop). This is the collapsed, single "exited"
// path spec.md §9's pump-error-path open question asks for, in place of
// the original implementation's two overlapping exception handlers.
func (m *Manager) runPump(sess *Session) {
	readCh := make(chan readResult, 1)
	go func() {
		buf := make([]byte, 4096)
		for {
			m.mu.RLock()
			handle := sess.handle
			m.mu.RUnlock()
			if handle == nil {
				return
			}
			n, err := handle.Read(buf)
			if err != nil {
				readCh <- readResult{err: err}
				return
			}
			if n == 0 {
				continue
			}
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			readCh <- readResult{data: chunk}
		}
	}()

	var decoder incrementalDecoder
	lastFlush := time.Now()
	ticker := time.NewTicker(pumpTick)
	defer ticker.Stop()

	for {
		select {
		case res := <-readCh:
			if res.err != nil {
				m.markNonRunning(sess, StatusExited, false)
				continue
			}
			m.handleOutput(sess, &decoder, res.data)

		case <-ticker.C:
			m.mu.RLock()
			status := sess.Status
			lastActivity := sess.LastActivityAt
			m.mu.RUnlock()

			if status != StatusRunning {
				m.mu.Lock()
				delete(m.sessions, sess.ID)
				// Closing every subscriber channel lets attached viewers see
				// the end of the stream. Only this goroutine broadcasts, so
				// no send can follow the close.
				for sub := range sess.subscribers {
					close(sub.ch)
				}
				sess.subscribers = make(map[*Subscriber]struct{})
				m.mu.Unlock()
				close(sess.pumpDone)
				logrus.WithField("session", sess.ID).Debug("pump drained, session evicted")
				return
			}

			if time.Since(lastFlush) >= flushInterval {
				m.periodicFlush(sess)
				lastFlush = time.Now()
			}

			eff, err := settings.Resolve(m.store)
			if err != nil {
				logrus.WithError(err).Warn("failed to resolve effective settings in pump")
				continue
			}
			if eff.IdleTTLSeconds > 0 && time.Now().Unix()-lastActivity >= int64(eff.IdleTTLSeconds) {
				logrus.WithField("session", sess.ID).Info("session idle timeout exceeded")
				m.markNonRunning(sess, StatusKilled, true)
			}
		}
	}
}

// handleOutput decodes a raw PTY chunk, appends it to scrollback
// (truncating to the configured character limit), updates activity, and
// broadcasts the decoded text to subscribers — spec.md §4.3 step 4.
func (m *Manager) handleOutput(sess *Session, decoder *incrementalDecoder, raw []byte) {
	text := decoder.Decode(raw)
	if text == "" {
		return
	}

	eff, err := settings.Resolve(m.store)
	if err != nil {
		logrus.WithError(err).Warn("failed to resolve effective settings for scrollback limit")
		eff = settings.Defaults()
	}

	m.mu.Lock()
	sess.Scrollback = truncateScrollback(sess.Scrollback+text, eff.ScrollbackLimitChars)
	sess.LastActivityAt = time.Now().Unix()
	m.mu.Unlock()

	m.broadcast(sess, text)
}

// truncateScrollback keeps the suffix of s of at most limit characters
// (not bytes), per spec.md §4.3's "Scrollback truncation" requirement.
func truncateScrollback(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[len(runes)-limit:])
}
