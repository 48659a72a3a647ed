package httpserver

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/fdg312/informes-hub/internal/session"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
	wsQueueSize = 64
)

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || s.config.Env == "local" {
		return true
	}
	return slices.Contains(s.config.CORSAllowedOrigins, origin)
}

// handleEvents handles GET /v1/events. The stream starts with the current
// connectivity and submission state, then forwards every change.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess := current(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied
		return
	}
	defer conn.Close()

	logger := s.logger.With(zap.String("session_id", sess.ID))

	queue := make(chan session.Event, wsQueueSize)
	push := func(ev session.Event) {
		select {
		case queue <- ev:
		default:
			logger.Warn("events: queue full, dropping event", zap.String("type", ev.Type))
		}
	}

	push(session.ConnectivityEvent(sess.Monitor.State()))
	push(session.SubmissionEvent(sess.Controller.Snapshot()))
	unsubscribe := sess.Subscribe(push)
	defer unsubscribe()

	// reader: only control frames are expected; an error means the peer left
	readerDone := make(chan struct{})
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()
	sessionDone := sess.Done()

	for {
		select {
		case <-readerDone:
			return
		case <-s.streamCtx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case <-sessionDone:
			// flush what the close itself emitted
			for len(queue) > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(<-queue); err != nil {
					return
				}
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
				time.Now().Add(wsWriteWait))
			return
		case ev := <-queue:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug("events: write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
