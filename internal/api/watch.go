package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jaxxstorm/smokestack/internal/domain"
)

const (
	watchWriteTimeout = 10 * time.Second
	watchPingInterval = 30 * time.Second
)

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Bearer identities are resolved upstream; the facade trusts the
	// resolved actor, so origin checking is delegated to that layer too.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// watchEvent is the wire shape of one event on a watch stream.
type watchEvent struct {
	Kind      domain.EventKind  `json:"kind"`
	Timestamp string            `json:"timestamp"`
	Actor     string            `json:"actor"`
	Operation *domain.Operation `json:"operation"`
	From      domain.Status     `json:"from,omitempty"`
	To        domain.Status     `json:"to,omitempty"`
	Comment   *domain.Comment   `json:"comment,omitempty"`
}

// handleWatch upgrades the connection and streams events matching the
// acting user's subscriptions, in commit order. Disconnecting frees the
// live queue; the subscriptions themselves persist.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	actor := requestActor(r)
	if actor == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"acting user is required"}, requestID)
		return
	}

	conn, err := watchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("request_id", requestID))
		return
	}

	stream := s.engine.Watch(actor)
	defer s.engine.Unwatch(stream)
	defer conn.Close()

	s.logger.Info("watch stream opened", zap.String("user", actor))

	// Reader goroutine: the client never sends application data, but
	// reading is what surfaces close frames and connection drops.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(watchPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			s.logger.Info("watch stream closed by client", zap.String("user", actor))
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-stream.Events():
			if !ok {
				// Evicted as a slow consumer; tell the client why
				// before dropping the connection.
				conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "slow_consumer"),
					time.Now().Add(watchWriteTimeout))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if err := conn.WriteJSON(watchEvent{
				Kind:      ev.Kind,
				Timestamp: ev.Timestamp.Format(time.RFC3339),
				Actor:     ev.Actor,
				Operation: ev.Operation,
				From:      ev.From,
				To:        ev.To,
				Comment:   ev.Comment,
			}); err != nil {
				s.logger.Warn("watch stream write failed", zap.String("user", actor), zap.Error(err))
				return
			}
		}
	}
}
