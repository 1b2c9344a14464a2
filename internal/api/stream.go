package api

import (
	"context"
	"net/http"
	"time"

	"paper-trade-go/internal/auth"
	"paper-trade-go/internal/events"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// streamMessage is one frame sent on the portfolio stream.
type streamMessage struct {
	Type  string      `json:"type"`
	Event events.Type `json:"event,omitempty"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// stream pushes the caller's portfolio on connect and again after every
// event concerning them, until the client goes away or the token expires.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.logger.With(zap.Stringer("user", sess.UserID))
	log.Info("Portfolio stream opened")
	defer log.Info("Portfolio stream closed")

	updates, unsubscribe := h.Bus.Subscribe(sess.UserID)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if !sess.ExpiresAt.IsZero() {
		var cancelExpiry context.CancelFunc
		ctx, cancelExpiry = context.WithDeadline(ctx, sess.ExpiresAt)
		defer cancelExpiry()
	}

	// The read loop only notices pongs and the client closing.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("Portfolio stream read failed", zap.Error(err))
				}
				return
			}
		}
	}()

	if !h.sendSnapshot(ctx, conn, sess, "") {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case e, ok := <-updates:
			if !ok {
				return
			}
			if e.Type == events.SignedOut {
				// Another session signing out does not end this one, but this
				// one's own token may have been revoked.
				if !h.Auth.Resolve(ctx, tokenFrom(r, true)).Authenticated() {
					return
				}
				continue
			}
			if !h.sendSnapshot(ctx, conn, sess, e.Type) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) sendSnapshot(ctx context.Context, conn *websocket.Conn, sess auth.Session, cause events.Type) bool {
	msg := streamMessage{Type: "portfolio", Event: cause}
	snapshot, err := h.Portfolio.Snapshot(ctx, sess.UserID)
	if err != nil {
		h.logger.Error("Failed to build portfolio for stream", zap.Stringer("user", sess.UserID), zap.Error(err))
		msg = streamMessage{Type: "error", Error: "portfolio unavailable"}
	} else {
		msg.Data = snapshot
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("Portfolio stream write failed", zap.Error(err))
		return false
	}
	return true
}
