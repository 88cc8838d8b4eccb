package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type streamConfig struct {
	upgrader websocket.Upgrader
}

func newStreamConfig(allowedOrigins []string) streamConfig {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	wildcard := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			wildcard = true
		}
		allowed[origin] = struct{}{}
	}
	return streamConfig{upgrader: websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || wildcard {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}}
}

// streamView upgrades to a WebSocket and pushes the caller's live state on every change.
func (h *Handler) streamView(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	category, ok := parseCategory(w, r)
	if !ok {
		return
	}

	conn, err := h.stream.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	view, err := h.projection.Open(ctx, userID)
	if err != nil {
		h.logger.Error("open live view failed", zap.String("user_id", userID), zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "live view unavailable"),
			time.Now().Add(writeWait))
		return
	}
	defer view.Close()

	// Reader loop: answers pongs and notices the client going away.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case st, ok := <-view.Updates():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(toStateView(st, category)); err != nil {
				h.logger.Debug("websocket write failed", zap.String("user_id", userID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
