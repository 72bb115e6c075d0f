package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"lv-goldex/internal/notify"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

// NotificationsWS streams a user's notifications as they are dispatched.
// Browsers cannot set headers on the upgrade, so the token rides in ?token=.
type NotificationsWS struct {
	hub      *notify.Hub
	tokens   TokenParser
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewNotificationsWS(hub *notify.Hub, tokens TokenParser, origin string, logger *slog.Logger) *NotificationsWS {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationsWS{
		hub:    hub,
		tokens: tokens,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func (h *NotificationsWS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	id, err := h.tokens.ParseToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	sub := h.hub.Subscribe(id.UserID)
	defer h.hub.Unsubscribe(id.UserID, sub)

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				h.logger.Debug("ws write failed", "user_id", id.UserID, "error", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
