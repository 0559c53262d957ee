package events

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// upgrader follows gorilla/websocket's standard documented Upgrader usage;
// CheckOrigin is permissive since the event stream carries no credentials
// of its own (the HTTP boundary in internal/api is responsible for auth).
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketHandler upgrades a request and streams every event published to
// broadcaster as a JSON text frame, until the client disconnects.
func WebSocketHandler(broadcaster *ChannelBroadcaster, l *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			l.Error("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		ch, unsubscribe := broadcaster.Subscribe()
		defer unsubscribe()

		for evt := range ch {
			if err := conn.WriteJSON(evt); err != nil {
				l.Warn("websocket write failed, dropping subscriber", "error", err)
				return
			}
		}
	}
}
