package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const pingInterval = 20 * time.Second

// sessionStream implements GET /sessions/{id}/stream: a push feed of
// progress.Bus snapshots, filtered to the requested session, alongside the
// polling GET /sessions/{id}/status.
func (h *handler) sessionStream(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithField("session_id", id).WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	snapshots, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if snap.SessionID != id {
				continue
			}
			if err := conn.WriteJSON(snapshotView(snap)); err != nil {
				return
			}
			if snap.Status.Terminal() {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
