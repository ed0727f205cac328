package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tidewatch/riskmap-service/internal/state"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin policy is enforced by the CORS layer for the REST
		// surface; the heatmap stream carries no client-specific data.
		return true
	},
}

// handleHeatmapLive streams heatmap snapshots: the current one on
// connect, then every new pass as it is published.
func (h *handler) handleHeatmapLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.deps.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	events, cancel := h.deps.Store.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go readPump(conn, closed)

	defer conn.Close()

	if err := writeSnapshot(conn, h.deps.Store.Heatmap()); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	lastPass := h.deps.Store.Heatmap().Pass
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev := <-events:
			if ev.Kind != state.HeatmapUpdated {
				continue
			}
			snap := h.deps.Store.Heatmap()
			if snap.Pass == lastPass {
				continue
			}
			lastPass = snap.Pass
			if err := writeSnapshot(conn, snap); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap state.HeatmapSnapshot) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
	return conn.WriteJSON(snap)
}

// readPump drains client messages so pongs and close frames are
// processed, and signals when the peer goes away.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
