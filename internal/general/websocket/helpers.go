package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// lockOf returns the write mutex for a specific connection.
func (h *Hub) lockOf(conn *websocket.Conn) *sync.Mutex {
	if v, ok := h.writeLocks.Load(conn); ok {
		if mu, ok := v.(*sync.Mutex); ok && mu != nil {
			return mu
		}
	}
	mu := &sync.Mutex{}
	actual, _ := h.writeLocks.LoadOrStore(conn, mu)
	return actual.(*sync.Mutex)
}

// writeJSON marshals v and writes a single TextMessage to the given connection.
func (h *Hub) writeJSON(conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	mu := h.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// wsWriteClose sends a close control frame with the given code and reason.
func (h *Hub) wsWriteClose(conn *websocket.Conn, code int, reason string) {
	mu := h.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
	h.writeLocks.Delete(conn)
}

// sendError writes a {"type":"error"} frame; write failures are ignored since
// the connection is usually already going away.
func (h *Hub) sendError(conn *websocket.Conn, msg string) {
	_ = h.writeJSON(conn, map[string]any{"type": "error", "error": msg})
}

// sendAuthError tells the client why the handshake failed.
func (h *Hub) sendAuthError(conn *websocket.Conn, msg string) {
	_ = h.writeJSON(conn, map[string]any{
		"type":    "auth_error",
		"error":   msg,
		"success": false,
	})
}

// sendAuthSuccess confirms the handshake, echoing the authenticated actor id.
func (h *Hub) sendAuthSuccess(conn *websocket.Conn, idField, id string) error {
	return h.writeJSON(conn, map[string]any{
		"type":      "auth_success",
		"success":   true,
		idField:     id,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// pingLoop keeps the connection alive; a failed ping closes the socket so the
// read loop unblocks.
func (h *Hub) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			mu := h.lockOf(conn)
			mu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(ctrlTimeout))
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
			mu.Unlock()
			if err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
