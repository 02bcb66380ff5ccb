package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	socketWriteTimeout = 10 * time.Second
	socketPongWait     = 60 * time.Second
	socketPingInterval = 30 * time.Second
	socketReadLimit    = 4 << 10
)

// SocketHandler pushes call events to dashboards over a WebSocket.
// The client never sends anything meaningful; reads only detect close.
type SocketHandler struct {
	hub          Subscriptions
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       *slog.Logger
}

// NewSocketHandler creates a socket handler that accepts upgrades from the
// given origins. "*" or an empty list allows any origin.
func NewSocketHandler(hub Subscriptions, allowedOrigins []string, logger *slog.Logger) *SocketHandler {
	return &SocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		pingInterval: socketPingInterval,
		logger:       logger,
	}
}

// Serve upgrades the connection and streams events until either side closes
// GET /api/socket
func (h *SocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(socketReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(socketPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(socketPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	h.logger.Debug("dashboard socket opened", "subscriber_id", sub.ID)

	for {
		select {
		case <-closed:
			h.logger.Debug("dashboard socket closed by client", "subscriber_id", sub.ID)
			return
		case <-r.Context().Done():
			h.closeNormally(conn)
			return
		case <-ticker.C:
			deadline := time.Now().Add(socketWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return
			}
		case event, ok := <-sub.Events():
			if !ok {
				h.closeNormally(conn)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("socket write failed", "subscriber_id", sub.ID, "error", err)
				return
			}
		}
	}
}

func (h *SocketHandler) closeNormally(conn *websocket.Conn) {
	deadline := time.Now().Add(socketWriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[strings.TrimRight(o, "/")] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients do not send Origin
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
