package handler

import (
	"log/slog"
	"net/http"

	"callagent/internal/broadcast"
	"callagent/internal/handler/sse"
)

// Subscriptions is the subscribe side of the live event hub
type Subscriptions interface {
	Subscribe() (*broadcast.Subscriber, func())
}

// StreamHandler pushes call events to dashboards over Server-Sent Events
type StreamHandler struct {
	hub    Subscriptions
	config *sse.Config
	logger *slog.Logger
}

// NewStreamHandler creates a new SSE stream handler
func NewStreamHandler(hub Subscriptions, config *sse.Config, logger *slog.Logger) *StreamHandler {
	if config == nil {
		config = sse.DefaultConfig()
	}
	return &StreamHandler{
		hub:    hub,
		config: config,
		logger: logger,
	}
}

// StreamCalls streams call_created and call_updated events until the client disconnects
// GET /api/calls/stream
func (h *StreamHandler) StreamCalls(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming unsupported by response writer")
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	writer := sse.NewWriter(w, flusher)
	// Flush headers immediately so the client sees the stream open
	if err := writer.WriteKeepAlive(); err != nil {
		return
	}

	keepAlive := sse.NewTickerKeepAlive(h.config.KeepAliveInterval)
	stopped := keepAlive.Start(writer, h.logger)
	defer keepAlive.Stop()

	h.logger.Debug("dashboard stream opened", "subscriber_id", sub.ID)
	defer h.logger.Debug("dashboard stream closed", "subscriber_id", sub.ID)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-stopped:
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writer.WriteEvent(event); err != nil {
				h.logger.Debug("stream write failed", "subscriber_id", sub.ID, "error", err)
				return
			}
		}
	}
}
