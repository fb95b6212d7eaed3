package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/legalchat/internal/stream"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

const (
	defaultKeepaliveInterval = 15 * time.Second
	wsWriteTimeout           = 5 * time.Second
)

// StreamHandler serves the live agent action feed over SSE and WebSocket.
type StreamHandler struct {
	pub               *stream.Publisher
	keepaliveInterval time.Duration
	originPatterns    []string
	logger            *slog.Logger
}

// NewStreamHandler creates a stream handler. originPatterns is passed to the
// WebSocket handshake; "*" accepts any origin.
func NewStreamHandler(pub *stream.Publisher, keepalive time.Duration, originPatterns []string, logger *slog.Logger) *StreamHandler {
	if keepalive <= 0 {
		keepalive = defaultKeepaliveInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		pub:               pub,
		keepaliveInterval: keepalive,
		originPatterns:    originPatterns,
		logger:            logger,
	}
}

// RegisterRoutes registers stream routes.
func (h *StreamHandler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/actions/stream", h.SSE)
	r.Get("/chat/actions/ws", h.WebSocket)
}

// SSE streams every non-empty action snapshot as "data: <json array>".
func (h *StreamHandler) SSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.pub.Subscribe()
	defer sub.Close()

	h.logger.Info("Action stream connected", "transport", "sse", "remote", r.RemoteAddr)
	defer h.logger.Info("Action stream disconnected", "transport", "sse", "remote", r.RemoteAddr)

	keepalive := time.NewTicker(h.keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				h.logger.Warn("failed to marshal action snapshot", "error", err)
				continue
			}
			if err := writeSSEData(w, data); err != nil {
				h.logger.Debug("failed to write SSE frame", "error", err)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				h.logger.Debug("failed to write SSE keepalive", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEData(w io.Writer, data []byte) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// WebSocket sends every non-empty action snapshot as one JSON text message.
// Messages from the client are ignored.
func (h *StreamHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx := ws.CloseRead(r.Context())
	sub := h.pub.Subscribe()
	defer sub.Close()

	h.logger.Info("Action stream connected", "transport", "websocket", "remote", r.RemoteAddr)
	defer h.logger.Info("Action stream disconnected", "transport", "websocket", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C():
			if !ok {
				return
			}
			if err := h.writeSnapshot(ctx, ws, snap); err != nil {
				h.logger.Debug("failed to write WebSocket snapshot", "error", err)
				return
			}
		}
	}
}

func (h *StreamHandler) writeSnapshot(ctx context.Context, ws *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}
