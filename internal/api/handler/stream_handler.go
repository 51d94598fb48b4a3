package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pushtray/pushtray/internal/domain"
	"github.com/pushtray/pushtray/internal/store"
)

const (
	// streamBuffer is how many store events a subscriber may lag before
	// it is considered too slow and disconnected.
	streamBuffer = 64
	streamPing   = 30 * time.Second
	writeWait    = 10 * time.Second
)

// StreamHandler relays store mutations to presentation-layer clients
// over a local WebSocket. Each client receives one snapshot on connect
// followed by every subsequent event; a client that cannot keep up is
// disconnected and expected to reconnect and resync from the snapshot.
type StreamHandler struct {
	store    *store.Store
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewStreamHandler(st *store.Store, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		store:  st,
		logger: logger,
		upgrader: websocket.Upgrader{
			// The daemon binds locally and its UI loads from arbitrary
			// origins (file://, app://), so the origin check stays open.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// streamMessage is one frame sent to a stream client. Type is either
// "snapshot" (Items set) or "event" (Event set).
type streamMessage struct {
	Type  string        `json:"type"`
	Items []domain.Item `json:"items,omitempty"`
	Event *store.Event  `json:"event,omitempty"`
}

// Stream handles GET /api/v1/stream
//
// @Summary  Subscribe to store mutations over WebSocket
// @Tags     notifications
// @Router   /api/v1/stream [get]
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Debug("stream upgrade rejected", zap.Error(err))
		return
	}
	defer ws.Close()

	events := make(chan store.Event, streamBuffer)
	overflow := make(chan struct{})
	var overflowOnce sync.Once
	unsub := h.store.Subscribe(func(ev store.Event) {
		select {
		case events <- ev:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	})
	defer unsub()

	// Inbound frames are discarded; the read loop only exists to notice
	// the client going away.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := ws.WriteJSON(streamMessage{Type: "snapshot", Items: h.store.Snapshot()}); err != nil {
		return
	}

	ping := time.NewTicker(streamPing)
	defer ping.Stop()

	remote := r.RemoteAddr
	h.logger.Debug("stream client connected", zap.String("remote", remote))
	for {
		select {
		case ev := <-events:
			if err := ws.WriteJSON(streamMessage{Type: "event", Event: &ev}); err != nil {
				h.logger.Debug("stream write failed", zap.String("remote", remote), zap.Error(err))
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-overflow:
			h.logger.Warn("stream client too slow, disconnecting", zap.String("remote", remote))
			return
		case <-clientGone:
			h.logger.Debug("stream client disconnected", zap.String("remote", remote))
			return
		}
	}
}
