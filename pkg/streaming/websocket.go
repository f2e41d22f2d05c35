// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package streaming

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jontk/batchsched/pkg/logging"
)

// Duplex is a caller-supplied pair of channels a WebSocketHub pumps to
// and from one connected peer: outbound carries server-originated
// messages (pushed as JSON), inbound receives whatever the peer sends,
// decoded into a caller-chosen type via Decode.
type Duplex struct {
	Outbound <-chan interface{}
	Decode   func(raw []byte) (interface{}, error)
	Inbound  chan<- interface{}
}

// WebSocketHub upgrades one HTTP connection to a duplex WebSocket and
// pumps a Duplex over it until either side closes. It is the ancestor
// of internal/schedcmd's scheduler command channel (a persistent push
// channel fits a duplex socket better than polling) and is reusable by
// any other server-to-peer duplex stream.
type WebSocketHub struct {
	upgrader websocket.Upgrader
	logger   logging.Logger
	pingEvery time.Duration
}

// NewWebSocketHub builds a hub with permissive origin checking,
// appropriate for a server-internal command channel rather than a
// public browser endpoint.
func NewWebSocketHub(logger logging.Logger) *WebSocketHub {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &WebSocketHub{
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:    logger,
		pingEvery: 30 * time.Second,
	}
}

// Serve upgrades the connection and pumps d until the request context
// is cancelled or the peer disconnects.
func (h *WebSocketHub) Serve(w http.ResponseWriter, r *http.Request, d Duplex) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.readLoop(ctx, conn, d, cancel)
	h.writeLoop(ctx, conn, d)
	return nil
}

func (h *WebSocketHub) readLoop(ctx context.Context, conn *websocket.Conn, d Duplex, cancel context.CancelFunc) {
	defer cancel()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		if d.Decode == nil || d.Inbound == nil {
			continue
		}
		msg, err := d.Decode(raw)
		if err != nil {
			h.logger.Warn("websocket decode error", "error", err)
			continue
		}
		select {
		case d.Inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (h *WebSocketHub) writeLoop(ctx context.Context, conn *websocket.Conn, d Duplex) {
	ticker := time.NewTicker(h.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-d.Outbound:
			if !ok {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Warn("websocket write error", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Warn("websocket ping error", "error", err)
				return
			}
		}
	}
}
