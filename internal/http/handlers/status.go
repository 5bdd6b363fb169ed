package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wolfman30/robo-agendamentos/internal/messaging"
	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

// Counters reports the sizes shown on the status page.
type Counters struct {
	PendingCorrelations func() int
	QueuedBatches       func() int
}

// StatusHandler serves the transport connection state as JSON and as a
// websocket stream of transitions.
type StatusHandler struct {
	hub      *messaging.StatusHub
	counters Counters
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

func NewStatusHandler(hub *messaging.StatusHub, counters Counters, logger *logging.Logger) *StatusHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StatusHandler{
		hub:      hub,
		counters: counters,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: logger,
	}
}

type statusResponse struct {
	Transport           messaging.ConnectionStatus `json:"transport"`
	PendingCorrelations int                        `json:"pending_correlations"`
	QueuedBatches       int                        `json:"queued_batches"`
}

// GetStatus handles GET /api/status.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Transport: h.hub.Current()}
	if h.counters.PendingCorrelations != nil {
		resp.PendingCorrelations = h.counters.PendingCorrelations()
	}
	if h.counters.QueuedBatches != nil {
		resp.QueuedBatches = h.counters.QueuedBatches()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// StreamStatus handles GET /ws/status. The current state is sent first,
// then every transition, until the client goes away.
func (h *StatusHandler) StreamStatus(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake completes so no transition is missed.
	updates, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("status stream: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go h.readPump(conn, closed)

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case status := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(status); err != nil {
				h.logger.Debug("status stream: write failed", "error", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so pongs and close frames are processed.
func (h *StatusHandler) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
