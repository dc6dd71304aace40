// Package events broadcasts ledger lifecycle events to websocket
// subscribers. Delivery is best effort: a slow client is dropped rather
// than allowed to stall the close loop.
package events

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Event is one feed message.
type Event struct {
	Type      string `json:"type"`
	LedgerSeq uint32 `json:"ledger_seq"`
	CloseTime uint64 `json:"close_time,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	Asset     string `json:"asset,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
}

// Event type tags.
const (
	EventLedgerClosed     = "ledger_closed"
	EventFundingPayout    = "funding"
	EventLiquidationMark  = "liquidation_mark"
	EventLiquidationClear = "liquidation_clear"
)

// Hub fans events out to connected websocket clients.
type Hub struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// ServeHTTP upgrades the request and streams events until the client goes
// away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	send := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()

	go func() {
		defer h.drop(conn)
		for msg := range send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	// Discard inbound frames; the feed is one-way.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if send, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(send)
	}
	h.mu.Unlock()
	conn.Close()
}

// Publish broadcasts an event to every connected client.
func (h *Hub) Publish(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal event")
		return
	}

	h.mu.Lock()
	for conn, send := range h.clients {
		select {
		case send <- msg:
		default:
			// Client is not keeping up.
			delete(h.clients, conn)
			close(send)
			conn.Close()
		}
	}
	h.mu.Unlock()
}
