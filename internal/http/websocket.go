package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"dompet/internal/events"
	dlog "dompet/internal/log"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait   = 10 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = (wsPongWait * 9) / 10
	wsBacklogSize = 64
)

// LedgerMessage is pushed to dashboards after every ledger write.
type LedgerMessage struct {
	Type          string      `json:"type"`
	Kind          events.Kind `json:"kind"`
	OwnerID       string      `json:"owner_id"`
	TransactionID int64       `json:"transaction_id,omitempty"`
	CategoryID    int64       `json:"category_id,omitempty"`
	Date          string      `json:"date,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

func newLedgerMessage(e events.LedgerChanged) LedgerMessage {
	return LedgerMessage{
		Type:          "ledger_changed",
		Kind:          e.Kind,
		OwnerID:       e.OwnerID,
		TransactionID: e.TransactionID,
		CategoryID:    e.CategoryID,
		Date:          e.Date,
		Timestamp:     e.Timestamp,
	}
}

type wsClient struct {
	conn    *websocket.Conn
	ownerID string
	writeMu sync.Mutex
}

// sees reports whether a change owned by ownerID is visible to the client.
func (c *wsClient) sees(ownerID string) bool {
	return c.ownerID == "" || c.ownerID == ownerID
}

func (c *wsClient) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(messageType, data)
}

// Hub tracks websocket clients and fans ledger changes out to them.
type Hub struct {
	clients    map[*wsClient]bool
	broadcast  chan events.LedgerChanged
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.Mutex
	upgrader   websocket.Upgrader

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan events.LedgerChanged, wsBacklogSize),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start runs the hub loop until Stop is called.
func (h *Hub) Start() {
	go h.run()
}

func (h *Hub) run() {
	defer close(h.doneCh)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			slog.Debug("Websocket client connected", "component", dlog.ComponentWebsocket, "clients", n)
		case client := <-h.unregister:
			h.drop(client)
		case e := <-h.broadcast:
			h.send(e)
		case <-h.stopCh:
			h.mu.Lock()
			for client := range h.clients {
				_ = client.conn.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) send(e events.LedgerChanged) {
	data, err := json.Marshal(newLedgerMessage(e))
	if err != nil {
		slog.Error("Failed to marshal ledger message", "component", dlog.ComponentWebsocket, "error", err)
		return
	}

	h.mu.Lock()
	targets := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		if client.sees(e.OwnerID) {
			targets = append(targets, client)
		}
	}
	h.mu.Unlock()

	for _, client := range targets {
		if err := client.write(websocket.TextMessage, data); err != nil {
			slog.Debug("Websocket write failed", "component", dlog.ComponentWebsocket, "error", err)
			h.drop(client)
		}
	}
}

func (h *Hub) drop(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		_ = client.conn.Close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	slog.Debug("Websocket client disconnected", "component", dlog.ComponentWebsocket, "clients", n)
}

// Broadcast queues a change for delivery. When the backlog is full the
// change is dropped; dashboards refetch on the next one.
func (h *Hub) Broadcast(e events.LedgerChanged) {
	select {
	case h.broadcast <- e:
	default:
		slog.Warn("Websocket backlog full, dropping ledger change",
			"component", dlog.ComponentWebsocket,
			"kind", e.Kind)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Stop closes every connection and ends the loop.
func (h *Hub) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.stopCh) })
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeWS upgrades the request and keeps the connection registered until
// the client goes away. Incoming messages are discarded.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, ownerID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		dlog.FromContext(r.Context()).WarnContext(r.Context(), "Websocket upgrade failed", "error", err)
		return
	}
	client := &wsClient{conn: conn, ownerID: ownerID}

	select {
	case h.register <- client:
	case <-h.stopCh:
		_ = conn.Close()
		return
	}

	hello, _ := json.Marshal(map[string]string{"type": "hello", "owner_id": ownerID})
	if err := client.write(websocket.TextMessage, hello); err != nil {
		h.leave(client)
		return
	}

	go h.keepAlive(client)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.leave(client)
				return
			}
		}
	}()
}

func (h *Hub) keepAlive(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := client.write(websocket.PingMessage, nil); err != nil {
				h.leave(client)
				return
			}
		case <-h.stopCh:
			return
		}
	}
}

func (h *Hub) leave(client *wsClient) {
	select {
	case h.unregister <- client:
	case <-h.stopCh:
	}
}
