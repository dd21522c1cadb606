package server

import (
	"log/slog"
	"sync"

	"github.com/NicolasHaas/mandichat/pkg/protocol"
	"github.com/NicolasHaas/mandichat/pkg/relay"
)

// Hub tracks connected websocket clients and their room subscriptions.
// It implements relay.Transport.
type Hub struct {
	mu         sync.RWMutex
	clients    map[relay.ConnID]*Client
	rooms      map[string]map[relay.ConnID]*Client // roomID -> subscribers
	sendBuffer int
	metrics    *relay.Metrics
	log        *slog.Logger
}

// NewHub creates an empty hub. sendBuffer is the per-client outbound queue size.
func NewHub(sendBuffer int, metrics *relay.Metrics, logger *slog.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	if metrics == nil {
		metrics = relay.NewMetrics()
	}
	return &Hub{
		clients:    make(map[relay.ConnID]*Client),
		rooms:      make(map[string]map[relay.ConnID]*Client),
		sendBuffer: sendBuffer,
		metrics:    metrics,
		log:        logger,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

// unregister removes the client from the hub and every room it was in,
// and closes its send queue. It reports whether the client was registered.
func (h *Hub) unregister(id relay.ConnID) bool {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		for roomID, subs := range h.rooms {
			if _, in := subs[id]; !in {
				continue
			}
			delete(subs, id)
			if len(subs) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	h.mu.Unlock()

	if ok {
		c.closeSend()
	}
	return ok
}

// Subscribe adds conn to roomID. Unknown connections are ignored.
func (h *Hub) Subscribe(conn relay.ConnID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[conn]
	if !ok {
		return
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[relay.ConnID]*Client)
	}
	h.rooms[roomID][conn] = c
}

// Unsubscribe removes conn from roomID, deleting the room once empty.
func (h *Hub) Unsubscribe(conn relay.ConnID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(subs, conn)
	if len(subs) == 0 {
		delete(h.rooms, roomID)
	}
}

// Subscribers returns the connections currently subscribed to roomID.
func (h *Hub) Subscribers(roomID string) []relay.ConnID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := h.rooms[roomID]
	out := make([]relay.ConnID, 0, len(subs))
	for id := range subs {
		out = append(out, id)
	}
	return out
}

// Emit queues an event for a single connection.
func (h *Hub) Emit(conn relay.ConnID, event string, payload any) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		h.log.Error("encode event", "event", event, "err", err)
		return
	}

	h.mu.RLock()
	c, ok := h.clients[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.deliver(c, data)
}

// BroadcastExcept queues an event for every subscriber of roomID except one.
func (h *Hub) BroadcastExcept(roomID string, except relay.ConnID, event string, payload any) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		h.log.Error("encode event", "event", event, "err", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for id, c := range h.rooms[roomID] {
		if id != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, data)
	}
}

// deliver queues data without blocking. A client whose queue is full is
// disconnected: closing its queue makes the write pump close the socket.
func (h *Hub) deliver(c *Client, data []byte) {
	if c.enqueue(data) {
		return
	}
	if c.closeSend() {
		h.metrics.SlowClientDrops.Add(1)
		h.log.Warn("send queue full, dropping client", "conn", c.id)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of rooms with at least one subscriber.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// CloseAll closes every client's send queue so the write pumps send a
// close frame and hang up.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.closeSend()
	}
}
