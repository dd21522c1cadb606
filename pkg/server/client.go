package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/mandichat/pkg/relay"
)

// Client is one websocket connection.
type Client struct {
	id   relay.ConnID
	hub  *Hub
	conn *websocket.Conn
	cfg  WebSocketConfig

	mu     sync.Mutex // guards send and closed
	send   chan []byte
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, cfg WebSocketConfig) *Client {
	return &Client{
		id:   relay.ConnID(uuid.NewString()),
		hub:  hub,
		conn: conn,
		cfg:  cfg,
		send: make(chan []byte, hub.sendBuffer),
	}
}

// enqueue queues data for the write pump. It returns false when the queue is
// full or already closed.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send queue once. It reports whether this call closed it.
func (c *Client) closeSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

// readPump reads frames until the connection fails and passes each one to handle.
func (c *Client) readPump(handle func(relay.ConnID, []byte)) error {
	c.conn.SetReadLimit(c.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				return err
			}
			return nil
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		handle(c.id, data)
	}
}

// writePump drains the send queue to the socket and keeps the connection
// alive with pings. It returns when the queue is closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWS upgrades the request and runs the client until it disconnects.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "origin", r.Header.Get("Origin"), "err", err)
		return
	}

	c := newClient(s.hub, conn, s.cfg.WebSocket)
	s.hub.register(c)
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	s.log.Debug("client connected", "conn", c.id, "remote", r.RemoteAddr)

	go c.writePump()

	err = c.readPump(s.engine.HandleFrame)

	// Drop transport state first so the departure is announced only to the
	// remaining subscribers.
	s.hub.unregister(c.id)
	s.engine.Disconnect(c.id)
	_ = conn.Close()

	s.metrics.ActiveConnections.Add(-1)
	s.metrics.TotalDisconnects.Add(1)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.log.Debug("client read error", "conn", c.id, "err", err)
	}
	s.log.Debug("client disconnected", "conn", c.id)
}
