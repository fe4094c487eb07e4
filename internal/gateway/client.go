package gateway

import (
	"log/slog"
	"time"

	"edbox/internal/session"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// client is one authenticated websocket connection. The read pump runs
// on the handler goroutine; the write pump owns the connection's write
// side so frames from different rooms never interleave mid-write.
type client struct {
	conn      *websocket.Conn
	principal session.Principal
	send      chan []byte
	rooms     map[string]struct{}
	logger    *slog.Logger
}

func newClient(conn *websocket.Conn, principal session.Principal, sendBuffer int, logger *slog.Logger) *client {
	return &client{
		conn:      conn,
		principal: principal,
		send:      make(chan []byte, sendBuffer),
		rooms:     make(map[string]struct{}),
		logger:    logger,
	}
}

// trySend queues data without blocking. A full buffer means the client
// is too slow for live delivery; the frame is dropped and the client
// resynchronizes via pagination.
func (c *client) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
		c.logger.Warn("dropping frame for slow client",
			slog.String("user_id", c.principal.User.ID.String()),
		)
	}
}

// writePump drains the send channel onto the connection and keeps the
// connection alive with pings. It exits when the send channel closes or
// a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump delivers inbound frames to handle until the connection
// drops. It runs on the caller's goroutine.
func (c *client) readPump(handle func(*client, []byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		handle(c, data)
	}
}
