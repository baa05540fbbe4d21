package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rentchat/internal/user"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size.
	maxMessageSize = 64 << 10
)

// Client is one authenticated WebSocket connection.
type Client struct {
	ID       string
	Identity user.Identity

	conn    *websocket.Conn
	send    chan []byte
	limiter *RateLimiter
}

func newClient(conn *websocket.Conn, id user.Identity, queue int, limiter *RateLimiter) *Client {
	return &Client{
		ID:       uuid.NewString(),
		Identity: id,
		conn:     conn,
		send:     make(chan []byte, queue),
		limiter:  limiter,
	}
}

func (c *Client) UserID() string { return c.Identity.UserID }

// readPump handles inbound frames one at a time until the connection fails.
// Each event runs to completion before the next frame is read.
func (c *Client) readPump(ctx context.Context, hub *Hub, handle func(context.Context, *Client, []byte)) {
	defer func() {
		hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		handle(ctx, c, message)
	}
}

// writePump is the only writer on the connection. One JSON frame per message.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
