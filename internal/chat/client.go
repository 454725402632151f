package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-realtime-chat/internal/logging"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 16 * 1024           // Maximum message size allowed from peer.
)

// Client is a middleman between the websocket connection and the gateway.
// It is the presence.Handle of one live connection.
type Client struct {
	id       string
	identity string // authenticated identity from the JWT
	bound    bool   // set by setup, only touched by readPump

	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	gateway *Gateway
	logger  logging.Logger
}

func newClient(conn *websocket.Conn, identity string, gateway *Gateway, logger logging.Logger, buffer int) *Client {
	id := uuid.NewString()
	return &Client{
		id:       id,
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
		gateway:  gateway,
		logger:   logger.With("conn_id", id, "identity", identity),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues payload without blocking. A closed client or a full buffer drops it.
func (c *Client) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.logger.Warn(context.Background(), "send buffer full, dropping event")
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump pumps messages from the websocket connection to the gateway.
func (c *Client) readPump() {
	defer func() {
		c.gateway.Disconnected(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn(context.Background(), "websocket read error", "error", err)
			}
			return
		}
		c.gateway.HandleEvent(context.Background(), c, message)
	}
}

// writePump pumps queued events to the websocket connection, one frame per event.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				return
			}
			// Drain whatever queued up meanwhile before going back to select.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.write(<-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) write(message []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, message)
}
