package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one WebSocket connection bound to a clientId inside a room.
//
// All data frames are written by a single writeLoop goroutine; everything
// else communicates with it through the bounded send channel. Close frames
// are the one exception: gorilla/websocket allows WriteControl concurrently
// with data writes, so closeWith may be called from any goroutine.
type Client struct {
	id       string
	username string
	room     *Room
	conn     *websocket.Conn

	pingInterval time.Duration
	writeTimeout time.Duration

	send      chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, id, username string, queueSize int, pingInterval, writeTimeout time.Duration) *Client {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Client{
		id:           id,
		username:     username,
		conn:         conn,
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		send:         make(chan Message, queueSize),
		done:         make(chan struct{}),
	}
}

// enqueue hands a message to the writer goroutine without ever blocking the
// caller. One member's slow socket must not stall delivery to the rest of
// the room, so a full queue is reported rather than waited on.
func (c *Client) enqueue(msg Message) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		return errSendQueueFull
	}
}

// writeLoop owns every data frame written to the connection. It drains the
// send channel, emits keepalive pings, and exits when the client is stopped
// or a write fails.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			return
		}
	}
}

// closeWith sends a close frame with the given code and stops the client.
// Idempotent and safe from any goroutine.
func (c *Client) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(c.writeTimeout)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		close(c.done)
	})
}

// shutdown stops the client without writing a close frame, for connections
// that already failed on the wire.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}
