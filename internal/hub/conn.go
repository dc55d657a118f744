// ABOUTME: One viewer connection: buffered writer goroutine plus read loop
// ABOUTME: A full outbound queue or write error drops only this connection

package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// conn is one websocket viewer. It implements session.Subscriber: Send
// never blocks the caller.
type conn struct {
	hub *Hub
	ws  *websocket.Conn

	send chan []byte
	once sync.Once
	done chan struct{}
}

func newConn(h *Hub, ws *websocket.Conn) *conn {
	return &conn{
		hub:  h,
		ws:   ws,
		send: make(chan []byte, h.opts.SendBuffer),
		done: make(chan struct{}),
	}
}

// Send marshals and enqueues one outbound message. A connection that
// cannot keep up is dropped rather than stalling the broadcaster.
func (c *conn) Send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.Error("marshaling outbound message", "error", err)
		return
	}

	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.hub.logger.Warn("outbound queue full, dropping connection")
		c.close()
	}
}

// close shuts the connection down once; writeLoop exits via done.
func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writeLoop drains the send queue onto the websocket.
func (c *conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		}
	}
}

// readLoop consumes client messages until the connection drops. Malformed
// messages get an explicit error reply; they never kill the connection.
func (c *conn) readLoop(ctx context.Context) {
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		c.hub.dispatch(ctx, c, raw)
	}
}
