package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Conn is the subset of a websocket connection a Client uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is a single websocket subscriber.
type Client struct {
	hub  *Hub
	conn Conn
	send chan Message
	seen map[string]struct{}
}

// NewClient creates a client. It is not registered until Run.
func NewClient(hub *Hub, conn Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan Message, 256),
	}
}

// Run registers the client, writes backlog first and then live messages
// until the connection closes. Live messages whose key appears in the
// backlog are skipped. The backlog func is called after registration so
// no message falls between backlog and live delivery.
func (c *Client) Run(backlog func() []Message) {
	if !c.hub.Register(c) {
		c.conn.Close()
		return
	}

	if backlog != nil {
		msgs := backlog()
		c.seen = make(map[string]struct{}, len(msgs))
		for _, m := range msgs {
			if m.Key != "" {
				c.seen[m.Key] = struct{}{}
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(wsType(m), m.Data); err != nil {
				c.hub.Unregister(c)
				c.conn.Close()
				return
			}
		}
	}

	go c.writePump()
	c.readPump()
}

// readPump detects disconnection and handles pongs. Clients are not
// expected to send anything.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer once the backlog is sent.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if _, dup := c.seen[msg.Key]; dup && msg.Key != "" {
				delete(c.seen, msg.Key)
				continue
			}
			if err := c.conn.WriteMessage(wsType(msg), msg.Data); err != nil {
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

func wsType(m Message) int {
	if m.Type == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
