package notify

import (
	"sync/atomic"
	"time"
)

// Conn is the subset of *websocket.Conn the hub uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPongHandler(h func(appData string) error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one connected display or terminal.
type Client struct {
	ID   string
	Send chan []byte

	conn Conn
	// alive is set by any inbound frame and cleared by each liveness sweep.
	alive atomic.Bool
}

func newClient(id string, conn Conn, buffer int) *Client {
	c := &Client{
		ID:   id,
		Send: make(chan []byte, buffer),
		conn: conn,
	}
	c.alive.Store(true)
	return c
}

func (c *Client) markAlive() error {
	c.alive.Store(true)
	return nil
}
