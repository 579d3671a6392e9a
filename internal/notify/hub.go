package notify

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"clinicflow/pkg/logger"
	"clinicflow/pkg/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Options struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

// Hub is the in-process connection set. All operations are safe for
// concurrent use.
type Hub struct {
	mu  sync.RWMutex
	all map[*Client]struct{}

	opts Options
	log  *logger.Logger
	now  func() time.Time

	delivered atomic.Int64
	dropped   atomic.Int64
}

func NewHub(opts Options, log *logger.Logger) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Hub{
		all:  make(map[*Client]struct{}),
		opts: opts,
		log:  log,
		now:  time.Now,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[c] = struct{}{}
}

// Unregister removes the client and closes its Send channel. Calling it more
// than once is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; !ok {
		return
	}
	delete(h.all, c)
	close(c.Send)
}

func (h *Hub) disconnect(c *Client) {
	h.Unregister(c)
	_ = c.conn.Close()
}

// Broadcast hands the event to every registered client without blocking.
// A client whose buffer is full misses the event.
func (h *Hub) Broadcast(_ context.Context, event model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("Failed to encode event", "type", event.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.all {
		h.enqueue(c, event.Type, data)
	}
}

// enqueue must be called with h.mu held.
func (h *Hub) enqueue(c *Client, eventType model.EventType, data []byte) {
	select {
	case c.Send <- data:
		h.delivered.Add(1)
	default:
		h.dropped.Add(1)
		h.log.Warn("Event not delivered",
			"error", &DeliveryError{ClientID: c.ID, EventType: eventType, Reason: "send buffer full"},
		)
	}
}

// sendTo delivers to one client, if it is still registered.
func (h *Hub) sendTo(c *Client, event model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("Failed to encode event", "type", event.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.all[c]; !ok {
		return
	}
	h.enqueue(c, event.Type, data)
}

func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.all))
	for c := range h.all {
		clients = append(clients, c)
	}
	return clients
}

// Sweep closes clients that have been silent since the previous sweep and
// pings the rest.
func (h *Hub) Sweep() {
	deadline := h.now().Add(h.opts.WriteTimeout)
	for _, c := range h.snapshot() {
		if !c.alive.Swap(false) {
			h.log.Info("Closing unresponsive client", "client_id", c.ID)
			h.disconnect(c)
			continue
		}
		if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			h.log.Debug("Ping failed", "client_id", c.ID, "error", err)
			h.disconnect(c)
		}
	}
}

// Run sweeps on every ping interval until ctx is done, then closes every
// client.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, c := range h.snapshot() {
				h.disconnect(c)
			}
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// Serve registers conn and blocks until the connection ends.
func (h *Hub) Serve(conn Conn) {
	c := newClient(uuid.NewString(), conn, h.opts.SendBuffer)
	conn.SetPongHandler(func(string) error { return c.markAlive() })
	h.Register(c)
	h.log.Debug("Client connected", "client_id", c.ID)

	go h.writeLoop(c)
	h.readLoop(c)

	h.disconnect(c)
	h.log.Debug("Client disconnected", "client_id", c.ID)
}

func (h *Hub) writeLoop(c *Client) {
	for data := range c.Send {
		_ = c.conn.SetWriteDeadline(h.now().Add(h.opts.WriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Debug("Write failed", "client_id", c.ID, "error", err)
			h.disconnect(c)
			return
		}
	}
}

type inbound struct {
	Type model.EventType `json:"type"`
}

func (h *Hub) readLoop(c *Client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.markAlive()

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == model.EventPing {
			h.sendTo(c, model.NewEvent(model.EventPong, nil, h.now()))
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) Stats() Stats {
	return Stats{
		Backend:   "memory",
		Clients:   h.ClientCount(),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
}
