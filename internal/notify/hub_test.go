package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clinicflow/pkg/logger"
	"clinicflow/pkg/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnClosed = errors.New("connection closed")

type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once

	pings atomic.Int32
	mu    sync.Mutex
	pong  func(string) error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-f.in:
		if !ok {
			return 0, nil, errConnClosed
		}
		return websocket.TextMessage, data, nil
	case <-f.closed:
		return 0, nil, errConnClosed
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return errConnClosed
	case f.out <- data:
		return nil
	}
}

func (f *fakeConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	if f.isClosed() {
		return errConnClosed
	}
	if messageType == websocket.PingMessage {
		f.pings.Add(1)
	}
	return nil
}

func (f *fakeConn) SetPongHandler(h func(string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pong = h
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// answerPing simulates the peer replying to a control ping.
func (f *fakeConn) answerPing() {
	f.mu.Lock()
	h := f.pong
	f.mu.Unlock()
	if h != nil {
		_ = h("")
	}
}

func (f *fakeConn) next(t *testing.T) model.Event {
	t.Helper()
	select {
	case data := <-f.out:
		var ev model.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no message written to connection")
		return model.Event{}
	}
}

func (f *fakeConn) assertSilent(t *testing.T) {
	t.Helper()
	select {
	case data := <-f.out:
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestHub(buffer int) *Hub {
	return NewHub(Options{
		PingInterval: time.Hour,
		WriteTimeout: time.Second,
		SendBuffer:   buffer,
	}, logger.Discard())
}

func queueUpdate() model.Event {
	return model.NewEvent(model.EventQueueUpdate, []string{"Q20250430-001"}, time.Now())
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	hub := newTestHub(8)
	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = newClient(string(rune('a'+i)), newFakeConn(), 8)
		hub.Register(clients[i])
	}

	hub.Broadcast(context.Background(), queueUpdate())

	for _, c := range clients {
		select {
		case data := <-c.Send:
			var ev model.Event
			require.NoError(t, json.Unmarshal(data, &ev))
			assert.Equal(t, model.EventQueueUpdate, ev.Type)
		default:
			t.Fatalf("client %s did not receive broadcast", c.ID)
		}
	}
	assert.Equal(t, int64(3), hub.Stats().Delivered)
}

func TestHub_UnregisterClosesSendAndStopsDelivery(t *testing.T) {
	hub := newTestHub(8)
	gone := newClient("gone", newFakeConn(), 8)
	stays := newClient("stays", newFakeConn(), 8)
	hub.Register(gone)
	hub.Register(stays)

	hub.Unregister(gone)
	hub.Unregister(gone)
	hub.Broadcast(context.Background(), queueUpdate())

	_, open := <-gone.Send
	assert.False(t, open, "send channel of a removed client must be closed")
	assert.Len(t, stays.Send, 1)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_DisconnectDuringBroadcast(t *testing.T) {
	hub := newTestHub(1024)
	clients := make([]*Client, 20)
	for i := range clients {
		clients[i] = newClient(string(rune('A'+i)), newFakeConn(), 1024)
		hub.Register(clients[i])
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Broadcast(context.Background(), queueUpdate())
			}
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			hub.disconnect(c)
		}(clients[i])
	}
	wg.Wait()

	require.Equal(t, 10, hub.ClientCount())
	for _, c := range clients[10:] {
		assert.Len(t, c.Send, 250, "remaining client %s missed events", c.ID)
	}
}

func TestHub_FullBufferDropsEvent(t *testing.T) {
	hub := newTestHub(1)
	slow := newClient("slow", newFakeConn(), 1)
	hub.Register(slow)

	hub.Broadcast(context.Background(), queueUpdate())
	hub.Broadcast(context.Background(), queueUpdate())

	stats := hub.Stats()
	assert.Equal(t, int64(1), stats.Delivered)
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, 1, stats.Clients)
}

func serve(t *testing.T, hub *Hub, conn *fakeConn) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Serve(conn)
	}()
	return done
}

func TestHub_PingAnsweredToSenderOnly(t *testing.T) {
	hub := newTestHub(8)
	a, b := newFakeConn(), newFakeConn()
	serve(t, hub, a)
	serve(t, hub, b)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	a.in <- []byte(`{"type":"PING"}`)

	assert.Equal(t, model.EventPong, a.next(t).Type)
	b.assertSilent(t)
}

func TestHub_UnknownAndMalformedMessagesIgnored(t *testing.T) {
	hub := newTestHub(8)
	conn := newFakeConn()
	serve(t, hub, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.in <- []byte(`{"type":"HELLO"}`)
	conn.in <- []byte(`not json`)
	conn.assertSilent(t)

	conn.in <- []byte(`{"type":"PING"}`)
	assert.Equal(t, model.EventPong, conn.next(t).Type)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_ClosedConnectionIsRemoved(t *testing.T) {
	hub := newTestHub(8)
	leaving, staying := newFakeConn(), newFakeConn()
	done := serve(t, hub, leaving)
	serve(t, hub, staying)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	close(leaving.in)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after the connection closed")
	}

	hub.Broadcast(context.Background(), queueUpdate())
	assert.Equal(t, model.EventQueueUpdate, staying.next(t).Type)
	leaving.assertSilent(t)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_SweepClosesSilentClients(t *testing.T) {
	hub := newTestHub(8)
	responsive, silent := newFakeConn(), newFakeConn()
	serve(t, hub, responsive)
	serve(t, hub, silent)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	hub.Sweep()
	assert.Equal(t, int32(1), responsive.pings.Load())
	assert.Equal(t, int32(1), silent.pings.Load())

	responsive.answerPing()
	hub.Sweep()

	assert.True(t, silent.isClosed(), "client that did not pong should be closed")
	assert.False(t, responsive.isClosed())
	assert.Equal(t, int32(2), responsive.pings.Load())
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHub_RunClosesClientsOnShutdown(t *testing.T) {
	hub := newTestHub(8)
	conn := newFakeConn()
	done := serve(t, hub, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()

	<-stopped
	<-done
	assert.True(t, conn.isClosed())
	assert.Zero(t, hub.ClientCount())
}
