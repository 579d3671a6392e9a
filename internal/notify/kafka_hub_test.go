package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"clinicflow/pkg/kafka"
	kafka_middleware "clinicflow/pkg/kafka/middleware"
	"clinicflow/pkg/logger"
	"clinicflow/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	publishFunc func(ctx context.Context, msg kafka.Message) error

	mu   sync.Mutex
	sent []kafka.Message
}

func (m *mockPublisher) Publish(ctx context.Context, msg kafka.Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	if m.publishFunc != nil {
		return m.publishFunc(ctx, msg)
	}
	return nil
}

func (m *mockPublisher) messages() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]kafka.Message(nil), m.sent...)
}

func newTestKafkaHub(pub publisher) (*KafkaHub, *Client) {
	local := newTestHub(8)
	c := newClient("display", newFakeConn(), 8)
	local.Register(c)
	return &KafkaHub{
		local:          local,
		producer:       pub,
		metrics:        kafka_middleware.NewMetrics(),
		instanceID:     "instance-a",
		log:            logger.Discard(),
		outbox:         make(chan model.Event, 4),
		publishTimeout: time.Second,
	}, c
}

func TestKafkaHub_PublishLoopPublishesOnly(t *testing.T) {
	pub := &mockPublisher{}
	hub, display := newTestKafkaHub(pub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.publishLoop(ctx)
	}()

	hub.Broadcast(context.Background(), model.NewEvent(model.EventPatientCalled, map[string]string{"queue_number": "Q20250430-001"}, time.Now()))

	require.Eventually(t, func() bool { return len(pub.messages()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	msg := pub.messages()[0]
	assert.Equal(t, "PATIENT_CALLED", msg.Key)
	assert.Equal(t, "instance-a", msg.GetSource())
	assert.Equal(t, "PATIENT_CALLED", msg.GetEventType())
	assert.Empty(t, display.Send, "local delivery happens when the event comes back from the topic")
}

func TestKafkaHub_BroadcastDoesNotWaitForBroker(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	pub := &mockPublisher{publishFunc: func(ctx context.Context, msg kafka.Message) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return ctx.Err()
	}}
	hub, _ := newTestKafkaHub(pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.publishLoop(ctx)

	start := time.Now()
	for i := 0; i < 3; i++ {
		hub.Broadcast(context.Background(), model.NewEvent(model.EventQueueUpdate, []string{}, time.Now()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestKafkaHub_PublishFailureFallsBackToLocal(t *testing.T) {
	pub := &mockPublisher{publishFunc: func(ctx context.Context, msg kafka.Message) error {
		return errors.New("no brokers available")
	}}
	hub, display := newTestKafkaHub(pub)

	hub.publish(context.Background(), model.NewEvent(model.EventQueueUpdate, []string{}, time.Now()))

	assert.Len(t, display.Send, 1)
}

func TestKafkaHub_SlowBrokerTimesOutToLocal(t *testing.T) {
	pub := &mockPublisher{publishFunc: func(ctx context.Context, msg kafka.Message) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	hub, display := newTestKafkaHub(pub)
	hub.publishTimeout = 20 * time.Millisecond

	start := time.Now()
	hub.publish(context.Background(), model.NewEvent(model.EventQueueUpdate, []string{}, time.Now()))

	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, display.Send, 1)
}

func TestKafkaHub_FullOutboxDeliversLocally(t *testing.T) {
	pub := &mockPublisher{}
	hub, display := newTestKafkaHub(pub)
	hub.outbox = make(chan model.Event, 1)

	hub.Broadcast(context.Background(), model.NewEvent(model.EventQueueUpdate, []string{}, time.Now()))
	hub.Broadcast(context.Background(), model.NewEvent(model.EventQueueUpdate, []string{}, time.Now()))

	assert.Len(t, hub.outbox, 1)
	assert.Len(t, display.Send, 1)
	assert.Empty(t, pub.messages())
}

func TestKafkaHub_RelayDeliversLocally(t *testing.T) {
	hub, display := newTestKafkaHub(&mockPublisher{})
	msg, err := kafka.NewMessage().
		WithKey("PATIENT_CALLED").
		WithValue(model.NewEvent(model.EventPatientCalled, map[string]string{"queue_number": "Q20250430-002"}, time.Now())).
		Build()
	require.NoError(t, err)

	require.NoError(t, hub.relay(context.Background(), msg))

	require.Len(t, display.Send, 1)
	var got struct {
		Type    model.EventType   `json:"type"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(<-display.Send, &got))
	assert.Equal(t, model.EventPatientCalled, got.Type)
	assert.Equal(t, "Q20250430-002", got.Payload["queue_number"])
}

func TestKafkaHub_RelayRejectsMalformedEvents(t *testing.T) {
	hub, display := newTestKafkaHub(&mockPublisher{})

	tests := []struct {
		name  string
		value string
	}{
		{name: "not json", value: "garbage"},
		{name: "missing type", value: `{"payload":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := hub.relay(context.Background(), kafka.Message{Key: "k", Value: []byte(tt.value)})
			assert.Error(t, err)
		})
	}
	assert.Empty(t, display.Send)
}

func TestKafkaHub_Stats(t *testing.T) {
	hub, _ := newTestKafkaHub(&mockPublisher{})
	stats := hub.Stats()
	assert.Equal(t, "kafka", stats.Backend)
	assert.Equal(t, 1, stats.Clients)
	assert.NotNil(t, stats.Relay)
}
