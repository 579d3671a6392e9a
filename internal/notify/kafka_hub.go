package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"clinicflow/pkg/kafka"
	kafka_config "clinicflow/pkg/kafka/config"
	kafka_middleware "clinicflow/pkg/kafka/middleware"
	"clinicflow/pkg/logger"
	"clinicflow/pkg/model"

	"github.com/google/uuid"
)

const (
	relayOutboxSize       = 256
	defaultPublishTimeout = 5 * time.Second
)

type publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// KafkaHub publishes events to a shared topic and relays everything read from
// it into the local Hub. Each instance consumes in its own group, so every
// instance sees every event, its own included. Publishing happens on the Run
// worker; Broadcast only queues.
type KafkaHub struct {
	local          *Hub
	producer       publisher
	consumer       *kafka.Consumer
	metrics        *kafka_middleware.Metrics
	instanceID     string
	log            *logger.Logger
	closers        []func() error
	outbox         chan model.Event
	publishTimeout time.Duration
}

func NewKafkaHub(local *Hub, cfg *kafka_config.Config, topic string, log *logger.Logger) (*KafkaHub, error) {
	instanceID := uuid.NewString()
	log = log.With("component", "kafka_hub", "instance_id", instanceID)

	producer, err := kafka.NewProducer(cfg, topic, log)
	if err != nil {
		return nil, fmt.Errorf("create relay producer: %w", err)
	}

	h := &KafkaHub{
		local:          local,
		producer:       producer,
		metrics:        kafka_middleware.NewMetrics(),
		instanceID:     instanceID,
		log:            log,
		outbox:         make(chan model.Event, relayOutboxSize),
		publishTimeout: defaultPublishTimeout,
	}

	consumer, err := kafka.NewConsumer(cfg, topic, "clinicflow-hub-"+instanceID, h.relay, log)
	if err != nil {
		_ = producer.Close()
		return nil, fmt.Errorf("create relay consumer: %w", err)
	}
	h.consumer = consumer

	if cfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(log))
		producer.Use(h.metrics.ProducerMiddleware())
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(log))
		consumer.Use(h.metrics.ConsumerMiddleware())
	}

	h.closers = []func() error{consumer.Close, producer.Close}
	return h, nil
}

// Broadcast queues the event for publishing and returns at once. When the
// outbox is full the event goes to this instance's clients only.
func (h *KafkaHub) Broadcast(ctx context.Context, event model.Event) {
	select {
	case h.outbox <- event:
	default:
		h.log.Warn("Relay outbox full, delivering locally",
			"error", &DeliveryError{EventType: event.Type, Reason: "relay outbox full"},
		)
		h.local.Broadcast(ctx, event)
	}
}

func (h *KafkaHub) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-h.outbox:
			h.publish(ctx, event)
		}
	}
}

// publish sends one event to the topic. If the broker cannot take it in time
// the event still reaches this instance's clients.
func (h *KafkaHub) publish(ctx context.Context, event model.Event) {
	msg, err := kafka.NewMessage().
		WithKey(string(event.Type)).
		WithValue(event).
		WithEventType(string(event.Type)).
		WithSource(h.instanceID).
		Build()
	if err == nil {
		pubCtx, cancel := context.WithTimeout(ctx, h.publishTimeout)
		err = h.producer.Publish(pubCtx, msg)
		cancel()
	}
	if err != nil {
		h.log.Warn("Event relay failed, delivering locally",
			"error", &DeliveryError{EventType: event.Type, Reason: err.Error()},
		)
		h.local.Broadcast(context.WithoutCancel(ctx), event)
	}
}

type relayedEvent struct {
	Type      model.EventType `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func (h *KafkaHub) relay(ctx context.Context, msg kafka.Message) error {
	var ev relayedEvent
	if err := msg.DecodeValue(&ev); err != nil {
		return fmt.Errorf("decode relayed event: %w", err)
	}
	if ev.Type == "" {
		return fmt.Errorf("relayed event %s has no type", msg.GetEventID())
	}

	event := model.Event{Type: ev.Type, Timestamp: ev.Timestamp}
	if len(ev.Payload) > 0 {
		event.Payload = ev.Payload
	}
	h.local.Broadcast(ctx, event)
	return nil
}

// Run publishes queued events and consumes the relay topic until ctx is done.
func (h *KafkaHub) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.publishLoop(ctx)
	}()

	if err := h.consumer.Start(ctx); err != nil && ctx.Err() == nil {
		h.log.Error("Relay consumer stopped", "error", err)
	}
	wg.Wait()
}

func (h *KafkaHub) Close() error {
	var first error
	for _, closeFn := range h.closers {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (h *KafkaHub) Stats() Stats {
	s := h.local.Stats()
	s.Backend = "kafka"
	s.Relay = h.metrics.Snapshot()
	return s
}
