package kafka_middleware

import (
	"context"
	"errors"
	"testing"

	"clinicflow/pkg/kafka"
	"clinicflow/pkg/logger"
)

func TestMetrics_ProducerAndConsumer(t *testing.T) {
	m := NewMetrics()
	publish := m.ProducerMiddleware()
	consume := m.ConsumerMiddleware()
	ctx := context.Background()
	msg := kafka.Message{Key: "QUEUE_UPDATE", Value: []byte(`{}`)}

	ok := func(ctx context.Context, msg kafka.Message) error { return nil }
	fail := func(ctx context.Context, msg kafka.Message) error { return errors.New("broker down") }

	_ = publish(ctx, msg, ok)
	_ = publish(ctx, msg, ok)
	if err := publish(ctx, msg, fail); err == nil {
		t.Fatal("expected error to propagate")
	}
	_ = consume(ctx, msg, ok)
	_ = consume(ctx, msg, fail)

	s := m.Snapshot()
	if s.Published != 2 || s.PublishFailed != 1 {
		t.Errorf("publish counts = %d/%d, want 2/1", s.Published, s.PublishFailed)
	}
	if s.Consumed != 1 || s.ConsumeFailed != 1 {
		t.Errorf("consume counts = %d/%d, want 1/1", s.Consumed, s.ConsumeFailed)
	}
}

func TestLoggingMiddleware_PassesThrough(t *testing.T) {
	log := logger.Discard()
	wantErr := errors.New("boom")

	err := LoggingProducerMiddleware(log)(context.Background(), kafka.Message{}, func(ctx context.Context, msg kafka.Message) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("producer middleware error = %v, want %v", err, wantErr)
	}

	called := false
	err = LoggingConsumerMiddleware(log)(context.Background(), kafka.Message{}, func(ctx context.Context, msg kafka.Message) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Errorf("consumer middleware did not call next cleanly: err=%v called=%v", err, called)
	}
}
