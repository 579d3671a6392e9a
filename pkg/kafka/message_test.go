package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestMessageBuilder(t *testing.T) {
	msg, err := NewMessage().
		WithKey("PATIENT_CALLED").
		WithValue(map[string]string{"queue_number": "Q20250430-001"}).
		WithEventType("PATIENT_CALLED").
		WithSource("instance-a").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if msg.GetEventID() == "" {
		t.Error("event id should be generated")
	}
	if msg.GetSource() != "instance-a" {
		t.Errorf("source = %q", msg.GetSource())
	}

	var decoded map[string]string
	if err := msg.DecodeValue(&decoded); err != nil {
		t.Fatalf("DecodeValue() error = %v", err)
	}
	if decoded["queue_number"] != "Q20250430-001" {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestMessageBuilder_EncodingError(t *testing.T) {
	_, err := NewMessage().WithKey("k").WithValue(make(chan int)).Build()
	if err == nil {
		t.Fatal("expected encoding error")
	}
}

func TestKafkaMessageConversion(t *testing.T) {
	now := time.Now().UTC()
	in := Message{
		Key:       "QUEUE_UPDATE",
		Value:     []byte(`{"type":"QUEUE_UPDATE"}`),
		Headers:   map[string]string{HeaderEventType: "QUEUE_UPDATE", HeaderSource: "instance-a"},
		Timestamp: now,
	}

	km := toKafkaMessage(in)
	km.Topic = "clinicflow.queue.events"
	km.Offset = 42
	out := fromKafkaMessage(km)

	if out.Key != in.Key || string(out.Value) != string(in.Value) {
		t.Errorf("round trip lost key/value: %+v", out)
	}
	if out.GetEventType() != "QUEUE_UPDATE" || out.GetSource() != "instance-a" {
		t.Errorf("headers = %v", out.Headers)
	}
	if out.Offset != 42 || out.Topic != "clinicflow.queue.events" {
		t.Errorf("offset/topic = %d/%s", out.Offset, out.Topic)
	}
	var _ kafka.Message = km
}
