package model

import "time"

type EventType string

const (
	EventQueueUpdate   EventType = "QUEUE_UPDATE"
	EventPatientCalled EventType = "PATIENT_CALLED"
	EventPing          EventType = "PING"
	EventPong          EventType = "PONG"
)

// Event is the envelope pushed to every connected display and terminal.
type Event struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEvent(eventType EventType, payload any, now time.Time) Event {
	return Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: now.UTC(),
	}
}

type PatientCalledPayload struct {
	Entry   *QueueEntry     `json:"entry"`
	Patient *PatientSummary `json:"patient"`
}
