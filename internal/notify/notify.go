// Package notify fans queue events out to connected displays and terminals.
//
// Hub keeps the WebSocket connections of one process. KafkaHub relays events
// through a Kafka topic so that every instance's Hub sees every event.
package notify

import (
	"context"
	"fmt"

	"clinicflow/pkg/model"
)

// NotificationHub delivers an event to every connected client. Delivery is
// best effort and never fails the caller.
type NotificationHub interface {
	Broadcast(ctx context.Context, event model.Event)
}

// DeliveryError describes an event that could not be handed to a client.
type DeliveryError struct {
	ClientID  string
	EventType model.EventType
	Reason    string
}

func (e *DeliveryError) Error() string {
	if e.ClientID == "" {
		return fmt.Sprintf("deliver %s: %s", e.EventType, e.Reason)
	}
	return fmt.Sprintf("deliver %s to client %s: %s", e.EventType, e.ClientID, e.Reason)
}

// Stats is the realtime snapshot served by the stats endpoint.
type Stats struct {
	Backend   string `json:"backend"`
	Clients   int    `json:"clients"`
	Delivered int64  `json:"delivered"`
	Dropped   int64  `json:"dropped"`
	Relay     any    `json:"relay,omitempty"`
}

// StatsProvider is implemented by both hub backends.
type StatsProvider interface {
	Stats() Stats
}
