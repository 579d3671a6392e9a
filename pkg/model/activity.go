package model

import "time"

const (
	ActivityQueueRegistered       = "queue_registered"
	ActivityQueueCalled           = "queue_called"
	ActivityConsultationStarted   = "consultation_started"
	ActivityConsultationCompleted = "consultation_completed"
	ActivityQueueCancelled        = "queue_cancelled"
	ActivityPriorityChanged       = "queue_priority_changed"
)

// Activity is one line of a patient's audit trail.
type Activity struct {
	ID          string    `json:"id" bson:"_id"`
	PatientRef  string    `json:"patient_ref" bson:"patient_ref"`
	EntryID     string    `json:"entry_id,omitempty" bson:"entry_id,omitempty"`
	Action      string    `json:"action" bson:"action"`
	Description string    `json:"description" bson:"description"`
	ActorRef    string    `json:"actor_ref" bson:"actor_ref"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}
