package model

import (
	"fmt"
	"sort"
	"time"

	"clinicflow/pkg/locale"
)

type QueueStatus string

const (
	StatusWaiting    QueueStatus = "waiting"
	StatusCalled     QueueStatus = "called"
	StatusConsulting QueueStatus = "consulting"
	StatusDone       QueueStatus = "done"
	StatusCancelled  QueueStatus = "cancelled"
)

// ActiveStatuses are the non-terminal states; a patient holds at most one
// entry in these per day.
var ActiveStatuses = []QueueStatus{StatusWaiting, StatusCalled, StatusConsulting}

func (s QueueStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusCalled, StatusConsulting, StatusDone, StatusCancelled:
		return true
	}
	return false
}

func (s QueueStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusCancelled
}

func (s QueueStatus) IsActive() bool {
	return s.Valid() && !s.IsTerminal()
}

type QueueEntry struct {
	ID                  string      `json:"id" bson:"_id"`
	QueueNumber         string      `json:"queue_number" bson:"queue_number"`
	PatientRef          string      `json:"patient_ref" bson:"patient_ref"`
	Date                string      `json:"date" bson:"date"`
	SequenceNumber      int64       `json:"sequence_number" bson:"sequence_number"`
	Status              QueueStatus `json:"status" bson:"status"`
	Priority            int         `json:"priority" bson:"priority"`
	Active              bool        `json:"-" bson:"active"`
	StatusNote          string      `json:"status_note,omitempty" bson:"status_note,omitempty"`
	RegisteredBy        string      `json:"registered_by,omitempty" bson:"registered_by,omitempty"`
	RegisteredAt        time.Time   `json:"registered_at" bson:"registered_at"`
	CalledAt            *time.Time  `json:"called_at,omitempty" bson:"called_at,omitempty"`
	ConsultingStartedAt *time.Time  `json:"consulting_started_at,omitempty" bson:"consulting_started_at,omitempty"`
	CompletedAt         *time.Time  `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	StatusChangedAt     time.Time   `json:"status_changed_at" bson:"status_changed_at"`
	StatusChangedBy     string      `json:"status_changed_by,omitempty" bson:"status_changed_by,omitempty"`
}

// StatusUpdate is the set of fields a single lifecycle transition writes.
type StatusUpdate struct {
	Status              QueueStatus
	ChangedAt           time.Time
	ChangedBy           string
	CalledAt            *time.Time
	ConsultingStartedAt *time.Time
	CompletedAt         *time.Time
	StatusNote          string
}

// Apply returns a copy of the entry with the update applied.
func (e QueueEntry) Apply(u StatusUpdate) QueueEntry {
	e.Status = u.Status
	e.Active = u.Status.IsActive()
	e.StatusChangedAt = u.ChangedAt
	e.StatusChangedBy = u.ChangedBy
	if u.CalledAt != nil {
		e.CalledAt = u.CalledAt
	}
	if u.ConsultingStartedAt != nil {
		e.ConsultingStartedAt = u.ConsultingStartedAt
	}
	if u.CompletedAt != nil {
		e.CompletedAt = u.CompletedAt
	}
	if u.StatusNote != "" {
		e.StatusNote = u.StatusNote
	}
	return e
}

// FormatQueueNumber renders the human-readable number, e.g. Q20250430-001.
func FormatQueueNumber(date string, sequence int64) string {
	return fmt.Sprintf("Q%s-%03d", locale.CompactDate(date), sequence)
}

// SequenceKey is the counter identity for a clinic-local day.
func SequenceKey(date string) string {
	return "sequence:" + locale.CompactDate(date)
}

// CallsBefore reports whether a should be called ahead of b: higher priority
// first, then earlier registration.
func CallsBefore(a, b *QueueEntry) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.RegisteredAt.Equal(b.RegisteredAt) {
		return a.RegisteredAt.Before(b.RegisteredAt)
	}
	return a.SequenceNumber < b.SequenceNumber
}

var displayRank = map[QueueStatus]int{
	StatusConsulting: 0,
	StatusCalled:     1,
	StatusWaiting:    2,
}

// SortForDisplay orders active entries the way the waiting-room board shows
// them: in consultation, then called, then waiting in call order.
func SortForDisplay(entries []*QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ri, rj := displayRank[entries[i].Status], displayRank[entries[j].Status]
		if ri != rj {
			return ri < rj
		}
		return CallsBefore(entries[i], entries[j])
	})
}
