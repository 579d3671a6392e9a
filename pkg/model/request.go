package model

type RegisterRequest struct {
	PatientRef string `json:"patient_ref" validate:"required,min=1,max=64,patient_ref"`
	Date       string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Priority   *int   `json:"priority,omitempty" validate:"omitempty,min=0"`
	Note       string `json:"note,omitempty" validate:"omitempty,max=500"`
}

type CallNextRequest struct {
	Date string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

type PriorityUpdate struct {
	Priority *int `json:"priority" validate:"required,min=0"`
}

// QueueStats summarises one day of the queue.
type QueueStats struct {
	Date         string              `json:"date"`
	ByStatus     map[QueueStatus]int `json:"by_status"`
	Total        int                 `json:"total"`
	CounterValue int64               `json:"counter_value"`
}
