package model

import "time"

// SequenceCounter holds the monotonic value for one clinic-local day together
// with the cooperative lock guarding its increment.
type SequenceCounter struct {
	Key           string     `bson:"_id" json:"key"`
	Value         int64      `bson:"value" json:"value"`
	LastUpdated   time.Time  `bson:"last_updated" json:"last_updated"`
	Locked        bool       `bson:"locked" json:"locked"`
	LockExpiresAt *time.Time `bson:"lock_expires_at,omitempty" json:"lock_expires_at,omitempty"`
	LockToken     string     `bson:"lock_token,omitempty" json:"-"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
}

// LockExpired reports whether a held lock is past its expiry and may be reclaimed.
func (c *SequenceCounter) LockExpired(now time.Time) bool {
	return c.Locked && c.LockExpiresAt != nil && c.LockExpiresAt.Before(now)
}
