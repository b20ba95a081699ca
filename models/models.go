package models

import (
	"time"
)

// TimestampLayout is the format used to display and search FirstSeenAt.
const TimestampLayout = time.RFC3339

type VisitRecord struct {
	IP          string    `json:"ip"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}

// Timestamp returns the first-seen time as it appears on the admin page.
func (v VisitRecord) Timestamp() string {
	return v.FirstSeenAt.UTC().Format(TimestampLayout)
}

type LoginRecord struct {
	IP string    `json:"ip"`
	At time.Time `json:"at"`
}

func (l LoginRecord) Timestamp() string {
	return l.At.UTC().Format(TimestampLayout)
}
