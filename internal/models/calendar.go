package models

import "time"

// CalendarEntryKind tags entries in the merged calendar feed.
type CalendarEntryKind string

const (
	CalendarEntryAvailability      CalendarEntryKind = "AVAILABILITY"
	CalendarEntryBlocked           CalendarEntryKind = "BLOCKED"
	CalendarEntryScheduledInstance CalendarEntryKind = "SCHEDULED_INSTANCE"
)

// CalendarEntry is one row of the unified calendar feed: a scheduled session,
// an availability slot or a blocked period, sorted by start time.
type CalendarEntry struct {
	Kind       CalendarEntryKind  `json:"kind"`
	StartAt    time.Time          `json:"start_at"`
	EndAt      time.Time          `json:"end_at"`
	Title      string             `json:"title,omitempty"`
	Instance   *ScheduledInstance `json:"instance,omitempty"`
	Enrollment *Enrollment        `json:"enrollment,omitempty"`
	SourceID   string             `json:"source_id,omitempty"`
}

// AvailabilitySlot is one entry from the availability collaborator: either
// declared availability or blocked time for a principal.
type AvailabilitySlot struct {
	ID      string    `json:"id"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	Blocked bool      `json:"blocked"`
	Note    string    `json:"note,omitempty"`
}
