package models

import "time"

// Domain event types published after successful commits. Consumers must treat
// these as eventually-delivered notifications, not transactional guarantees.
const (
	EventStudentEnrolled         = "timetable.student_enrolled"
	EventEnrollmentStatusChanged = "timetable.enrollment_status_changed"
)

// StudentEnrolledEvent is published after an enrollment set commits.
type StudentEnrolledEvent struct {
	StudentID         string    `json:"student_id"`
	ClassDefinitionID string    `json:"class_definition_id"`
	EnrollmentIDs     []string  `json:"enrollment_ids"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// EnrollmentStatusChangedEvent is published after an enrollment status commit.
type EnrollmentStatusChangedEvent struct {
	StudentID         string           `json:"student_id"`
	ClassDefinitionID string           `json:"class_definition_id"`
	EnrollmentID      string           `json:"enrollment_id"`
	NewStatus         EnrollmentStatus `json:"new_status"`
	OccurredAt        time.Time        `json:"occurred_at"`
}
