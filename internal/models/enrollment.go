package models

import "time"

// EnrollmentStatus is the lifecycle state of a student's claim on a session.
type EnrollmentStatus string

const (
	EnrollmentStatusEnrolled   EnrollmentStatus = "ENROLLED"
	EnrollmentStatusAttended   EnrollmentStatus = "ATTENDED"
	EnrollmentStatusAbsent     EnrollmentStatus = "ABSENT"
	EnrollmentStatusCancelled  EnrollmentStatus = "CANCELLED"
	EnrollmentStatusWaitlisted EnrollmentStatus = "WAITLISTED"
)

// enrollmentTransitions is the allowed transition table. ATTENDED, ABSENT and
// CANCELLED are terminal. A WAITLISTED entry becomes ENROLLED only through an
// explicit promotion.
var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentStatusEnrolled:   {EnrollmentStatusAttended, EnrollmentStatusAbsent, EnrollmentStatusCancelled},
	EnrollmentStatusWaitlisted: {EnrollmentStatusEnrolled, EnrollmentStatusCancelled},
	EnrollmentStatusAttended:   {},
	EnrollmentStatusAbsent:     {},
	EnrollmentStatusCancelled:  {},
}

// CanTransitionTo reports whether moving to next is legal.
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	for _, allowed := range enrollmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s EnrollmentStatus) Terminal() bool {
	return len(enrollmentTransitions[s]) == 0
}

// OccupiesSeat reports whether the status counts against forward capacity.
// ABSENT is terminal but the seat is already released for capacity purposes.
func (s EnrollmentStatus) OccupiesSeat() bool {
	return s == EnrollmentStatusEnrolled || s == EnrollmentStatusAttended
}

// Enrollment is one student's claim on a ScheduledInstance. Waitlist entries
// are enrollments in status WAITLISTED ordered FIFO by CreatedAt. Enrollments
// are never deleted.
type Enrollment struct {
	ID                  string           `db:"id" json:"id"`
	StudentID           string           `db:"student_id" json:"student_id"`
	ScheduledInstanceID string           `db:"scheduled_instance_id" json:"scheduled_instance_id"`
	Status              EnrollmentStatus `db:"status" json:"status"`
	AttendanceAt        *time.Time       `db:"attendance_at" json:"attendance_at,omitempty"`
	CancelReason        *string          `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentFilter describes query params for listing enrollments.
type EnrollmentFilter struct {
	StudentID           string
	ScheduledInstanceID string
	Status              EnrollmentStatus
	Page                int
	PageSize            int
}

// StudentScheduleItem pairs an enrollment with its underlying session for the
// student calendar read model.
type StudentScheduleItem struct {
	Instance   ScheduledInstance `json:"instance"`
	Enrollment Enrollment        `json:"enrollment"`
}
