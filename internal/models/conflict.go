package models

import "fmt"

// TimeConflictError reports the existing commitment that collides with a
// requested window. Dimension is "instructor" or "student".
type TimeConflictError struct {
	Dimension   string            `json:"dimension"`
	PrincipalID string            `json:"principal_id"`
	Requested   TimeWindow        `json:"requested"`
	Existing    ScheduledInstance `json:"existing"`
}

// Error implements the error interface.
func (e *TimeConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %s already committed %s - %s (instance %s)",
		e.Dimension, e.PrincipalID,
		e.Existing.StartAt.Format("2006-01-02T15:04Z07:00"),
		e.Existing.EndAt.Format("2006-01-02T15:04Z07:00"),
		e.Existing.ID)
}

// CapacityExceededError reports the session that had no free seat at commit
// time, with the occupancy observed inside the guarding transaction.
type CapacityExceededError struct {
	ScheduledInstanceID string `json:"scheduled_instance_id"`
	Capacity            int    `json:"capacity"`
	Occupied            int    `json:"occupied"`
}

// Error implements the error interface.
func (e *CapacityExceededError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("instance %s full: %d/%d seats taken", e.ScheduledInstanceID, e.Occupied, e.Capacity)
}

// IllegalTransitionError reports a rejected state-machine transition with the
// current and requested statuses.
type IllegalTransitionError struct {
	Entity    string `json:"entity"`
	ID        string `json:"id"`
	Current   string `json:"current"`
	Requested string `json:"requested"`
}

// Error implements the error interface.
func (e *IllegalTransitionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %s cannot move from %s to %s", e.Entity, e.ID, e.Current, e.Requested)
}
