package models

import "time"

// ScheduledInstanceStatus is the lifecycle state of a scheduled class session.
type ScheduledInstanceStatus string

const (
	InstanceStatusScheduled ScheduledInstanceStatus = "SCHEDULED"
	InstanceStatusOngoing   ScheduledInstanceStatus = "ONGOING"
	InstanceStatusCompleted ScheduledInstanceStatus = "COMPLETED"
	InstanceStatusCancelled ScheduledInstanceStatus = "CANCELLED"
)

// instanceTransitions is the allowed transition table. COMPLETED and
// CANCELLED are terminal.
var instanceTransitions = map[ScheduledInstanceStatus][]ScheduledInstanceStatus{
	InstanceStatusScheduled: {InstanceStatusOngoing, InstanceStatusCancelled},
	InstanceStatusOngoing:   {InstanceStatusCompleted, InstanceStatusCancelled},
	InstanceStatusCompleted: {},
	InstanceStatusCancelled: {},
}

// CanTransitionTo reports whether moving to next is legal.
func (s ScheduledInstanceStatus) CanTransitionTo(next ScheduledInstanceStatus) bool {
	for _, allowed := range instanceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s ScheduledInstanceStatus) Terminal() bool {
	return len(instanceTransitions[s]) == 0
}

// Valid reports whether s is a known status value.
func (s ScheduledInstanceStatus) Valid() bool {
	_, ok := instanceTransitions[s]
	return ok
}

// LocationType distinguishes physical and virtual session locations.
type LocationType string

const (
	LocationTypeOnsite LocationType = "ONSITE"
	LocationTypeOnline LocationType = "ONLINE"
)

// Location describes where a scheduled session takes place.
type Location struct {
	Type LocationType `db:"location_type" json:"type"`
	Name string       `db:"location_name" json:"name"`
	Lat  *float64     `db:"location_lat" json:"lat,omitempty"`
	Lng  *float64     `db:"location_lng" json:"lng,omitempty"`
}

// ScheduledInstance is one concrete calendar occurrence of a class.
// Instances are never deleted; cancellation is a status change plus reason.
type ScheduledInstance struct {
	ID                string                  `db:"id" json:"id"`
	ClassDefinitionID string                  `db:"class_definition_id" json:"class_definition_id"`
	InstructorID      string                  `db:"instructor_id" json:"instructor_id"`
	StartAt           time.Time               `db:"start_at" json:"start_at"`
	EndAt             time.Time               `db:"end_at" json:"end_at"`
	Timezone          string                  `db:"timezone" json:"timezone"`
	Location          Location                `db:"location" json:"location"`
	Status            ScheduledInstanceStatus `db:"status" json:"status"`
	CancelReason      *string                 `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt         time.Time               `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time               `db:"updated_at" json:"updated_at"`
}

// Window returns the instance's time window in UTC.
func (i ScheduledInstance) Window() TimeWindow {
	return NewTimeWindow(i.StartAt, i.EndAt)
}

// ScheduledInstanceFilter describes query params for listing instances.
type ScheduledInstanceFilter struct {
	ClassDefinitionID string
	InstructorID      string
	Status            ScheduledInstanceStatus
	From              *time.Time
	To                *time.Time
	Page              int
	PageSize          int
}
