package service

import (
	"context"
	"time"

	"github.com/campushq/timetable-api/internal/models"
)

// ClassDefinitionNotFoundError is returned by ClassDefinitionLookup
// implementations when the id is unknown. Declared here so the core does not
// depend on the collaborator's error vocabulary.
type ClassDefinitionNotFoundError struct {
	ID string
}

func (e *ClassDefinitionNotFoundError) Error() string {
	return "class definition not found: " + e.ID
}

// ClassDefinitionLookup is the capability interface onto the course-management
// module. Capacity and waitlist policy are authoritative there, so snapshots
// are fetched per operation and never cached across calls.
type ClassDefinitionLookup interface {
	FindByUUID(ctx context.Context, id string) (*models.ClassDefinitionSnapshot, error)
}

// AvailabilityFeed produces availability and blocked-time entries from the
// availability module for calendar composition.
type AvailabilityFeed interface {
	SlotsForStudent(ctx context.Context, studentID string, from, to time.Time) ([]models.AvailabilitySlot, error)
	SlotsForInstructor(ctx context.Context, instructorID string, from, to time.Time) ([]models.AvailabilitySlot, error)
}
