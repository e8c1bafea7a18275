package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campushq/timetable-api/internal/models"
)

// AvailabilityRepository reads availability and blocked-time slots from the
// shared platform database for calendar composition. The availability module
// owns the table; reads here are best-effort.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

type availabilitySlotRow struct {
	ID      string    `db:"id"`
	StartAt time.Time `db:"start_at"`
	EndAt   time.Time `db:"end_at"`
	Blocked bool      `db:"blocked"`
	Note    *string   `db:"note"`
}

func (r availabilitySlotRow) toModel() models.AvailabilitySlot {
	slot := models.AvailabilitySlot{
		ID:      r.ID,
		StartAt: r.StartAt,
		EndAt:   r.EndAt,
		Blocked: r.Blocked,
	}
	if r.Note != nil {
		slot.Note = *r.Note
	}
	return slot
}

// SlotsForStudent returns a student's slots intersecting [from, to).
func (r *AvailabilityRepository) SlotsForStudent(ctx context.Context, studentID string, from, to time.Time) ([]models.AvailabilitySlot, error) {
	return r.slotsFor(ctx, "student", studentID, from, to)
}

// SlotsForInstructor returns an instructor's slots intersecting [from, to).
func (r *AvailabilityRepository) SlotsForInstructor(ctx context.Context, instructorID string, from, to time.Time) ([]models.AvailabilitySlot, error) {
	return r.slotsFor(ctx, "instructor", instructorID, from, to)
}

func (r *AvailabilityRepository) slotsFor(ctx context.Context, principalType, principalID string, from, to time.Time) ([]models.AvailabilitySlot, error) {
	const query = `SELECT id, start_at, end_at, blocked, note FROM availability_slots
        WHERE principal_type = $1 AND principal_id = $2 AND start_at < $4 AND end_at > $3
        ORDER BY start_at ASC`

	var rows []availabilitySlotRow
	if err := r.db.SelectContext(ctx, &rows, query, principalType, principalID, from, to); err != nil {
		return nil, fmt.Errorf("list availability slots: %w", err)
	}

	slots := make([]models.AvailabilitySlot, 0, len(rows))
	for _, row := range rows {
		slots = append(slots, row.toModel())
	}
	return slots, nil
}
