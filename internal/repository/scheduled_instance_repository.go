package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/timetable-api/internal/models"
)

const scheduledInstanceColumns = `id, class_definition_id, instructor_id, start_at, end_at, timezone,
        location_type, location_name, location_lat, location_lng, status, cancel_reason, created_at, updated_at`

// scheduledInstanceRow maps a flat instances row; Location is folded on read.
type scheduledInstanceRow struct {
	ID                string                         `db:"id"`
	ClassDefinitionID string                         `db:"class_definition_id"`
	InstructorID      string                         `db:"instructor_id"`
	StartAt           time.Time                      `db:"start_at"`
	EndAt             time.Time                      `db:"end_at"`
	Timezone          string                         `db:"timezone"`
	LocationType      models.LocationType            `db:"location_type"`
	LocationName      string                         `db:"location_name"`
	LocationLat       *float64                       `db:"location_lat"`
	LocationLng       *float64                       `db:"location_lng"`
	Status            models.ScheduledInstanceStatus `db:"status"`
	CancelReason      *string                        `db:"cancel_reason"`
	CreatedAt         time.Time                      `db:"created_at"`
	UpdatedAt         time.Time                      `db:"updated_at"`
}

func (r scheduledInstanceRow) toModel() models.ScheduledInstance {
	return models.ScheduledInstance{
		ID:                r.ID,
		ClassDefinitionID: r.ClassDefinitionID,
		InstructorID:      r.InstructorID,
		StartAt:           r.StartAt,
		EndAt:             r.EndAt,
		Timezone:          r.Timezone,
		Location: models.Location{
			Type: r.LocationType,
			Name: r.LocationName,
			Lat:  r.LocationLat,
			Lng:  r.LocationLng,
		},
		Status:       r.Status,
		CancelReason: r.CancelReason,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// ScheduledInstanceRepository handles persistence of scheduled class sessions.
type ScheduledInstanceRepository struct {
	db *sqlx.DB
}

// NewScheduledInstanceRepository constructs the repository.
func NewScheduledInstanceRepository(db *sqlx.DB) *ScheduledInstanceRepository {
	return &ScheduledInstanceRepository{db: db}
}

func (r *ScheduledInstanceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create persists a new scheduled instance.
func (r *ScheduledInstanceRepository) Create(ctx context.Context, exec sqlx.ExtContext, instance *models.ScheduledInstance) error {
	if instance.ID == "" {
		instance.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}
	instance.UpdatedAt = now
	if instance.Status == "" {
		instance.Status = models.InstanceStatusScheduled
	}

	const query = `INSERT INTO scheduled_instances
        (id, class_definition_id, instructor_id, start_at, end_at, timezone,
         location_type, location_name, location_lat, location_lng, status, cancel_reason, created_at, updated_at)
        VALUES (:id, :class_definition_id, :instructor_id, :start_at, :end_at, :timezone,
         :location_type, :location_name, :location_lat, :location_lng, :status, :cancel_reason, :created_at, :updated_at)`

	row := scheduledInstanceRow{
		ID:                instance.ID,
		ClassDefinitionID: instance.ClassDefinitionID,
		InstructorID:      instance.InstructorID,
		StartAt:           instance.StartAt,
		EndAt:             instance.EndAt,
		Timezone:          instance.Timezone,
		LocationType:      instance.Location.Type,
		LocationName:      instance.Location.Name,
		LocationLat:       instance.Location.Lat,
		LocationLng:       instance.Location.Lng,
		Status:            instance.Status,
		CancelReason:      instance.CancelReason,
		CreatedAt:         instance.CreatedAt,
		UpdatedAt:         instance.UpdatedAt,
	}
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, row); err != nil {
		return fmt.Errorf("create scheduled instance: %w", err)
	}
	return nil
}

// AcquirePrincipalLock serializes writers touching one principal's calendar.
// Row locks cannot guard the first write against an empty calendar, so this
// takes a transaction-scoped advisory lock keyed on scope and principal id;
// it is released automatically at commit or rollback.
func (r *ScheduledInstanceRepository) AcquirePrincipalLock(ctx context.Context, tx *sqlx.Tx, scope, principalID string) error {
	const query = `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`
	if _, err := tx.ExecContext(ctx, query, scope, principalID); err != nil {
		return fmt.Errorf("acquire %s advisory lock: %w", scope, err)
	}
	return nil
}

// FindByID returns an instance by its ID.
func (r *ScheduledInstanceRepository) FindByID(ctx context.Context, id string) (*models.ScheduledInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM scheduled_instances WHERE id = $1`, scheduledInstanceColumns)
	var row scheduledInstanceRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	instance := row.toModel()
	return &instance, nil
}

// LockByID loads an instance row under FOR UPDATE inside the given tx. The
// lock isolates capacity checks and cascades from concurrent writers touching
// the same instance.
func (r *ScheduledInstanceRepository) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.ScheduledInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM scheduled_instances WHERE id = $1 FOR UPDATE`, scheduledInstanceColumns)
	var row scheduledInstanceRow
	if err := tx.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	instance := row.toModel()
	return &instance, nil
}

// LockActiveByClassDefinition locks all non-cancelled instances of a class
// definition in ascending id order so concurrent enrollers acquire locks in
// the same sequence.
func (r *ScheduledInstanceRepository) LockActiveByClassDefinition(ctx context.Context, tx *sqlx.Tx, classDefID string) ([]models.ScheduledInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM scheduled_instances
        WHERE class_definition_id = $1 AND status <> $2 ORDER BY id ASC FOR UPDATE`, scheduledInstanceColumns)
	var rows []scheduledInstanceRow
	if err := tx.SelectContext(ctx, &rows, query, classDefID, models.InstanceStatusCancelled); err != nil {
		return nil, fmt.Errorf("lock class definition instances: %w", err)
	}
	instances := make([]models.ScheduledInstance, 0, len(rows))
	for _, row := range rows {
		instances = append(instances, row.toModel())
	}
	return instances, nil
}

// ListActiveByClassDefinition returns non-cancelled instances for a class
// definition without locking.
func (r *ScheduledInstanceRepository) ListActiveByClassDefinition(ctx context.Context, classDefID string) ([]models.ScheduledInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM scheduled_instances
        WHERE class_definition_id = $1 AND status <> $2 ORDER BY start_at ASC`, scheduledInstanceColumns)
	var rows []scheduledInstanceRow
	if err := r.db.SelectContext(ctx, &rows, query, classDefID, models.InstanceStatusCancelled); err != nil {
		return nil, fmt.Errorf("list class definition instances: %w", err)
	}
	instances := make([]models.ScheduledInstance, 0, len(rows))
	for _, row := range rows {
		instances = append(instances, row.toModel())
	}
	return instances, nil
}

// ListActiveByInstructorBetween returns non-cancelled instances for an
// instructor whose window intersects [from, to]. Used by conflict detection
// (day span) and the instructor calendar (date range).
func (r *ScheduledInstanceRepository) ListActiveByInstructorBetween(ctx context.Context, exec sqlx.ExtContext, instructorID string, from, to time.Time) ([]models.ScheduledInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM scheduled_instances
        WHERE instructor_id = $1 AND status <> $2 AND start_at < $4 AND end_at > $3
        ORDER BY start_at ASC`, scheduledInstanceColumns)
	var rows []scheduledInstanceRow
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, instructorID, models.InstanceStatusCancelled, from, to); err != nil {
		return nil, fmt.Errorf("list instructor instances: %w", err)
	}
	instances := make([]models.ScheduledInstance, 0, len(rows))
	for _, row := range rows {
		instances = append(instances, row.toModel())
	}
	return instances, nil
}

// UpdateStatus persists a status change, optionally recording a cancel reason.
func (r *ScheduledInstanceRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ScheduledInstanceStatus, reason *string) error {
	const query = `UPDATE scheduled_instances SET status = $2, cancel_reason = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("update scheduled instance status: %w", err)
	}
	return nil
}
