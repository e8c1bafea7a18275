package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/timetable-api/internal/models"
)

const enrollmentColumns = `id, student_id, scheduled_instance_id, status, attendance_at, cancel_reason, created_at, updated_at`

// EnrollmentRepository handles persistence of enrollments and waitlist
// entries (enrollments in status WAITLISTED).
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}

	const query = `INSERT INTO enrollments (id, student_id, scheduled_instance_id, status, attendance_at, cancel_reason, created_at, updated_at)
        VALUES (:id, :student_id, :scheduled_instance_id, :status, :attendance_at, :cancel_reason, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// LockByID loads an enrollment row under FOR UPDATE inside the given tx.
func (r *EnrollmentRepository) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1 FOR UPDATE`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := tx.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// CountOccupying counts enrollments holding a seat (ENROLLED or ATTENDED).
func (r *EnrollmentRepository) CountOccupying(ctx context.Context, exec sqlx.ExtContext, instanceID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE scheduled_instance_id = $1 AND status IN ($2, $3)`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, instanceID, models.EnrollmentStatusEnrolled, models.EnrollmentStatusAttended); err != nil {
		return 0, fmt.Errorf("count occupying enrollments: %w", err)
	}
	return count, nil
}

// ExistsNonCancelled checks whether the student already holds a non-cancelled
// enrollment (including a waitlist entry) on the instance.
func (r *EnrollmentRepository) ExistsNonCancelled(ctx context.Context, exec sqlx.ExtContext, studentID, instanceID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND scheduled_instance_id = $2 AND status <> $3 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, studentID, instanceID, models.EnrollmentStatusCancelled); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check existing enrollment: %w", err)
	}
	return true, nil
}

// ListByInstance returns enrollments on an instance filtered to one status,
// or all when status is empty.
func (r *EnrollmentRepository) ListByInstance(ctx context.Context, instanceID string, status models.EnrollmentStatus) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE scheduled_instance_id = $1`, enrollmentColumns)
	args := []interface{}{instanceID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY created_at ASC"
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("list instance enrollments: %w", err)
	}
	return enrollments, nil
}

// ListWaitlistedByInstance returns the FIFO waitlist for an instance. The
// queue order is creation time; there is no explicit position column.
func (r *EnrollmentRepository) ListWaitlistedByInstance(ctx context.Context, instanceID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE scheduled_instance_id = $1 AND status = $2 ORDER BY created_at ASC, id ASC`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, instanceID, models.EnrollmentStatusWaitlisted); err != nil {
		return nil, fmt.Errorf("list waitlisted enrollments: %w", err)
	}
	return enrollments, nil
}

// CancelActiveByInstance cancels every cancellable enrollment on the instance
// (ENROLLED and WAITLISTED) in one statement and returns the affected rows.
// Runs inside the cascade tx so instance and enrollments flip together or not
// at all.
func (r *EnrollmentRepository) CancelActiveByInstance(ctx context.Context, exec sqlx.ExtContext, instanceID string, reason *string) ([]models.Enrollment, error) {
	const query = `UPDATE enrollments SET status = $2, cancel_reason = $3, updated_at = $4
        WHERE scheduled_instance_id = $1 AND status IN ($5, $6)
        RETURNING id, student_id, scheduled_instance_id, status, attendance_at, cancel_reason, created_at, updated_at`
	var cancelled []models.Enrollment
	if err := sqlx.SelectContext(ctx, r.exec(exec), &cancelled, query, instanceID, models.EnrollmentStatusCancelled, reason, time.Now().UTC(),
		models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted); err != nil {
		return nil, fmt.Errorf("cancel instance enrollments: %w", err)
	}
	return cancelled, nil
}

// UpdateStatus persists a status change with optional attendance stamp and
// cancel reason.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.EnrollmentStatus, attendanceAt *time.Time, reason *string) error {
	const query = `UPDATE enrollments SET status = $2, attendance_at = $3, cancel_reason = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, attendanceAt, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// studentScheduleRow flattens an enrollment joined with its instance.
type studentScheduleRow struct {
	EnrollmentID     string                         `db:"enrollment_id"`
	StudentID        string                         `db:"student_id"`
	EnrollmentStatus models.EnrollmentStatus        `db:"enrollment_status"`
	AttendanceAt     *time.Time                     `db:"attendance_at"`
	EnrolledAt       time.Time                      `db:"enrolled_at"`
	InstanceID       string                         `db:"instance_id"`
	ClassDefID       string                         `db:"class_definition_id"`
	InstructorID     string                         `db:"instructor_id"`
	StartAt          time.Time                      `db:"start_at"`
	EndAt            time.Time                      `db:"end_at"`
	Timezone         string                         `db:"timezone"`
	LocationType     models.LocationType            `db:"location_type"`
	LocationName     string                         `db:"location_name"`
	InstanceStatus   models.ScheduledInstanceStatus `db:"instance_status"`
}

const studentScheduleSelect = `SELECT e.id AS enrollment_id, e.student_id, e.status AS enrollment_status,
        e.attendance_at, e.created_at AS enrolled_at,
        i.id AS instance_id, i.class_definition_id, i.instructor_id, i.start_at, i.end_at, i.timezone,
        i.location_type, i.location_name, i.status AS instance_status
        FROM enrollments e
        JOIN scheduled_instances i ON i.id = e.scheduled_instance_id`

func (r studentScheduleRow) toItem() models.StudentScheduleItem {
	return models.StudentScheduleItem{
		Instance: models.ScheduledInstance{
			ID:                r.InstanceID,
			ClassDefinitionID: r.ClassDefID,
			InstructorID:      r.InstructorID,
			StartAt:           r.StartAt,
			EndAt:             r.EndAt,
			Timezone:          r.Timezone,
			Location:          models.Location{Type: r.LocationType, Name: r.LocationName},
			Status:            r.InstanceStatus,
		},
		Enrollment: models.Enrollment{
			ID:                  r.EnrollmentID,
			StudentID:           r.StudentID,
			ScheduledInstanceID: r.InstanceID,
			Status:              r.EnrollmentStatus,
			AttendanceAt:        r.AttendanceAt,
			CreatedAt:           r.EnrolledAt,
		},
	}
}

// ListStudentScheduleBetween returns the student's non-cancelled enrollments
// on non-cancelled instances intersecting [from, to], with the underlying
// sessions, ordered by start time.
func (r *EnrollmentRepository) ListStudentScheduleBetween(ctx context.Context, exec sqlx.ExtContext, studentID string, from, to time.Time) ([]models.StudentScheduleItem, error) {
	query := studentScheduleSelect + `
        WHERE e.student_id = $1 AND e.status <> $2 AND i.status <> $3
          AND i.start_at < $5 AND i.end_at > $4
        ORDER BY i.start_at ASC`
	var rows []studentScheduleRow
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, studentID,
		models.EnrollmentStatusCancelled, models.InstanceStatusCancelled, from, to); err != nil {
		return nil, fmt.Errorf("list student schedule: %w", err)
	}
	items := make([]models.StudentScheduleItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toItem())
	}
	return items, nil
}

// ListSeatHoldingInstancesByStudentBetween returns instances where the student
// holds a seat (ENROLLED or ATTENDED) intersecting [from, to]. Waitlist
// entries do not block the student's calendar for conflict purposes.
func (r *EnrollmentRepository) ListSeatHoldingInstancesByStudentBetween(ctx context.Context, exec sqlx.ExtContext, studentID string, from, to time.Time) ([]models.ScheduledInstance, error) {
	const query = `SELECT i.id, i.class_definition_id, i.instructor_id, i.start_at, i.end_at, i.timezone,
        i.location_type, i.location_name, i.location_lat, i.location_lng, i.status, i.cancel_reason, i.created_at, i.updated_at
        FROM enrollments e
        JOIN scheduled_instances i ON i.id = e.scheduled_instance_id
        WHERE e.student_id = $1 AND e.status IN ($2, $3) AND i.status <> $4
          AND i.start_at < $6 AND i.end_at > $5
        ORDER BY i.start_at ASC`
	var rows []scheduledInstanceRow
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, studentID,
		models.EnrollmentStatusEnrolled, models.EnrollmentStatusAttended, models.InstanceStatusCancelled, from, to); err != nil {
		return nil, fmt.Errorf("list student commitments: %w", err)
	}
	instances := make([]models.ScheduledInstance, 0, len(rows))
	for _, row := range rows {
		instances = append(instances, row.toModel())
	}
	return instances, nil
}
