package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/campushq/timetable-api/internal/models"
)

func enrollmentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "student_id", "scheduled_instance_id", "status", "attendance_at", "cancel_reason", "created_at", "updated_at",
	})
}

func TestEnrollmentRepositoryCountOccupying(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM enrollments").
		WithArgs("sched-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusAttended).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountOccupying(context.Background(), nil, "sched-1")
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsNonCancelled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT 1 FROM enrollments").
		WithArgs("stu-1", "sched-1", models.EnrollmentStatusCancelled).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsNonCancelled(context.Background(), nil, "stu-1", "sched-1")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{StudentID: "stu-1", ScheduledInstanceID: "sched-1"}
	require.NoError(t, repo.Create(context.Background(), nil, enrollment))
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCancelActiveByInstance(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	reason := "session cancelled"
	rows := enrollmentRows().
		AddRow("enr-1", "stu-1", "sched-1", models.EnrollmentStatusCancelled, nil, &reason, now, now).
		AddRow("enr-2", "stu-2", "sched-1", models.EnrollmentStatusCancelled, nil, &reason, now, now)
	mock.ExpectQuery("UPDATE enrollments SET status").
		WithArgs("sched-1", models.EnrollmentStatusCancelled, &reason, sqlmock.AnyArg(),
			models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted).
		WillReturnRows(rows)

	cancelled, err := repo.CancelActiveByInstance(context.Background(), nil, "sched-1", &reason)
	require.NoError(t, err)
	require.Len(t, cancelled, 2)
	require.Equal(t, models.EnrollmentStatusCancelled, cancelled[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListWaitlistedByInstance(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	rows := enrollmentRows().
		AddRow("enr-1", "stu-1", "sched-1", models.EnrollmentStatusWaitlisted, nil, nil, now.Add(-time.Minute), now).
		AddRow("enr-2", "stu-2", "sched-1", models.EnrollmentStatusWaitlisted, nil, nil, now, now)
	mock.ExpectQuery("SELECT (.+) FROM enrollments WHERE scheduled_instance_id").
		WithArgs("sched-1", models.EnrollmentStatusWaitlisted).
		WillReturnRows(rows)

	entries, err := repo.ListWaitlistedByInstance(context.Background(), "sched-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "enr-1", entries[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListStudentScheduleBetween(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	start := time.Date(2025, 10, 15, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"enrollment_id", "student_id", "enrollment_status", "attendance_at", "enrolled_at",
		"instance_id", "class_definition_id", "instructor_id", "start_at", "end_at", "timezone",
		"location_type", "location_name", "instance_status",
	}).AddRow("enr-1", "stu-1", models.EnrollmentStatusEnrolled, nil, start,
		"sched-1", "class-1", "inst-1", start, start.Add(time.Hour), "UTC",
		models.LocationTypeOnsite, "Room 4", models.InstanceStatusScheduled)

	mock.ExpectQuery("SELECT e.id AS enrollment_id").
		WithArgs("stu-1", models.EnrollmentStatusCancelled, models.InstanceStatusCancelled, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	items, err := repo.ListStudentScheduleBetween(context.Background(), nil, "stu-1", start.Add(-time.Hour), start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "sched-1", items[0].Instance.ID)
	require.Equal(t, "enr-1", items[0].Enrollment.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
