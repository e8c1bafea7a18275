package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/timetable-api/internal/models"
	appErrors "github.com/campushq/timetable-api/pkg/errors"
)

type enrollmentRepoMock struct {
	created      []*models.Enrollment
	byID         map[string]*models.Enrollment
	counts       map[string]int
	existing     map[string]bool
	statusLog    []models.EnrollmentStatus
	createFailAt int
	createErr    error
}

func (m *enrollmentRepoMock) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if m.createErr != nil && len(m.created)+1 == m.createFailAt {
		return m.createErr
	}
	enrollment.ID = "enr-" + enrollment.ScheduledInstanceID
	m.created = append(m.created, enrollment)
	return nil
}

func (m *enrollmentRepoMock) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return enrollment, nil
}

func (m *enrollmentRepoMock) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error) {
	return m.FindByID(ctx, id)
}

func (m *enrollmentRepoMock) CountOccupying(ctx context.Context, exec sqlx.ExtContext, instanceID string) (int, error) {
	return m.counts[instanceID], nil
}

func (m *enrollmentRepoMock) ExistsNonCancelled(ctx context.Context, exec sqlx.ExtContext, studentID, instanceID string) (bool, error) {
	return m.existing[studentID+"/"+instanceID], nil
}

func (m *enrollmentRepoMock) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.EnrollmentStatus, attendanceAt *time.Time, reason *string) error {
	m.statusLog = append(m.statusLog, status)
	return nil
}

type classSessionsMock struct {
	byID  map[string]*models.ScheduledInstance
	byDef map[string][]models.ScheduledInstance
	locks []string
}

func (m *classSessionsMock) AcquirePrincipalLock(ctx context.Context, tx *sqlx.Tx, scope, principalID string) error {
	m.locks = append(m.locks, scope+":"+principalID)
	return nil
}

func (m *classSessionsMock) FindByID(ctx context.Context, id string) (*models.ScheduledInstance, error) {
	instance, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return instance, nil
}

func (m *classSessionsMock) LockActiveByClassDefinition(ctx context.Context, tx *sqlx.Tx, classDefID string) ([]models.ScheduledInstance, error) {
	return m.byDef[classDefID], nil
}

func enrollmentFixture(t *testing.T, enrollments *enrollmentRepoMock, sessions *classSessionsMock, commitments []models.ScheduledInstance, capacity int) (*EnrollmentService, sqlmock.Sqlmock) {
	txProvider, mock := newTxProviderMock(t)
	conflicts := NewConflictService(instructorScheduleStub{}, studentCommitmentStub{instances: commitments}, nil)
	classDefs := classDefLookupStub{snapshots: map[string]*models.ClassDefinitionSnapshot{
		"def-1": {ID: "def-1", Capacity: capacity, AllowWaitlist: true},
	}}
	return NewEnrollmentService(enrollments, sessions, conflicts, classDefs, txProvider, nil, nil), mock
}

func twoSessionClass(day time.Time) *classSessionsMock {
	first := sessionAt("inst-1", day.Add(9*time.Hour), day.Add(10*time.Hour))
	second := sessionAt("inst-2", day.Add(13*time.Hour), day.Add(14*time.Hour))
	first.ClassDefinitionID = "def-1"
	second.ClassDefinitionID = "def-1"
	return &classSessionsMock{
		byID:  map[string]*models.ScheduledInstance{"inst-1": &first, "inst-2": &second},
		byDef: map[string][]models.ScheduledInstance{"def-1": {first, second}},
	}
}

func TestEnrollmentServiceEnrollAllSessions(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	enrollments := &enrollmentRepoMock{}
	svc, mock := enrollmentFixture(t, enrollments, twoSessionClass(day), nil, 10)

	mock.ExpectBegin()
	mock.ExpectCommit()

	created, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", ClassDefinitionID: "def-1"})
	require.NoError(t, err)
	require.Len(t, created, 2)
	for _, enrollment := range created {
		assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The student-conflict read spans sessions of other classes, where no row is
// locked. Enroll must serialize on the student before reading, or two
// enrollments into overlapping classes can both pass the check.
func TestEnrollmentServiceEnrollSerializesOnStudent(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	sessions := twoSessionClass(day)
	svc, mock := enrollmentFixture(t, &enrollmentRepoMock{}, sessions, nil, 10)

	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", ClassDefinitionID: "def-1"})
	require.NoError(t, err)
	require.Equal(t, []string{"student_schedule:student-1"}, sessions.locks)
}

func TestEnrollmentServiceEnrollCapacityExceeded(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	// Second session is full, so nothing may be created for either session.
	enrollments := &enrollmentRepoMock{counts: map[string]int{"inst-2": 1}}
	svc, mock := enrollmentFixture(t, enrollments, twoSessionClass(day), nil, 1)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", ClassDefinitionID: "def-1"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErr.Code)

	var capErr *models.CapacityExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "inst-2", capErr.ScheduledInstanceID)

	assert.Empty(t, enrollments.created, "a partial booking must never survive")
}

func TestEnrollmentServiceEnrollStudentConflict(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	busy := sessionAt("other-class", day.Add(9*time.Hour+30*time.Minute), day.Add(10*time.Hour+30*time.Minute))
	enrollments := &enrollmentRepoMock{}
	svc, mock := enrollmentFixture(t, enrollments, twoSessionClass(day), []models.ScheduledInstance{busy}, 10)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", ClassDefinitionID: "def-1"})
	require.Error(t, err)
	var conflict *models.TimeConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "student", conflict.Dimension)
	assert.Empty(t, enrollments.created)
}

func TestEnrollmentServiceEnrollDuplicateClaim(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	enrollments := &enrollmentRepoMock{existing: map[string]bool{"student-1/inst-1": true}}
	svc, mock := enrollmentFixture(t, enrollments, twoSessionClass(day), nil, 10)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", ClassDefinitionID: "def-1"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Empty(t, enrollments.created)
}

func TestEnrollmentServiceEnrollNoSessions(t *testing.T) {
	enrollments := &enrollmentRepoMock{}
	svc, mock := enrollmentFixture(t, enrollments, &classSessionsMock{}, nil, 10)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", ClassDefinitionID: "def-1"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestEnrollmentServiceMarkAttendance(t *testing.T) {
	enrolled := &models.Enrollment{ID: "enr-1", StudentID: "student-1", ScheduledInstanceID: "inst-1", Status: models.EnrollmentStatusEnrolled}
	enrollments := &enrollmentRepoMock{byID: map[string]*models.Enrollment{"enr-1": enrolled}}
	svc, mock := enrollmentFixture(t, enrollments, &classSessionsMock{}, nil, 10)

	mock.ExpectBegin()
	mock.ExpectCommit()

	updated, err := svc.MarkAttendance(context.Background(), "enr-1", true)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusAttended, updated.Status)
	require.NotNil(t, updated.AttendanceAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceMarkAttendanceTwiceRejected(t *testing.T) {
	attended := &models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusAttended}
	enrollments := &enrollmentRepoMock{byID: map[string]*models.Enrollment{"enr-1": attended}}
	svc, mock := enrollmentFixture(t, enrollments, &classSessionsMock{}, nil, 10)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.MarkAttendance(context.Background(), "enr-1", false)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrIllegalTransition.Code, appErr.Code)
	assert.Empty(t, enrollments.statusLog, "no silent overwrite of a marked attendance")
}

func TestEnrollmentServiceCancel(t *testing.T) {
	t.Run("enrolled claim", func(t *testing.T) {
		enrolled := &models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusEnrolled}
		enrollments := &enrollmentRepoMock{byID: map[string]*models.Enrollment{"enr-1": enrolled}}
		svc, mock := enrollmentFixture(t, enrollments, &classSessionsMock{}, nil, 10)

		mock.ExpectBegin()
		mock.ExpectCommit()

		updated, err := svc.Cancel(context.Background(), "enr-1", "schedule change")
		require.NoError(t, err)
		assert.Equal(t, models.EnrollmentStatusCancelled, updated.Status)
		require.NotNil(t, updated.CancelReason)
		assert.Equal(t, "schedule change", *updated.CancelReason)
	})

	t.Run("waitlisted claim", func(t *testing.T) {
		waitlisted := &models.Enrollment{ID: "enr-2", Status: models.EnrollmentStatusWaitlisted}
		enrollments := &enrollmentRepoMock{byID: map[string]*models.Enrollment{"enr-2": waitlisted}}
		svc, mock := enrollmentFixture(t, enrollments, &classSessionsMock{}, nil, 10)

		mock.ExpectBegin()
		mock.ExpectCommit()

		updated, err := svc.Cancel(context.Background(), "enr-2", "")
		require.NoError(t, err)
		assert.Equal(t, models.EnrollmentStatusCancelled, updated.Status)
	})

	t.Run("terminal claim", func(t *testing.T) {
		cancelled := &models.Enrollment{ID: "enr-3", Status: models.EnrollmentStatusCancelled}
		enrollments := &enrollmentRepoMock{byID: map[string]*models.Enrollment{"enr-3": cancelled}}
		svc, mock := enrollmentFixture(t, enrollments, &classSessionsMock{}, nil, 10)

		mock.ExpectBegin()
		mock.ExpectRollback()

		_, err := svc.Cancel(context.Background(), "enr-3", "")
		require.Error(t, err)
		var appErr *appErrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, appErrors.ErrIllegalTransition.Code, appErr.Code)
	})
}
