package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/timetable-api/internal/models"
	appErrors "github.com/campushq/timetable-api/pkg/errors"
)

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type instanceRepoMock struct {
	created   []*models.ScheduledInstance
	byID      map[string]*models.ScheduledInstance
	statusLog []models.ScheduledInstanceStatus
	locks     []string
	createErr error
	updateErr error
	lockErr   error
}

func (m *instanceRepoMock) Create(ctx context.Context, exec sqlx.ExtContext, instance *models.ScheduledInstance) error {
	if m.createErr != nil {
		return m.createErr
	}
	if len(m.locks) == 0 {
		return errors.New("insert without serializing on the instructor first")
	}
	instance.ID = "inst-created"
	m.created = append(m.created, instance)
	return nil
}

func (m *instanceRepoMock) AcquirePrincipalLock(ctx context.Context, tx *sqlx.Tx, scope, principalID string) error {
	if m.lockErr != nil {
		return m.lockErr
	}
	m.locks = append(m.locks, scope+":"+principalID)
	return nil
}

func (m *instanceRepoMock) FindByID(ctx context.Context, id string) (*models.ScheduledInstance, error) {
	instance, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return instance, nil
}

func (m *instanceRepoMock) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.ScheduledInstance, error) {
	return m.FindByID(ctx, id)
}

func (m *instanceRepoMock) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ScheduledInstanceStatus, reason *string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.statusLog = append(m.statusLog, status)
	return nil
}

type cascadeCancellerMock struct {
	cancelled []models.Enrollment
	calls     int
	err       error
}

func (m *cascadeCancellerMock) CancelActiveByInstance(ctx context.Context, exec sqlx.ExtContext, instanceID string, reason *string) ([]models.Enrollment, error) {
	m.calls++
	return m.cancelled, m.err
}

func schedulingFixture(t *testing.T, instances *instanceRepoMock, canceller *cascadeCancellerMock, existing []models.ScheduledInstance) (*SchedulingService, sqlmock.Sqlmock) {
	txProvider, mock := newTxProviderMock(t)
	conflicts := NewConflictService(instructorScheduleStub{instances: existing}, studentCommitmentStub{}, nil)
	classDefs := classDefLookupStub{snapshots: map[string]*models.ClassDefinitionSnapshot{
		"def-1": {ID: "def-1", Capacity: 10},
	}}
	return NewSchedulingService(instances, canceller, conflicts, classDefs, txProvider, nil, nil), mock
}

func validScheduleRequest(day time.Time) ScheduleClassRequest {
	return ScheduleClassRequest{
		ClassDefinitionID: "def-1",
		InstructorID:      "instructor-1",
		StartAt:           day.Add(9 * time.Hour),
		EndAt:             day.Add(11 * time.Hour),
		Timezone:          "Asia/Jakarta",
		Location:          LocationPayload{Type: "ONSITE", Name: "Room 204"},
	}
}

func TestSchedulingServiceScheduleSuccess(t *testing.T) {
	instances := &instanceRepoMock{}
	svc, mock := schedulingFixture(t, instances, &cascadeCancellerMock{}, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	instance, err := svc.Schedule(context.Background(), validScheduleRequest(day))
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusScheduled, instance.Status)
	assert.Equal(t, "Asia/Jakarta", instance.Timezone)
	assert.True(t, instance.StartAt.Equal(day.Add(9*time.Hour)))
	require.Len(t, instances.created, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Two schedulers hitting an empty instructor calendar both pass the conflict
// read unless the transaction serializes on the instructor first. The mock's
// Create fails when no lock preceded it, so this pins the ordering.
func TestSchedulingServiceScheduleSerializesOnInstructor(t *testing.T) {
	instances := &instanceRepoMock{}
	svc, mock := schedulingFixture(t, instances, &cascadeCancellerMock{}, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err := svc.Schedule(context.Background(), validScheduleRequest(day))
	require.NoError(t, err)
	require.Equal(t, []string{"instructor_schedule:instructor-1"}, instances.locks)
}

func TestSchedulingServiceScheduleLockFailureRollsBack(t *testing.T) {
	instances := &instanceRepoMock{lockErr: errors.New("lock timeout")}
	svc, mock := schedulingFixture(t, instances, &cascadeCancellerMock{}, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err := svc.Schedule(context.Background(), validScheduleRequest(day))
	require.Error(t, err)
	require.Empty(t, instances.created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingServiceScheduleInstructorConflict(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	existing := sessionAt("busy", day.Add(10*time.Hour), day.Add(12*time.Hour))
	instances := &instanceRepoMock{}
	svc, mock := schedulingFixture(t, instances, &cascadeCancellerMock{}, []models.ScheduledInstance{existing})

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Schedule(context.Background(), validScheduleRequest(day))
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)

	var conflict *models.TimeConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "instructor", conflict.Dimension)
	assert.Equal(t, "busy", conflict.Existing.ID)

	assert.Empty(t, instances.created, "no instance row may survive a conflict")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingServiceScheduleValidation(t *testing.T) {
	svc, _ := schedulingFixture(t, &instanceRepoMock{}, &cascadeCancellerMock{}, nil)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	t.Run("inverted window", func(t *testing.T) {
		req := validScheduleRequest(day)
		req.StartAt, req.EndAt = req.EndAt, req.StartAt
		_, err := svc.Schedule(context.Background(), req)
		require.Error(t, err)
		var appErr *appErrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	})

	t.Run("unknown timezone", func(t *testing.T) {
		req := validScheduleRequest(day)
		req.Timezone = "Mars/Olympus"
		_, err := svc.Schedule(context.Background(), req)
		require.Error(t, err)
	})

	t.Run("unknown class definition", func(t *testing.T) {
		req := validScheduleRequest(day)
		req.ClassDefinitionID = "missing"
		_, err := svc.Schedule(context.Background(), req)
		require.Error(t, err)
		var appErr *appErrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	})
}

func TestSchedulingServiceUpdateStatus(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	t.Run("legal transition", func(t *testing.T) {
		instance := sessionAt("inst-1", day.Add(9*time.Hour), day.Add(10*time.Hour))
		instances := &instanceRepoMock{byID: map[string]*models.ScheduledInstance{"inst-1": &instance}}
		svc, mock := schedulingFixture(t, instances, &cascadeCancellerMock{}, nil)

		mock.ExpectBegin()
		mock.ExpectCommit()

		err := svc.UpdateStatus(context.Background(), "inst-1", models.InstanceStatusOngoing)
		require.NoError(t, err)
		assert.Equal(t, []models.ScheduledInstanceStatus{models.InstanceStatusOngoing}, instances.statusLog)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("illegal transition", func(t *testing.T) {
		instance := sessionAt("inst-1", day.Add(9*time.Hour), day.Add(10*time.Hour))
		instance.Status = models.InstanceStatusCompleted
		instances := &instanceRepoMock{byID: map[string]*models.ScheduledInstance{"inst-1": &instance}}
		svc, mock := schedulingFixture(t, instances, &cascadeCancellerMock{}, nil)

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := svc.UpdateStatus(context.Background(), "inst-1", models.InstanceStatusOngoing)
		require.Error(t, err)
		var appErr *appErrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, appErrors.ErrIllegalTransition.Code, appErr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cancel must use cancel operation", func(t *testing.T) {
		svc, _ := schedulingFixture(t, &instanceRepoMock{}, &cascadeCancellerMock{}, nil)
		err := svc.UpdateStatus(context.Background(), "inst-1", models.InstanceStatusCancelled)
		require.Error(t, err)
		var appErr *appErrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	})
}

func TestSchedulingServiceCancelCascades(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	instance := sessionAt("inst-1", day.Add(9*time.Hour), day.Add(10*time.Hour))
	instances := &instanceRepoMock{byID: map[string]*models.ScheduledInstance{"inst-1": &instance}}
	canceller := &cascadeCancellerMock{cancelled: []models.Enrollment{
		{ID: "enr-1", StudentID: "student-1", Status: models.EnrollmentStatusCancelled},
		{ID: "enr-2", StudentID: "student-2", Status: models.EnrollmentStatusCancelled},
	}}
	svc, mock := schedulingFixture(t, instances, canceller, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	cancelled, err := svc.Cancel(context.Background(), "inst-1", "instructor unavailable")
	require.NoError(t, err)
	assert.Len(t, cancelled, 2)
	assert.Equal(t, 1, canceller.calls)
	assert.Equal(t, []models.ScheduledInstanceStatus{models.InstanceStatusCancelled}, instances.statusLog)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingServiceCancelRollsBackWholeCascade(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	instance := sessionAt("inst-1", day.Add(9*time.Hour), day.Add(10*time.Hour))
	instances := &instanceRepoMock{byID: map[string]*models.ScheduledInstance{"inst-1": &instance}}
	canceller := &cascadeCancellerMock{err: sql.ErrConnDone}
	svc, mock := schedulingFixture(t, instances, canceller, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Cancel(context.Background(), "inst-1", "instructor unavailable")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingServiceCancelTerminalInstance(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	instance := sessionAt("inst-1", day.Add(9*time.Hour), day.Add(10*time.Hour))
	instance.Status = models.InstanceStatusCancelled
	instances := &instanceRepoMock{byID: map[string]*models.ScheduledInstance{"inst-1": &instance}}
	svc, mock := schedulingFixture(t, instances, &cascadeCancellerMock{}, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Cancel(context.Background(), "inst-1", "")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrIllegalTransition.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
