package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campushq/timetable-api/internal/models"
	appErrors "github.com/campushq/timetable-api/pkg/errors"
)

type enrollmentRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error)
	CountOccupying(ctx context.Context, exec sqlx.ExtContext, instanceID string) (int, error)
	ExistsNonCancelled(ctx context.Context, exec sqlx.ExtContext, studentID, instanceID string) (bool, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.EnrollmentStatus, attendanceAt *time.Time, reason *string) error
}

type enrollmentInstanceRepository interface {
	FindByID(ctx context.Context, id string) (*models.ScheduledInstance, error)
	LockActiveByClassDefinition(ctx context.Context, tx *sqlx.Tx, classDefID string) ([]models.ScheduledInstance, error)
	AcquirePrincipalLock(ctx context.Context, tx *sqlx.Tx, scope, principalID string) error
}

// EnrollmentService owns the enrollment state machine: creation across a
// class definition's sessions, attendance marking and cancellation.
type EnrollmentService struct {
	enrollments enrollmentRepository
	instances   enrollmentInstanceRepository
	conflicts   *ConflictService
	classDefs   ClassDefinitionLookup
	tx          txProvider
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(
	enrollments enrollmentRepository,
	instances enrollmentInstanceRepository,
	conflicts *ConflictService,
	classDefs ClassDefinitionLookup,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		enrollments: enrollments,
		instances:   instances,
		conflicts:   conflicts,
		classDefs:   classDefs,
		tx:          tx,
		validator:   validate,
		logger:      logger,
	}
}

// EnrollRequest describes an enrollment request at class-definition level.
type EnrollRequest struct {
	StudentID         string `json:"student_id" validate:"required"`
	ClassDefinitionID string `json:"class_definition_id" validate:"required"`
}

// Enroll books the student into every scheduled session of the class
// definition, all-or-nothing. A class may run multiple sessions the student
// attends as a set, so a partial booking must never survive. All instance
// rows are locked in ascending id order before capacity is counted; under
// contention the first committed transaction wins and the loser sees a
// capacity error it can convert into a waitlist join.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) ([]models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	snapshot, err := s.lookupClassDefinition(ctx, req.ClassDefinitionID)
	if err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// The session row locks below guard per-session capacity, but the
	// student-conflict read spans other classes' sessions. Serialize on the
	// student so two enrollments into different overlapping classes cannot
	// both pass that read.
	if err = s.instances.AcquirePrincipalLock(ctx, tx, lockScopeStudentSchedule, req.StudentID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to serialize student schedule")
		return nil, err
	}

	var sessions []models.ScheduledInstance
	sessions, err = s.instances.LockActiveByClassDefinition(ctx, tx, req.ClassDefinitionID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock class sessions")
		return nil, err
	}
	if len(sessions) == 0 {
		err = appErrors.Clone(appErrors.ErrNotFound, "class definition has no scheduled sessions")
		return nil, err
	}

	for i := range sessions {
		if err = s.admit(ctx, tx, req.StudentID, &sessions[i], snapshot); err != nil {
			return nil, err
		}
	}

	created := make([]models.Enrollment, 0, len(sessions))
	for _, session := range sessions {
		enrollment := &models.Enrollment{
			StudentID:           req.StudentID,
			ScheduledInstanceID: session.ID,
			Status:              models.EnrollmentStatusEnrolled,
		}
		if err = s.enrollments.Create(ctx, tx, enrollment); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
			return nil, err
		}
		created = append(created, *enrollment)
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit enrollment")
		return nil, err
	}

	s.logger.Info("student enrolled",
		zap.String("student_id", req.StudentID),
		zap.String("class_definition_id", req.ClassDefinitionID),
		zap.Int("sessions", len(created)))
	return created, nil
}

// admit verifies one locked session can take the student: no duplicate claim,
// no calendar conflict, and a free seat under the snapshot limit.
func (s *EnrollmentService) admit(ctx context.Context, tx *sqlx.Tx, studentID string, session *models.ScheduledInstance, snapshot *models.ClassDefinitionSnapshot) error {
	exists, err := s.enrollments.ExistsNonCancelled(ctx, tx, studentID, session.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("student already holds a claim on session %s", session.ID))
	}

	conflicting, err := s.conflicts.StudentConflict(ctx, tx, studentID, session.Window())
	if err != nil {
		return err
	}
	if conflicting != nil {
		return appErrors.Wrap(&models.TimeConflictError{
			Dimension:   "student",
			PrincipalID: studentID,
			Requested:   session.Window(),
			Existing:    *conflicting,
		}, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "student already committed in session window")
	}

	if snapshot.Unlimited() {
		return nil
	}
	occupied, err := s.enrollments.CountOccupying(ctx, tx, session.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count session occupancy")
	}
	if occupied >= snapshot.Capacity {
		return appErrors.Wrap(&models.CapacityExceededError{
			ScheduledInstanceID: session.ID,
			Capacity:            snapshot.Capacity,
			Occupied:            occupied,
		}, appErrors.ErrCapacityExceeded.Code, appErrors.ErrCapacityExceeded.Status, "no seats left on session")
	}
	return nil
}

// Get returns an enrollment by id.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// MarkAttendance records attendance for an ENROLLED claim. Re-marking an
// already-marked enrollment is rejected; there is no silent overwrite.
func (s *EnrollmentService) MarkAttendance(ctx context.Context, id string, attended bool) (*models.Enrollment, error) {
	target := models.EnrollmentStatusAttended
	if !attended {
		target = models.EnrollmentStatusAbsent
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var enrollment *models.Enrollment
	enrollment, err = s.lockEnrollment(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusEnrolled || !enrollment.Status.CanTransitionTo(target) {
		err = appErrors.Wrap(&models.IllegalTransitionError{
			Entity:    "enrollment",
			ID:        id,
			Current:   string(enrollment.Status),
			Requested: string(target),
		}, appErrors.ErrIllegalTransition.Code, appErrors.ErrIllegalTransition.Status, "attendance already marked or enrollment inactive")
		return nil, err
	}

	now := time.Now().UTC()
	if err = s.enrollments.UpdateStatus(ctx, tx, id, target, &now, nil); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit attendance")
		return nil, err
	}

	enrollment.Status = target
	enrollment.AttendanceAt = &now
	return enrollment, nil
}

// Cancel releases a student's claim. Legality is decided by the transition
// table: ENROLLED and WAITLISTED claims can be cancelled, terminal ones
// cannot.
func (s *EnrollmentService) Cancel(ctx context.Context, id, reason string) (*models.Enrollment, error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var enrollment *models.Enrollment
	enrollment, err = s.lockEnrollment(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !enrollment.Status.CanTransitionTo(models.EnrollmentStatusCancelled) {
		err = appErrors.Wrap(&models.IllegalTransitionError{
			Entity:    "enrollment",
			ID:        id,
			Current:   string(enrollment.Status),
			Requested: string(models.EnrollmentStatusCancelled),
		}, appErrors.ErrIllegalTransition.Code, appErrors.ErrIllegalTransition.Status, "enrollment cannot be cancelled")
		return nil, err
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if err = s.enrollments.UpdateStatus(ctx, tx, id, models.EnrollmentStatusCancelled, nil, reasonPtr); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit cancellation")
		return nil, err
	}

	enrollment.Status = models.EnrollmentStatusCancelled
	enrollment.CancelReason = reasonPtr
	return enrollment, nil
}

func (s *EnrollmentService) lockEnrollment(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.LockByID(ctx, tx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) lookupClassDefinition(ctx context.Context, classDefID string) (*models.ClassDefinitionSnapshot, error) {
	snapshot, err := s.classDefs.FindByUUID(ctx, classDefID)
	if err != nil {
		var notFound *ClassDefinitionNotFoundError
		if errors.As(err, &notFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class definition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class definition")
	}
	return snapshot, nil
}
