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

type schedulingInstanceRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, instance *models.ScheduledInstance) error
	FindByID(ctx context.Context, id string) (*models.ScheduledInstance, error)
	LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.ScheduledInstance, error)
	AcquirePrincipalLock(ctx context.Context, tx *sqlx.Tx, scope, principalID string) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ScheduledInstanceStatus, reason *string) error
}

// Advisory lock scopes serializing read-then-write sections per principal.
const (
	lockScopeInstructorSchedule = "instructor_schedule"
	lockScopeStudentSchedule    = "student_schedule"
)

type cascadeCanceller interface {
	CancelActiveByInstance(ctx context.Context, exec sqlx.ExtContext, instanceID string, reason *string) ([]models.Enrollment, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// LocationPayload describes the session location in scheduling requests.
type LocationPayload struct {
	Type string   `json:"type" validate:"required,oneof=ONSITE ONLINE"`
	Name string   `json:"name" validate:"required"`
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
}

// ScheduleClassRequest describes a scheduling request for one session.
type ScheduleClassRequest struct {
	ClassDefinitionID string          `json:"class_definition_id" validate:"required"`
	InstructorID      string          `json:"instructor_id" validate:"required"`
	StartAt           time.Time       `json:"start_at" validate:"required"`
	EndAt             time.Time       `json:"end_at" validate:"required"`
	Timezone          string          `json:"timezone"`
	Location          LocationPayload `json:"location"`
}

// SchedulingService owns the scheduled-session state machine: creation,
// status transitions and cancellation with its enrollment cascade.
type SchedulingService struct {
	instances   schedulingInstanceRepository
	enrollments cascadeCanceller
	conflicts   *ConflictService
	classDefs   ClassDefinitionLookup
	tx          txProvider
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSchedulingService constructs SchedulingService.
func NewSchedulingService(
	instances schedulingInstanceRepository,
	enrollments cascadeCanceller,
	conflicts *ConflictService,
	classDefs ClassDefinitionLookup,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
) *SchedulingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulingService{
		instances:   instances,
		enrollments: enrollments,
		conflicts:   conflicts,
		classDefs:   classDefs,
		tx:          tx,
		validator:   validate,
		logger:      logger,
	}
}

// Schedule places a class session on the calendar. The instructor conflict
// check and the insert run in one transaction so no partial write survives a
// detected conflict.
func (s *SchedulingService) Schedule(ctx context.Context, req ScheduleClassRequest) (*models.ScheduledInstance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scheduling payload")
	}
	window := models.NewTimeWindow(req.StartAt, req.EndAt)
	if !window.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_at must be after start_at")
	}
	if _, err := s.lookupClassDefinition(ctx, req.ClassDefinitionID); err != nil {
		return nil, err
	}

	tz := req.Timezone
	if tz == "" {
		tz = "UTC"
	} else if _, err := time.LoadLocation(tz); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown timezone %q", tz))
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

	// Concurrent schedulers for the same instructor would otherwise both
	// pass the conflict read; there is no row to lock when the calendar is
	// empty, so serialize on the instructor instead.
	if err = s.instances.AcquirePrincipalLock(ctx, tx, lockScopeInstructorSchedule, req.InstructorID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to serialize instructor schedule")
		return nil, err
	}

	var conflicting *models.ScheduledInstance
	conflicting, err = s.conflicts.InstructorConflict(ctx, tx, req.InstructorID, window)
	if err != nil {
		return nil, err
	}
	if conflicting != nil {
		err = appErrors.Wrap(&models.TimeConflictError{
			Dimension:   "instructor",
			PrincipalID: req.InstructorID,
			Requested:   window,
			Existing:    *conflicting,
		}, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "instructor already committed in requested window")
		return nil, err
	}

	instance := &models.ScheduledInstance{
		ClassDefinitionID: req.ClassDefinitionID,
		InstructorID:      req.InstructorID,
		StartAt:           window.StartAt,
		EndAt:             window.EndAt,
		Timezone:          tz,
		Location: models.Location{
			Type: models.LocationType(req.Location.Type),
			Name: req.Location.Name,
			Lat:  req.Location.Lat,
			Lng:  req.Location.Lng,
		},
		Status: models.InstanceStatusScheduled,
	}
	if err = s.instances.Create(ctx, tx, instance); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create scheduled instance")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit scheduling")
		return nil, err
	}

	s.logger.Info("class scheduled",
		zap.String("instance_id", instance.ID),
		zap.String("instructor_id", instance.InstructorID),
		zap.Time("start_at", instance.StartAt))
	return instance, nil
}

// Get returns a scheduled instance by id.
func (s *SchedulingService) Get(ctx context.Context, id string) (*models.ScheduledInstance, error) {
	instance, err := s.instances.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scheduled instance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduled instance")
	}
	return instance, nil
}

// UpdateStatus applies a lifecycle transition, rejecting anything outside the
// transition table. Cancellation must go through Cancel so the enrollment
// cascade always runs.
func (s *SchedulingService) UpdateStatus(ctx context.Context, id string, next models.ScheduledInstanceStatus) error {
	if !next.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", next))
	}
	if next == models.InstanceStatusCancelled {
		return appErrors.Clone(appErrors.ErrValidation, "use the cancel operation to cancel a session")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var instance *models.ScheduledInstance
	instance, err = s.instances.LockByID(ctx, tx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			err = appErrors.Clone(appErrors.ErrNotFound, "scheduled instance not found")
			return err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock scheduled instance")
		return err
	}
	if !instance.Status.CanTransitionTo(next) {
		err = appErrors.Wrap(&models.IllegalTransitionError{
			Entity:    "scheduled_instance",
			ID:        id,
			Current:   string(instance.Status),
			Requested: string(next),
		}, appErrors.ErrIllegalTransition.Code, appErrors.ErrIllegalTransition.Status, "illegal scheduled instance transition")
		return err
	}
	if err = s.instances.UpdateStatus(ctx, tx, id, next, nil); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update instance status")
		return err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit status update")
		return err
	}
	return nil
}

// Cancel transitions the instance to CANCELLED and cancels every cancellable
// enrollment tied to it as one atomic unit. Returns the cancelled enrollments
// so the caller can publish notifications after commit. A partial cascade is
// never observable: either both the instance and its enrollments flip, or the
// transaction rolls back whole.
func (s *SchedulingService) Cancel(ctx context.Context, id, reason string) ([]models.Enrollment, error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var instance *models.ScheduledInstance
	instance, err = s.instances.LockByID(ctx, tx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			err = appErrors.Clone(appErrors.ErrNotFound, "scheduled instance not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock scheduled instance")
		return nil, err
	}
	if !instance.Status.CanTransitionTo(models.InstanceStatusCancelled) {
		err = appErrors.Wrap(&models.IllegalTransitionError{
			Entity:    "scheduled_instance",
			ID:        id,
			Current:   string(instance.Status),
			Requested: string(models.InstanceStatusCancelled),
		}, appErrors.ErrIllegalTransition.Code, appErrors.ErrIllegalTransition.Status, "instance cannot be cancelled")
		return nil, err
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if err = s.instances.UpdateStatus(ctx, tx, id, models.InstanceStatusCancelled, reasonPtr); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel scheduled instance")
		return nil, err
	}
	var cancelled []models.Enrollment
	cancelled, err = s.enrollments.CancelActiveByInstance(ctx, tx, id, reasonPtr)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cascade enrollment cancellation")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit cancellation")
		return nil, err
	}

	s.logger.Info("instance cancelled",
		zap.String("instance_id", id),
		zap.Int("enrollments_cancelled", len(cancelled)),
		zap.String("reason", reason))
	return cancelled, nil
}

func (s *SchedulingService) lookupClassDefinition(ctx context.Context, classDefID string) (*models.ClassDefinitionSnapshot, error) {
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
