package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campushq/timetable-api/internal/models"
	appErrors "github.com/campushq/timetable-api/pkg/errors"
)

type waitlistRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	ExistsNonCancelled(ctx context.Context, exec sqlx.ExtContext, studentID, instanceID string) (bool, error)
	ListWaitlistedByInstance(ctx context.Context, instanceID string) ([]models.Enrollment, error)
}

type waitlistInstanceRepository interface {
	LockActiveByClassDefinition(ctx context.Context, tx *sqlx.Tx, classDefID string) ([]models.ScheduledInstance, error)
}

// WaitlistService defers enrollment when capacity is exhausted. Entries are
// enrollments in status WAITLISTED, ordered FIFO by creation time. Promotion
// to an active enrollment is a separate operation triggered when a seat
// frees; it is not performed here.
type WaitlistService struct {
	enrollments waitlistRepository
	instances   waitlistInstanceRepository
	classDefs   ClassDefinitionLookup
	tx          txProvider
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewWaitlistService constructs WaitlistService.
func NewWaitlistService(
	enrollments waitlistRepository,
	instances waitlistInstanceRepository,
	classDefs ClassDefinitionLookup,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
) *WaitlistService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WaitlistService{
		enrollments: enrollments,
		instances:   instances,
		classDefs:   classDefs,
		tx:          tx,
		validator:   validate,
		logger:      logger,
	}
}

// JoinWaitlistRequest describes a waitlist join at class-definition level.
type JoinWaitlistRequest struct {
	StudentID         string `json:"student_id" validate:"required"`
	ClassDefinitionID string `json:"class_definition_id" validate:"required"`
}

// Join places the student on the waitlist of every scheduled session of the
// class definition. Callers invoke this after a capacity rejection; the class
// definition must permit waitlisting.
func (s *WaitlistService) Join(ctx context.Context, req JoinWaitlistRequest) ([]models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid waitlist payload")
	}
	snapshot, err := s.classDefs.FindByUUID(ctx, req.ClassDefinitionID)
	if err != nil {
		var notFound *ClassDefinitionNotFoundError
		if errors.As(err, &notFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class definition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class definition")
	}
	if !snapshot.AllowWaitlist {
		return nil, appErrors.Clone(appErrors.ErrWaitlistClosed, "class definition does not allow waitlisting")
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

	entries := make([]models.Enrollment, 0, len(sessions))
	for _, session := range sessions {
		var exists bool
		exists, err = s.enrollments.ExistsNonCancelled(ctx, tx, req.StudentID, session.ID)
		if err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing claim")
			return nil, err
		}
		if exists {
			err = appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("student already holds a claim on session %s", session.ID))
			return nil, err
		}
		entry := &models.Enrollment{
			StudentID:           req.StudentID,
			ScheduledInstanceID: session.ID,
			Status:              models.EnrollmentStatusWaitlisted,
		}
		if err = s.enrollments.Create(ctx, tx, entry); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create waitlist entry")
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit waitlist join")
		return nil, err
	}

	s.logger.Info("student waitlisted",
		zap.String("student_id", req.StudentID),
		zap.String("class_definition_id", req.ClassDefinitionID),
		zap.Int("sessions", len(entries)))
	return entries, nil
}

// QueueForInstance returns the FIFO waitlist of a session.
func (s *WaitlistService) QueueForInstance(ctx context.Context, instanceID string) ([]models.Enrollment, error) {
	entries, err := s.enrollments.ListWaitlistedByInstance(ctx, instanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list waitlist")
	}
	return entries, nil
}
