package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campushq/timetable-api/internal/models"
	appErrors "github.com/campushq/timetable-api/pkg/errors"
)

type instructorScheduleReader interface {
	ListActiveByInstructorBetween(ctx context.Context, exec sqlx.ExtContext, instructorID string, from, to time.Time) ([]models.ScheduledInstance, error)
}

type studentCommitmentReader interface {
	ListSeatHoldingInstancesByStudentBetween(ctx context.Context, exec sqlx.ExtContext, studentID string, from, to time.Time) ([]models.ScheduledInstance, error)
}

// ConflictService decides whether an instructor or student already has an
// overlapping commitment for a proposed window. All comparisons happen on the
// UTC instant basis so wall-clock offsets cannot skew the result.
type ConflictService struct {
	instructorSchedules instructorScheduleReader
	studentCommitments  studentCommitmentReader
	logger              *zap.Logger
}

// NewConflictService constructs ConflictService.
func NewConflictService(instructorSchedules instructorScheduleReader, studentCommitments studentCommitmentReader, logger *zap.Logger) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{instructorSchedules: instructorSchedules, studentCommitments: studentCommitments, logger: logger}
}

// daySpan widens a window to the UTC calendar days it touches. Candidate
// commitments are fetched per day span, then compared window-to-window.
func daySpan(w models.TimeWindow) (time.Time, time.Time) {
	from := w.StartAt.Truncate(24 * time.Hour)
	to := w.EndAt.Truncate(24 * time.Hour).Add(24 * time.Hour)
	return from, to
}

// InstructorConflict returns the first existing session overlapping the
// proposed window for the instructor, or nil when the window is free. Which
// overlap is reported is unspecified since any overlap invalidates the
// request. Runs against exec so callers can check inside their transaction.
func (s *ConflictService) InstructorConflict(ctx context.Context, exec sqlx.ExtContext, instructorID string, window models.TimeWindow) (*models.ScheduledInstance, error) {
	if !window.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "window must end after it starts")
	}
	from, to := daySpan(window)
	existing, err := s.instructorSchedules.ListActiveByInstructorBetween(ctx, exec, instructorID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor schedule")
	}
	for i := range existing {
		if window.Overlaps(existing[i].Window()) {
			return &existing[i], nil
		}
	}
	return nil, nil
}

// StudentConflict returns the first session the student is committed to that
// overlaps the proposed window, or nil. Only seat-holding enrollments count;
// a waitlist entry does not block the student's calendar.
func (s *ConflictService) StudentConflict(ctx context.Context, exec sqlx.ExtContext, studentID string, window models.TimeWindow) (*models.ScheduledInstance, error) {
	if !window.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "window must end after it starts")
	}
	from, to := daySpan(window)
	existing, err := s.studentCommitments.ListSeatHoldingInstancesByStudentBetween(ctx, exec, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student commitments")
	}
	for i := range existing {
		if window.Overlaps(existing[i].Window()) {
			return &existing[i], nil
		}
	}
	return nil, nil
}
