package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campushq/timetable-api/internal/models"
	appErrors "github.com/campushq/timetable-api/pkg/errors"
)

// TimetableService is the single entrypoint callers use for scheduling,
// enrollment, waitlisting and calendar reads. It composes the focused
// services, publishes domain events after successful commits, keeps the
// calendar cache coherent and records outcome metrics. It holds no state of
// its own.
type TimetableService struct {
	scheduling *SchedulingService
	enrollment *EnrollmentService
	waitlist   *WaitlistService
	capacity   *CapacityService
	queries    *ScheduleQueryService
	cache      *CacheService
	dispatcher *EventDispatcher
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewTimetableService constructs the façade.
func NewTimetableService(
	scheduling *SchedulingService,
	enrollment *EnrollmentService,
	waitlist *WaitlistService,
	capacity *CapacityService,
	queries *ScheduleQueryService,
	cache *CacheService,
	dispatcher *EventDispatcher,
	metrics *MetricsService,
	logger *zap.Logger,
) *TimetableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{
		scheduling: scheduling,
		enrollment: enrollment,
		waitlist:   waitlist,
		capacity:   capacity,
		queries:    queries,
		cache:      cache,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
	}
}

// ScheduleClass places a session on the calendar and invalidates the
// instructor's cached calendar on success.
func (s *TimetableService) ScheduleClass(ctx context.Context, req ScheduleClassRequest) (*models.ScheduledInstance, error) {
	instance, err := s.scheduling.Schedule(ctx, req)
	if err != nil {
		s.metrics.RecordScheduling(outcomeFor(err))
		return nil, err
	}
	s.metrics.RecordScheduling(OutcomeAccepted)
	s.invalidateInstructorCalendar(ctx, instance.InstructorID)
	return instance, nil
}

// GetInstance returns a scheduled instance by id.
func (s *TimetableService) GetInstance(ctx context.Context, id string) (*models.ScheduledInstance, error) {
	return s.scheduling.Get(ctx, id)
}

// UpdateInstanceStatus applies a lifecycle transition. A CANCELLED target is
// routed through CancelInstance so the enrollment cascade, the notifications
// and the cache invalidation run exactly as for a direct cancellation.
func (s *TimetableService) UpdateInstanceStatus(ctx context.Context, id string, next models.ScheduledInstanceStatus) error {
	if next == models.InstanceStatusCancelled {
		_, err := s.CancelInstance(ctx, id, "")
		return err
	}
	return s.scheduling.UpdateStatus(ctx, id, next)
}

// CancelInstance cancels the session and its active enrollments atomically,
// then notifies every affected student and drops their cached calendars.
func (s *TimetableService) CancelInstance(ctx context.Context, id, reason string) ([]models.Enrollment, error) {
	instance, err := s.scheduling.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	cancelled, err := s.scheduling.Cancel(ctx, id, reason)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, enrollment := range cancelled {
		s.dispatcher.PublishEnrollmentStatusChanged(models.EnrollmentStatusChangedEvent{
			StudentID:         enrollment.StudentID,
			ClassDefinitionID: instance.ClassDefinitionID,
			EnrollmentID:      enrollment.ID,
			NewStatus:         models.EnrollmentStatusCancelled,
			OccurredAt:        now,
		})
		s.invalidateStudentCalendar(ctx, enrollment.StudentID)
	}
	s.invalidateInstructorCalendar(ctx, instance.InstructorID)
	return cancelled, nil
}

// EnrollStudent books the student into every session of a class definition,
// publishing the enrolled event after commit.
func (s *TimetableService) EnrollStudent(ctx context.Context, req EnrollRequest) ([]models.Enrollment, error) {
	created, err := s.enrollment.Enroll(ctx, req)
	if err != nil {
		s.metrics.RecordEnrollment(outcomeFor(err))
		return nil, err
	}
	s.metrics.RecordEnrollment(OutcomeAccepted)

	ids := make([]string, 0, len(created))
	for _, enrollment := range created {
		ids = append(ids, enrollment.ID)
	}
	s.dispatcher.PublishStudentEnrolled(models.StudentEnrolledEvent{
		StudentID:         req.StudentID,
		ClassDefinitionID: req.ClassDefinitionID,
		EnrollmentIDs:     ids,
		OccurredAt:        time.Now().UTC(),
	})
	s.invalidateStudentCalendar(ctx, req.StudentID)
	return created, nil
}

// GetEnrollment returns an enrollment by id.
func (s *TimetableService) GetEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	return s.enrollment.Get(ctx, id)
}

// MarkAttendance records presence or absence for an enrolled claim.
func (s *TimetableService) MarkAttendance(ctx context.Context, id string, attended bool) (*models.Enrollment, error) {
	enrollment, err := s.enrollment.MarkAttendance(ctx, id, attended)
	if err != nil {
		return nil, err
	}
	s.publishStatusChange(ctx, enrollment)
	return enrollment, nil
}

// CancelEnrollment releases a single student claim and notifies subscribers.
func (s *TimetableService) CancelEnrollment(ctx context.Context, id, reason string) (*models.Enrollment, error) {
	enrollment, err := s.enrollment.Cancel(ctx, id, reason)
	if err != nil {
		return nil, err
	}
	s.publishStatusChange(ctx, enrollment)
	s.invalidateStudentCalendar(ctx, enrollment.StudentID)
	return enrollment, nil
}

// JoinWaitlist places the student on a class definition's waitlist.
func (s *TimetableService) JoinWaitlist(ctx context.Context, req JoinWaitlistRequest) ([]models.Enrollment, error) {
	entries, err := s.waitlist.Join(ctx, req)
	if err != nil {
		s.metrics.RecordEnrollment(outcomeFor(err))
		return nil, err
	}
	s.metrics.RecordEnrollment(OutcomeAccepted)
	s.invalidateStudentCalendar(ctx, req.StudentID)
	return entries, nil
}

// WaitlistForInstance returns a session's FIFO waitlist.
func (s *TimetableService) WaitlistForInstance(ctx context.Context, instanceID string) ([]models.Enrollment, error) {
	return s.waitlist.QueueForInstance(ctx, instanceID)
}

// HasCapacity reports whether a session has a free seat.
func (s *TimetableService) HasCapacity(ctx context.Context, instanceID string) (bool, error) {
	return s.capacity.HasCapacity(ctx, instanceID)
}

// HasCapacityForClassDefinition reports whether any session of the class
// definition has a free seat.
func (s *TimetableService) HasCapacityForClassDefinition(ctx context.Context, classDefID string) (bool, error) {
	return s.capacity.HasCapacityForClassDefinition(ctx, classDefID)
}

// ScheduleForInstructor lists the instructor's sessions in a date range.
func (s *TimetableService) ScheduleForInstructor(ctx context.Context, instructorID string, from, to time.Time) ([]models.ScheduledInstance, error) {
	return s.queries.ForInstructor(ctx, instructorID, from, to)
}

// CalendarForInstructor returns the instructor's merged calendar feed.
func (s *TimetableService) CalendarForInstructor(ctx context.Context, instructorID string, from, to time.Time) ([]models.CalendarEntry, error) {
	return s.queries.CalendarForInstructor(ctx, instructorID, from, to)
}

// CalendarForStudent returns the student's merged calendar feed.
func (s *TimetableService) CalendarForStudent(ctx context.Context, studentID string, from, to time.Time) ([]models.CalendarEntry, error) {
	return s.queries.CalendarForStudent(ctx, studentID, from, to)
}

func (s *TimetableService) publishStatusChange(ctx context.Context, enrollment *models.Enrollment) {
	classDefID := ""
	if instance, err := s.scheduling.Get(ctx, enrollment.ScheduledInstanceID); err == nil {
		classDefID = instance.ClassDefinitionID
	}
	s.dispatcher.PublishEnrollmentStatusChanged(models.EnrollmentStatusChangedEvent{
		StudentID:         enrollment.StudentID,
		ClassDefinitionID: classDefID,
		EnrollmentID:      enrollment.ID,
		NewStatus:         enrollment.Status,
		OccurredAt:        time.Now().UTC(),
	})
}

func (s *TimetableService) invalidateStudentCalendar(ctx context.Context, studentID string) {
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("calendar:student:%s:*", studentID)); err != nil {
		s.logger.Warn("calendar invalidation failed", zap.String("student_id", studentID), zap.Error(err))
	}
}

func (s *TimetableService) invalidateInstructorCalendar(ctx context.Context, instructorID string) {
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("calendar:instructor:%s:*", instructorID)); err != nil {
		s.logger.Warn("calendar invalidation failed", zap.String("instructor_id", instructorID), zap.Error(err))
	}
}

// outcomeFor maps an operation error onto a metrics outcome label.
func outcomeFor(err error) string {
	var appErr *appErrors.Error
	if !errors.As(err, &appErr) {
		return OutcomeRejected
	}
	switch appErr.Code {
	case appErrors.ErrConflict.Code:
		return OutcomeConflict
	case appErrors.ErrCapacityExceeded.Code:
		return OutcomeFull
	default:
		return OutcomeRejected
	}
}
