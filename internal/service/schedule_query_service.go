package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campushq/timetable-api/internal/models"
	appErrors "github.com/campushq/timetable-api/pkg/errors"
)

type studentScheduleReader interface {
	ListStudentScheduleBetween(ctx context.Context, exec sqlx.ExtContext, studentID string, from, to time.Time) ([]models.StudentScheduleItem, error)
}

// ScheduleQueryService is the read side: instructor and student calendars
// over a date range, composed with the availability collaborator's feed. Pure
// reads, no side effects.
type ScheduleQueryService struct {
	instructorSchedules instructorScheduleReader
	studentSchedules    studentScheduleReader
	availability        AvailabilityFeed
	cache               *CacheService
	logger              *zap.Logger
}

// NewScheduleQueryService constructs ScheduleQueryService.
func NewScheduleQueryService(
	instructorSchedules instructorScheduleReader,
	studentSchedules studentScheduleReader,
	availability AvailabilityFeed,
	cache *CacheService,
	logger *zap.Logger,
) *ScheduleQueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleQueryService{
		instructorSchedules: instructorSchedules,
		studentSchedules:    studentSchedules,
		availability:        availability,
		cache:               cache,
		logger:              logger,
	}
}

// rangeBounds validates an inclusive date range and widens it to instants:
// [start of from-day, start of the day after to-day).
func rangeBounds(from, to time.Time) (time.Time, time.Time, error) {
	if from.IsZero() || to.IsZero() {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "from and to dates are required")
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "from must be on or before to")
	}
	start := from.UTC().Truncate(24 * time.Hour)
	end := to.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	return start, end, nil
}

// ForInstructor returns the instructor's non-cancelled sessions intersecting
// the inclusive date range, ordered by start time.
func (s *ScheduleQueryService) ForInstructor(ctx context.Context, instructorID string, from, to time.Time) ([]models.ScheduledInstance, error) {
	start, end, err := rangeBounds(from, to)
	if err != nil {
		return nil, err
	}
	instances, err := s.instructorSchedules.ListActiveByInstructorBetween(ctx, nil, instructorID, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor schedule")
	}
	return instances, nil
}

// CalendarForInstructor merges the instructor's sessions with the
// availability feed into a unified calendar.
func (s *ScheduleQueryService) CalendarForInstructor(ctx context.Context, instructorID string, from, to time.Time) ([]models.CalendarEntry, error) {
	start, end, err := rangeBounds(from, to)
	if err != nil {
		return nil, err
	}

	key := calendarCacheKey("instructor", instructorID, start, end)
	var cached []models.CalendarEntry
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	instances, err := s.instructorSchedules.ListActiveByInstructorBetween(ctx, nil, instructorID, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor schedule")
	}
	entries := make([]models.CalendarEntry, 0, len(instances))
	for i := range instances {
		instance := instances[i]
		entries = append(entries, models.CalendarEntry{
			Kind:     models.CalendarEntryScheduledInstance,
			StartAt:  instance.StartAt,
			EndAt:    instance.EndAt,
			Title:    instance.Location.Name,
			Instance: &instance,
			SourceID: instance.ID,
		})
	}

	slots, err := s.availability.SlotsForInstructor(ctx, instructorID, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability feed")
	}
	entries = append(entries, slotEntries(slots)...)
	sortCalendar(entries)

	_ = s.cache.Set(ctx, key, entries, 0)
	return entries, nil
}

// CalendarForStudent merges the student's booked sessions with the
// availability feed into a unified calendar.
func (s *ScheduleQueryService) CalendarForStudent(ctx context.Context, studentID string, from, to time.Time) ([]models.CalendarEntry, error) {
	start, end, err := rangeBounds(from, to)
	if err != nil {
		return nil, err
	}

	key := calendarCacheKey("student", studentID, start, end)
	var cached []models.CalendarEntry
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	items, err := s.studentSchedules.ListStudentScheduleBetween(ctx, nil, studentID, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student schedule")
	}
	entries := make([]models.CalendarEntry, 0, len(items))
	for i := range items {
		item := items[i]
		entries = append(entries, models.CalendarEntry{
			Kind:       models.CalendarEntryScheduledInstance,
			StartAt:    item.Instance.StartAt,
			EndAt:      item.Instance.EndAt,
			Title:      item.Instance.Location.Name,
			Instance:   &item.Instance,
			Enrollment: &item.Enrollment,
			SourceID:   item.Instance.ID,
		})
	}

	slots, err := s.availability.SlotsForStudent(ctx, studentID, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability feed")
	}
	entries = append(entries, slotEntries(slots)...)
	sortCalendar(entries)

	_ = s.cache.Set(ctx, key, entries, 0)
	return entries, nil
}

func slotEntries(slots []models.AvailabilitySlot) []models.CalendarEntry {
	entries := make([]models.CalendarEntry, 0, len(slots))
	for _, slot := range slots {
		kind := models.CalendarEntryAvailability
		if slot.Blocked {
			kind = models.CalendarEntryBlocked
		}
		entries = append(entries, models.CalendarEntry{
			Kind:     kind,
			StartAt:  slot.StartAt,
			EndAt:    slot.EndAt,
			Title:    slot.Note,
			SourceID: slot.ID,
		})
	}
	return entries
}

func sortCalendar(entries []models.CalendarEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].StartAt.Equal(entries[j].StartAt) {
			return entries[i].EndAt.Before(entries[j].EndAt)
		}
		return entries[i].StartAt.Before(entries[j].StartAt)
	})
}

func calendarCacheKey(principal, id string, start, end time.Time) string {
	return fmt.Sprintf("calendar:%s:%s:%s:%s", principal, id, start.Format("2006-01-02"), end.Format("2006-01-02"))
}
