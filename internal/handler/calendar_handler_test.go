package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/campushq/timetable-api/internal/models"
)

type calendarServiceMock struct {
	entries   []models.CalendarEntry
	available bool
	err       error
}

func (m *calendarServiceMock) CalendarForStudent(ctx context.Context, studentID string, from, to time.Time) ([]models.CalendarEntry, error) {
	return m.entries, m.err
}

func (m *calendarServiceMock) CalendarForInstructor(ctx context.Context, instructorID string, from, to time.Time) ([]models.CalendarEntry, error) {
	return m.entries, m.err
}

func (m *calendarServiceMock) HasCapacity(ctx context.Context, instanceID string) (bool, error) {
	return m.available, m.err
}

func (m *calendarServiceMock) HasCapacityForClassDefinition(ctx context.Context, classDefID string) (bool, error) {
	return m.available, m.err
}

func TestCalendarHandlerStudentCalendar(t *testing.T) {
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mockSvc := &calendarServiceMock{entries: []models.CalendarEntry{
		{Kind: models.CalendarEntryScheduledInstance, StartAt: day, EndAt: day.Add(time.Hour)},
	}}
	h := NewCalendarHandler(mockSvc)

	c, w := testContext(t, http.MethodGet, "/students/student-1/calendar?from=2026-03-02&to=2026-03-08", nil)
	c.Params = gin.Params{{Key: "id", Value: "student-1"}}
	h.StudentCalendar(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "SCHEDULED_INSTANCE")
}

func TestCalendarHandlerRejectsMissingRange(t *testing.T) {
	h := NewCalendarHandler(&calendarServiceMock{})

	c, w := testContext(t, http.MethodGet, "/students/student-1/calendar", nil)
	c.Params = gin.Params{{Key: "id", Value: "student-1"}}
	h.StudentCalendar(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCalendarHandlerCapacity(t *testing.T) {
	mockSvc := &calendarServiceMock{available: true}
	h := NewCalendarHandler(mockSvc)

	c, w := testContext(t, http.MethodGet, "/class-definitions/def-1/capacity", nil)
	c.Params = gin.Params{{Key: "id", Value: "def-1"}}
	h.ClassDefinitionCapacity(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"available":true`)
}
