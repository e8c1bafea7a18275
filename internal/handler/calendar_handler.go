package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/timetable-api/internal/models"
	"github.com/campushq/timetable-api/pkg/response"
)

type calendarService interface {
	CalendarForStudent(ctx context.Context, studentID string, from, to time.Time) ([]models.CalendarEntry, error)
	CalendarForInstructor(ctx context.Context, instructorID string, from, to time.Time) ([]models.CalendarEntry, error)
	HasCapacity(ctx context.Context, instanceID string) (bool, error)
	HasCapacityForClassDefinition(ctx context.Context, classDefID string) (bool, error)
}

// CalendarHandler serves merged calendar feeds and capacity checks.
type CalendarHandler struct {
	service calendarService
}

// NewCalendarHandler constructs handler.
func NewCalendarHandler(svc calendarService) *CalendarHandler {
	return &CalendarHandler{service: svc}
}

// StudentCalendar godoc
// @Summary Get a student's merged calendar over a date range
// @Tags Calendars
// @Produce json
// @Param id path string true "Student ID"
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/calendar [get]
func (h *CalendarHandler) StudentCalendar(c *gin.Context) {
	from, to, err := dateRangeQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.service.CalendarForStudent(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// InstructorCalendar godoc
// @Summary Get an instructor's merged calendar over a date range
// @Tags Calendars
// @Produce json
// @Param id path string true "Instructor ID"
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id}/calendar [get]
func (h *CalendarHandler) InstructorCalendar(c *gin.Context) {
	from, to, err := dateRangeQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.service.CalendarForInstructor(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// ClassDefinitionCapacity godoc
// @Summary Check whether a class definition has a free seat
// @Tags Capacity
// @Produce json
// @Param id path string true "Class definition ID"
// @Success 200 {object} response.Envelope
// @Router /class-definitions/{id}/capacity [get]
func (h *CalendarHandler) ClassDefinitionCapacity(c *gin.Context) {
	available, err := h.service.HasCapacityForClassDefinition(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"available": available}, nil)
}

// InstanceCapacity godoc
// @Summary Check whether a session has a free seat
// @Tags Capacity
// @Produce json
// @Param id path string true "Scheduled instance ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/capacity [get]
func (h *CalendarHandler) InstanceCapacity(c *gin.Context) {
	available, err := h.service.HasCapacity(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"available": available}, nil)
}
