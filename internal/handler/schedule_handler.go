package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/timetable-api/internal/models"
	"github.com/campushq/timetable-api/internal/service"
	appErrors "github.com/campushq/timetable-api/pkg/errors"
	"github.com/campushq/timetable-api/pkg/response"
)

type scheduleService interface {
	ScheduleClass(ctx context.Context, req service.ScheduleClassRequest) (*models.ScheduledInstance, error)
	GetInstance(ctx context.Context, id string) (*models.ScheduledInstance, error)
	UpdateInstanceStatus(ctx context.Context, id string, next models.ScheduledInstanceStatus) error
	CancelInstance(ctx context.Context, id, reason string) ([]models.Enrollment, error)
	ScheduleForInstructor(ctx context.Context, instructorID string, from, to time.Time) ([]models.ScheduledInstance, error)
}

// ScheduleHandler manages scheduled-session endpoints.
type ScheduleHandler struct {
	service scheduleService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc scheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// dateRangeQuery parses the inclusive from/to query parameters.
func dateRangeQuery(c *gin.Context) (time.Time, time.Time, error) {
	const layout = "2006-01-02"
	from, err := time.ParseInLocation(layout, c.Query("from"), time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "from must be a YYYY-MM-DD date")
	}
	to, err := time.ParseInLocation(layout, c.Query("to"), time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "to must be a YYYY-MM-DD date")
	}
	return from, to, nil
}

// Create godoc
// @Summary Schedule a class session
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.ScheduleClassRequest true "Scheduling payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req service.ScheduleClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	instance, err := h.service.ScheduleClass(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, instance)
}

// Get godoc
// @Summary Get a scheduled session
// @Tags Schedules
// @Produce json
// @Param id path string true "Scheduled instance ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	instance, err := h.service.GetInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instance, nil)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus godoc
// @Summary Transition a scheduled session's lifecycle status
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Scheduled instance ID"
// @Param payload body updateStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/{id}/status [patch]
func (h *ScheduleHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.UpdateInstanceStatus(c.Request.Context(), c.Param("id"), models.ScheduledInstanceStatus(req.Status)); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": req.Status}, nil)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel godoc
// @Summary Cancel a scheduled session and its enrollments
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Scheduled instance ID"
// @Param payload body cancelRequest false "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/{id}/cancel [post]
func (h *ScheduleHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	_ = c.ShouldBindJSON(&req)
	cancelled, err := h.service.CancelInstance(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"cancelled_enrollments": cancelled}, nil)
}

// ListByInstructor godoc
// @Summary List an instructor's sessions over a date range
// @Tags Schedules
// @Produce json
// @Param id path string true "Instructor ID"
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id}/schedule [get]
func (h *ScheduleHandler) ListByInstructor(c *gin.Context) {
	from, to, err := dateRangeQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	instances, err := h.service.ScheduleForInstructor(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instances, nil)
}
