package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/timetable-api/internal/models"
	"github.com/campushq/timetable-api/internal/service"
	appErrors "github.com/campushq/timetable-api/pkg/errors"
	"github.com/campushq/timetable-api/pkg/response"
)

type waitlistService interface {
	JoinWaitlist(ctx context.Context, req service.JoinWaitlistRequest) ([]models.Enrollment, error)
	WaitlistForInstance(ctx context.Context, instanceID string) ([]models.Enrollment, error)
}

// WaitlistHandler manages waitlist endpoints.
type WaitlistHandler struct {
	service waitlistService
}

// NewWaitlistHandler constructs handler.
func NewWaitlistHandler(svc waitlistService) *WaitlistHandler {
	return &WaitlistHandler{service: svc}
}

// Join godoc
// @Summary Join a class definition's waitlist
// @Tags Waitlists
// @Accept json
// @Produce json
// @Param payload body service.JoinWaitlistRequest true "Waitlist payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /waitlists [post]
func (h *WaitlistHandler) Join(c *gin.Context) {
	var req service.JoinWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil && req.StudentID == "" {
		req.StudentID = claims.PrincipalID
	}
	entries, err := h.service.JoinWaitlist(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entries)
}

// Queue godoc
// @Summary List a session's waitlist in FIFO order
// @Tags Waitlists
// @Produce json
// @Param id path string true "Scheduled instance ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/waitlist [get]
func (h *WaitlistHandler) Queue(c *gin.Context) {
	entries, err := h.service.WaitlistForInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
