package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/timetable-api/pkg/response"
)

type exportService interface {
	InstructorTimetableCSV(ctx context.Context, instructorID string, from, to time.Time) ([]byte, error)
	InstructorTimetablePDF(ctx context.Context, instructorID string, from, to time.Time) ([]byte, error)
	StudentTimetableCSV(ctx context.Context, studentID string, from, to time.Time) ([]byte, error)
}

// ExportHandler serves timetable downloads.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs handler.
func NewExportHandler(svc exportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// InstructorTimetable godoc
// @Summary Download an instructor's timetable
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Instructor ID"
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /instructors/{id}/timetable/export [get]
func (h *ExportHandler) InstructorTimetable(c *gin.Context) {
	from, to, err := dateRangeQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	instructorID := c.Param("id")
	filename := fmt.Sprintf("timetable-%s-%s", instructorID, from.Format("2006-01-02"))

	switch c.DefaultQuery("format", "csv") {
	case "pdf":
		payload, err := h.service.InstructorTimetablePDF(c.Request.Context(), instructorID, from, to)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", filename))
		c.Data(http.StatusOK, "application/pdf", payload)
	default:
		payload, err := h.service.InstructorTimetableCSV(c.Request.Context(), instructorID, from, to)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", filename))
		c.Data(http.StatusOK, "text/csv", payload)
	}
}

// StudentTimetable godoc
// @Summary Download a student's timetable as CSV
// @Tags Exports
// @Produce text/csv
// @Param id path string true "Student ID"
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Success 200 {file} file
// @Router /students/{id}/timetable/export [get]
func (h *ExportHandler) StudentTimetable(c *gin.Context) {
	from, to, err := dateRangeQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	studentID := c.Param("id")
	payload, err := h.service.StudentTimetableCSV(c.Request.Context(), studentID, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=timetable-%s.csv", studentID))
	c.Data(http.StatusOK, "text/csv", payload)
}
