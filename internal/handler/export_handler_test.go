package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type exportServiceMock struct {
	csv []byte
	pdf []byte
	err error
}

func (m *exportServiceMock) InstructorTimetableCSV(ctx context.Context, instructorID string, from, to time.Time) ([]byte, error) {
	return m.csv, m.err
}

func (m *exportServiceMock) InstructorTimetablePDF(ctx context.Context, instructorID string, from, to time.Time) ([]byte, error) {
	return m.pdf, m.err
}

func (m *exportServiceMock) StudentTimetableCSV(ctx context.Context, studentID string, from, to time.Time) ([]byte, error) {
	return m.csv, m.err
}

func TestExportHandlerInstructorTimetableCSV(t *testing.T) {
	mockSvc := &exportServiceMock{csv: []byte("Date,Start,End\n")}
	h := NewExportHandler(mockSvc)

	c, w := testContext(t, http.MethodGet, "/instructors/instructor-1/timetable/export?from=2026-03-02&to=2026-03-08", nil)
	c.Params = gin.Params{{Key: "id", Value: "instructor-1"}}
	h.InstructorTimetable(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), ".csv")
}

func TestExportHandlerInstructorTimetablePDF(t *testing.T) {
	mockSvc := &exportServiceMock{pdf: []byte("%PDF-1.4")}
	h := NewExportHandler(mockSvc)

	c, w := testContext(t, http.MethodGet, "/instructors/instructor-1/timetable/export?format=pdf&from=2026-03-02&to=2026-03-08", nil)
	c.Params = gin.Params{{Key: "id", Value: "instructor-1"}}
	h.InstructorTimetable(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
}

func TestExportHandlerRequiresRange(t *testing.T) {
	h := NewExportHandler(&exportServiceMock{})

	c, w := testContext(t, http.MethodGet, "/instructors/instructor-1/timetable/export", nil)
	c.Params = gin.Params{{Key: "id", Value: "instructor-1"}}
	h.InstructorTimetable(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
