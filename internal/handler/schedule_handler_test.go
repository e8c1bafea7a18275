package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/campushq/timetable-api/internal/models"
	"github.com/campushq/timetable-api/internal/service"
	appErrors "github.com/campushq/timetable-api/pkg/errors"
)

type scheduleServiceMock struct {
	instance   *models.ScheduledInstance
	instances  []models.ScheduledInstance
	cancelled  []models.Enrollment
	err        error
	gotRequest service.ScheduleClassRequest
	gotStatus  models.ScheduledInstanceStatus
	gotFrom    time.Time
	gotTo      time.Time
}

func (m *scheduleServiceMock) ScheduleClass(ctx context.Context, req service.ScheduleClassRequest) (*models.ScheduledInstance, error) {
	m.gotRequest = req
	return m.instance, m.err
}

func (m *scheduleServiceMock) GetInstance(ctx context.Context, id string) (*models.ScheduledInstance, error) {
	return m.instance, m.err
}

func (m *scheduleServiceMock) UpdateInstanceStatus(ctx context.Context, id string, next models.ScheduledInstanceStatus) error {
	m.gotStatus = next
	return m.err
}

func (m *scheduleServiceMock) CancelInstance(ctx context.Context, id, reason string) ([]models.Enrollment, error) {
	return m.cancelled, m.err
}

func (m *scheduleServiceMock) ScheduleForInstructor(ctx context.Context, instructorID string, from, to time.Time) ([]models.ScheduledInstance, error) {
	m.gotFrom, m.gotTo = from, to
	return m.instances, m.err
}

func testContext(t *testing.T, method, target string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestScheduleHandlerCreate(t *testing.T) {
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mockSvc := &scheduleServiceMock{instance: &models.ScheduledInstance{ID: "inst-1", Status: models.InstanceStatusScheduled}}
	h := NewScheduleHandler(mockSvc)

	c, w := testContext(t, http.MethodPost, "/schedules", service.ScheduleClassRequest{
		ClassDefinitionID: "def-1",
		InstructorID:      "instructor-1",
		StartAt:           day,
		EndAt:             day.Add(2 * time.Hour),
		Location:          service.LocationPayload{Type: "ONSITE", Name: "Room 204"},
	})
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "def-1", mockSvc.gotRequest.ClassDefinitionID)
}

func TestScheduleHandlerCreateConflict(t *testing.T) {
	mockSvc := &scheduleServiceMock{err: appErrors.Clone(appErrors.ErrConflict, "instructor busy")}
	h := NewScheduleHandler(mockSvc)

	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c, w := testContext(t, http.MethodPost, "/schedules", service.ScheduleClassRequest{
		ClassDefinitionID: "def-1",
		InstructorID:      "instructor-1",
		StartAt:           day,
		EndAt:             day.Add(time.Hour),
	})
	h.Create(c)

	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), appErrors.ErrConflict.Code)
}

func TestScheduleHandlerCreateRejectsMalformedBody(t *testing.T) {
	h := NewScheduleHandler(&scheduleServiceMock{})
	c, w := testContext(t, http.MethodPost, "/schedules", nil)
	c.Request.Body = http.NoBody
	h.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScheduleHandlerUpdateStatus(t *testing.T) {
	mockSvc := &scheduleServiceMock{}
	h := NewScheduleHandler(mockSvc)

	c, w := testContext(t, http.MethodPatch, "/schedules/inst-1/status", map[string]string{"status": "ONGOING"})
	c.Params = gin.Params{{Key: "id", Value: "inst-1"}}
	h.UpdateStatus(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.InstanceStatusOngoing, mockSvc.gotStatus)
}

func TestScheduleHandlerListByInstructorParsesRange(t *testing.T) {
	mockSvc := &scheduleServiceMock{}
	h := NewScheduleHandler(mockSvc)

	c, w := testContext(t, http.MethodGet, "/instructors/instructor-1/schedule?from=2026-03-02&to=2026-03-08", nil)
	c.Params = gin.Params{{Key: "id", Value: "instructor-1"}}
	h.ListByInstructor(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), mockSvc.gotFrom)
	require.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), mockSvc.gotTo)
}

func TestScheduleHandlerListByInstructorRejectsBadDate(t *testing.T) {
	h := NewScheduleHandler(&scheduleServiceMock{})

	c, w := testContext(t, http.MethodGet, "/instructors/instructor-1/schedule?from=bad&to=2026-03-08", nil)
	c.Params = gin.Params{{Key: "id", Value: "instructor-1"}}
	h.ListByInstructor(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
