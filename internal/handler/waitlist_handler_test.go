package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/campushq/timetable-api/internal/middleware"
	"github.com/campushq/timetable-api/internal/models"
	"github.com/campushq/timetable-api/internal/service"
	appErrors "github.com/campushq/timetable-api/pkg/errors"
)

type waitlistServiceMock struct {
	entries    []models.Enrollment
	err        error
	gotRequest service.JoinWaitlistRequest
}

func (m *waitlistServiceMock) JoinWaitlist(ctx context.Context, req service.JoinWaitlistRequest) ([]models.Enrollment, error) {
	m.gotRequest = req
	return m.entries, m.err
}

func (m *waitlistServiceMock) WaitlistForInstance(ctx context.Context, instanceID string) ([]models.Enrollment, error) {
	return m.entries, m.err
}

func TestWaitlistHandlerJoin(t *testing.T) {
	mockSvc := &waitlistServiceMock{entries: []models.Enrollment{{ID: "wl-1", Status: models.EnrollmentStatusWaitlisted}}}
	h := NewWaitlistHandler(mockSvc)

	c, w := testContext(t, http.MethodPost, "/waitlists", map[string]string{"class_definition_id": "def-1"})
	c.Set(middleware.ContextUserKey, &models.AccessClaims{PrincipalID: "student-1", Role: models.RoleStudent})
	h.Join(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "student-1", mockSvc.gotRequest.StudentID)
}

func TestWaitlistHandlerJoinClosed(t *testing.T) {
	mockSvc := &waitlistServiceMock{err: appErrors.Clone(appErrors.ErrWaitlistClosed, "class definition does not allow waitlisting")}
	h := NewWaitlistHandler(mockSvc)

	c, w := testContext(t, http.MethodPost, "/waitlists", map[string]string{
		"student_id":          "student-1",
		"class_definition_id": "def-1",
	})
	h.Join(c)

	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), appErrors.ErrWaitlistClosed.Code)
}

func TestWaitlistHandlerQueue(t *testing.T) {
	mockSvc := &waitlistServiceMock{entries: []models.Enrollment{
		{ID: "wl-1", StudentID: "student-1"},
		{ID: "wl-2", StudentID: "student-2"},
	}}
	h := NewWaitlistHandler(mockSvc)

	c, w := testContext(t, http.MethodGet, "/schedules/inst-1/waitlist", nil)
	c.Params = gin.Params{{Key: "id", Value: "inst-1"}}
	h.Queue(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "wl-1")
	require.Contains(t, w.Body.String(), "wl-2")
}
