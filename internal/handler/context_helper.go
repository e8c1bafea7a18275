package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campushq/timetable-api/internal/middleware"
	"github.com/campushq/timetable-api/internal/models"
)

// claimsFromContext returns the verified token claims attached by the JWT
// middleware, or nil on unauthenticated routes.
func claimsFromContext(c *gin.Context) *models.AccessClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	if claims, ok := value.(*models.AccessClaims); ok {
		return claims
	}
	return nil
}
