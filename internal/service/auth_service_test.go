package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/timetable-api/internal/models"
)

func mintToken(t *testing.T, secret string, claims *models.AccessClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func baseClaims() *models.AccessClaims {
	return &models.AccessClaims{
		PrincipalID: "student-1",
		Role:        models.RoleStudent,
		Email:       "student@example.edu",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "campushq-idp",
			Audience:  jwt.ClaimStrings{"timetable-api"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(AuthConfig{Secret: "test-secret", Issuer: "campushq-idp", Audience: []string{"timetable-api"}}, nil)

	claims, err := svc.ValidateToken(mintToken(t, "test-secret", baseClaims()))
	require.NoError(t, err)
	assert.Equal(t, "student-1", claims.PrincipalID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceRejectsBadTokens(t *testing.T) {
	svc := NewAuthService(AuthConfig{Secret: "test-secret", Issuer: "campushq-idp", Audience: []string{"timetable-api"}}, nil)

	t.Run("wrong signature", func(t *testing.T) {
		_, err := svc.ValidateToken(mintToken(t, "other-secret", baseClaims()))
		require.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		claims := baseClaims()
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		_, err := svc.ValidateToken(mintToken(t, "test-secret", claims))
		require.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := baseClaims()
		claims.Issuer = "someone-else"
		_, err := svc.ValidateToken(mintToken(t, "test-secret", claims))
		require.Error(t, err)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := baseClaims()
		claims.Audience = jwt.ClaimStrings{"other-api"}
		_, err := svc.ValidateToken(mintToken(t, "test-secret", claims))
		require.Error(t, err)
	})

	t.Run("missing principal", func(t *testing.T) {
		claims := baseClaims()
		claims.PrincipalID = ""
		_, err := svc.ValidateToken(mintToken(t, "test-secret", claims))
		require.Error(t, err)
	})
}
