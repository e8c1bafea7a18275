package models

import "github.com/golang-jwt/jwt/v5"

// PrincipalRole is the caller's role carried in access tokens.
type PrincipalRole string

const (
	RoleAdmin      PrincipalRole = "ADMIN"
	RoleInstructor PrincipalRole = "INSTRUCTOR"
	RoleStudent    PrincipalRole = "STUDENT"
)

// AccessClaims is the JWT payload of access tokens minted by the identity
// provider. Tokens are verified here, never issued.
type AccessClaims struct {
	PrincipalID string        `json:"principal_id"`
	Role        PrincipalRole `json:"role"`
	Email       string        `json:"email"`
	jwt.RegisteredClaims
}
