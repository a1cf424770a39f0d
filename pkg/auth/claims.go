package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the only role allowed on the admin API.
const RoleAdmin = "admin"

// AdminClaims is the token the identity service issues for the admin panel.
// The subject identifies the operator and is recorded as the actor on
// admin-originated events.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}
