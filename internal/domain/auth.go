package domain

import "time"

// Role identifies the trust domain a principal or token belongs to.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known realm role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Token describes an issued bearer token.
type Token struct {
	ID        string
	SubjectID string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt *time.Time
}
