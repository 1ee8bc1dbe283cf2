package dto

import (
	"time"

	"github.com/dumaterial/materials-api/internal/auth"
	"github.com/dumaterial/materials-api/internal/domain"
)

// SignupRequest payload for new admins and users.
type SignupRequest struct {
	FirstName string `json:"firstName" form:"firstName"`
	LastName  string `json:"lastName" form:"lastName"`
	Email     string `json:"email" form:"email"`
	Password  string `json:"password" form:"password"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// AuthResponse standard response for auth endpoints. ExpiresAt is omitted
// for tokens issued without an expiry.
type AuthResponse struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// PrincipalResponse is the public view of a principal.
type PrincipalResponse struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewPrincipalResponse(p *domain.Principal) PrincipalResponse {
	return PrincipalResponse{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		CreatedAt: p.CreatedAt,
	}
}

func NewAuthResponse(t *auth.IssuedToken) AuthResponse {
	return AuthResponse{Token: t.Token, ExpiresAt: t.ExpiresAt}
}
