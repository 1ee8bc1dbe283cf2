package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dumaterial/materials-api/internal/api/dto"
	"github.com/dumaterial/materials-api/internal/auth"
	"github.com/dumaterial/materials-api/internal/service"
	apperrors "github.com/dumaterial/materials-api/pkg/util"
)

// CookieOptions controls the session cookie set by realms that issue one.
type CookieOptions struct {
	Name   string
	Secure bool
}

// RealmAuthHandler exposes signup, login and logout for one realm.
type RealmAuthHandler struct {
	auth   *service.AuthService
	cookie CookieOptions
}

// NewRealmAuthHandler constructs handler.
func NewRealmAuthHandler(authService *service.AuthService, cookie CookieOptions) *RealmAuthHandler {
	if cookie.Name == "" {
		cookie.Name = "jwt"
	}
	return &RealmAuthHandler{auth: authService, cookie: cookie}
}

// Signup handles POST /signup.
func (h *RealmAuthHandler) Signup(c *fiber.Ctx) error {
	var req dto.SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	principal, err := h.auth.Signup(c.UserContext(), service.SignupInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "Signup successful",
		"data": fiber.Map{
			string(h.auth.Role()): dto.NewPrincipalResponse(principal),
		},
	})
}

// Login handles POST /login.
func (h *RealmAuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	if h.auth.IssuesCookie() {
		cookie := &fiber.Cookie{
			Name:     h.cookie.Name,
			Value:    result.Token.Token,
			Path:     "/",
			HTTPOnly: true,
			Secure:   h.cookie.Secure,
			SameSite: fiber.CookieSameSiteLaxMode,
		}
		if result.Token.ExpiresAt != nil {
			cookie.Expires = *result.Token.ExpiresAt
		}
		c.Cookie(cookie)
	}

	return c.JSON(fiber.Map{
		"message": "Login successful",
		"data": fiber.Map{
			string(h.auth.Role()): dto.NewPrincipalResponse(result.Principal),
			"auth":                dto.NewAuthResponse(result.Token),
		},
	})
}

// Logout handles GET /logout. The token comes from the Authorization header
// or, failing that, the session cookie.
func (h *RealmAuthHandler) Logout(c *fiber.Ctx) error {
	token, _ := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" {
		token = strings.TrimSpace(c.Cookies(h.cookie.Name))
	}

	if err := h.auth.Logout(c.UserContext(), token); err != nil {
		return err
	}

	if h.auth.IssuesCookie() {
		c.Cookie(&fiber.Cookie{
			Name:     h.cookie.Name,
			Value:    "",
			Path:     "/",
			HTTPOnly: true,
			Secure:   h.cookie.Secure,
			SameSite: fiber.CookieSameSiteLaxMode,
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
		})
	}
	return c.JSON(fiber.Map{"message": "Logout successful"})
}
