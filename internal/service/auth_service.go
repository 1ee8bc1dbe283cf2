package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/dumaterial/materials-api/internal/auth"
	"github.com/dumaterial/materials-api/internal/config"
	"github.com/dumaterial/materials-api/internal/domain"
	"github.com/dumaterial/materials-api/internal/events"
	"github.com/dumaterial/materials-api/internal/repository"
	apperrors "github.com/dumaterial/materials-api/pkg/util"
)

// AuthRecorder counts auth outcomes.
type AuthRecorder interface {
	RecordAuthEvent(realm, operation, outcome string)
}

// Realm bundles everything one trust domain needs. Admin and user realms are
// two values of this type; they share no secret and no table.
type Realm struct {
	Role        domain.Role
	Tokens      *auth.TokenManager
	Principals  repository.PrincipalRepository
	Hasher      *auth.Hasher
	IssueCookie bool
	// Revocations is nil for stateless logout.
	Revocations auth.RevocationList
	// RevocationMaxTTL bounds denylist entries for tokens without exp.
	RevocationMaxTTL time.Duration
}

// NewRealm builds a realm for role from the auth configuration.
func NewRealm(cfg config.AuthConfig, role domain.Role, principals repository.PrincipalRepository, revocations auth.RevocationList) (Realm, error) {
	var rc config.RealmConfig
	switch role {
	case domain.RoleAdmin:
		rc = cfg.Admin
	case domain.RoleUser:
		rc = cfg.User
	default:
		return Realm{}, fmt.Errorf("unknown realm %q", role)
	}
	if !cfg.RevokeOnLogout {
		revocations = nil
	}
	return Realm{
		Role:             role,
		Tokens:           auth.NewTokenManager(role, rc.JWTSecret, rc.TokenTTL()),
		Principals:       principals,
		Hasher:           auth.NewHasher(cfg.BcryptCost),
		IssueCookie:      rc.IssueCookie,
		Revocations:      revocations,
		RevocationMaxTTL: time.Duration(cfg.RevocationMaxTTLMinutes) * time.Minute,
	}, nil
}

// AuthDependencies encapsulates collaborators shared by both realms.
type AuthDependencies struct {
	Events  events.Dispatcher
	Metrics AuthRecorder
	Logger  *zap.Logger
}

// AuthService coordinates signup, login and logout for one realm.
type AuthService struct {
	realm   Realm
	events  events.Dispatcher
	metrics AuthRecorder
	logger  *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(realm Realm, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		realm:   realm,
		events:  deps.Events,
		metrics: deps.Metrics,
		logger:  logger.With(zap.String("realm", string(realm.Role))),
	}
}

// SignupInput carries a registration request.
type SignupInput struct {
	FirstName string `validate:"min=3"`
	LastName  string `validate:"min=3"`
	Email     string `validate:"email"`
	Password  string
}

// LoginResult is an authenticated principal and its fresh token.
type LoginResult struct {
	Principal *domain.Principal
	Token     *auth.IssuedToken
}

// Role returns the realm role.
func (s *AuthService) Role() domain.Role {
	return s.realm.Role
}

// IssuesCookie reports whether login also sets the session cookie.
func (s *AuthService) IssuesCookie() bool {
	return s.realm.IssueCookie
}

// Tokens exposes the realm's token manager for middleware usage.
func (s *AuthService) Tokens() *auth.TokenManager {
	return s.realm.Tokens
}

// Revocations exposes the realm's denylist, nil when logout is stateless.
func (s *AuthService) Revocations() auth.RevocationList {
	return s.realm.Revocations
}

// NormalizeEmail trims and lower-cases an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup registers a new principal. Every validation failure is reported at once.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (_ *domain.Principal, err error) {
	ctx, span := startSpan(ctx, "auth.signup", attribute.String("realm", string(s.realm.Role)))
	defer func() {
		endSpan(span, err)
		s.record("signup", err)
	}()

	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = NormalizeEmail(in.Email)
	if in.FirstName == "" || in.LastName == "" || in.Email == "" || in.Password == "" {
		return nil, apperrors.NewValidationError("All fields are required", nil)
	}

	messages := validationMessages(in)
	messages = append(messages, auth.CheckPassword(in.Password)...)
	if len(messages) > 0 {
		return nil, apperrors.NewValidationErrors(messages)
	}

	if _, err := s.realm.Principals.GetByEmail(ctx, in.Email); err == nil {
		return nil, s.alreadyExists()
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewInternalError(err)
	}

	hash, err := s.realm.Hasher.Hash(in.Password)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	principal := &domain.Principal{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		PasswordHash: hash,
	}
	if err := s.realm.Principals.Create(ctx, principal); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, s.alreadyExists()
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.EventPrincipalRegistered, principal.ID, events.PrincipalPayload{Email: principal.Email})
	return principal, nil
}

// Login checks credentials and issues a realm token. Unknown emails and wrong
// passwords fail identically.
func (s *AuthService) Login(ctx context.Context, email, password string) (_ *LoginResult, err error) {
	ctx, span := startSpan(ctx, "auth.login", attribute.String("realm", string(s.realm.Role)))
	defer func() {
		endSpan(span, err)
		s.record("login", err)
	}()

	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("Email and password are required", nil)
	}

	principal, err := s.realm.Principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.realm.Hasher.VerifyDummy(password)
			return nil, apperrors.NewInvalidCredentials()
		}
		return nil, apperrors.NewInternalError(err)
	}
	if !s.realm.Hasher.Verify(principal.PasswordHash, password) {
		return nil, apperrors.NewInvalidCredentials()
	}

	token, err := s.realm.Tokens.Issue(principal.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.EventPrincipalLoggedIn, principal.ID, events.PrincipalPayload{Email: principal.Email})
	return &LoginResult{Principal: principal, Token: token}, nil
}

// Logout denies the presented token when the realm keeps a revocation list.
// Without one it only reports success; the token stays valid until it expires.
// Missing or invalid tokens are not an error: there is nothing to revoke.
func (s *AuthService) Logout(ctx context.Context, token string) (err error) {
	ctx, span := startSpan(ctx, "auth.logout", attribute.String("realm", string(s.realm.Role)))
	defer func() {
		endSpan(span, err)
		s.record("logout", err)
	}()

	if s.realm.Revocations == nil || token == "" {
		return nil
	}
	claims, verr := s.realm.Tokens.Verify(token)
	if verr != nil {
		s.logger.Debug("logout with unusable token", zap.String("reason", auth.FailureReason(verr)))
		return nil
	}

	ttl := s.realm.Tokens.RemainingLifetime(claims, s.realm.RevocationMaxTTL)
	if err := s.realm.Revocations.Revoke(ctx, claims.ID, ttl); err != nil {
		return apperrors.NewInternalError(err)
	}
	s.publish(ctx, events.EventPrincipalLoggedOut, claims.Subject, nil)
	return nil
}

func (s *AuthService) alreadyExists() error {
	switch s.realm.Role {
	case domain.RoleAdmin:
		return apperrors.NewAlreadyExists("Admin already exists")
	default:
		return apperrors.NewAlreadyExists("User already exists")
	}
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, subjectID string, payload any) {
	if s.events == nil {
		return
	}
	actor := events.Actor{Role: s.realm.Role, ID: subjectID}
	if err := s.events.Publish(ctx, events.New(eventType, subjectID, actor, payload)); err != nil {
		s.logger.Warn("event handlers failed", zap.String("event", string(eventType)), zap.Error(err))
	}
}

func (s *AuthService) record(operation string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = strings.ToLower(apperrors.ToDomainError(err).Code)
	}
	s.metrics.RecordAuthEvent(string(s.realm.Role), operation, outcome)
	if de := apperrors.ToDomainError(err); de != nil && de.HTTPStatus >= 500 {
		s.logger.Error(operation+" failed", zap.Error(err))
	}
}
