package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dumaterial/materials-api/internal/auth"
	"github.com/dumaterial/materials-api/internal/config"
	"github.com/dumaterial/materials-api/internal/domain"
	"github.com/dumaterial/materials-api/internal/events"
	"github.com/dumaterial/materials-api/internal/repository"
	apperrors "github.com/dumaterial/materials-api/pkg/util"
)

type authOutcome struct {
	realm, operation, outcome string
}

type fakeAuthRecorder struct {
	outcomes []authOutcome
}

func (f *fakeAuthRecorder) RecordAuthEvent(realm, operation, outcome string) {
	f.outcomes = append(f.outcomes, authOutcome{realm, operation, outcome})
}

type failingPrincipals struct {
	repository.PrincipalRepository
	err error
}

func (f failingPrincipals) GetByEmail(context.Context, string) (*domain.Principal, error) {
	return nil, f.err
}

type authFixture struct {
	svc      *AuthService
	repo     *repository.InMemoryPrincipalRepository
	events   *events.Recorder
	recorder *fakeAuthRecorder
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		Admin:                   config.RealmConfig{JWTSecret: "admin-secret", TokenTTLMinutes: 60, IssueCookie: true},
		User:                    config.RealmConfig{JWTSecret: "user-secret", TokenTTLMinutes: 0},
		BcryptCost:              bcrypt.MinCost,
		RevocationMaxTTLMinutes: 60,
	}
}

func newAuthFixture(t *testing.T, role domain.Role, cfg config.AuthConfig, revocations auth.RevocationList) authFixture {
	t.Helper()
	repo := repository.NewInMemoryPrincipalRepository()
	realm, err := NewRealm(cfg, role, repo, revocations)
	require.NoError(t, err)

	rec := &events.Recorder{}
	metrics := &fakeAuthRecorder{}
	return authFixture{
		svc:      NewAuthService(realm, AuthDependencies{Events: rec, Metrics: metrics}),
		repo:     repo,
		events:   rec,
		recorder: metrics,
	}
}

func validSignup() SignupInput {
	return SignupInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "  Ada@Example.com ",
		Password:  "Valid1Pass!",
	}
}

func domainErr(t *testing.T, err error) *apperrors.DomainError {
	t.Helper()
	require.Error(t, err)
	de := apperrors.ToDomainError(err)
	require.NotNil(t, de)
	return de
}

func TestSignupThenLoginIssuesRealmToken(t *testing.T) {
	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleUser} {
		t.Run(string(role), func(t *testing.T) {
			f := newAuthFixture(t, role, testAuthConfig(), nil)
			ctx := context.Background()

			principal, err := f.svc.Signup(ctx, validSignup())
			require.NoError(t, err)
			assert.Equal(t, "ada@example.com", principal.Email)
			assert.NotEqual(t, "Valid1Pass!", principal.PasswordHash)

			result, err := f.svc.Login(ctx, "ADA@example.com", "Valid1Pass!")
			require.NoError(t, err)
			assert.Equal(t, principal.ID, result.Principal.ID)

			claims, err := f.svc.Tokens().Verify(result.Token.Token)
			require.NoError(t, err)
			assert.Equal(t, principal.ID, claims.Subject)
			assert.Equal(t, role, claims.Role)

			assert.Equal(t, []events.EventType{events.EventPrincipalRegistered, events.EventPrincipalLoggedIn}, f.events.Types())
		})
	}
}

func TestRealmTTLPolicy(t *testing.T) {
	admin := newAuthFixture(t, domain.RoleAdmin, testAuthConfig(), nil)
	user := newAuthFixture(t, domain.RoleUser, testAuthConfig(), nil)
	ctx := context.Background()

	_, err := admin.svc.Signup(ctx, validSignup())
	require.NoError(t, err)
	_, err = user.svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	adminLogin, err := admin.svc.Login(ctx, "ada@example.com", "Valid1Pass!")
	require.NoError(t, err)
	require.NotNil(t, adminLogin.Token.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *adminLogin.Token.ExpiresAt, time.Minute)
	assert.True(t, admin.svc.IssuesCookie())

	userLogin, err := user.svc.Login(ctx, "ada@example.com", "Valid1Pass!")
	require.NoError(t, err)
	assert.Nil(t, userLogin.Token.ExpiresAt)
	assert.False(t, user.svc.IssuesCookie())

	_, err = user.svc.Tokens().Verify(adminLogin.Token.Token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalidSignature)
	_, err = admin.svc.Tokens().Verify(userLogin.Token.Token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalidSignature)
}

func TestSignupMissingFieldPersistsNothing(t *testing.T) {
	cases := map[string]func(*SignupInput){
		"first name": func(in *SignupInput) { in.FirstName = "" },
		"last name":  func(in *SignupInput) { in.LastName = "   " },
		"email":      func(in *SignupInput) { in.Email = "" },
		"password":   func(in *SignupInput) { in.Password = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newAuthFixture(t, domain.RoleUser, testAuthConfig(), nil)
			in := validSignup()
			mutate(&in)

			_, err := f.svc.Signup(context.Background(), in)

			de := domainErr(t, err)
			assert.Equal(t, 400, de.HTTPStatus)
			assert.Equal(t, "All fields are required", de.Message)
			assert.Zero(t, f.repo.Len())
			assert.Empty(t, f.events.Events())
		})
	}
}

func TestSignupCollectsEveryViolation(t *testing.T) {
	f := newAuthFixture(t, domain.RoleAdmin, testAuthConfig(), nil)

	_, err := f.svc.Signup(context.Background(), SignupInput{
		FirstName: "Al",
		LastName:  "Bo",
		Email:     "not-an-email",
		Password:  "abc",
	})

	de := domainErr(t, err)
	assert.Equal(t, 400, de.HTTPStatus)
	assert.Equal(t, []string{
		"First name must be at least 3 characters long",
		"Last name must be at least 3 characters long",
		"Invalid email address",
		"Password must be at least 8 characters long",
		"Password must contain at least one uppercase letter",
		"Password must contain at least one number",
		"Password must contain at least one special character",
	}, de.Details["errors"])
	assert.Zero(t, f.repo.Len())
}

func TestSignupDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t, domain.RoleAdmin, testAuthConfig(), nil)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	again := validSignup()
	again.Email = "ADA@EXAMPLE.COM"
	_, err = f.svc.Signup(ctx, again)

	de := domainErr(t, err)
	assert.Equal(t, 400, de.HTTPStatus)
	assert.Equal(t, "ALREADY_EXISTS", de.Code)
	assert.Equal(t, "Admin already exists", de.Message)
	assert.Equal(t, 1, f.repo.Len())
}

func TestSameEmailMayRegisterInBothRealms(t *testing.T) {
	cfg := testAuthConfig()
	admin := newAuthFixture(t, domain.RoleAdmin, cfg, nil)
	user := newAuthFixture(t, domain.RoleUser, cfg, nil)

	_, err := admin.svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)
	_, err = user.svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t, domain.RoleUser, testAuthConfig(), nil)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	_, wrongPassword := f.svc.Login(ctx, "ada@example.com", "Wrong1Pass!")
	_, unknownEmail := f.svc.Login(ctx, "nobody@example.com", "Valid1Pass!")

	a, b := domainErr(t, wrongPassword), domainErr(t, unknownEmail)
	assert.Equal(t, 403, a.HTTPStatus)
	assert.Equal(t, a.HTTPStatus, b.HTTPStatus)
	assert.Equal(t, a.Code, b.Code)
	assert.Equal(t, a.Message, b.Message)
	assert.Equal(t, a.Details, b.Details)
}

func TestLoginRequiresBothFields(t *testing.T) {
	f := newAuthFixture(t, domain.RoleUser, testAuthConfig(), nil)

	_, err := f.svc.Login(context.Background(), "ada@example.com", "")
	de := domainErr(t, err)
	assert.Equal(t, 400, de.HTTPStatus)
	assert.Equal(t, "Email and password are required", de.Message)
}

func TestStoreFailureBecomesInternalError(t *testing.T) {
	realm, err := NewRealm(testAuthConfig(), domain.RoleAdmin, failingPrincipals{err: errors.New("connection refused")}, nil)
	require.NoError(t, err)
	recorder := &fakeAuthRecorder{}
	svc := NewAuthService(realm, AuthDependencies{Metrics: recorder})

	_, err = svc.Login(context.Background(), "ada@example.com", "Valid1Pass!")
	de := domainErr(t, err)
	assert.Equal(t, 500, de.HTTPStatus)
	assert.Equal(t, "internal server error", de.Message)
	assert.NotContains(t, de.Message, "connection refused")

	_, err = svc.Signup(context.Background(), validSignup())
	assert.Equal(t, 500, domainErr(t, err).HTTPStatus)

	assert.Equal(t, []authOutcome{
		{"admin", "login", "internal_error"},
		{"admin", "signup", "internal_error"},
	}, recorder.outcomes)
}

func TestLogoutIsStatelessByDefault(t *testing.T) {
	cfg := testAuthConfig()
	f := newAuthFixture(t, domain.RoleAdmin, cfg, auth.NewInMemoryRevocationList())
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, validSignup())
	require.NoError(t, err)
	login, err := f.svc.Login(ctx, "ada@example.com", "Valid1Pass!")
	require.NoError(t, err)

	assert.Nil(t, f.svc.Revocations(), "revocation list must be ignored unless enabled")
	require.NoError(t, f.svc.Logout(ctx, login.Token.Token))

	_, err = f.svc.Tokens().Verify(login.Token.Token)
	assert.NoError(t, err)
}

func TestLogoutRevokesWhenEnabled(t *testing.T) {
	cfg := testAuthConfig()
	cfg.RevokeOnLogout = true
	list := auth.NewInMemoryRevocationList()
	f := newAuthFixture(t, domain.RoleUser, cfg, list)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, validSignup())
	require.NoError(t, err)
	login, err := f.svc.Login(ctx, "ada@example.com", "Valid1Pass!")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, login.Token.Token))

	revoked, err := list.IsRevoked(ctx, login.Token.ID)
	require.NoError(t, err)
	assert.True(t, revoked, "token without exp is denied for the configured maximum")

	assert.NoError(t, f.svc.Logout(ctx, ""))
	assert.NoError(t, f.svc.Logout(ctx, "garbage"))
}

type brokenRevocations struct{}

func (brokenRevocations) Revoke(context.Context, string, time.Duration) error {
	return errors.New("redis down")
}

func (brokenRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, nil
}

func TestLogoutRevocationFailure(t *testing.T) {
	cfg := testAuthConfig()
	cfg.RevokeOnLogout = true
	f := newAuthFixture(t, domain.RoleAdmin, cfg, brokenRevocations{})
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, validSignup())
	require.NoError(t, err)
	login, err := f.svc.Login(ctx, "ada@example.com", "Valid1Pass!")
	require.NoError(t, err)

	err = f.svc.Logout(ctx, login.Token.Token)
	assert.Equal(t, 500, domainErr(t, err).HTTPStatus)
}

func TestNewRealmRejectsUnknownRole(t *testing.T) {
	_, err := NewRealm(testAuthConfig(), domain.Role("moderator"), nil, nil)
	assert.Error(t, err)
}
