package http

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dumaterial/materials-api/internal/api/http/handlers"
	"github.com/dumaterial/materials-api/internal/auth"
	"github.com/dumaterial/materials-api/internal/config"
	"github.com/dumaterial/materials-api/internal/domain"
	"github.com/dumaterial/materials-api/internal/events"
	"github.com/dumaterial/materials-api/internal/media"
	"github.com/dumaterial/materials-api/internal/observability"
	"github.com/dumaterial/materials-api/internal/repository"
	"github.com/dumaterial/materials-api/internal/service"
)

const strongPassword = "Valid1Pass!"

type okPinger struct{ err error }

func (p okPinger) Ping(context.Context) error { return p.err }

type testServer struct {
	app     *fiber.App
	handler http.Handler
	store   *media.MemoryStore
	users   *repository.InMemoryPrincipalRepository
	events  *events.Recorder
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	authCfg := config.AuthConfig{
		Admin:                   config.RealmConfig{JWTSecret: "admin-secret", TokenTTLMinutes: 60, IssueCookie: true},
		User:                    config.RealmConfig{JWTSecret: "user-secret"},
		BcryptCost:              bcrypt.MinCost,
		CookieName:              "jwt",
		RevokeOnLogout:          true,
		RevocationMaxTTLMinutes: 60,
	}
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	recorder := &events.Recorder{}
	admins := repository.NewInMemoryPrincipalRepository()
	users := repository.NewInMemoryPrincipalRepository()
	deps := service.AuthDependencies{Events: recorder, Metrics: metrics, Logger: logger}
	cookie := handlers.CookieOptions{Name: authCfg.CookieName}

	realm := func(role domain.Role, principals repository.PrincipalRepository) RealmRoutes {
		r, err := service.NewRealm(authCfg, role, principals, auth.NewInMemoryRevocationList())
		require.NoError(t, err)
		svc := service.NewAuthService(r, deps)
		return RealmRoutes{
			Auth:  handlers.NewRealmAuthHandler(svc, cookie),
			Guard: auth.NewRealmMiddleware(svc.Tokens(), logger,
				auth.WithRevocationList(svc.Revocations()),
				auth.WithRejectionRecorder(metrics)),
		}
	}

	store := media.NewMemoryStore()
	materialRepo := repository.NewInMemoryMaterialRepository()
	materials := service.NewMaterialService(service.MaterialDependencies{
		Materials: materialRepo,
		Media:     store,
		Events:    recorder,
		Logger:    logger,
	})
	purchases := service.NewPurchaseService(repository.NewInMemoryPurchaseRepository(), materialRepo, recorder, logger)

	app := fiber.New(fiber.Config{Immutable: true, ErrorHandler: ErrorHandler(logger, metrics)})
	RegisterMiddlewares(app, logger, metrics, config.CORSConfig{
		AllowOrigins:     []string{"http://localhost:5173"},
		AllowCredentials: true,
	}, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health: handlers.NewHealthHandler("dumaterial-api", "test", map[string]handlers.Pinger{
			"postgres": okPinger{},
		}),
		Admin:     realm(domain.RoleAdmin, admins),
		User:      realm(domain.RoleUser, users),
		Materials: handlers.NewMaterialsHandler(materials, 1024*1024),
		Purchases: handlers.NewPurchasesHandler(purchases),
		Metrics:   metrics,
	})

	return testServer{app: app, handler: adaptor.FiberApp(app), store: store, users: users, events: recorder}
}

func signupBody(first, email string) string {
	return fmt.Sprintf(`{"firstName":%q,"lastName":"Lovelace","email":%q,"password":%q}`, first, email, strongPassword)
}

func loginBody(email, password string) string {
	return fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
}

type loginResponse struct {
	Data struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	} `json:"data"`
}

// register signs up and logs in a principal of role, returning its token.
func (s testServer) register(t *testing.T, role domain.Role, email string) string {
	t.Helper()
	base := APIPrefix + "/" + string(role)
	apitest.New().
		Handler(s.handler).
		Post(base + "/signup").
		JSON(signupBody("Ada", email)).
		Expect(t).
		Status(http.StatusCreated).
		End()

	var resp loginResponse
	apitest.New().
		Handler(s.handler).
		Post(base + "/login").
		JSON(loginBody(email, strongPassword)).
		Expect(t).
		Status(http.StatusOK).
		End().
		JSON(&resp)
	require.NotEmpty(t, resp.Data.Auth.Token)
	return resp.Data.Auth.Token
}

func bearer(token string) string { return "Bearer " + token }

type formFile struct {
	field string
	path  string
}

// multipartBody encodes key/value pairs and files read from disk as a
// multipart form, returning the body and its Content-Type.
func multipartBody(t *testing.T, fields []string, files ...formFile) (string, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for i := 0; i+1 < len(fields); i += 2 {
		require.NoError(t, w.WriteField(fields[i], fields[i+1]))
	}
	for _, f := range files {
		content, err := os.ReadFile(f.path)
		require.NoError(t, err)
		part, err := w.CreateFormFile(f.field, filepath.Base(f.path))
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.String(), w.FormDataContentType()
}

func TestSignupAndLoginPerRealm(t *testing.T) {
	s := newTestServer(t)

	apitest.New().
		Handler(s.handler).
		Post(APIPrefix + "/admin/signup").
		JSON(signupBody("Grace", "  Grace@Example.com ")).
		Expect(t).
		Status(http.StatusCreated).
		Assert(jsonpath.Equal("$.message", "Signup successful")).
		Assert(jsonpath.Equal("$.data.admin.email", "grace@example.com")).
		Assert(jsonpath.Present("$.data.admin.id")).
		Assert(jsonpath.NotPresent("$.data.admin.passwordHash")).
		Assert(jsonpath.NotPresent("$.data.admin.PasswordHash")).
		End()

	apitest.New().
		Handler(s.handler).
		Post(APIPrefix + "/admin/login").
		JSON(loginBody("grace@example.com", strongPassword)).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.message", "Login successful")).
		Assert(jsonpath.Present("$.data.auth.token")).
		Assert(jsonpath.Present("$.data.auth.expires_at")).
		Assert(jsonpath.Equal("$.data.admin.email", "grace@example.com")).
		End()

	// The user realm issues tokens without expiry.
	apitest.New().
		Handler(s.handler).
		Post(APIPrefix + "/user/signup").
		JSON(signupBody("Grace", "grace@example.com")).
		Expect(t).
		Status(http.StatusCreated).
		Assert(jsonpath.Present("$.data.user.id")).
		End()

	apitest.New().
		Handler(s.handler).
		Post(APIPrefix + "/user/login").
		JSON(loginBody("grace@example.com", strongPassword)).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Present("$.data.auth.token")).
		Assert(jsonpath.NotPresent("$.data.auth.expires_at")).
		End()
}

func TestSignupRejectsInvalidPayloads(t *testing.T) {
	s := newTestServer(t)

	apitest.New().
		Handler(s.handler).
		Post(APIPrefix + "/user/signup").
		JSON(`{"firstName":"Ada","email":"ada@example.com","password":"Valid1Pass!"}`).
		Expect(t).
		Status(http.StatusBadRequest).
		Assert(jsonpath.Equal("$.error.code", "VALIDATION_FAILED")).
		End()
	assert.Zero(t, s.users.Len())

	apitest.New().
		Handler(s.handler).
		Post(APIPrefix + "/user/signup").
		JSON(`{"firstName":"Al","lastName":"Lovelace","email":"nope","password":"weak"}`).
		Expect(t).
		Status(http.StatusBadRequest).
		Assert(jsonpath.Contains("$.error.details.errors", "First name must be at least 3 characters long")).
		Assert(jsonpath.Contains("$.error.details.errors", "Invalid email address")).
		End()
	assert.Zero(t, s.users.Len())

	s.register(t, domain.RoleUser, "ada@example.com")
	apitest.New().
		Handler(s.handler).
		Post(APIPrefix + "/user/signup").
		JSON(signupBody("Ada", "ADA@example.com")).
		Expect(t).
		Status(http.StatusBadRequest).
		Assert(jsonpath.Equal("$.error.code", "ALREADY_EXISTS")).
		Assert(jsonpath.Equal("$.error.message", "User already exists")).
		End()
	assert.Equal(t, 1, s.users.Len())
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	s := newTestServer(t)
	s.register(t, domain.RoleAdmin, "ada@example.com")

	for _, body := range []string{
		loginBody("ada@example.com", "Wrong1Pass!"),
		loginBody("nobody@example.com", strongPassword),
	} {
		apitest.New().
			Handler(s.handler).
			Post(APIPrefix + "/admin/login").
			JSON(body).
			Expect(t).
			Status(http.StatusForbidden).
			Body(`{"error":{"code":"INVALID_CREDENTIALS","message":"Invalid credentials"}}`).
			End()
	}

	apitest.New().
		Handler(s.handler).
		Post(APIPrefix + "/admin/login").
		JSON(`{"email":"ada@example.com"}`).
		Expect(t).
		Status(http.StatusBadRequest).
		Assert(jsonpath.Equal("$.error.message", "Email and password are required")).
		End()

	// Admin credentials mean nothing in the user realm.
	apitest.New().
		Handler(s.handler).
		Post(APIPrefix + "/user/login").
		JSON(loginBody("ada@example.com", strongPassword)).
		Expect(t).
		Status(http.StatusForbidden).
		End()
}

func TestRealmGuardsRejectForeignTokens(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.register(t, domain.RoleAdmin, "admin@example.com")
	userToken := s.register(t, domain.RoleUser, "user@example.com")

	apitest.New().
		Handler(s.handler).
		Post(APIPrefix+"/du_material/upload").
		Header("Authorization", bearer(userToken)).
		Expect(t).
		Status(http.StatusUnauthorized).
		Assert(jsonpath.Equal("$.error.code", "UNAUTHORIZED")).
		End()

	apitest.New().
		Handler(s.handler).
		Get(APIPrefix+"/user/purchases").
		Header("Authorization", bearer(adminToken)).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()

	apitest.New().
		Handler(s.handler).
		Get(APIPrefix + "/user/purchases").
		Expect(t).
		Status(http.StatusUnauthorized).
		Assert(jsonpath.Equal("$.error.message", "no token provided")).
		End()

	apitest.New().
		Handler(s.handler).
		Get(APIPrefix+"/user/purchases").
		Header("Authorization", bearer(userToken)).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Len("$.data", 0)).
		End()
}

func TestAdminLoginCookieAndLogout(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, domain.RoleAdmin, "ada@example.com")

	req := httptest.NewRequest(http.MethodPost, APIPrefix+"/admin/login", strings.NewReader(loginBody("ada@example.com", strongPassword)))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "jwt" {
			session = c
		}
	}
	require.NotNil(t, session, "admin login sets the session cookie")
	assert.True(t, session.HttpOnly)
	assert.NotEmpty(t, session.Value)

	req = httptest.NewRequest(http.MethodPost, APIPrefix+"/user/signup", strings.NewReader(signupBody("Ada", "ada@example.com")))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	_, err = s.app.Test(req)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, APIPrefix+"/user/login", strings.NewReader(loginBody("ada@example.com", strongPassword)))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err = s.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Cookies(), "user login never sets a cookie")

	apitest.New().
		Handler(s.handler).
		Get(APIPrefix+"/admin/logout").
		Header("Authorization", bearer(token)).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.message", "Logout successful")).
		End()

	// Revocation is enabled for this server, so the token is now refused.
	apitest.New().
		Handler(s.handler).
		Post(APIPrefix+"/du_material/upload").
		Header("Authorization", bearer(token)).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()

	// Logging out without any token still succeeds.
	apitest.New().
		Handler(s.handler).
		Get(APIPrefix + "/user/logout").
		Expect(t).
		Status(http.StatusOK).
		End()
}

func TestMaterialLifecycle(t *testing.T) {
	s := newTestServer(t)
	owner := s.register(t, domain.RoleAdmin, "owner@example.com")
	other := s.register(t, domain.RoleAdmin, "other@example.com")
	user := s.register(t, domain.RoleUser, "student@example.com")

	body, contentType := multipartBody(t, []string{"sem", "3", "subject", "DBMS"})
	apitest.New().
		Handler(s.handler).
		Post(APIPrefix+"/du_material/upload").
		Header("Authorization", bearer(owner)).
		Header("Content-Type", contentType).
		Body(body).
		Expect(t).
		Status(http.StatusBadRequest).
		Assert(jsonpath.Equal("$.error.message", "No files uploaded")).
		End()

	var created struct {
		Data domain.Material `json:"data"`
	}
	body, contentType = multipartBody(t,
		[]string{"sem", "3", "subject", "DBMS", "ch_number", "1", "ch_name", "Introduction"},
		formFile{field: "note_upload", path: "testdata/notes.pdf"},
		formFile{field: "lab_upload", path: "testdata/lab.pdf"},
	)
	apitest.New().
		Handler(s.handler).
		Post(APIPrefix+"/du_material/upload").
		Header("Authorization", bearer(owner)).
		Header("Content-Type", contentType).
		Body(body).
		Expect(t).
		Status(http.StatusCreated).
		Assert(jsonpath.Equal("$.data.subject", "DBMS")).
		Assert(jsonpath.Equal("$.data.chapter.name", "Introduction")).
		Assert(jsonpath.Present("$.data.assets.note_upload.public_id")).
		End().
		JSON(&created)
	id := created.Data.ID
	require.NotEmpty(t, id)
	assert.Len(t, s.store.Keys(), 2)

	apitest.New().
		Handler(s.handler).
		Get(APIPrefix+"/du_material/get").
		Query("sem", "3").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Len("$.data", 1)).
		End()

	apitest.New().
		Handler(s.handler).
		Get(APIPrefix+"/du_material/download/"+id).
		Query("field", "note_upload").
		Expect(t).
		Status(http.StatusFound).
		HeaderPresent("Location").
		End()

	apitest.New().
		Handler(s.handler).
		Post(APIPrefix+"/du_material/"+id+"/purchase").
		Header("Authorization", bearer(user)).
		Expect(t).
		Status(http.StatusCreated).
		Assert(jsonpath.Equal("$.data.created", true)).
		End()

	apitest.New().
		Handler(s.handler).
		Post(APIPrefix+"/du_material/"+id+"/purchase").
		Header("Authorization", bearer(user)).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.data.created", false)).
		End()

	body, contentType = multipartBody(t, []string{"subject", "OS"})
	apitest.New().
		Handler(s.handler).
		Put(APIPrefix+"/du_material/update/"+id).
		Header("Authorization", bearer(other)).
		Header("Content-Type", contentType).
		Body(body).
		Expect(t).
		Status(http.StatusForbidden).
		End()

	apitest.New().
		Handler(s.handler).
		Put(APIPrefix+"/du_material/update/"+id).
		Header("Authorization", bearer(owner)).
		Header("Content-Type", contentType).
		Body(body).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.data.subject", "OS")).
		Assert(jsonpath.Equal("$.data.sem", "3")).
		End()

	apitest.New().
		Handler(s.handler).
		Delete(APIPrefix+"/du_material/delete/"+id).
		Header("Authorization", bearer(owner)).
		Expect(t).
		Status(http.StatusOK).
		End()

	apitest.New().
		Handler(s.handler).
		Get(APIPrefix + "/du_material/get/" + id).
		Expect(t).
		Status(http.StatusNotFound).
		Assert(jsonpath.Equal("$.error.code", "NOT_FOUND")).
		End()

	assert.Contains(t, s.events.Types(), events.EventMaterialDeleted)
}

func TestOperationalEndpoints(t *testing.T) {
	s := newTestServer(t)

	apitest.New().
		Handler(s.handler).
		Get("/health/live").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.status", "alive")).
		End()

	apitest.New().
		Handler(s.handler).
		Get("/health/ready").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.dependencies.postgres", "ok")).
		End()

	apitest.New().
		Handler(s.handler).
		Get("/nowhere").
		Expect(t).
		Status(http.StatusNotFound).
		Assert(jsonpath.Equal("$.error.code", "NOT_FOUND")).
		End()

	result := apitest.New().
		Handler(s.handler).
		Get("/metrics").
		Expect(t).
		Status(http.StatusOK).
		End()
	require.NotNil(t, result.Response)
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	app := fiber.New()
	h := handlers.NewHealthHandler("dumaterial-api", "test", map[string]handlers.Pinger{
		"postgres": okPinger{},
		"redis":    okPinger{err: fmt.Errorf("connection refused")},
	})
	app.Get("/health/ready", h.Ready)

	apitest.New().
		Handler(adaptor.FiberApp(app)).
		Get("/health/ready").
		Expect(t).
		Status(http.StatusServiceUnavailable).
		Assert(jsonpath.Equal("$.error.details.redis", "connection refused")).
		Assert(jsonpath.Equal("$.error.details.postgres", "ok")).
		End()
}
