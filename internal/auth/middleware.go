package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dumaterial/materials-api/internal/domain"
	apperrors "github.com/dumaterial/materials-api/pkg/util"
)

// RejectionRecorder counts rejected tokens.
type RejectionRecorder interface {
	RecordTokenRejected(role, reason string)
}

// RealmMiddleware validates bearer tokens for one realm and exposes the
// resolved subject id to downstream handlers.
type RealmMiddleware struct {
	tokens   *TokenManager
	revoked  RevocationList
	logger   *zap.Logger
	recorder RejectionRecorder
}

// MiddlewareOption customizes a RealmMiddleware.
type MiddlewareOption func(*RealmMiddleware)

// WithRevocationList makes the middleware reject denylisted token ids.
func WithRevocationList(list RevocationList) MiddlewareOption {
	return func(m *RealmMiddleware) { m.revoked = list }
}

// WithRejectionRecorder reports every rejection reason.
func WithRejectionRecorder(r RejectionRecorder) MiddlewareOption {
	return func(m *RealmMiddleware) { m.recorder = r }
}

// NewRealmMiddleware constructs middleware.
func NewRealmMiddleware(tokens *TokenManager, logger *zap.Logger, opts ...MiddlewareOption) *RealmMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &RealmMiddleware{tokens: tokens, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle enforces authentication for protected routes.
func (m *RealmMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		m.reject(c, "missing_header", nil)
		return apperrors.NewUnauthorized("no token provided")
	}

	token, ok := BearerToken(authHeader)
	if !ok {
		m.reject(c, "invalid_header", nil)
		return apperrors.NewUnauthorized("no token provided")
	}

	claims, err := m.tokens.Verify(token)
	if err != nil {
		m.reject(c, FailureReason(err), err)
		return apperrors.NewUnauthorized("invalid token or expired")
	}

	if m.revoked != nil {
		revoked, err := m.revoked.IsRevoked(c.UserContext(), claims.ID)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		if revoked {
			m.reject(c, "revoked", nil)
			return apperrors.NewUnauthorized("invalid token or expired")
		}
	}

	c.Locals(LocalsKey(m.tokens.Role()), claims.Subject)
	return c.Next()
}

func (m *RealmMiddleware) reject(c *fiber.Ctx, reason string, err error) {
	role := string(m.tokens.Role())
	m.logger.Debug("token rejected",
		zap.String("realm", role),
		zap.String("reason", reason),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	if m.recorder != nil {
		m.recorder.RecordTokenRejected(role, reason)
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

// LocalsKey returns the request-local key holding the subject id of role.
func LocalsKey(role domain.Role) string {
	return string(role) + "Id"
}
