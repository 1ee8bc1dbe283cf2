package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dumaterial/materials-api/internal/domain"
)

var (
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenInvalidSignature = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
)

// TokenManager issues and validates the bearer tokens of a single realm.
type TokenManager struct {
	role   domain.Role
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager builds a manager for role. A zero ttl issues tokens without expiry.
func NewTokenManager(role domain.Role, secret string, ttl time.Duration) *TokenManager {
	if ttl < 0 {
		ttl = 0
	}
	return &TokenManager{role: role, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Claims describes JWT payload.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// IssuedToken is a freshly signed token and its metadata.
type IssuedToken struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt *time.Time
}

// Role returns the realm the manager signs for.
func (tm *TokenManager) Role() domain.Role {
	return tm.role
}

// Issue builds and signs a JWT for subjectID.
func (tm *TokenManager) Issue(subjectID string) (*IssuedToken, error) {
	if subjectID == "" {
		return nil, errors.New("empty subject")
	}
	now := tm.now()
	issued := &IssuedToken{ID: uuid.NewString(), IssuedAt: now}
	claims := &Claims{
		Role: tm.role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subjectID,
			ID:       issued.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if tm.ttl > 0 {
		exp := now.Add(tm.ttl)
		issued.ExpiresAt = &exp
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return nil, err
	}
	issued.Token = signed
	return issued, nil
}

// Verify validates tokenStr and returns its claims. Failures wrap one of
// ErrTokenMalformed, ErrTokenInvalidSignature or ErrTokenExpired.
func (tm *TokenManager) Verify(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}
	if claims.Role != tm.role {
		return nil, fmt.Errorf("%w: role %q", ErrTokenMalformed, claims.Role)
	}
	return claims, nil
}

// RemainingLifetime returns how long claims stay valid, or fallback when they never expire.
func (tm *TokenManager) RemainingLifetime(claims *Claims, fallback time.Duration) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return fallback
	}
	return claims.ExpiresAt.Sub(tm.now())
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrTokenInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}

// FailureReason names a verification error for logs and metrics.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	default:
		return "unknown"
	}
}
