// Package auth verifies the bearer tokens clients present in-band over the
// WebSocket and on the publish ingress.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	apperrors "github.com/tyeom/zeroquant-sub005/internal/platform/errors"
)

// Identity is the verified principal behind a token.
type Identity struct {
	UserID    string
	Username  string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

// Claims is the HS256 token payload shared with the trading API.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	clock  clockwork.Clock
	leeway time.Duration
}

type Option func(*JWTVerifier)

// WithClock sets the clock used for expiry checks.
func WithClock(clock clockwork.Clock) Option {
	return func(v *JWTVerifier) { v.clock = clock }
}

// WithLeeway tolerates clock skew on exp/iat checks.
func WithLeeway(d time.Duration) Option {
	return func(v *JWTVerifier) { v.leeway = d }
}

func NewJWTVerifier(secret string, opts ...Option) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	v := &JWTVerifier{
		secret: []byte(secret),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify parses and validates raw. Failures are auth errors.
func (v *JWTVerifier) Verify(_ context.Context, raw string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, apperrors.AuthError(describe(err), err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, apperrors.AuthError("invalid token claims", nil)
	}
	if claims.Subject == "" {
		return Identity{}, apperrors.AuthError("token has no subject", nil)
	}

	identity := Identity{
		UserID:   claims.Subject,
		Username: claims.Username,
		Role:     claims.Role,
		TokenID:  claims.ID,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return identity, nil
}

func describe(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed token"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "invalid signature"
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return "token not valid yet"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "missing required claim"
	default:
		return "invalid token"
	}
}

// Issuer signs tokens with the same secret the verifier checks. It backs
// local tooling and tests; production tokens come from the trading API.
type Issuer struct {
	secret []byte
	clock  clockwork.Clock
}

func NewIssuer(secret string, clock clockwork.Clock) *Issuer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Issuer{secret: []byte(secret), clock: clock}
}

// Issue signs a token for userID valid for ttl.
func (i *Issuer) Issue(userID, username, role string, ttl time.Duration) (string, error) {
	now := i.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
