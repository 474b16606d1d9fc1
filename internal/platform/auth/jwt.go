package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domain "github.com/craftfolio/api/internal/domain"
)

const (
	claimRole      = "role"
	claimSuperuser = "superuser"
	claimEmail     = "email"
)

var (
	// ErrTokenExpired signals that the provided bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the provided bearer token failed verification.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// TokenVerifier turns a raw bearer token into an Identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// JWTVerifier validates HMAC-signed access tokens issued by the account
// subsystem. Token issuance lives outside this service; only the shared
// signing secret and expected issuer are configured here.
type JWTVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// JWTOption customises verifier behaviour.
type JWTOption func(*JWTVerifier)

// WithLeeway tolerates clock skew when validating temporal claims.
func WithLeeway(d time.Duration) JWTOption {
	return func(v *JWTVerifier) {
		if d > 0 {
			v.leeway = d
		}
	}
}

// NewJWTVerifier constructs a verifier for the given shared secret and issuer.
func NewJWTVerifier(secret, issuer string, opts ...JWTOption) (*JWTVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	v := &JWTVerifier{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		leeway: time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Verify parses and validates the token, returning the embedded identity.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	if v == nil {
		return nil, ErrTokenInvalid
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.NewParser(parserOpts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	role := domain.ParseRole(stringClaim(claims, claimRole))
	superuser := boolClaim(claims, claimSuperuser)
	if role == "" && !superuser {
		return nil, fmt.Errorf("%w: no role associated with identity", ErrTokenInvalid)
	}

	return &Identity{
		ID:        strings.TrimSpace(subject),
		Email:     stringClaim(claims, claimEmail),
		Role:      role,
		Superuser: superuser,
	}, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok {
		return ""
	}
	value, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func boolClaim(claims jwt.MapClaims, key string) bool {
	raw, ok := claims[key]
	if !ok {
		return false
	}
	value, ok := raw.(bool)
	return ok && value
}
