package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	domainauth "github.com/target/storefront/internal/domain/auth"
)

// ErrInvalidToken is returned for tokens that fail signature, algorithm,
// issuer or expiry checks.
var ErrInvalidToken = errors.New("invalid access token")

// AccessTokenClaims are the claims carried by storefront access tokens.
type AccessTokenClaims struct {
	Email     string `json:"email"`
	SessionID string `json:"sid"`
	ClientID  string `json:"azp"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 access tokens.
type TokenIssuer struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// NewTokenIssuer returns an issuer; secret must be non-empty.
func NewTokenIssuer(secret, issuer string, now func() time.Time) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{key: []byte(secret), issuer: issuer, now: now}, nil
}

// Issue signs a token for sess. IssuedAt and ExpiresAt come from the session.
func (t *TokenIssuer) Issue(clientID string, sess domainauth.Session) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		Email:     sess.User.Email,
		SessionID: sess.ID,
		ClientID:  clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.User.ID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
			ID:        uuid.NewString(),
		},
	})
	signed, err := tok.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Validate parses raw, pinning the algorithm to HS256 and checking issuer and expiry.
func (t *TokenIssuer) Validate(raw string) (*AccessTokenClaims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	claims := new(AccessTokenClaims)
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
