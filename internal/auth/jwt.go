package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnknownRole is returned when a token carries a role this API does
// not grant.
var ErrUnknownRole = errors.New("auth: unknown role")

// Claims is the claim set this service mints and accepts.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller derived from a verified token.
type Identity struct {
	Subject string
	Role    Role
}

// Verifier validates bearer tokens for the fleet API. Tokens must be
// HS256, carry an expiry, and name a role the API grants.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier constructs a verifier over a shared HMAC secret.
func NewVerifier(secret []byte) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}
	return &Verifier{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}, nil
}

// Verify parses and validates a token and returns the caller identity.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	if v == nil {
		return Identity{}, errors.New("auth: nil verifier")
	}
	if tokenString == "" {
		return Identity{}, errors.New("auth: empty token")
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("auth: parse token: %w", err)
	}
	if !token.Valid {
		return Identity{}, errors.New("auth: invalid token")
	}
	role, ok := NormalizeRole(claims.Role)
	if !ok {
		return Identity{}, ErrUnknownRole
	}
	return Identity{Subject: claims.Subject, Role: role}, nil
}
