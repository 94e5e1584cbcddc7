// Package auth signs and verifies the HS256 access tokens presented to the API.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

var (
	ErrSignerConfig   = errors.New("auth: jwt secret, issuer and ttl are required")
	ErrMissingSubject = errors.New("auth: token has no user id")
	ErrInvalidRole    = errors.New("auth: token role is not recognised")
)

// Identity is what a token asserts about its bearer.
type Identity struct {
	UserID uuid.UUID
	Role   enums.UserRole
	JTI    string
}

// Claims is the token body. Validate runs after the registered claims check.
type Claims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

func (c Claims) Validate() error {
	if c.UserID == uuid.Nil {
		return ErrMissingSubject
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, c.Role)
	}
	return nil
}

// Signer holds the HMAC key and the issuer shared by every token.
type Signer struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

func NewSigner(cfg config.JWTConfig) (*Signer, error) {
	if cfg.Secret == "" || strings.TrimSpace(cfg.Issuer) == "" || cfg.ExpirationMinutes <= 0 {
		return nil, ErrSignerConfig
	}
	return &Signer{
		key:    []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    time.Duration(cfg.ExpirationMinutes) * time.Minute,
	}, nil
}

// Mint issues a token valid from now for the configured ttl. Production
// tokens come from the identity service; this produces the same shape.
func (s *Signer) Mint(now time.Time, id Identity) (string, error) {
	claims := Claims{
		UserID: id.UserID,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        strings.TrimSpace(id.JTI),
			Issuer:    s.issuer,
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	if err := claims.Validate(); err != nil {
		return "", err
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry, then the custom claims.
func (s *Signer) Verify(raw string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
