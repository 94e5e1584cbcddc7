package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

func newTestSigner(t *testing.T, issuer string) *Signer {
	t.Helper()
	s, err := NewSigner(config.JWTConfig{Secret: "secret", Issuer: issuer, ExpirationMinutes: 30})
	require.NoError(t, err)
	return s
}

func TestNewSignerRequiresConfig(t *testing.T) {
	for name, cfg := range map[string]config.JWTConfig{
		"secret": {Issuer: "settlement", ExpirationMinutes: 5},
		"issuer": {Secret: "secret", Issuer: "  ", ExpirationMinutes: 5},
		"ttl":    {Secret: "secret", Issuer: "settlement"},
	} {
		_, err := NewSigner(cfg)
		assert.ErrorIs(t, err, ErrSignerConfig, name)
	}
}

func TestMintThenVerify(t *testing.T) {
	s := newTestSigner(t, "settlement")
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := s.Mint(now, Identity{UserID: userID, Role: enums.UserRoleAdmin, JTI: " fixed "})
	require.NoError(t, err)

	claims, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, enums.UserRoleAdmin, claims.Role)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, "fixed", claims.ID)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestMintGeneratesJTI(t *testing.T) {
	s := newTestSigner(t, "settlement")
	token, err := s.Mint(time.Now(), Identity{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	require.NoError(t, err)

	claims, err := s.Verify(token)
	require.NoError(t, err)
	_, err = uuid.Parse(claims.ID)
	assert.NoError(t, err)
}

func TestMintRejectsIncompleteIdentity(t *testing.T) {
	s := newTestSigner(t, "settlement")

	_, err := s.Mint(time.Now(), Identity{Role: enums.UserRoleAdmin})
	assert.ErrorIs(t, err, ErrMissingSubject)

	_, err = s.Mint(time.Now(), Identity{UserID: uuid.New(), Role: "vendor"})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	s := newTestSigner(t, "settlement")
	token, err := s.Mint(time.Now(), Identity{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	require.NoError(t, err)

	other, err := NewSigner(config.JWTConfig{Secret: "other", Issuer: "settlement", ExpirationMinutes: 30})
	require.NoError(t, err)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	_, err = newTestSigner(t, "someone-else").Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	s := newTestSigner(t, "settlement")
	token, err := s.Mint(time.Now().Add(-2*time.Hour), Identity{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	require.NoError(t, err)

	_, err = s.Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerifyRunsClaimsValidation(t *testing.T) {
	s := newTestSigner(t, "settlement")
	forged := Claims{
		UserID: uuid.New(),
		Role:   "vendor",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "settlement",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, forged).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	s := newTestSigner(t, "settlement")
	claims := Claims{
		UserID: uuid.New(),
		Role:   enums.UserRoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "settlement",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = s.Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}
