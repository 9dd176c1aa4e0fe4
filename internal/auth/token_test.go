package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/scholar/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	ti, err := NewTokenIssuer(TokenConfig{
		AccessSecret:  "access-secret-for-tests-0123456789",
		RefreshSecret: "refresh-secret-for-tests-0123456789",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "scholar-test",
	})
	require.NoError(t, err)
	return ti
}

func testAccount() *models.Account {
	return &models.Account{
		ID:               "acc-123",
		Email:            "a@x.com",
		Role:             models.RoleEditor,
		IsVerified:       true,
		IsActive:         true,
		TwoFactorEnabled: true,
	}
}

func TestNewTokenIssuer_RequiresSecrets(t *testing.T) {
	_, err := NewTokenIssuer(TokenConfig{RefreshSecret: "r", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = NewTokenIssuer(TokenConfig{AccessSecret: "a", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestTokenIssuer_SignFailsWithoutSecret(t *testing.T) {
	ti := newTestIssuer(t)
	ti.cfg.AccessSecret = ""

	token, err := ti.IssueAccessToken(testAccount())
	assert.Empty(t, token)
	assert.ErrorIs(t, err, models.ErrCredential)
}

func TestTokenIssuer_AccessTokenClaims(t *testing.T) {
	ti := newTestIssuer(t)
	account := testAccount()

	token, err := ti.IssueAccessToken(account)
	require.NoError(t, err)

	claims, err := ti.ValidateAccessToken(token)
	require.NoError(t, err)

	assert.Equal(t, models.TokenTypeAccess, claims.Type)
	assert.Equal(t, "acc-123", claims.AccountID)
	assert.Equal(t, models.RoleEditor, claims.Role)
	assert.True(t, claims.IsVerified)
	assert.True(t, claims.TwoFactorEnabled)
	assert.False(t, claims.TwoFactorVerified)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 2*time.Second)
}

func TestTokenIssuer_VerifiedAccessToken(t *testing.T) {
	ti := newTestIssuer(t)

	token, err := ti.IssueVerifiedAccessToken(testAccount())
	require.NoError(t, err)

	claims, err := ti.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.True(t, claims.TwoFactorVerified)
}

func TestTokenIssuer_RefreshTokenCarriesOnlyID(t *testing.T) {
	ti := newTestIssuer(t)

	token, err := ti.IssueRefreshToken(testAccount())
	require.NoError(t, err)

	claims, err := ti.ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-123", claims.AccountID)
	assert.Empty(t, claims.Role)
	assert.False(t, claims.IsVerified)
	assert.False(t, claims.TwoFactorEnabled)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), claims.ExpiresAt.Time, 2*time.Second)
}

func TestTokenIssuer_TokensAreNotInterchangeable(t *testing.T) {
	ti := newTestIssuer(t)
	pair, err := ti.IssuePair(testAccount())
	require.NoError(t, err)

	_, err = ti.ValidateRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)

	_, err = ti.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestTokenIssuer_ExpiredToken(t *testing.T) {
	ti := newTestIssuer(t)
	ti.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, err := ti.IssueAccessToken(testAccount())
	require.NoError(t, err)

	ti.now = time.Now
	_, err = ti.ValidateAccessToken(token)
	assert.ErrorIs(t, err, models.ErrTokenExpired)
}

func TestTokenIssuer_RejectsForeignSignature(t *testing.T) {
	ti := newTestIssuer(t)
	other, err := NewTokenIssuer(TokenConfig{
		AccessSecret:  "some-other-access-secret-0123456789",
		RefreshSecret: "some-other-refresh-secret-0123456789",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	require.NoError(t, err)

	token, err := other.IssueAccessToken(testAccount())
	require.NoError(t, err)

	_, err = ti.ValidateAccessToken(token)
	assert.True(t, errors.Is(err, models.ErrTokenInvalid))
}

func TestTokenIssuer_RejectsNoneAlgorithm(t *testing.T) {
	ti := newTestIssuer(t)

	claims := &models.TokenClaims{
		Type:      models.TokenTypeAccess,
		AccountID: "acc-123",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ti.ValidateAccessToken(unsigned)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}
