package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/scholar/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrMissingSecret is returned when a signing secret is not configured
var ErrMissingSecret = errors.New("signing secret is not configured")

// TokenConfig holds signing secrets and lifetimes for bearer tokens
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// TokenIssuer mints and validates access and refresh JWTs. Access and refresh
// tokens are signed with different secrets so one can never stand in for the other.
type TokenIssuer struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenIssuer refuses to build an issuer without both secrets.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, ErrMissingSecret
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("token lifetimes must be positive")
	}
	return &TokenIssuer{cfg: cfg, now: time.Now}, nil
}

// IssueAccessToken mints an access token that has not passed a second factor.
func (ti *TokenIssuer) IssueAccessToken(account *models.Account) (string, error) {
	return ti.issueAccess(account, false)
}

// IssueVerifiedAccessToken mints an access token after a successful second-factor check.
func (ti *TokenIssuer) IssueVerifiedAccessToken(account *models.Account) (string, error) {
	return ti.issueAccess(account, true)
}

func (ti *TokenIssuer) issueAccess(account *models.Account, twoFactorVerified bool) (string, error) {
	claims := &models.TokenClaims{
		Type:              models.TokenTypeAccess,
		AccountID:         account.ID,
		Role:              account.Role,
		IsVerified:        account.IsVerified,
		TwoFactorEnabled:  account.TwoFactorEnabled,
		TwoFactorVerified: twoFactorVerified,
		RegisteredClaims:  ti.registered(ti.cfg.AccessTTL),
	}
	return ti.sign(claims, ti.cfg.AccessSecret, "sign access token")
}

// IssueRefreshToken mints a refresh token carrying only the account id.
func (ti *TokenIssuer) IssueRefreshToken(account *models.Account) (string, error) {
	claims := &models.TokenClaims{
		Type:             models.TokenTypeRefresh,
		AccountID:        account.ID,
		RegisteredClaims: ti.registered(ti.cfg.RefreshTTL),
	}
	return ti.sign(claims, ti.cfg.RefreshSecret, "sign refresh token")
}

// IssuePair mints an unverified access token and a refresh token.
func (ti *TokenIssuer) IssuePair(account *models.Account) (*models.TokenPair, error) {
	access, err := ti.IssueAccessToken(account)
	if err != nil {
		return nil, err
	}
	refresh, err := ti.IssueRefreshToken(account)
	if err != nil {
		return nil, err
	}
	return &models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ValidateAccessToken verifies signature, expiry and type of an access token.
func (ti *TokenIssuer) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	return ti.validate(tokenString, ti.cfg.AccessSecret, models.TokenTypeAccess)
}

// ValidateRefreshToken verifies signature, expiry and type of a refresh token.
func (ti *TokenIssuer) ValidateRefreshToken(tokenString string) (*models.TokenClaims, error) {
	return ti.validate(tokenString, ti.cfg.RefreshSecret, models.TokenTypeRefresh)
}

func (ti *TokenIssuer) registered(ttl time.Duration) jwt.RegisteredClaims {
	now := ti.now()
	return jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Issuer:    ti.cfg.Issuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
}

func (ti *TokenIssuer) sign(claims *models.TokenClaims, secret, op string) (string, error) {
	if secret == "" {
		return "", &models.CredentialError{Op: op, Err: ErrMissingSecret}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", &models.CredentialError{Op: op, Err: err}
	}

	return tokenString, nil
}

func (ti *TokenIssuer) validate(tokenString, secret, wantType string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithTimeFunc(ti.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
	}

	if !token.Valid || claims.Type != wantType || claims.AccountID == "" || claims.IssuedAt == nil {
		return nil, models.ErrTokenInvalid
	}

	return claims, nil
}
