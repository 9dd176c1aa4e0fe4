package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims are the claims of both access and refresh tokens. Refresh tokens
// carry only the account id and type; the remaining fields are zero.
type TokenClaims struct {
	Type              string `json:"type"`
	AccountID         string `json:"id"`
	Role              Role   `json:"role,omitempty"`
	IsVerified        bool   `json:"isVerified,omitempty"`
	TwoFactorEnabled  bool   `json:"twoFactorEnabled,omitempty"`
	TwoFactorVerified bool   `json:"twoFactorVerified,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is the access/refresh pair handed to clients after authentication.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TwoFactorEnrollment is returned once when two-factor authentication is enabled.
// RecoveryCodes are plaintext and are never retrievable again.
type TwoFactorEnrollment struct {
	Secret        string   `json:"secret"`
	OTPAuthURL    string   `json:"otpauth_url"`
	QRCode        string   `json:"qr_code"`
	RecoveryCodes []string `json:"recovery_codes"`
}
