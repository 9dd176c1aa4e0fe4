package models

import (
	"strings"
	"time"
)

// Role is an account's authorization role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleEditor    Role = "editor"
	RoleAPI       Role = "api"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleModerator, RoleEditor, RoleAPI:
		return true
	}
	return false
}

// AccountStatus is a derived, read-only view of an account's state.
type AccountStatus string

const (
	StatusActive     AccountStatus = "active"
	StatusInactive   AccountStatus = "inactive"
	StatusLocked     AccountStatus = "locked"
	StatusUnverified AccountStatus = "unverified"
)

// Account is the persisted account record. Secret-bearing fields hold hashes or
// ciphertext only and must never leave the service layer; use Public() at the API boundary.
type Account struct {
	ID                       string
	Email                    string
	Name                     string
	PasswordHash             string
	Role                     Role
	IsVerified               bool
	IsActive                 bool
	LastLogin                *time.Time
	LoginAttempts            int
	LockUntil                *time.Time
	PasswordChangedAt        *time.Time
	PasswordResetToken       string
	PasswordResetExpires     *time.Time
	EmailVerificationToken   string
	EmailVerificationExpires *time.Time
	TwoFactorSecret          string // AES-GCM ciphertext, base64
	TwoFactorEnabled         bool
	TwoFactorRecoveryCodes   []string // SHA-256 hex digests
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// NormalizeEmail lowercases and trims an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewAccount builds an active, unverified account. The caller supplies an
// already-hashed password and the matching passwordChangedAt.
func NewAccount(email, name, passwordHash string, role Role, passwordChangedAt time.Time) *Account {
	if role == "" {
		role = RoleUser
	}
	return &Account{
		Email:             NormalizeEmail(email),
		Name:              strings.TrimSpace(name),
		PasswordHash:      passwordHash,
		Role:              role,
		IsActive:          true,
		PasswordChangedAt: &passwordChangedAt,
	}
}

// IsLocked reports whether the account has a lock window that has not yet lapsed.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockUntil != nil && a.LockUntil.After(now)
}

// Status derives the account status. Inactive wins over locked, locked over unverified.
func (a *Account) Status(now time.Time) AccountStatus {
	switch {
	case !a.IsActive:
		return StatusInactive
	case a.IsLocked(now):
		return StatusLocked
	case !a.IsVerified:
		return StatusUnverified
	default:
		return StatusActive
	}
}

// ChangedPasswordAfter reports whether a token issued at issuedAt predates the last
// password change. JWT iat has second precision, so both sides are compared in seconds.
func (a *Account) ChangedPasswordAfter(issuedAt time.Time) bool {
	if a.PasswordChangedAt == nil {
		return false
	}
	return issuedAt.Unix() < a.PasswordChangedAt.Unix()
}

// PublicAccount is the whitelisted projection of an account safe to return to clients.
type PublicAccount struct {
	ID               string        `json:"id"`
	Email            string        `json:"email"`
	Name             string        `json:"name"`
	Role             Role          `json:"role"`
	IsVerified       bool          `json:"is_verified"`
	IsActive         bool          `json:"is_active"`
	TwoFactorEnabled bool          `json:"two_factor_enabled"`
	Status           AccountStatus `json:"status"`
	LastLogin        *time.Time    `json:"last_login,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Public projects the account onto its client-safe view as of now.
func (a *Account) Public(now time.Time) *PublicAccount {
	return &PublicAccount{
		ID:               a.ID,
		Email:            a.Email,
		Name:             a.Name,
		Role:             a.Role,
		IsVerified:       a.IsVerified,
		IsActive:         a.IsActive,
		TwoFactorEnabled: a.TwoFactorEnabled,
		Status:           a.Status(now),
		LastLogin:        a.LastLogin,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}
