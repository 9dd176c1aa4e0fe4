package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/BradenHooton/scholar/internal/models"
	pkghttp "github.com/BradenHooton/scholar/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// ClaimsContextKey is the key for storing validated token claims in context
	ClaimsContextKey contextKey = "claims"
	// AccountContextKey is the key for storing the authenticated account in context
	AccountContextKey contextKey = "account"
)

// AccountLoader fetches accounts through the default (lock-filtered) lookup
type AccountLoader interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// AccessTokenValidator validates access tokens
type AccessTokenValidator interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

// Authenticate validates the bearer access token, reloads the account and rejects
// tokens issued before the last password change.
func Authenticate(validator AccessTokenValidator, accounts AccountLoader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "missing or malformed authorization header")
				return
			}

			claims, err := validator.ValidateAccessToken(tokenString)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			// Locked accounts are filtered out of GetByID and surface as not found
			account, err := accounts.GetByID(r.Context(), claims.AccountID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "account unavailable")
					return
				}
				pkghttp.WriteInternalError(w, "internal server error")
				return
			}

			if !account.IsActive {
				pkghttp.WriteForbidden(w, "account is inactive")
				return
			}

			if account.ChangedPasswordAfter(claims.IssuedAt.Time) {
				pkghttp.WriteUnauthorized(w, "password changed, please log in again")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			ctx = context.WithValue(ctx, AccountContextKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole enforces that the authenticated account holds one of roles.
// The role is read from the freshly loaded account, not the token.
func RequireRole(roles ...models.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := GetAccountFromContext(r)
			if account == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}

			for _, role := range roles {
				if account.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			pkghttp.WriteForbidden(w, "insufficient permissions")
		})
	}
}

// RequireTwoFactor rejects sessions of 2FA-enabled accounts that have not passed the second factor
func RequireTwoFactor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaimsFromContext(r)
		account := GetAccountFromContext(r)
		if claims == nil || account == nil {
			pkghttp.WriteUnauthorized(w, "unauthorized")
			return
		}

		if account.TwoFactorEnabled && !claims.TwoFactorVerified {
			pkghttp.WriteForbidden(w, "two-factor verification required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// GetClaimsFromContext extracts token claims from request context
func GetClaimsFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(ClaimsContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// GetAccountFromContext extracts the authenticated account from request context
func GetAccountFromContext(r *http.Request) *models.Account {
	account, ok := r.Context().Value(AccountContextKey).(*models.Account)
	if !ok {
		return nil
	}
	return account
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
