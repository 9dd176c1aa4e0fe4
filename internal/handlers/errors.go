package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/scholar/internal/models"
	pkghttp "github.com/BradenHooton/scholar/pkg/http"
)

// writeServiceError maps service errors onto HTTP responses. Internal and
// credential errors are logged here and never echoed to the client.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var locked *models.AccountLockedError

	switch {
	case errors.As(err, &locked):
		pkghttp.WriteLocked(w, locked.RemainingMinutes)
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteUnauthorized(w, "Invalid email or password")
	case errors.Is(err, models.ErrAccountInactive):
		pkghttp.WriteForbidden(w, "Account is inactive")
	case errors.Is(err, models.ErrTokenExpired):
		pkghttp.WriteError(w, http.StatusBadRequest, "token_expired", "Token has expired")
	case errors.Is(err, models.ErrTokenInvalid):
		pkghttp.WriteError(w, http.StatusBadRequest, "token_invalid", "Token is invalid")
	case errors.Is(err, models.ErrTwoFactorInvalidCode):
		pkghttp.WriteUnauthorized(w, "Invalid two-factor code")
	case errors.Is(err, models.ErrTwoFactorNotEnabled):
		pkghttp.WriteBadRequest(w, "Two-factor authentication is not enabled")
	case errors.Is(err, models.ErrTwoFactorAlreadyEnabled):
		pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Resource already exists")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Account not found")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Forbidden")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, badRequestMessage(err))
	case errors.Is(err, models.ErrCredential):
		logger.Error("credential processing failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	default:
		logger.Error("unhandled service error", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// badRequestMessage strips the sentinel prefix from a wrapped ErrBadRequest
func badRequestMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), models.ErrBadRequest.Error()+": ")
	if msg == "" {
		return "Bad request"
	}
	return msg
}

func isConflict(err error) bool {
	return errors.Is(err, models.ErrConflict)
}
