package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/scholar/internal/auth"
	"github.com/BradenHooton/scholar/internal/models"
	pkghttp "github.com/BradenHooton/scholar/pkg/http"
)

// TwoFactorServiceInterface defines the interface for two-factor authentication
type TwoFactorServiceInterface interface {
	EnableTwoFactor(ctx context.Context, account *models.Account) (*models.TwoFactorEnrollment, error)
	VerifyTwoFactor(ctx context.Context, accountID, code string) (string, error)
	DisableTwoFactor(ctx context.Context, accountID, password string) error
}

// TwoFactorHandler handles TOTP enrollment, verification and removal
type TwoFactorHandler struct {
	service TwoFactorServiceInterface
	logger  *slog.Logger
}

func NewTwoFactorHandler(service TwoFactorServiceInterface, logger *slog.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{service: service, logger: logger}
}

// VerifyTwoFactorRequest accepts a 6-digit TOTP code or an 8-character recovery code
type VerifyTwoFactorRequest struct {
	Code string `json:"code" validate:"required,min=6,max=8,alphanum"`
}

type DisableTwoFactorRequest struct {
	Password string `json:"password" validate:"required,max=128"`
}

// VerifiedTokenResponse carries an access token that has passed the second factor
type VerifiedTokenResponse struct {
	AccessToken string `json:"access_token"`
}

// Enable handles POST /auth/2fa/enable. The enrollment, including the plaintext
// recovery codes, is only ever returned by this response.
func (h *TwoFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	enrollment, err := h.service.EnableTwoFactor(r.Context(), account)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, enrollment)
}

// Verify handles POST /auth/2fa/verify
func (h *TwoFactorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req VerifyTwoFactorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	token, err := h.service.VerifyTwoFactor(r.Context(), account.ID, req.Code)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, VerifiedTokenResponse{AccessToken: token})
}

// Disable handles POST /auth/2fa/disable
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req DisableTwoFactorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.DisableTwoFactor(r.Context(), account.ID, req.Password); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
