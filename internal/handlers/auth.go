package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/scholar/internal/auth"
	"github.com/BradenHooton/scholar/internal/models"
	"github.com/BradenHooton/scholar/internal/services"
	pkghttp "github.com/BradenHooton/scholar/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Authenticate(ctx context.Context, email, password string) (*services.AuthResult, error)
	Register(ctx context.Context, email, password, name string) (*models.Account, error)
	Refresh(ctx context.Context, refreshToken string) (*services.AuthResult, error)
	ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) (*services.AuthResult, error)
}

// PasswordResetServiceInterface defines the interface for password resets
type PasswordResetServiceInterface interface {
	RequestPasswordReset(ctx context.Context, email string) error
	CompletePasswordReset(ctx context.Context, plaintext, newPassword string) (bool, error)
}

// EmailVerificationServiceInterface defines the interface for email verification
type EmailVerificationServiceInterface interface {
	CompleteEmailVerification(ctx context.Context, plaintext string) (bool, error)
	Resend(ctx context.Context, email string) error
}

// AuthHandler handles credential, session and one-time token endpoints
type AuthHandler struct {
	service      AuthServiceInterface
	resets       PasswordResetServiceInterface
	verification EmailVerificationServiceInterface
	logger       *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(
	service AuthServiceInterface,
	resets PasswordResetServiceInterface,
	verification EmailVerificationServiceInterface,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		service:      service,
		resets:       resets,
		verification: verification,
		logger:       logger,
	}
}

// Request DTOs

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=128"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required,len=64,hexadecimal"`
	Password string `json:"password" validate:"required,max=128"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required,len=64,hexadecimal"`
}

type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=128"`
	NewPassword     string `json:"new_password" validate:"required,max=128"`
}

// AuthResponse is returned by every endpoint that issues a token pair
type AuthResponse struct {
	Account           *models.PublicAccount `json:"account"`
	AccessToken       string                `json:"access_token"`
	RefreshToken      string                `json:"refresh_token"`
	TwoFactorRequired bool                  `json:"two_factor_required"`
}

// MessageResponse carries a human-readable acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

func newAuthResponse(result *services.AuthResult) *AuthResponse {
	return &AuthResponse{
		Account:           result.Account.Public(nowFunc()),
		AccessToken:       result.AccessToken,
		RefreshToken:      result.RefreshToken,
		TwoFactorRequired: result.TwoFactorRequired,
	}
}

// decodeAndValidate decodes a JSON body into req and validates it, writing a
// 400 response on failure
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := pkghttp.DecodeJSON(r, req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, newAuthResponse(result))
}

// Register handles POST /auth/register. A duplicate email gets the same 202 as a
// new registration so the endpoint cannot be used to enumerate accounts.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	_, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil && !isConflict(err) {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{
		Message: "Registration received. If the email is not already registered, you will receive a confirmation email.",
	})
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, newAuthResponse(result))
}

// ForgotPassword handles POST /auth/forgot-password. The response is identical
// whether or not the email belongs to an account.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.resets.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.logger.Error("password reset request failed", slog.Any("error", err))
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{
		Message: "If an account exists with this email, a password reset link will be sent.",
	})
}

// ResetPassword handles POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if _, err := h.resets.CompletePasswordReset(r.Context(), req.Token, req.Password); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password has been reset. Please log in."})
}

// VerifyEmail handles POST /auth/verify-email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if _, err := h.verification.CompleteEmailVerification(r.Context(), req.Token); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Email verified successfully."})
}

// ResendVerification handles POST /auth/resend-verification
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendVerificationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.verification.Resend(r.Context(), req.Email); err != nil {
		h.logger.Error("verification resend failed", slog.Any("error", err))
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{
		Message: "If an account exists with this email, a verification email will be sent.",
	})
}

// ChangePassword handles POST /accounts/me/password for the authenticated account
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.ChangePassword(r.Context(), account.ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, newAuthResponse(result))
}
